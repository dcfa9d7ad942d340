package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"

	"google.golang.org/genai"

	"github.com/nocturnal/bookreel/internal/models"
)

const (
	promptModel = "gemini-2.5-flash-lite"
	imagenModel = "imagen-3.0-generate-002"
)

// VisualStyle describes how a book should look on screen. It feeds the
// prompt generator so every image for the book shares one aesthetic.
type VisualStyle struct {
	Style  string   `json:"style"`
	Themes []string `json:"themes"`
	NoText bool     `json:"no_text"` // forbid rendered text in images
}

// GeminiService generates contextual image prompts and renders them with
// Imagen, both through the Google GenAI client.
type GeminiService struct {
	client *genai.Client
}

func NewGeminiService(ctx context.Context, apiKey string) (*GeminiService, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}

	return &GeminiService{client: client}, nil
}

// GenerateImagePrompts asks the model for numImages scene descriptions tied
// to one narration chunk. The model is told to return a JSON array of plain
// strings, but sometimes returns objects with a "prompt" key instead; both
// shapes are accepted.
func (s *GeminiService) GenerateImagePrompts(ctx context.Context, chunkText string, style VisualStyle, numImages, partNumber, totalParts int) ([]string, error) {
	textRule := "5. Don't include any text"
	if style.NoText {
		textRule = "5. CRITICAL: The generated image must NOT contain any text, letters, words, or numbers whatsoever."
	}

	prompt := fmt.Sprintf(`You are creating visual accompaniments for an audiobook.

BOOK CONTEXT:
- This is part %d of %d total parts
- Visual Style: %s
- Themes: %s

TEXT FOR THIS PART:
%s

Create %d distinct, high-quality **image prompts** that follow these rules:
1. Directly relate to the key concepts in this specific text segment.
2. Progress visually to complement the narration flow.
3. Are suitable for 16:9 aspect ratio video.
4. Match the overall book's visual style and themes.
%s

Output ONLY a valid JSON array of %d descriptive prompt STRINGS.`,
		partNumber, totalParts,
		style.Style, strings.Join(style.Themes, ", "),
		chunkText,
		numImages, textRule, numImages,
	)

	resp, err := s.client.Models.GenerateContent(ctx, promptModel, genai.Text(prompt), nil)
	if err != nil {
		return nil, fmt.Errorf("prompt generation request failed: %w", err)
	}

	raw := resp.Text()
	prompts, err := parsePromptArray(raw)
	if err != nil {
		logRawResponse("Gemini prompts", raw)
		return nil, err
	}

	if len(prompts) != numImages {
		log.Printf("[Gemini prompts] Expected %d prompts, got %d", numImages, len(prompts))
	}

	return prompts, nil
}

// GenerateImage renders a single 16:9 image for the prompt and returns the
// raw image bytes.
func (s *GeminiService) GenerateImage(ctx context.Context, prompt string) ([]byte, error) {
	resp, err := s.client.Models.GenerateImages(ctx, imagenModel, prompt, &genai.GenerateImagesConfig{
		NumberOfImages: 1,
		AspectRatio:    "16:9",
	})
	if err != nil {
		return nil, fmt.Errorf("image generation request failed: %w", err)
	}

	if len(resp.GeneratedImages) == 0 || resp.GeneratedImages[0].Image == nil {
		return nil, fmt.Errorf("no image returned for prompt")
	}

	data := resp.GeneratedImages[0].Image.ImageBytes
	if len(data) == 0 {
		return nil, fmt.Errorf("image response contained no bytes")
	}

	return data, nil
}

// parsePromptArray decodes the model's prompt list, tolerating the
// string-or-object shape drift and dropping unrecognized entries.
func parsePromptArray(raw string) ([]string, error) {
	var variants []models.PromptVariant
	if err := json.Unmarshal([]byte(stripCodeFences(raw)), &variants); err != nil {
		// Entry-level decode failures should not discard the whole batch:
		// retry element by element and keep what parses.
		var rawItems []json.RawMessage
		if arrErr := json.Unmarshal([]byte(stripCodeFences(raw)), &rawItems); arrErr != nil {
			return nil, fmt.Errorf("failed to parse prompt array: %w", err)
		}
		for i, item := range rawItems {
			var v models.PromptVariant
			if err := json.Unmarshal(item, &v); err != nil {
				log.Printf("[Gemini prompts] Unrecognized prompt format at index %d, skipping: %s", i, string(item))
				continue
			}
			variants = append(variants, v)
		}
	}

	prompts := make([]string, 0, len(variants))
	for _, v := range variants {
		if v.Text != "" {
			prompts = append(prompts, v.Text)
		}
	}

	if len(prompts) == 0 {
		return nil, fmt.Errorf("prompt array contained no usable prompts")
	}

	return prompts, nil
}

// IsQuotaError reports whether the error is an API quota or rate-limit
// rejection, which warrants a cooldown rather than an immediate retry.
func IsQuotaError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "RESOURCE_EXHAUSTED") ||
		strings.Contains(msg, "Quota") ||
		strings.Contains(msg, "429")
}
