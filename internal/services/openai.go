package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/nocturnal/bookreel/internal/models"
)

const (
	outlineModel = "gpt-5-mini"
	scriptModel  = "gpt-5-mini"
)

type OpenAIService struct {
	client *openai.Client
}

func NewOpenAIService(apiKey string) *OpenAIService {
	return &OpenAIService{
		client: openai.NewClient(apiKey),
	}
}

// GenerateOutline analyzes the full book text and returns a structured topic
// breakdown: main topics, each with detailed subtopics and key concepts.
func (s *OpenAIService) GenerateOutline(ctx context.Context, bookText, bookTitle string) (*models.Outline, error) {
	systemPrompt := fmt.Sprintf(`You are creating a comprehensive outline for a long-form audiobook script based on "%s".

Analyze the full book text and create a structured outline that includes:
1. Main topic areas
2. Detailed subtopics under each main area
3. Specific concepts, principles, and ideas that should be covered

The output MUST be a JSON object with this structure:
{
  "main_topics": [
    {
      "title": "Main Topic Name",
      "subtopics": [
        {
          "subtitle": "Specific Subtopic",
          "key_concepts": ["concept1", "concept2", "concept3"],
          "estimated_duration": "8-10 minutes"
        }
      ]
    }
  ]
}

Guidelines:
- Aim for 6-8 main topics total
- Each main topic should have 3-5 detailed subtopics
- Focus on actionable insights and deep philosophical concepts from the book.`, bookTitle)

	userPrompt := fmt.Sprintf("Here is the full book text:\n--- BOOK TEXT BEGINS ---\n%s\n--- BOOK TEXT ENDS ---", bookText)

	resp, err := s.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: outlineModel,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: userPrompt},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
		Temperature: 1.0,
	})
	if err != nil {
		return nil, fmt.Errorf("openai outline request failed: %w", err)
	}

	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("no response from openai")
	}

	rawContent := resp.Choices[0].Message.Content

	var outline models.Outline
	if err := json.Unmarshal([]byte(stripCodeFences(rawContent)), &outline); err != nil {
		logRawResponse("OpenAI outline", rawContent)
		return nil, fmt.Errorf("failed to parse outline: %w", err)
	}

	if len(outline.MainTopics) == 0 {
		logRawResponse("OpenAI outline", rawContent)
		return nil, fmt.Errorf("outline has no main topics")
	}
	for i, topic := range outline.MainTopics {
		if topic.Title == "" {
			return nil, fmt.Errorf("main topic %d has no title", i+1)
		}
		if len(topic.Subtopics) == 0 {
			return nil, fmt.Errorf("main topic %q has no subtopics", topic.Title)
		}
		for j, sub := range topic.Subtopics {
			if sub.Subtitle == "" {
				return nil, fmt.Errorf("topic %q subtopic %d has no subtitle", topic.Title, j+1)
			}
		}
	}

	log.Printf("[OpenAI outline] Generated %d main topics, %d subtopics total",
		len(outline.MainTopics), outline.SubtopicCount())

	return &outline, nil
}

// GenerateChunk writes the narration for one subtopic. previousContext is a
// one-line summary of where the narration just came from, so consecutive
// chunks flow into each other without meta-commentary.
func (s *OpenAIService) GenerateChunk(ctx context.Context, bookText, bookTitle string, subtopic models.Subtopic, previousContext string) (string, error) {
	prompt := fmt.Sprintf(`You are writing a detailed audiobook narration for "%s".

**CURRENT SECTION:** %s
**KEY CONCEPTS TO COVER:** %s
**TARGET DURATION:** %s
**PREVIOUS CONTEXT:** %s

**YOUR TASK:**
Create an engaging, flowing narration that follows these critical style requirements:
1. **CONTINUOUS NARRATION:** Write as a single, continuous story. Start by smoothly transitioning from the previous context.
2. **DEEP EXPLORATION:** Thoroughly explore each key concept with clear explanations, using direct quotes, examples, and analogies from the book.
3. **NO META-COMMENTARY:** Do NOT use phrases like "Welcome back," "In this segment," or "In the next part." The narration should be seamless.
4. **TONE:** Write like a thoughtful narrator exploring the book's ideas in depth, as if having an intimate conversation with the listener.
5. **FORMAT:** Start with the markdown heading `+"`## %s`"+` and then write the narration in natural, spoken-word paragraphs.

**BOOK TEXT FOR REFERENCE:**
---
%s
---`,
		bookTitle,
		subtopic.Subtitle,
		strings.Join(subtopic.KeyConcepts, ", "),
		subtopic.EstimatedDuration,
		previousContext,
		subtopic.Subtitle,
		bookText,
	)

	resp, err := s.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: scriptModel,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		Temperature: 1.0,
	})
	if err != nil {
		return "", fmt.Errorf("openai script request failed: %w", err)
	}

	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("no response from openai")
	}

	chunk := strings.TrimSpace(resp.Choices[0].Message.Content)
	if chunk == "" {
		return "", fmt.Errorf("openai returned an empty narration chunk")
	}

	return chunk, nil
}

// stripCodeFences removes markdown code fences a model sometimes wraps
// around JSON output.
func stripCodeFences(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

func logRawResponse(tag, raw string) {
	const maxLogLen = 2000
	if len(raw) > maxLogLen {
		log.Printf("[%s] raw response (truncated): %s...", tag, raw[:maxLogLen])
	} else {
		log.Printf("[%s] raw response: %s", tag, raw)
	}
}
