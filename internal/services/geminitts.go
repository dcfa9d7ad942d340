package services

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"
)

// ---------------------------------------------------------------------------
// Gemini Text-to-Speech Service
// Uses the generateContent REST endpoint with the AUDIO response modality.
// The API returns raw 24kHz mono 16-bit PCM, which is wrapped in a WAV
// container before being handed back.
// ---------------------------------------------------------------------------

const (
	geminiTTSBaseURL      = "https://generativelanguage.googleapis.com/v1beta"
	geminiTTSModel        = "gemini-2.5-pro-preview-tts"
	geminiTTSDefaultVoice = "Algieba"
	geminiTTSSampleRate   = 24000
)

type GeminiTTSService struct {
	apiKey    string
	voiceName string
	client    *http.Client
}

var _ TTSService = (*GeminiTTSService)(nil)

func NewGeminiTTSService(apiKey, voiceName string) *GeminiTTSService {
	if voiceName == "" {
		voiceName = geminiTTSDefaultVoice
	}
	return &GeminiTTSService{
		apiKey:    apiKey,
		voiceName: voiceName,
		client:    &http.Client{Timeout: 300 * time.Second},
	}
}

// Request/response structures for the TTS flavor of generateContent.

type geminiTTSRequest struct {
	Contents         []geminiTTSContent `json:"contents"`
	GenerationConfig geminiTTSGenConfig `json:"generationConfig"`
}

type geminiTTSContent struct {
	Parts []geminiTTSPart `json:"parts"`
}

type geminiTTSPart struct {
	Text string `json:"text"`
}

type geminiTTSGenConfig struct {
	ResponseModalities []string              `json:"responseModalities"`
	SpeechConfig       geminiTTSSpeechConfig `json:"speechConfig"`
}

type geminiTTSSpeechConfig struct {
	VoiceConfig geminiTTSVoiceConfig `json:"voiceConfig"`
}

type geminiTTSVoiceConfig struct {
	PrebuiltVoiceConfig geminiTTSPrebuiltVoice `json:"prebuiltVoiceConfig"`
}

type geminiTTSPrebuiltVoice struct {
	VoiceName string `json:"voiceName"`
}

type geminiTTSResponse struct {
	Candidates []struct {
		Content struct {
			Parts []struct {
				InlineData *struct {
					MimeType string `json:"mimeType"`
					Data     string `json:"data"`
				} `json:"inlineData,omitempty"`
			} `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
	PromptFeedback *struct {
		BlockReason string `json:"blockReason"`
	} `json:"promptFeedback,omitempty"`
}

// GenerateSpeech voices the text with the configured prebuilt voice.
// A safety-filter block comes back as ErrSpeechBlocked so callers can skip
// the chunk instead of retrying it.
func (s *GeminiTTSService) GenerateSpeech(ctx context.Context, text, styleInstruction string) (*TTSResponse, error) {
	if styleInstruction == "" {
		styleInstruction = "a calm, gentle audiobook narration"
	}
	promptText := fmt.Sprintf("Read in %s: %s", styleInstruction, text)

	reqBody := geminiTTSRequest{
		Contents: []geminiTTSContent{
			{Parts: []geminiTTSPart{{Text: promptText}}},
		},
		GenerationConfig: geminiTTSGenConfig{
			ResponseModalities: []string{"AUDIO"},
			SpeechConfig: geminiTTSSpeechConfig{
				VoiceConfig: geminiTTSVoiceConfig{
					PrebuiltVoiceConfig: geminiTTSPrebuiltVoice{VoiceName: s.voiceName},
				},
			},
		},
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal TTS request: %w", err)
	}

	url := fmt.Sprintf("%s/models/%s:generateContent?key=%s", geminiTTSBaseURL, geminiTTSModel, s.apiKey)
	req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewReader(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create TTS request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	log.Printf("[GeminiTTS] Generating speech (voice=%s, textLen=%d)", s.voiceName, len(text))

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("TTS request failed: %w", err)
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read TTS response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("gemini TTS returned status %d: %s", resp.StatusCode, string(bodyBytes))
	}

	var ttsResp geminiTTSResponse
	if err := json.Unmarshal(bodyBytes, &ttsResp); err != nil {
		return nil, fmt.Errorf("failed to decode TTS response: %w", err)
	}

	if len(ttsResp.Candidates) == 0 {
		reason := "unknown"
		if ttsResp.PromptFeedback != nil && ttsResp.PromptFeedback.BlockReason != "" {
			reason = ttsResp.PromptFeedback.BlockReason
		}
		return nil, fmt.Errorf("%w (reason: %s)", ErrSpeechBlocked, reason)
	}

	var pcm []byte
	for _, part := range ttsResp.Candidates[0].Content.Parts {
		if part.InlineData != nil && part.InlineData.Data != "" {
			pcm, err = base64.StdEncoding.DecodeString(part.InlineData.Data)
			if err != nil {
				return nil, fmt.Errorf("failed to decode audio payload: %w", err)
			}
			break
		}
	}

	if len(pcm) == 0 {
		return nil, fmt.Errorf("no audio data in TTS response")
	}

	log.Printf("[GeminiTTS] Speech generated (%d bytes PCM)", len(pcm))

	return &TTSResponse{
		AudioData:  encodeWAV(pcm, geminiTTSSampleRate, 1, 16),
		SampleRate: geminiTTSSampleRate,
		Format:     "wav",
	}, nil
}
