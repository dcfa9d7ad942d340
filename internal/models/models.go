package models

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Enums

type PartStatus string

const (
	PartStatusPending   PartStatus = "pending"
	PartStatusProcessed PartStatus = "processed"
	PartStatusSkipped   PartStatus = "skipped"
	PartStatusFailed    PartStatus = "failed"
)

type RunStatus string

const (
	RunStatusRunning   RunStatus = "running"
	RunStatusSucceeded RunStatus = "succeeded"
	RunStatusFailed    RunStatus = "failed"
)

// Part is one unit of narration and its derived artifacts. Index is the
// 1-based part number parsed from the audio filename. Indices are sparse:
// a chunk skipped upstream simply never appears here.
type Part struct {
	Index       int      `json:"index"`
	AudioPath   string   `json:"audio_path"`
	ImagePaths  []string `json:"image_paths"`
	SegmentPath string   `json:"segment_path,omitempty"` // set once compositing succeeds
}

// Outline is the structured topic breakdown generated from the book text.
type Outline struct {
	MainTopics []MainTopic `json:"main_topics"`
}

type MainTopic struct {
	Title     string     `json:"title"`
	Subtopics []Subtopic `json:"subtopics"`
}

type Subtopic struct {
	Subtitle          string   `json:"subtitle"`
	KeyConcepts       []string `json:"key_concepts"`
	EstimatedDuration string   `json:"estimated_duration"`
}

// SubtopicCount returns the total number of subtopics across all main topics.
func (o *Outline) SubtopicCount() int {
	n := 0
	for _, topic := range o.MainTopics {
		n += len(topic.Subtopics)
	}
	return n
}

// PromptVariant resolves the two shapes the prompt generator returns for
// the "same" field: a plain string, or an object with a "prompt" key.
// It always resolves to a plain string; the variant never leaks past the
// generation boundary.
type PromptVariant struct {
	Text string
}

func (p *PromptVariant) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err == nil {
		p.Text = raw
		return nil
	}

	var structured struct {
		Prompt string `json:"prompt"`
	}
	if err := json.Unmarshal(data, &structured); err == nil && structured.Prompt != "" {
		p.Text = structured.Prompt
		return nil
	}

	return fmt.Errorf("unrecognized prompt format: %s", string(data))
}

func (p PromptVariant) MarshalJSON() ([]byte, error) {
	return json.Marshal(p.Text)
}

// Manifest is the job snapshot written for external consumption (e.g. by
// a separate editing tool). It is never read back by the pipeline itself.
type Manifest struct {
	BookTitle   string          `json:"book_title"`
	RunID       uuid.UUID       `json:"run_id"`
	OverlayPath string          `json:"overlay_path,omitempty"`
	Assets      []ManifestAsset `json:"assets"`
}

type ManifestAsset struct {
	Part        int      `json:"part"`
	AudioPath   string   `json:"audio_path"`
	ImagePaths  []string `json:"image_paths"`
	OverlayPath string   `json:"overlay_path,omitempty"`
}

// PartResult records the outcome of one part's assembly.
type PartResult struct {
	Index  int        `json:"index"`
	Status PartStatus `json:"status"`
	Detail string     `json:"detail,omitempty"`
}

// Report summarizes a full assembly run. OverlayPath and MusicPath record
// the selection the run actually composited, so a run can be reproduced.
type Report struct {
	RunID       uuid.UUID    `json:"run_id"`
	BookTitle   string       `json:"book_title"`
	StartedAt   time.Time    `json:"started_at"`
	FinishedAt  time.Time    `json:"finished_at"`
	OverlayPath string       `json:"overlay_path,omitempty"`
	MusicPath   string       `json:"music_path,omitempty"`
	Parts       []PartResult `json:"parts"`
	Succeeded   int          `json:"succeeded"`
	Total       int          `json:"total"`
	FinalPath   string       `json:"final_path,omitempty"`
}
