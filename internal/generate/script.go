package generate

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/nocturnal/bookreel/internal/assets"
	"github.com/nocturnal/bookreel/internal/models"
)

const introTemplate = `Welcome to Nocturnal Knowledge.

Today, we're exploring "%s" by %s.

Settle in as we journey through the complete text. If you enjoy this exploration,
please consider liking this video and subscribing for more deep dives into the world's most influential books.

Our journey begins now.`

// ScriptWriter produces the outline and the per-subtopic narration.
// *services.OpenAIService implements it.
type ScriptWriter interface {
	GenerateOutline(ctx context.Context, bookText, bookTitle string) (*models.Outline, error)
	GenerateChunk(ctx context.Context, bookText, bookTitle string, subtopic models.Subtopic, previousContext string) (string, error)
}

// ScriptStage turns the extracted book text into numbered narration chunk
// files: an intro chunk first, then one chunk per outline subtopic.
type ScriptStage struct {
	writer ScriptWriter
	layout *assets.Layout
	title  string // display title, underscores already replaced
	author string
	pacer  Waiter
}

// Waiter paces the generation API calls.
type Waiter interface {
	Wait(ctx context.Context) error
}

func NewScriptStage(writer ScriptWriter, layout *assets.Layout, displayTitle, author string, pacer Waiter) *ScriptStage {
	return &ScriptStage{
		writer: writer,
		layout: layout,
		title:  displayTitle,
		author: author,
		pacer:  pacer,
	}
}

// Run generates the outline and all narration chunks from the book text.
// It returns the number of chunk files written. A subtopic whose narration
// fails is skipped; its index is simply never used, leaving a gap the
// downstream stages tolerate.
func (s *ScriptStage) Run(ctx context.Context, bookText string) (int, error) {
	if err := s.layout.EnsureDirs(s.layout.ChunksDir); err != nil {
		return 0, err
	}

	outline, err := s.writer.GenerateOutline(ctx, bookText, s.title)
	if err != nil {
		return 0, fmt.Errorf("outline generation failed: %w", err)
	}

	if err := s.saveOutline(outline); err != nil {
		return 0, err
	}

	log.Printf("[Script] Outline ready: %d main topics, %d subtopics",
		len(outline.MainTopics), outline.SubtopicCount())

	// Chunk 1 is the fixed intro; subtopic chunks start at 2.
	intro := fmt.Sprintf(introTemplate, s.title, s.author)
	if err := s.writeChunk(1, intro); err != nil {
		return 0, err
	}

	written := 1
	index := 2
	previousContext := fmt.Sprintf("We are beginning our journey into the core ideas of the book, '%s'.", s.title)

	for _, topic := range outline.MainTopics {
		log.Printf("[Script] Processing main topic: %s", topic.Title)

		for _, subtopic := range topic.Subtopics {
			if err := s.pacer.Wait(ctx); err != nil {
				return written, err
			}

			chunk, err := s.writer.GenerateChunk(ctx, bookText, s.title, subtopic, previousContext)
			if err != nil {
				log.Printf("[Script] Narration failed for %q, skipping: %v", subtopic.Subtitle, err)
				index++
				continue
			}

			if err := s.writeChunk(index, chunk); err != nil {
				return written, err
			}

			log.Printf("[Script] Wrote chunk %02d: %s", index, subtopic.Subtitle)
			previousContext = fmt.Sprintf("Having just explored the concepts within '%s', we now transition to the next idea.", subtopic.Subtitle)
			index++
			written++
		}
	}

	if written == 1 {
		return written, fmt.Errorf("no subtopic narration was generated")
	}

	log.Printf("[Script] Saved %d narration chunks to %s", written, s.layout.ChunksDir)
	return written, nil
}

func (s *ScriptStage) writeChunk(index int, content string) error {
	path := s.layout.ChunkPath(index)
	if err := os.WriteFile(path, []byte(strings.TrimSpace(content)+"\n"), 0644); err != nil {
		return fmt.Errorf("failed to write chunk %d: %w", index, err)
	}
	return nil
}

func (s *ScriptStage) saveOutline(outline *models.Outline) error {
	data, err := json.MarshalIndent(outline, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode outline: %w", err)
	}

	path := s.layout.OutlinePath()
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to save outline: %w", err)
	}

	log.Printf("[Script] Outline saved to %s", path)
	return nil
}
