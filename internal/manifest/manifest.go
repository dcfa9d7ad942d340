package manifest

import (
	"encoding/json"
	"fmt"
	"log"
	"os"

	"github.com/google/uuid"

	"github.com/nocturnal/bookreel/internal/assets"
	"github.com/nocturnal/bookreel/internal/models"
)

// Write snapshots the discovered assets into job.json for external tools.
// The pipeline never reads the manifest back; it is a publication, not
// state. Parts without images are listed as-is, since the placeholder
// fallback happens at assembly time.
func Write(layout *assets.Layout, runID uuid.UUID, overlayPath string) (*models.Manifest, error) {
	parts, err := layout.DiscoverParts()
	if err != nil {
		return nil, err
	}
	if len(parts) == 0 {
		return nil, fmt.Errorf("no audio files found in %s: nothing to manifest", layout.AudioDir)
	}

	m := &models.Manifest{
		BookTitle:   layout.BookTitle,
		RunID:       runID,
		OverlayPath: overlayPath,
		Assets:      make([]models.ManifestAsset, 0, len(parts)),
	}

	for _, part := range parts {
		m.Assets = append(m.Assets, models.ManifestAsset{
			Part:        part.Index,
			AudioPath:   part.AudioPath,
			ImagePaths:  part.ImagePaths,
			OverlayPath: overlayPath,
		})
	}

	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to encode manifest: %w", err)
	}

	path := layout.ManifestPath()
	if err := os.WriteFile(path, data, 0644); err != nil {
		return nil, fmt.Errorf("failed to write manifest: %w", err)
	}

	log.Printf("[Manifest] Wrote %d asset entries to %s", len(m.Assets), path)
	return m, nil
}

// Read loads a previously written manifest, for the status API.
func Read(layout *assets.Layout) (*models.Manifest, error) {
	data, err := os.ReadFile(layout.ManifestPath())
	if err != nil {
		return nil, err
	}

	var m models.Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to parse manifest: %w", err)
	}

	return &m, nil
}
