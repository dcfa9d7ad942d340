package generate

import (
	"encoding/json"
	"fmt"
	"log"
	"os"

	"github.com/nocturnal/bookreel/internal/services"
)

// defaultStyle keeps the image stage usable for books that never got a
// hand-written style file.
var defaultStyle = services.VisualStyle{
	Style:  "atmospheric, painterly, cinematic lighting",
	Themes: []string{"wisdom", "reflection", "timeless ideas"},
	NoText: true,
}

// LoadVisualStyle reads the book's visual style file. A missing file falls
// back to the default style; a malformed one is an error, since silently
// ignoring it would generate a whole run of off-style images.
func LoadVisualStyle(path string) (services.VisualStyle, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			log.Printf("[Images] No visual style file at %s, using defaults", path)
			return defaultStyle, nil
		}
		return services.VisualStyle{}, fmt.Errorf("failed to read visual style: %w", err)
	}

	var style services.VisualStyle
	if err := json.Unmarshal(data, &style); err != nil {
		return services.VisualStyle{}, fmt.Errorf("failed to parse visual style %s: %w", path, err)
	}

	if style.Style == "" {
		style.Style = defaultStyle.Style
	}

	return style, nil
}
