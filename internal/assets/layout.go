package assets

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/gofrs/flock"

	"github.com/nocturnal/bookreel/internal/models"
)

// Layout computes artifact paths for a book and discovers the parts that
// exist on disk. All stages share this naming convention; part numbers
// embedded in filenames always sort in natural numeric order.
type Layout struct {
	ChunksDir   string
	AudioDir    string
	ImagesDir   string
	VideoDir    string
	TempDir     string
	MusicDir    string
	OverlaysDir string
	BookTitle   string
}

func (l *Layout) ChunkPath(index int) string {
	return filepath.Join(l.ChunksDir, fmt.Sprintf("chunk_%02d.txt", index))
}

func (l *Layout) AudioPath(index int) string {
	return filepath.Join(l.AudioDir, fmt.Sprintf("audio_part_%d.wav", index))
}

func (l *Layout) ImagePath(part, image int) string {
	return filepath.Join(l.ImagesDir, fmt.Sprintf("image_part_%d_img_%d.png", part, image))
}

func (l *Layout) SlideshowPath(index int) string {
	return filepath.Join(l.TempDir, fmt.Sprintf("slideshow_%d.mp4", index))
}

func (l *Layout) SegmentPath(index int) string {
	return filepath.Join(l.TempDir, fmt.Sprintf("processed_segment_%d.mp4", index))
}

func (l *Layout) FinalVideoPath() string {
	return filepath.Join(l.VideoDir, fmt.Sprintf("%s_final_video.mp4", l.BookTitle))
}

func (l *Layout) FinalVideoWithMusicPath() string {
	return filepath.Join(l.VideoDir, fmt.Sprintf("%s_final_video_with_music.mp4", l.BookTitle))
}

func (l *Layout) ManifestPath() string {
	return filepath.Join(filepath.Dir(l.ChunksDir), "job.json")
}

func (l *Layout) OutlinePath() string {
	return filepath.Join(filepath.Dir(l.ChunksDir), "detailed_outline.json")
}

func (l *Layout) VisualStylePath() string {
	return filepath.Join(filepath.Dir(l.ChunksDir), "visual_style.json")
}

func (l *Layout) RunLogPath() string {
	return filepath.Join(l.VideoDir, "runs.db")
}

// EnsureDirs creates the artifact directories a stage writes into.
func (l *Layout) EnsureDirs(dirs ...string) error {
	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create %s: %w", dir, err)
		}
	}
	return nil
}

// DiscoverChunks lists chunk text files in natural numeric order and
// returns their part indices alongside the paths.
func (l *Layout) DiscoverChunks() ([]int, []string, error) {
	paths, err := globNatural(filepath.Join(l.ChunksDir, "chunk_*.txt"))
	if err != nil {
		return nil, nil, err
	}

	var indices []int
	var kept []string
	for _, p := range paths {
		idx, ok := trailingIndex(p, "chunk_", ".txt")
		if !ok {
			log.Printf("[Assets] Ignoring unparseable chunk file: %s", p)
			continue
		}
		indices = append(indices, idx)
		kept = append(kept, p)
	}

	return indices, kept, nil
}

// DiscoverParts scans the audio directory for part audio files and builds
// the Part set, attaching each part's images. Parts are returned in
// ascending numeric index order. Indices may be sparse: a gap means the
// upstream generation skipped that chunk, and that is valid. A part with
// zero images is valid too (the assembler substitutes a placeholder).
func (l *Layout) DiscoverParts() ([]models.Part, error) {
	audioPaths, err := globNatural(filepath.Join(l.AudioDir, "audio_part_*.wav"))
	if err != nil {
		return nil, fmt.Errorf("failed to scan audio dir: %w", err)
	}

	var parts []models.Part
	for _, audioPath := range audioPaths {
		idx, ok := trailingIndex(audioPath, "audio_part_", ".wav")
		if !ok {
			log.Printf("[Assets] Ignoring unparseable audio file: %s", audioPath)
			continue
		}

		images, err := globNatural(filepath.Join(l.ImagesDir, fmt.Sprintf("image_part_%d_img_*.png", idx)))
		if err != nil {
			return nil, fmt.Errorf("failed to scan images for part %d: %w", idx, err)
		}

		parts = append(parts, models.Part{
			Index:      idx,
			AudioPath:  audioPath,
			ImagePaths: images,
		})
	}

	return parts, nil
}

// DiscoverOverlays lists candidate overlay clips.
func (l *Layout) DiscoverOverlays() ([]string, error) {
	return globNatural(filepath.Join(l.OverlaysDir, "*.*"))
}

// DiscoverMusic lists candidate background music tracks.
func (l *Layout) DiscoverMusic() ([]string, error) {
	return globNatural(filepath.Join(l.MusicDir, "*.*"))
}

// Lock acquires an exclusive lock for this book's artifact tree. Two
// pipeline runs against the same book corrupt each other's temp files, so
// the caller fails fast instead.
func (l *Layout) Lock() (*flock.Flock, error) {
	if err := l.EnsureDirs(l.VideoDir); err != nil {
		return nil, err
	}

	lock := flock.New(filepath.Join(l.VideoDir, ".bookreel.lock"))
	locked, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("failed to acquire book lock: %w", err)
	}
	if !locked {
		return nil, fmt.Errorf("another bookreel run holds the lock for %q", l.BookTitle)
	}

	return lock, nil
}

// globNatural globs and sorts matches in natural numeric order, so
// "part_2" sorts before "part_10".
func globNatural(pattern string) ([]string, error) {
	matches, err := filepath.Glob(pattern)
	if err != nil {
		return nil, err
	}

	sort.Slice(matches, func(i, j int) bool {
		return naturalLess(filepath.Base(matches[i]), filepath.Base(matches[j]))
	})

	return matches, nil
}

// trailingIndex extracts the integer between prefix and suffix in a
// filename, e.g. audio_part_12.wav -> 12. Zero-padded numbers parse the
// same as unpadded ones.
func trailingIndex(path, prefix, suffix string) (int, bool) {
	name := filepath.Base(path)
	name = strings.TrimPrefix(name, prefix)
	name = strings.TrimSuffix(name, suffix)
	if name == "" {
		return 0, false
	}

	n := 0
	for _, r := range name {
		if r < '0' || r > '9' {
			return 0, false
		}
		n = n*10 + int(r-'0')
	}

	return n, true
}
