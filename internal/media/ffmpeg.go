package media

import (
	"bytes"
	"context"
	"fmt"
	"log"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
)

// ---------------------------------------------------------------------------
// FFmpeg runs the media tools. Every probe, transform, composite, and concat operation is a
// blocking ffmpeg/ffprobe subprocess. Exit code plus captured stderr are
// surfaced in the returned error so part-level failures carry a diagnostic.
// ---------------------------------------------------------------------------

// Options carries the rendering parameters shared across all operations.
// Audio is always re-encoded with the same codec/bitrate so finished
// segments concatenate by stream copy.
type Options struct {
	FrameRate        int
	CanvasWidth      int
	CanvasHeight     int
	AudioCodec       string
	AudioBitrate     string
	MusicVolume      float64
	ChromaColor      string
	ChromaSimilarity float64
	ChromaBlend      float64
}

type FFmpeg struct {
	tempDir string
	opts    Options
}

func New(tempDir string, opts Options) (*FFmpeg, error) {
	if err := os.MkdirAll(tempDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create temp dir: %w", err)
	}

	return &FFmpeg{tempDir: tempDir, opts: opts}, nil
}

// ProbeDuration returns an audio file's playback duration in seconds.
func (f *FFmpeg) ProbeDuration(ctx context.Context, audioPath string) (float64, error) {
	args := []string{
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		audioPath,
	}

	cmd := exec.CommandContext(ctx, "ffprobe", args...)
	output, err := cmd.Output()
	if err != nil {
		return 0, fmt.Errorf("ffprobe failed for %s: %w", filepath.Base(audioPath), err)
	}

	duration, err := strconv.ParseFloat(strings.TrimSpace(string(output)), 64)
	if err != nil {
		return 0, fmt.Errorf("failed to parse duration %q: %w", strings.TrimSpace(string(output)), err)
	}

	return duration, nil
}

// AnimateImage renders one still image into a clip of exactly duration
// seconds, applying the given pan/zoom effect. The image is prescaled and
// cropped to the canvas first so output geometry is uniform regardless of
// the source aspect ratio.
func (f *FFmpeg) AnimateImage(ctx context.Context, imagePath, outputPath string, effect Effect, duration float64, frames int) error {
	vf := fmt.Sprintf("%s,%s",
		prescaleFilter(f.opts.CanvasWidth, f.opts.CanvasHeight),
		zoompanFilter(effect, frames, f.opts.CanvasWidth, f.opts.CanvasHeight, f.opts.FrameRate),
	)

	args := []string{
		"-y",
		"-loop", "1",
		"-i", imagePath,
		"-vf", vf,
		"-c:v", "libx264",
		"-t", formatSeconds(duration),
		"-pix_fmt", "yuv420p",
		outputPath,
	}

	return f.run(ctx, "ffmpeg", args)
}

// RenderPlaceholderImage synthesizes a single placeholder frame: solid dark
// background with the title centered. It is written as a PNG and then flows
// through AnimateImage like any other image, so placeholder clips share
// codec and geometry with the rest of the slideshow.
func (f *FFmpeg) RenderPlaceholderImage(ctx context.Context, outputPath, title string) error {
	source := fmt.Sprintf("color=c=0x1a1a1a:s=%dx%d", f.opts.CanvasWidth, f.opts.CanvasHeight)
	drawtext := fmt.Sprintf("drawtext=text='%s':fontcolor=white:fontsize=60:x=(w-text_w)/2:y=(h-text_h)/2",
		escapeFilterText(title))

	args := []string{
		"-y",
		"-f", "lavfi",
		"-i", source,
		"-vf", drawtext,
		"-frames:v", "1",
		outputPath,
	}

	return f.run(ctx, "ffmpeg", args)
}

// Concatenate stitches clips together by stream copy, in the given order.
// All inputs must share codec, geometry, and timebase, a property the
// animate and composite steps guarantee.
func (f *FFmpeg) Concatenate(ctx context.Context, inputPaths []string, outputPath string) error {
	if len(inputPaths) == 0 {
		return fmt.Errorf("no clips to concatenate")
	}

	listPath := filepath.Join(f.tempDir, fmt.Sprintf("concat_%s.txt", filepath.Base(outputPath)))
	var list bytes.Buffer
	for _, p := range inputPaths {
		abs, err := filepath.Abs(p)
		if err != nil {
			return fmt.Errorf("failed to resolve %s: %w", p, err)
		}
		fmt.Fprintf(&list, "file '%s'\n", abs)
	}
	if err := os.WriteFile(listPath, list.Bytes(), 0644); err != nil {
		return fmt.Errorf("failed to write concat list: %w", err)
	}
	defer os.Remove(listPath)

	args := []string{
		"-y",
		"-f", "concat",
		"-safe", "0",
		"-i", listPath,
		"-c", "copy",
		outputPath,
	}

	return f.run(ctx, "ffmpeg", args)
}

// CompositeSegment muxes a part's narration audio into its visual track,
// optionally looping a chroma-keyed overlay clip above it. Audio is always
// re-encoded to the fixed codec/bitrate; the segment ends with the shorter
// stream (the audio, since the slideshow was built to its duration).
func (f *FFmpeg) CompositeSegment(ctx context.Context, slideshowPath, audioPath, overlayPath, outputPath string) error {
	var args []string

	if overlayPath != "" {
		filterComplex := fmt.Sprintf("[1:v]colorkey=%s:%g:%g[ckout];[0:v][ckout]overlay[v]",
			f.opts.ChromaColor, f.opts.ChromaSimilarity, f.opts.ChromaBlend)

		args = []string{
			"-y",
			"-i", slideshowPath,
			"-stream_loop", "-1",
			"-i", overlayPath,
			"-i", audioPath,
			"-filter_complex", filterComplex,
			"-map", "[v]",
			"-map", "2:a", // narration only; overlay audio is discarded
			"-c:v", "libx264",
			"-c:a", f.opts.AudioCodec,
			"-b:a", f.opts.AudioBitrate,
			"-shortest",
			outputPath,
		}
	} else {
		args = []string{
			"-y",
			"-i", slideshowPath,
			"-i", audioPath,
			"-c:v", "copy", // no overlay means no reason to re-encode the visual stream
			"-c:a", f.opts.AudioCodec,
			"-b:a", f.opts.AudioBitrate,
			"-shortest",
			outputPath,
		}
	}

	return f.run(ctx, "ffmpeg", args)
}

// MixMusic blends a looping background music track under the narration.
// The narration is centered to both stereo channels first, the music runs
// at reduced gain, and the output is clamped to the narration's length.
func (f *FFmpeg) MixMusic(ctx context.Context, videoPath, musicPath, outputPath string) error {
	filterComplex := fmt.Sprintf(
		"[0:a]pan=stereo|c0=c0|c1=c0[narration];[1:a]volume=%g[music];[narration][music]amix=inputs=2:duration=first[aout]",
		f.opts.MusicVolume)

	args := []string{
		"-y",
		"-i", videoPath,
		"-stream_loop", "-1",
		"-i", musicPath,
		"-filter_complex", filterComplex,
		"-map", "0:v",
		"-map", "[aout]",
		"-c:v", "copy",
		"-c:a", f.opts.AudioCodec,
		"-b:a", f.opts.AudioBitrate,
		"-shortest",
		outputPath,
	}

	return f.run(ctx, "ffmpeg", args)
}

// TempPath returns a path inside the media temp directory.
func (f *FFmpeg) TempPath(filename string) string {
	return filepath.Join(f.tempDir, filename)
}

// Cleanup removes temporary files, ignoring ones already gone.
func (f *FFmpeg) Cleanup(paths ...string) {
	for _, path := range paths {
		os.Remove(path)
	}
}

// run executes the tool and folds exit status plus the tail of stderr into
// the returned error.
func (f *FFmpeg) run(ctx context.Context, tool string, args []string) error {
	cmd := exec.CommandContext(ctx, tool, args...)

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return fmt.Errorf("%s failed: %w: %s", tool, err, tailLines(stderr.String(), 6))
	}

	return nil
}

// tailLines keeps the last n lines of tool output; ffmpeg prints its
// actual diagnostic at the end of a long banner.
func tailLines(s string, n int) string {
	s = strings.TrimSpace(s)
	lines := strings.Split(s, "\n")
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return strings.Join(lines, "\n")
}

// escapeFilterText escapes characters that ffmpeg filter syntax treats
// specially inside drawtext.
func escapeFilterText(s string) string {
	s = strings.ReplaceAll(s, "\\", "\\\\")
	s = strings.ReplaceAll(s, ":", "\\:")
	s = strings.ReplaceAll(s, "'", "\\'")
	return s
}

func formatSeconds(d float64) string {
	return strconv.FormatFloat(d, 'f', 3, 64)
}

// Announce logs the configured geometry once at startup.
func (f *FFmpeg) Announce() {
	log.Printf("[FFmpeg] temp=%s canvas=%dx%d fps=%d audio=%s/%s",
		f.tempDir, f.opts.CanvasWidth, f.opts.CanvasHeight, f.opts.FrameRate,
		f.opts.AudioCodec, f.opts.AudioBitrate)
}
