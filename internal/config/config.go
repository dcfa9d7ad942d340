package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

type Config struct {
	// Book
	BookTitle    string
	Author       string
	BookFileName string // .epub file inside the book's folder

	// Layout
	BaseDir string

	// Rendering
	FrameRate        int    // slideshow frame rate
	CanvasWidth      int    // output canvas, 16:9
	CanvasHeight     int
	AudioCodec       string // segment audio codec (must match across segments for stream-copy concat)
	AudioBitrate     string
	MusicVolume      float64 // background music gain under narration
	ChromaColor      string  // overlay key color
	ChromaSimilarity float64
	ChromaBlend      float64

	// Generation
	OpenAIKey         string
	GeminiKey         string
	ElevenLabsKey     string
	ElevenLabsVoiceID string
	GeminiVoice       string
	ImagesPerPart     int
	QuotaCooldownSec  int     // pause after a quota error
	RequestsPerMinute float64 // pacing for generation API calls

	// Run
	Seed               int64 // overlay/music selection seed; 0 = time-based
	ServerPort         string
	CorsAllowedOrigins string
}

func Load() (*Config, error) {
	// Load .env file if it exists (ignore error in production)
	_ = godotenv.Load()

	cfg := &Config{
		BookTitle:          getEnv("BOOK_TITLE", ""),
		Author:             getEnv("BOOK_AUTHOR", ""),
		BookFileName:       getEnv("BOOK_FILE_NAME", ""),
		BaseDir:            getEnv("BOOKREEL_BASE_DIR", "."),
		FrameRate:          getEnvInt("FRAME_RATE", 24),
		CanvasWidth:        getEnvInt("CANVAS_WIDTH", 1920),
		CanvasHeight:       getEnvInt("CANVAS_HEIGHT", 1080),
		AudioCodec:         getEnv("AUDIO_CODEC", "aac"),
		AudioBitrate:       getEnv("AUDIO_BITRATE", "192k"),
		MusicVolume:        getEnvFloat("MUSIC_VOLUME", 0.15),
		ChromaColor:        getEnv("CHROMA_COLOR", "black"),
		ChromaSimilarity:   getEnvFloat("CHROMA_SIMILARITY", 0.3),
		ChromaBlend:        getEnvFloat("CHROMA_BLEND", 0.2),
		OpenAIKey:          getEnv("OPENAI_API_KEY", ""),
		GeminiKey:          getEnv("GEMINI_API_KEY", ""),
		ElevenLabsKey:      getEnv("ELEVENLABS_API_KEY", ""),
		ElevenLabsVoiceID:  getEnv("ELEVENLABS_VOICE_ID", ""),
		GeminiVoice:        getEnv("GEMINI_TTS_VOICE", "Algieba"),
		ImagesPerPart:      getEnvInt("IMAGES_PER_PART", 5),
		QuotaCooldownSec:   getEnvInt("QUOTA_COOLDOWN_SEC", 60),
		RequestsPerMinute:  getEnvFloat("REQUESTS_PER_MINUTE", 12),
		Seed:               int64(getEnvInt("BOOKREEL_SEED", 0)),
		ServerPort:         getEnv("SERVER_PORT", "8080"),
		CorsAllowedOrigins: getEnv("CORS_ALLOWED_ORIGINS", ""),
	}

	if cfg.FrameRate <= 0 {
		return nil, fmt.Errorf("FRAME_RATE must be positive, got %d", cfg.FrameRate)
	}

	return cfg, nil
}

// RequireBook checks the fields every per-book command needs. It runs
// after flag overrides are applied, so --book can stand in for BOOK_TITLE.
func (c *Config) RequireBook() error {
	if c.BookTitle == "" {
		return fmt.Errorf("no book selected: set BOOK_TITLE or pass --book")
	}
	return nil
}

// ValidateGeneration checks the keys the generation stages need. The
// assembly stages run offline and never call this.
func (c *Config) ValidateGeneration() error {
	if c.GeminiKey == "" {
		return fmt.Errorf("GEMINI_API_KEY is required for generation stages")
	}

	if c.OpenAIKey == "" {
		return fmt.Errorf("OPENAI_API_KEY is required for outline and script generation")
	}

	return nil
}

// DisplayTitle returns the book title with underscores replaced by spaces,
// suitable for prompts and the placeholder frame.
func (c *Config) DisplayTitle() string {
	return strings.ReplaceAll(c.BookTitle, "_", " ")
}

// Directory layout. Mirrors the per-book artifact tree the stages share.

func (c *Config) BookDir() string     { return filepath.Join(c.BaseDir, "books", c.BookTitle) }
func (c *Config) ChunksDir() string   { return filepath.Join(c.BookDir(), "chunks") }
func (c *Config) AudioDir() string    { return filepath.Join(c.BookDir(), "audio") }
func (c *Config) ImagesDir() string   { return filepath.Join(c.BookDir(), "images") }
func (c *Config) VideoDir() string    { return filepath.Join(c.BookDir(), "video") }
func (c *Config) TempDir() string     { return filepath.Join(c.VideoDir(), "temp_files") }
func (c *Config) MusicDir() string    { return filepath.Join(c.BaseDir, "music") }
func (c *Config) OverlaysDir() string { return filepath.Join(c.BaseDir, "overlays") }

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		i, err := strconv.Atoi(value)
		if err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		f, err := strconv.ParseFloat(value, 64)
		if err == nil {
			return f
		}
	}
	return defaultValue
}
