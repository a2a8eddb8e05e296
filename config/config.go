package config

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	confName  = "lipsync.conf"
	envPrefix = "LIPSYNC_"
)

// Settings holds everything the preview and export commands read
type Settings struct {
	FPS          int
	CanvasWidth  int
	CanvasHeight int

	TickInterval time.Duration
	ReadyTimeout time.Duration // 0 waits forever

	MinTimelineSeconds float64

	Prober string // "ffmpeg" or "chrome"
	UseShm bool

	LogLevel string
	LogFile  string
}

// Default returns the built-in settings for configDir
func Default(configDir string) Settings {
	return Settings{
		FPS:                25,
		CanvasWidth:        640,
		CanvasHeight:       360,
		TickInterval:       16 * time.Millisecond,
		ReadyTimeout:       0,
		MinTimelineSeconds: 10,
		Prober:             "ffmpeg",
		UseShm:             false,
		LogLevel:           "info",
		LogFile:            filepath.Join(configDir, "lipsync.log"),
	}
}

// Load reads lipsync.conf from configDir, writing defaults if it does not
// exist, then applies LIPSYNC_* environment overrides (a .env file in the
// working directory is loaded first; existing variables win).
func Load(configDir string) (Settings, error) {
	s := Default(configDir)

	if err := os.MkdirAll(configDir, 0755); err != nil {
		return s, fmt.Errorf("could not create config directory: %w", err)
	}

	path := filepath.Join(configDir, confName)
	if _, err := os.Stat(path); os.IsNotExist(err) {
		if err := writeConf(path, s); err != nil {
			return s, fmt.Errorf("could not write default config: %w", err)
		}
	}

	apply(&s, parseConf(path))

	// a missing .env is fine
	_ = godotenv.Load()
	apply(&s, envOverrides())

	if err := s.Validate(); err != nil {
		return s, err
	}
	return s, nil
}

// Validate rejects settings the engine cannot run with
func (s Settings) Validate() error {
	if s.FPS <= 0 {
		return fmt.Errorf("fps must be positive, got %d", s.FPS)
	}
	if s.CanvasWidth <= 0 || s.CanvasHeight <= 0 {
		return fmt.Errorf("canvas size must be positive, got %dx%d", s.CanvasWidth, s.CanvasHeight)
	}
	if s.TickInterval <= 0 {
		return fmt.Errorf("tick interval must be positive")
	}
	if s.ReadyTimeout < 0 {
		return fmt.Errorf("ready timeout must not be negative")
	}
	switch s.Prober {
	case "ffmpeg", "chrome":
	default:
		return fmt.Errorf("unknown prober %q", s.Prober)
	}
	return nil
}

func apply(s *Settings, conf map[string]string) {
	if v, ok := conf["fps"]; ok {
		if n, err := strconv.Atoi(v); err == nil {
			s.FPS = n
		}
	}
	if v, ok := conf["canvas_width"]; ok {
		if n, err := strconv.Atoi(v); err == nil {
			s.CanvasWidth = n
		}
	}
	if v, ok := conf["canvas_height"]; ok {
		if n, err := strconv.Atoi(v); err == nil {
			s.CanvasHeight = n
		}
	}
	if v, ok := conf["tick_interval_ms"]; ok {
		if n, err := strconv.Atoi(v); err == nil {
			s.TickInterval = time.Duration(n) * time.Millisecond
		}
	}
	if v, ok := conf["ready_timeout_ms"]; ok {
		if n, err := strconv.Atoi(v); err == nil {
			s.ReadyTimeout = time.Duration(n) * time.Millisecond
		}
	}
	if v, ok := conf["min_timeline_seconds"]; ok {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			s.MinTimelineSeconds = f
		}
	}
	if v, ok := conf["prober"]; ok {
		s.Prober = v
	}
	if v, ok := conf["use_shm"]; ok {
		s.UseShm = (v == "true")
	}
	if v, ok := conf["log_level"]; ok {
		s.LogLevel = v
	}
	if v, ok := conf["log_file"]; ok {
		s.LogFile = v
	}
}

var keys = []string{
	"fps", "canvas_width", "canvas_height", "tick_interval_ms", "ready_timeout_ms",
	"min_timeline_seconds", "prober", "use_shm", "log_level", "log_file",
}

func envOverrides() map[string]string {
	result := make(map[string]string)
	for _, k := range keys {
		if v, ok := os.LookupEnv(envPrefix + strings.ToUpper(k)); ok {
			result[k] = strings.TrimSpace(v)
		}
	}
	return result
}

func writeConf(path string, s Settings) error {
	var b strings.Builder
	b.WriteString("# lipsync preview config\n\n")
	b.WriteString(fmt.Sprintf("fps = %d\n", s.FPS))
	b.WriteString("# preview canvas, video is letterboxed into it\n")
	b.WriteString(fmt.Sprintf("canvas_width = %d\n", s.CanvasWidth))
	b.WriteString(fmt.Sprintf("canvas_height = %d\n", s.CanvasHeight))
	b.WriteString(fmt.Sprintf("tick_interval_ms = %d\n", s.TickInterval.Milliseconds()))
	b.WriteString("# 0 waits forever for a clip to load\n")
	b.WriteString(fmt.Sprintf("ready_timeout_ms = %d\n", s.ReadyTimeout.Milliseconds()))
	b.WriteString(fmt.Sprintf("min_timeline_seconds = %g\n", s.MinTimelineSeconds))
	b.WriteString("# ffmpeg or chrome\n")
	b.WriteString(fmt.Sprintf("prober = %s\n", s.Prober))
	b.WriteString(fmt.Sprintf("use_shm = %t\n", s.UseShm))
	b.WriteString(fmt.Sprintf("log_level = %s\n", s.LogLevel))
	b.WriteString(fmt.Sprintf("log_file = %s\n", s.LogFile))
	return os.WriteFile(path, []byte(b.String()), 0644)
}

func parseConf(path string) map[string]string {
	result := make(map[string]string)
	file, err := os.Open(path)
	if err != nil {
		return result
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if k, v, ok := strings.Cut(line, "="); ok {
			result[strings.TrimSpace(k)] = strings.TrimSpace(v)
		}
	}
	return result
}
