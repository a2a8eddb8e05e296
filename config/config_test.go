package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadWritesDefaults(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)

	s, err := Load(dir)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if s != Default(dir) {
		t.Errorf("Load() = %+v, want defaults", s)
	}
	if _, err := os.Stat(filepath.Join(dir, confName)); err != nil {
		t.Errorf("default config not written: %v", err)
	}

	// the written file must parse back to the same values
	again, err := Load(dir)
	if err != nil {
		t.Fatal(err)
	}
	if again != s {
		t.Errorf("reloaded = %+v, want %+v", again, s)
	}
}

func TestLoadConfFile(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)

	conf := `# custom
fps = 30
canvas_width = 1280
canvas_height=720

ready_timeout_ms = 2500
prober = chrome
use_shm = true
bogus line
`
	if err := os.WriteFile(filepath.Join(dir, confName), []byte(conf), 0644); err != nil {
		t.Fatal(err)
	}

	s, err := Load(dir)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if s.FPS != 30 || s.CanvasWidth != 1280 || s.CanvasHeight != 720 {
		t.Errorf("size/fps = %d %dx%d", s.FPS, s.CanvasWidth, s.CanvasHeight)
	}
	if s.ReadyTimeout != 2500*time.Millisecond {
		t.Errorf("ReadyTimeout = %v", s.ReadyTimeout)
	}
	if s.Prober != "chrome" || !s.UseShm {
		t.Errorf("Prober/UseShm = %q/%v", s.Prober, s.UseShm)
	}
	if s.TickInterval != 16*time.Millisecond {
		t.Errorf("TickInterval = %v, want default", s.TickInterval)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)

	if err := os.WriteFile(filepath.Join(dir, confName), []byte("fps = 30\n"), 0644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("LIPSYNC_FPS", "50")
	t.Setenv("LIPSYNC_LOG_LEVEL", "debug")

	s, err := Load(dir)
	if err != nil {
		t.Fatal(err)
	}
	if s.FPS != 50 {
		t.Errorf("FPS = %d, want env override 50", s.FPS)
	}
	if s.LogLevel != "debug" {
		t.Errorf("LogLevel = %q", s.LogLevel)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Settings)
		wantErr bool
	}{
		{name: "defaults", mutate: func(*Settings) {}},
		{name: "zero fps", mutate: func(s *Settings) { s.FPS = 0 }, wantErr: true},
		{name: "zero canvas", mutate: func(s *Settings) { s.CanvasHeight = 0 }, wantErr: true},
		{name: "negative timeout", mutate: func(s *Settings) { s.ReadyTimeout = -time.Second }, wantErr: true},
		{name: "unknown prober", mutate: func(s *Settings) { s.Prober = "vlc" }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := Default(t.TempDir())
			tt.mutate(&s)
			if err := s.Validate(); (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
