package player

import (
	"bytes"
	"encoding/base64"
	"image"
	"regexp"
	"strings"
	"testing"
)

var kittyEscape = regexp.MustCompile(`\x1b_G([^;\x1b]*)(?:;([^\x1b]*))?\x1b\\`)

func TestKittyPresentChunks(t *testing.T) {
	canvas := image.NewRGBA(image.Rect(0, 0, 64, 36))
	for i := 0; i < len(canvas.Pix); i += 4 {
		canvas.Pix[i], canvas.Pix[i+1], canvas.Pix[i+2], canvas.Pix[i+3] = 10, 20, 30, 255
	}

	var out bytes.Buffer
	r := NewKittyRenderer(&out)
	if err := r.Present(canvas); err != nil {
		t.Fatal(err)
	}

	got := out.String()
	if !strings.HasPrefix(got, "\x1b[?2026h") || !strings.HasSuffix(got, "\x1b[?2026l") {
		t.Error("frame not wrapped in a synchronized update")
	}

	matches := kittyEscape.FindAllStringSubmatch(got, -1)
	if len(matches) < 2 {
		t.Fatalf("expected chunked transmission, got %d escapes", len(matches))
	}
	if !strings.HasPrefix(matches[0][1], "a=T,f=24,s=64,v=36,i=1,q=2,m=1") {
		t.Errorf("first chunk header = %q", matches[0][1])
	}
	if last := matches[len(matches)-1][1]; last != "m=0" {
		t.Errorf("last chunk header = %q, want m=0", last)
	}

	var payload strings.Builder
	for _, m := range matches {
		if len(m[2]) > chunkSize {
			t.Errorf("chunk of %d bytes exceeds %d", len(m[2]), chunkSize)
		}
		payload.WriteString(m[2])
	}
	rgb, err := base64.StdEncoding.DecodeString(payload.String())
	if err != nil {
		t.Fatal(err)
	}
	if len(rgb) != 64*36*3 {
		t.Fatalf("payload = %d bytes, want %d", len(rgb), 64*36*3)
	}
	if rgb[0] != 10 || rgb[1] != 20 || rgb[2] != 30 {
		t.Errorf("first pixel = %v", rgb[:3])
	}
}

func TestKittyPresentReplacesPreviousImage(t *testing.T) {
	canvas := image.NewRGBA(image.Rect(0, 0, 4, 4))

	var out bytes.Buffer
	r := NewKittyRenderer(&out)
	r.SetCellPosition(3, 5)

	if err := r.Present(canvas); err != nil {
		t.Fatal(err)
	}
	if strings.Contains(out.String(), "a=d") {
		t.Error("first frame deleted a non-existent image")
	}
	if !strings.Contains(out.String(), "\x1b[3;5H") {
		t.Error("cursor not moved to the placement cell")
	}

	out.Reset()
	if err := r.Present(canvas); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out.String(), "\x1b_Ga=d,d=i,i=1,q=2\x1b\\") {
		t.Error("second frame did not delete the first")
	}

	out.Reset()
	if err := r.Clear(); err != nil {
		t.Fatal(err)
	}
	if err := r.Clear(); err != nil {
		t.Fatal(err)
	}
	if n := strings.Count(out.String(), "a=d"); n != 1 {
		t.Errorf("Clear emitted %d deletes, want 1", n)
	}
}

func TestFitCanvas(t *testing.T) {
	tests := []struct {
		name             string
		w, h, maxW, maxH int
		wantW, wantH     int
	}{
		{"fits", 640, 360, 1920, 1080, 640, 360},
		{"too wide", 640, 360, 320, 1080, 320, 180},
		{"too tall", 640, 360, 1920, 180, 320, 180},
		{"unknown terminal", 640, 360, 0, 0, 640, 360},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, h := FitCanvas(tt.w, tt.h, tt.maxW, tt.maxH)
			if w != tt.wantW || h != tt.wantH {
				t.Errorf("FitCanvas = %dx%d, want %dx%d", w, h, tt.wantW, tt.wantH)
			}
		})
	}
}
