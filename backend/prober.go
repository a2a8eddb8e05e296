package backend

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"path/filepath"
	"sync"
	"time"

	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"

	"github.com/njyeung/lipsync/logger"
	"github.com/njyeung/lipsync/media"
)

// ProbeTimeout bounds a single metadata lookup
const ProbeTimeout = 15 * time.Second

var ErrUnknownProber = errors.New("unknown prober")

// Prober reads duration and frame size of a media file
type Prober interface {
	Probe(ctx context.Context, path string) (media.Info, error)
	Close()
}

// NewProber returns the prober configured by name ("ffmpeg" or "chrome")
func NewProber(name string) (Prober, error) {
	switch name {
	case "", "ffmpeg":
		return FFmpegProber{}, nil
	case "chrome":
		return NewChromeProber(), nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownProber, name)
}

// FFmpegProber reads the container headers directly
type FFmpegProber struct{}

func (FFmpegProber) Probe(ctx context.Context, path string) (media.Info, error) {
	if err := ctx.Err(); err != nil {
		return media.Info{}, err
	}
	return media.Probe(path)
}

func (FFmpegProber) Close() {}

// ChromeProber loads files into a headless Chrome media element and reads
// what the browser reports once metadata is loaded. It answers the question
// "what will a browser think this file's duration is", which can differ from
// the container header for files with broken indexes.
type ChromeProber struct {
	mu          sync.Mutex
	ctx         context.Context
	cancel      context.CancelFunc
	allocCancel context.CancelFunc
}

// NewChromeProber creates a prober. Chrome is started on first use.
func NewChromeProber() *ChromeProber {
	return &ChromeProber{}
}

func (p *ChromeProber) start() error {
	if p.ctx != nil {
		return nil
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", true),
		chromedp.Flag("mute-audio", true),
		chromedp.Flag("allow-file-access-from-files", true),
	)

	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), opts...)
	ctx, cancel := chromedp.NewContext(allocCtx)

	// launches the browser
	if err := chromedp.Run(ctx); err != nil {
		cancel()
		allocCancel()
		return fmt.Errorf("failed to start chrome: %w", err)
	}

	p.ctx, p.cancel, p.allocCancel = ctx, cancel, allocCancel
	logger.Debug("chrome prober started")
	return nil
}

// metadataJS resolves once the page's media element knows its duration.
// Opening a media file directly gives a document with a single <video>.
const metadataJS = `
new Promise((resolve, reject) => {
	const el = document.querySelector('video, audio');
	if (!el) {
		reject(new Error('no media element'));
		return;
	}
	const done = () => resolve({
		duration: isFinite(el.duration) ? el.duration : 0,
		width: el.videoWidth || 0,
		height: el.videoHeight || 0,
	});
	if (el.readyState >= 1) {
		done();
		return;
	}
	el.addEventListener('loadedmetadata', done, {once: true});
	el.addEventListener('error', () => reject(new Error(el.error ? el.error.message : 'media error')), {once: true});
})`

type elementMetadata struct {
	Duration float64 `json:"duration"`
	Width    int     `json:"width"`
	Height   int     `json:"height"`
}

// Probe navigates to the file and waits for loadedmetadata
func (p *ChromeProber) Probe(ctx context.Context, path string) (media.Info, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.start(); err != nil {
		return media.Info{}, err
	}

	u, err := fileURL(path)
	if err != nil {
		return media.Info{}, err
	}

	tabCtx, cancel := chromedp.NewContext(p.ctx)
	defer cancel()
	tabCtx, cancelTimeout := context.WithTimeout(tabCtx, ProbeTimeout)
	defer cancelTimeout()
	stop := context.AfterFunc(ctx, cancelTimeout)
	defer stop()

	var meta elementMetadata
	err = chromedp.Run(tabCtx,
		chromedp.Navigate(u),
		chromedp.Evaluate(metadataJS, &meta, func(ep *runtime.EvaluateParams) *runtime.EvaluateParams {
			return ep.WithAwaitPromise(true)
		}),
	)
	if err != nil {
		return media.Info{}, fmt.Errorf("probe %s: %w", path, err)
	}

	// chrome can't tell whether a video has sound without playing it
	return media.Info{
		Path:     path,
		Duration: meta.Duration,
		Width:    meta.Width,
		Height:   meta.Height,
		HasVideo: meta.Width > 0 && meta.Height > 0,
		HasAudio: meta.Width == 0,
	}, nil
}

// Close shuts the browser down
func (p *ChromeProber) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.cancel != nil {
		p.cancel()
	}
	if p.allocCancel != nil {
		p.allocCancel()
	}
	p.ctx, p.cancel, p.allocCancel = nil, nil, nil
}

// fileURL turns a local path into an absolute file:// URL
func fileURL(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("resolve %s: %w", path, err)
	}
	u := url.URL{Scheme: "file", Path: filepath.ToSlash(abs)}
	return u.String(), nil
}
