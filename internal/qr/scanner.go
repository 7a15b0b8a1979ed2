// Package qr wraps QR decoding and encoding and runs a frame-by-frame scanner over a camera.
package qr

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"os"
	"sync"
	"time"
)

type FacingMode string

const (
	FacingEnvironment FacingMode = "environment"
	FacingUser        FacingMode = "user"
)

// Config mirrors the capture settings of a camera scan.
type Config struct {
	FPS int
}

func DefaultConfig() Config {
	return Config{FPS: 10}
}

// Camera opens a stream of frames for the requested facing mode.
type Camera interface {
	Open(facing FacingMode) (FrameSource, error)
}

// FrameSource yields frames until it returns io.EOF.
type FrameSource interface {
	Next(ctx context.Context) (image.Image, error)
	Close() error
}

var (
	ErrRunning    = errors.New("qr: scanner already running")
	ErrNotCleared = errors.New("qr: scanner must be cleared before restart")
	ErrNotStarted = errors.New("qr: scanner not started")
	// ErrExhausted is reported when the frame source ends without a decoded code.
	ErrExhausted = errors.New("qr: frame source exhausted")
)

type state int

const (
	idle state = iota
	running
	stopped
)

// Scanner captures frames and reports the first decoded QR text.
//
// Callbacks run on the scanner goroutine and must not call Stop. After a successful
// decode the scanner stops itself. Once Stop returns no callback will fire.
type Scanner struct {
	camera Camera

	mu     sync.Mutex
	state  state
	cancel context.CancelFunc
	done   chan struct{}
}

func NewScanner(camera Camera) *Scanner {
	return &Scanner{camera: camera}
}

func (s *Scanner) Start(facing FacingMode, cfg Config, onDecoded func(string), onError func(error)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch s.state {
	case running:
		return ErrRunning
	case stopped:
		return ErrNotCleared
	}
	if cfg.FPS <= 0 {
		cfg.FPS = DefaultConfig().FPS
	}
	if onError == nil {
		onError = func(error) {}
	}
	src, err := s.camera.Open(facing)
	if err != nil {
		return fmt.Errorf("qr: open camera: %w", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.done = make(chan struct{})
	s.state = running
	go s.run(ctx, src, cfg, onDecoded, onError, s.done)
	return nil
}

func (s *Scanner) run(ctx context.Context, src FrameSource, cfg Config, onDecoded func(string), onError func(error), done chan struct{}) {
	defer close(done)
	defer src.Close()
	defer s.markStopped()

	ticker := time.NewTicker(time.Second / time.Duration(cfg.FPS))
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		img, err := src.Next(ctx)
		if ctx.Err() != nil {
			return
		}
		if errors.Is(err, io.EOF) {
			onError(ErrExhausted)
			return
		}
		if err != nil {
			onError(err)
			continue
		}
		text, err := DecodeImage(img)
		if errors.Is(err, ErrNoCode) {
			continue
		}
		if err != nil {
			onError(err)
			continue
		}
		onDecoded(text)
		return
	}
}

func (s *Scanner) markStopped() {
	s.mu.Lock()
	s.state = stopped
	s.mu.Unlock()
}

// Stop ends capture and waits for the scanner goroutine to exit. It is safe to call
// more than once.
func (s *Scanner) Stop() error {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.mu.Unlock()
	if cancel == nil {
		return ErrNotStarted
	}
	cancel()
	<-done
	return nil
}

// Clear releases a stopped scanner so it can be started again.
func (s *Scanner) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == running {
		return ErrRunning
	}
	if s.cancel != nil {
		s.cancel()
	}
	s.state = idle
	s.cancel = nil
	s.done = nil
	return nil
}

// Running reports whether the capture loop is active.
func (s *Scanner) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state == running
}

// FileCamera serves image files as frames, one file per frame, in order.
type FileCamera struct {
	Paths []string
}

func (c FileCamera) Open(FacingMode) (FrameSource, error) {
	return &fileFrames{paths: c.Paths}, nil
}

type fileFrames struct {
	paths []string
	pos   int
}

func (f *fileFrames) Next(ctx context.Context) (image.Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if f.pos >= len(f.paths) {
		return nil, io.EOF
	}
	path := f.paths[f.pos]
	f.pos++
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	img, err := decodeBytes(data)
	if err != nil {
		return nil, fmt.Errorf("qr: %s: %w", path, err)
	}
	return img, nil
}

func (f *fileFrames) Close() error {
	return nil
}
