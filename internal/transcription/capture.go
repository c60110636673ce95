package transcription

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strconv"
	"sync"
	"time"
)

// AudioConfig описывает захват микрофона
type AudioConfig struct {
	SampleRate  int
	Channels    int
	InputFormat string
	InputDevice string
}

func (c AudioConfig) withDefaults() AudioConfig {
	if c.SampleRate <= 0 {
		c.SampleRate = 16000
	}
	if c.Channels <= 0 {
		c.Channels = 1
	}
	if c.InputFormat == "" {
		c.InputFormat = "pulse"
	}
	if c.InputDevice == "" {
		c.InputDevice = "default"
	}
	return c
}

// AudioSession - живой захват звука, отдает сырой PCM через Read
type AudioSession interface {
	io.ReadCloser
	Stop() error
}

// AudioCapture открывает сессии захвата
type AudioCapture interface {
	Start(ctx context.Context, cfg AudioConfig) (AudioSession, error)
}

const (
	captureStartupWait = 250 * time.Millisecond
	captureStopWait    = 1200 * time.Millisecond
)

// FFmpegCapture пишет PCM s16le с микрофона через внешний ffmpeg
type FFmpegCapture struct {
	command string
}

func NewFFmpegCapture(command string) *FFmpegCapture {
	if command == "" {
		command = "ffmpeg"
	}
	return &FFmpegCapture{command: command}
}

func (c *FFmpegCapture) Start(ctx context.Context, cfg AudioConfig) (AudioSession, error) {
	cfg = cfg.withDefaults()

	args := []string{
		"-nostdin",
		"-hide_banner",
		"-loglevel", "warning",
		"-f", cfg.InputFormat,
		"-i", cfg.InputDevice,
		"-ac", strconv.Itoa(cfg.Channels),
		"-ar", strconv.Itoa(cfg.SampleRate),
		"-f", "s16le",
		"-",
	}

	cmd := exec.CommandContext(ctx, c.command, args...)
	stderr := &lockedBuffer{}
	cmd.Stderr = stderr

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create ffmpeg stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start ffmpeg: %w", err)
	}

	waitErr := make(chan error, 1)
	go func() {
		waitErr <- cmd.Wait()
		close(waitErr)
	}()

	// процесс, упавший сразу, обычно означает отсутствие устройства или прав
	select {
	case err := <-waitErr:
		if err != nil {
			return nil, fmt.Errorf("ffmpeg exited before capture started: %w: %s", err, stderr.trimmed())
		}
		return nil, errors.New("ffmpeg exited before capture started")
	case <-time.After(captureStartupWait):
	}

	return &ffmpegSession{
		stdout:  stdout,
		stderr:  stderr,
		process: cmd.Process,
		waitErr: waitErr,
	}, nil
}

type ffmpegSession struct {
	stdout io.ReadCloser
	stderr *lockedBuffer

	process *os.Process
	waitErr <-chan error

	stopOnce sync.Once
	stopErr  error
}

func (s *ffmpegSession) Read(p []byte) (int, error) {
	return s.stdout.Read(p)
}

func (s *ffmpegSession) Close() error {
	return s.Stop()
}

func (s *ffmpegSession) Stop() error {
	s.stopOnce.Do(func() {
		if s.process != nil {
			_ = s.process.Signal(os.Interrupt)
		}

		select {
		case err, ok := <-s.waitErr:
			if ok {
				s.stopErr = normalizeExitErr(err)
			}
		case <-time.After(captureStopWait):
			if s.process != nil {
				_ = s.process.Kill()
			}
			if err, ok := <-s.waitErr; ok {
				s.stopErr = normalizeExitErr(err)
			}
		}

		if closeErr := s.stdout.Close(); closeErr != nil && !errors.Is(closeErr, os.ErrClosed) && s.stopErr == nil {
			s.stopErr = closeErr
		}
		if s.stopErr != nil {
			if details := s.stderr.trimmed(); details != "" {
				s.stopErr = fmt.Errorf("%w: %s", s.stopErr, details)
			}
		}
	})
	return s.stopErr
}

// normalizeExitErr: ненулевой код выхода после SIGINT - штатная остановка
func normalizeExitErr(err error) error {
	if err == nil {
		return nil
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return nil
	}
	return err
}

// lockedBuffer - stderr процесса пишется из горутины exec
type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) trimmed() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return string(bytes.TrimSpace(b.buf.Bytes()))
}
