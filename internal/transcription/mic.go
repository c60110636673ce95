package transcription

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
)

const defaultChunkSize = 4096

// MicOptions настраивает распознавание с микрофона
type MicOptions struct {
	Audio          AudioConfig
	ChunkSize      int
	InterimResults bool
	Logger         *slog.Logger
}

// MicSource связывает захват микрофона с провайдером распознавания
type MicSource struct {
	capture  AudioCapture
	provider Provider
	opts     MicOptions
	log      *slog.Logger
}

func NewMicSource(capture AudioCapture, provider Provider, opts MicOptions) *MicSource {
	if opts.ChunkSize < 256 {
		opts.ChunkSize = defaultChunkSize
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &MicSource{
		capture:  capture,
		provider: provider,
		opts:     opts,
		log:      opts.Logger.With("component", "mic_source"),
	}
}

// Start захватывает микрофон и открывает сессию у провайдера.
// При ошибке провайдера микрофон освобождается до возврата.
func (s *MicSource) Start(ctx context.Context) (Stream, error) {
	audioCfg := s.opts.Audio.withDefaults()

	audio, err := s.capture.Start(ctx, audioCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to start audio capture: %w", err)
	}

	session, err := s.provider.StartStreaming(ctx, StreamConfig{
		SampleRate:     audioCfg.SampleRate,
		Channels:       audioCfg.Channels,
		Encoding:       "linear16",
		InterimResults: s.opts.InterimResults,
	})
	if err != nil {
		if stopErr := audio.Stop(); stopErr != nil {
			s.log.Warn("failed to release microphone", "error", stopErr)
		}
		return nil, fmt.Errorf("failed to start transcription provider: %w", err)
	}

	stream := &micStream{
		pipe:    newPipe(defaultBuffer),
		audio:   audio,
		session: session,
	}
	stream.send(newEvent(KindStarted, "", nil))

	stream.wg.Add(2)
	go stream.pump(s.opts.ChunkSize)
	go stream.relay()
	go func() {
		select {
		case <-ctx.Done():
			if err := stream.Stop(); err != nil {
				s.log.Warn("failed to stop microphone stream", "error", err)
			}
		case <-stream.done():
		}
	}()

	s.log.Debug("microphone stream started", "sample_rate", audioCfg.SampleRate, "device", audioCfg.InputDevice)
	return stream, nil
}

type micStream struct {
	*pipe
	audio   AudioSession
	session ProviderSession

	wg       sync.WaitGroup
	stopOnce sync.Once
	stopErr  error
}

// pump переносит PCM из захвата в провайдера
func (s *micStream) pump(chunkSize int) {
	defer s.wg.Done()

	buf := make([]byte, chunkSize)
	for {
		n, err := s.audio.Read(buf)
		if n > 0 {
			if sendErr := s.session.SendAudio(buf[:n]); sendErr != nil {
				s.fail(fmt.Errorf("failed to stream audio: %w", sendErr))
				return
			}
		}
		if err != nil {
			if !errors.Is(err, io.EOF) {
				s.fail(fmt.Errorf("audio capture error: %w", err))
				return
			}
			// захват закончился сам: даем провайдеру дослать результаты
			_ = s.session.CloseSend()
			return
		}
	}
}

// relay переносит события провайдера в поток и сообщает о его завершении
func (s *micStream) relay() {
	defer s.wg.Done()

	for ev := range s.session.Events() {
		// после остановки продолжаем вычитывать, чтобы провайдер мог закрыться
		s.send(ev)
	}
	if s.isStopped() {
		return
	}
	if err := s.session.Wait(); err != nil {
		s.send(newEvent(KindError, "", err))
		return
	}
	s.send(newEvent(KindEnded, "", nil))
}

func (s *micStream) fail(err error) {
	if s.isStopped() {
		return
	}
	s.send(newEvent(KindError, "", err))
}

func (s *micStream) Stop() error {
	s.stopOnce.Do(func() {
		s.shutdown()
		audioErr := s.audio.Stop()
		sessionErr := s.session.Close()
		s.wg.Wait()
		s.stopErr = errors.Join(audioErr, sessionErr)
	})
	return s.stopErr
}
