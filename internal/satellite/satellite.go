package satellite

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"

	"github.com/nabuvoice/wake-satellite/internal/protocol"
	"github.com/nabuvoice/wake-satellite/internal/vad"
)

// CaptureController starts and stops microphone capture (C1).
type CaptureController interface {
	Start() error
	Stop()
}

// PlaybackController manages the playback device (C1).
type PlaybackController interface {
	SetupPlayback(rate, channels, width int) error
	EnqueuePlayback(data []byte) error
	StopPlaybackAndAwait(cancel <-chan struct{})
	InterruptPlayback()
}

// ScoringPipeline is the wake-word pipeline (C4) as seen by the state
// machine.
type ScoringPipeline interface {
	Offer(chunk []int16) (*float32, error)
}

// Metrics receives additive instrumentation signals (observe.Metrics
// satisfies this). No testable property depends on it.
type Metrics interface {
	ObserveScore(ctx context.Context, score float64)
	RecordDetection(ctx context.Context)
	RecordFrameProcessed(ctx context.Context)
	ConnectionOpened(ctx context.Context)
	ConnectionClosed(ctx context.Context)
	ObservePlaybackDuration(ctx context.Context, seconds float64)
}

type noopMetrics struct{}

func (noopMetrics) ObserveScore(context.Context, float64)          {}
func (noopMetrics) RecordDetection(context.Context)                {}
func (noopMetrics) RecordFrameProcessed(context.Context)           {}
func (noopMetrics) ConnectionOpened(context.Context)               {}
func (noopMetrics) ConnectionClosed(context.Context)               {}
func (noopMetrics) ObservePlaybackDuration(context.Context, float64) {}

// Options configures a Satellite.
type Options struct {
	DeviceName        string
	DeviceDescription string
	Threshold         float64
	StreamingTimeout  time.Duration
	Metrics           Metrics // optional; defaults to a no-op
}

// Satellite drives the Idle/Listening/Playing state machine (C6) over a
// single serial controller connection. Capture, the wake-word pipeline,
// and playback are injected so tests can substitute fakes for real audio
// devices.
type Satellite struct {
	logger *log.Logger

	capture  CaptureController
	playback PlaybackController
	pipeline ScoringPipeline
	gate     vad.Gate

	deviceName, deviceDescription string
	threshold                     float32
	streamingTimeout              time.Duration
	metrics                       Metrics

	queue *eventQueue

	started atomic.Bool

	stateMu         sync.Mutex
	state           State
	lastDetection   time.Time
	playbackStarted time.Time

	connMu sync.Mutex
	writer *protocol.Writer // nil when no controller is connected

	shutdown chan struct{}
	wg       sync.WaitGroup
}

// New constructs a Satellite in state Idle. Capture is not started until
// Start is called.
func New(logger *log.Logger, capture CaptureController, playback PlaybackController, pipeline ScoringPipeline, gate vad.Gate, opts Options) *Satellite {
	if logger == nil {
		logger = log.Default()
	}
	metrics := opts.Metrics
	if metrics == nil {
		metrics = noopMetrics{}
	}
	return &Satellite{
		logger:            logger.With("component", "satellite"),
		capture:           capture,
		playback:          playback,
		pipeline:          pipeline,
		gate:              gate,
		deviceName:        opts.DeviceName,
		deviceDescription: opts.DeviceDescription,
		threshold:         float32(opts.Threshold),
		streamingTimeout:  opts.StreamingTimeout,
		metrics:           metrics,
		queue:             newEventQueue(),
		shutdown:          make(chan struct{}),
	}
}

// State reports the current state. Safe for concurrent use.
func (s *Satellite) State() State {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	return s.state
}

// Start begins capture and launches the processor loop (T2). Idempotent:
// calling Start twice without an intervening Stop leaves exactly one
// capture thread and one processor goroutine running.
func (s *Satellite) Start() error {
	if !s.started.CompareAndSwap(false, true) {
		s.logger.Warn("satellite already started, ignoring")
		return nil
	}
	if err := s.capture.Start(); err != nil {
		s.started.Store(false)
		return fmt.Errorf("satellite: start capture: %w", err)
	}
	s.wg.Add(1)
	go s.processorLoop()
	return nil
}

// Stop halts capture and the processor loop. A second call is a no-op.
func (s *Satellite) Stop() {
	if !s.started.CompareAndSwap(true, false) {
		return
	}
	s.capture.Stop()
	close(s.shutdown)
	s.wg.Wait()
}

// PushCapture enqueues a captured microphone chunk for the processor
// loop. Called from the capture callback (T1), never directly from T2.
func (s *Satellite) PushCapture(chunk []int16) {
	s.queue.push(event{kind: eventCapture, capture: chunk})
}

// processorLoop is T2: it drains the queue strictly in arrival order,
// sleeping up to 30ms when empty rather than busy-waiting.
func (s *Satellite) processorLoop() {
	defer s.wg.Done()
	for {
		select {
		case <-s.shutdown:
			return
		default:
		}

		e, ok := s.queue.pop()
		if !ok {
			select {
			case <-s.shutdown:
				return
			case <-s.queue.notify:
			case <-time.After(30 * time.Millisecond):
			}
			continue
		}

		switch e.kind {
		case eventCapture:
			s.handleCapture(e.capture)
		case eventAudioStart:
			s.handleAudioStart(e.rate, e.channels, e.width)
		case eventAudioChunk:
			s.handleAudioChunk(e.payload)
		case eventAudioStop:
			s.handleAudioStop()
		}
	}
}

func normalizeCapture(chunk []int16) []float32 {
	out := make([]float32, len(chunk))
	for i, v := range chunk {
		out[i] = float32(v) / 32768.0
	}
	return out
}

// handleCapture runs the VAD gate over one captured chunk and only advances
// the wake-word pipeline when the gate reports speech, applying the
// Idle/Listening transition table to the result. The classifier is never
// invoked while Playing, nor on a chunk the gate called silence.
func (s *Satellite) handleCapture(chunk []int16) {
	state := s.State()
	if state == StatePlaying {
		return
	}

	if state == StateListening {
		s.stateMu.Lock()
		timedOut := time.Since(s.lastDetection) > s.streamingTimeout
		if timedOut {
			s.state = StateIdle
		}
		s.stateMu.Unlock()
		if timedOut {
			s.logger.Info("listening timed out, stopping overlay")
			state = StateIdle
		}
	}

	speech := s.gate.SpeechPresent(normalizeCapture(chunk))

	if !speech {
		if state == StateListening {
			s.stateMu.Lock()
			s.state = StateIdle
			s.stateMu.Unlock()
			s.logger.Info("voice activity stopped, stopping overlay")
		}
		return
	}

	score, err := s.pipeline.Offer(chunk)
	if err != nil {
		s.logger.Error("wake-word pipeline error, dropping chunk", "error", err)
		return
	}
	s.metrics.RecordFrameProcessed(context.Background())
	if score == nil {
		return
	}
	s.metrics.ObserveScore(context.Background(), float64(*score))
	if *score <= s.threshold {
		return
	}

	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	now := time.Now()
	switch s.state {
	case StateIdle:
		s.state = StateListening
		s.lastDetection = now
		s.logger.Info("wake word detected, showing overlay", "score", *score)
		s.metrics.RecordDetection(context.Background())
		s.emitDetection()
	case StateListening:
		s.lastDetection = now
	}
}

func (s *Satellite) handleAudioStart(rate, channels, width int) {
	s.stateMu.Lock()
	s.state = StatePlaying
	s.stateMu.Unlock()

	s.capture.Stop()
	if err := s.playback.SetupPlayback(rate, channels, width); err != nil {
		s.logger.Error("playback setup failed, returning to idle without playing", "error", err)
		s.stateMu.Lock()
		s.state = StateIdle
		s.stateMu.Unlock()
		if restartErr := s.capture.Start(); restartErr != nil {
			s.logger.Error("failed to restart capture after playback setup failure", "error", restartErr)
		}
		return
	}
	s.playbackStarted = time.Now()
}

func (s *Satellite) handleAudioChunk(payload []byte) {
	if err := s.playback.EnqueuePlayback(payload); err != nil {
		s.logger.Warn("enqueue playback failed", "error", err)
	}
}

func (s *Satellite) handleAudioStop() {
	s.playback.StopPlaybackAndAwait(s.shutdown)
	s.emitPlayed()
	s.metrics.ObservePlaybackDuration(context.Background(), time.Since(s.playbackStarted).Seconds())

	s.stateMu.Lock()
	s.state = StateIdle
	s.stateMu.Unlock()

	if err := s.capture.Start(); err != nil {
		s.logger.Error("failed to restart capture after playback", "error", err)
	}
}

// setWriter records the connected controller's writer, or clears it when
// writer is nil. Connection handling lives in server.go.
func (s *Satellite) setWriter(w *protocol.Writer) {
	s.connMu.Lock()
	s.writer = w
	s.connMu.Unlock()
}

func (s *Satellite) clearWriter(w *protocol.Writer) {
	s.connMu.Lock()
	if s.writer == w {
		s.writer = nil
	}
	s.connMu.Unlock()
}

func (s *Satellite) currentWriter() *protocol.Writer {
	s.connMu.Lock()
	defer s.connMu.Unlock()
	return s.writer
}

func (s *Satellite) emitDetection() {
	w := s.currentWriter()
	if w == nil {
		return
	}
	if err := w.WriteFrame(protocol.TypeDetection, nil, nil); err != nil {
		s.logger.Warn("failed to emit detection", "error", err)
	}
}

func (s *Satellite) emitPlayed() {
	w := s.currentWriter()
	if w == nil {
		return
	}
	if err := w.WriteFrame(protocol.TypePlayed, nil, nil); err != nil {
		s.logger.Warn("failed to emit played", "error", err)
	}
}
