// Package supervisor composes the satellite's components (C1..C7) and
// owns their lifecycle (C8): bind the listening port before anything else
// can fail expensively, construct the pipeline, start capture, start the
// server, and tear everything down in the documented order on shutdown.
package supervisor

import (
	"bytes"
	"context"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/brutella/dnssd"
	"github.com/charmbracelet/log"
	"golang.org/x/sync/errgroup"

	"github.com/nabuvoice/wake-satellite/internal/audio"
	"github.com/nabuvoice/wake-satellite/internal/config"
	"github.com/nabuvoice/wake-satellite/internal/discovery"
	"github.com/nabuvoice/wake-satellite/internal/observe"
	"github.com/nabuvoice/wake-satellite/internal/satellite"
	"github.com/nabuvoice/wake-satellite/internal/vad"
	"github.com/nabuvoice/wake-satellite/internal/wakeword"
	"github.com/nabuvoice/wake-satellite/internal/wakeword/model"
)

// Event is a lifecycle signal published to any UI collaborator.
type Event struct {
	Kind string // "started" or "stopped"
	Err  error  // set on "stopped" when shutdown followed a fatal error
}

// Supervisor composes capture, the wake-word pipeline, and the Wyoming
// server, and owns their shutdown order.
type Supervisor struct {
	logger *log.Logger
	cfg    config.Config

	listener net.Listener
	sat      *satellite.Satellite
	pipeline *wakeword.Pipeline
	capturer *audio.Capturer
	player   *audio.Player
	metrics  *observe.Metrics
	recorder *DebugRecorder
	record   dnssd.Config

	events chan Event
}

// ServiceRecord returns the `_wyoming._tcp` mDNS/DNS-SD record this
// satellite exposes for an external collaborator to announce (C10). The
// supervisor itself never calls discovery.Announce.
func (s *Supervisor) ServiceRecord() dnssd.Config { return s.record }

// New binds the listening port immediately, then constructs every other
// component, so a port conflict is reported before any model or audio
// device is touched.
func New(cfg config.Config, logger *log.Logger) (*Supervisor, error) {
	if logger == nil {
		logger = observe.NewLogger(cfg.LogLevel)
	}
	logger = logger.With("component", "supervisor")

	lis, err := net.Listen("tcp", fmt.Sprintf(":%d", cfg.ServerPort))
	if err != nil {
		return nil, fmt.Errorf("supervisor: bind listener: %w", err)
	}
	logger.Info("listener bound", "addr", lis.Addr().String())

	metrics, err := observe.NewMetrics()
	if err != nil {
		logger.Warn("metrics disabled: failed to construct meter provider", "error", err)
	}

	sessions, fallbackReason, err := loadClassifier(cfg.SelectedModel)
	if err != nil {
		lis.Close()
		return nil, fmt.Errorf("supervisor: %w", err)
	}
	if fallbackReason != nil {
		logger.Warn("classifier fallback in effect", "requested", cfg.SelectedModel, "using", model.DefaultReference().String(), "reason", fallbackReason)
	}

	pipeline, err := wakeword.New(sessions)
	if err != nil {
		lis.Close()
		sessions.Close()
		return nil, fmt.Errorf("supervisor: construct pipeline: %w", err)
	}

	player, err := audio.NewPlayer(logger)
	if err != nil {
		lis.Close()
		pipeline.Close()
		return nil, fmt.Errorf("supervisor: construct player: %w", err)
	}

	recorder := newDebugRecorder()

	record := discovery.Record(cfg.DeviceName, cfg.DeviceID, cfg.ServerPort)
	logger.Info("service record ready for announcement", "name", record.Name, "type", record.Type, "port", record.Port)

	sup := &Supervisor{
		logger:   logger,
		cfg:      cfg,
		listener: lis,
		pipeline: pipeline,
		player:   player,
		metrics:  metrics,
		recorder: recorder,
		record:   record,
		events:   make(chan Event, 4),
	}

	var sat *satellite.Satellite
	capturer, err := audio.NewCapturer(logger, func(chunk []int16) {
		recorder.offer(chunk)
		sat.PushCapture(chunk)
	})
	if err != nil {
		lis.Close()
		player.Close()
		pipeline.Close()
		return nil, fmt.Errorf("supervisor: construct capturer: %w", err)
	}
	sup.capturer = capturer

	gate := newGate(cfg)
	sat = satellite.New(logger, capturer, player, pipeline, gate, satellite.Options{
		DeviceName:        cfg.DeviceName,
		DeviceDescription: fmt.Sprintf("wake-word satellite (%s)", cfg.SelectedModel),
		Threshold:         cfg.Threshold,
		StreamingTimeout:  time.Duration(cfg.StreamingTimeoutMs) * time.Millisecond,
		Metrics:           metrics,
	})
	sup.sat = sat

	return sup, nil
}

// loadClassifier resolves cfg's selected_model, falling back to the
// built-in classifier on any ModelLoad error per the error taxonomy.
// fallbackReason is non-nil exactly when a fallback occurred, so the
// caller can log it once instead of loadClassifier logging it itself.
func loadClassifier(selectedModel string) (sessions model.Sessions, fallbackReason error, err error) {
	ref, parseErr := parseModelReference(selectedModel)
	if parseErr != nil {
		sessions, err = model.Load(model.DefaultReference())
		return sessions, parseErr, err
	}

	sessions, err = model.Load(ref)
	if err != nil {
		loadErr := err
		sessions, err = model.Load(model.DefaultReference())
		return sessions, loadErr, err
	}
	return sessions, nil, nil
}

// parseModelReference parses the builtin:<name> / user:<path> addressing
// scheme from the configuration table. user: references are resolved
// against the filesystem so Load can read them as a byte source.
func parseModelReference(value string) (model.Reference, error) {
	builtinPrefix, userPrefix := "builtin:", "user:"
	switch {
	case strings.HasPrefix(value, builtinPrefix):
		return model.BuiltIn(strings.TrimPrefix(value, builtinPrefix)), nil
	case strings.HasPrefix(value, userPrefix):
		path := strings.TrimPrefix(value, userPrefix)
		data, err := readUserModel(path)
		if err != nil {
			return model.Reference{}, err
		}
		return model.User(bytes.NewReader(data)), nil
	default:
		return model.Reference{}, fmt.Errorf("supervisor: selected_model %q has no builtin:/user: prefix", value)
	}
}

func newGate(cfg config.Config) vad.Gate {
	if cfg.VADMode == "energy" {
		return vad.NewEnergyGate(float32(cfg.RMSSilenceThreshold))
	}
	return vad.NewFrameGate(float32(cfg.RMSSilenceThreshold))
}

// Events returns the channel lifecycle signals are published on.
func (s *Supervisor) Events() <-chan Event { return s.events }

// Run starts capture and the Wyoming server and blocks until ctx is
// cancelled, then tears down every component in the documented order:
// (1) stop capture, (2) stop the processing worker, (3) close the
// server, (4) drop the pipeline, (5) emit the stopped event.
func (s *Supervisor) Run(ctx context.Context) error {
	if err := s.sat.Start(); err != nil {
		return fmt.Errorf("supervisor: start capture: %w", err)
	}
	s.publish(Event{Kind: "started"})

	serveCtx, cancelServe := context.WithCancel(context.Background())
	defer cancelServe()
	group, groupCtx := errgroup.WithContext(serveCtx)
	group.Go(func() error {
		return s.sat.Serve(groupCtx, s.listener)
	})

	select {
	case <-ctx.Done():
	case <-groupCtx.Done():
	}

	s.sat.Stop() // (1) stop capture, (2) stop the processing worker
	cancelServe() // (3) close the server
	s.listener.Close()
	serveErr := group.Wait()

	pipelineErr := s.pipeline.Close() // (4) drop the pipeline
	s.player.Close()
	s.capturer.Close()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if s.metrics != nil {
		_ = s.metrics.Shutdown(shutdownCtx)
	}

	finalErr := serveErr
	if finalErr == nil {
		finalErr = pipelineErr
	}
	s.publish(Event{Kind: "stopped", Err: finalErr})
	return finalErr
}

func (s *Supervisor) publish(e Event) {
	select {
	case s.events <- e:
	default:
		s.logger.Warn("lifecycle event dropped, no listener draining events channel", "kind", e.Kind)
	}
}

// DebugRecordStart begins snapshotting captured audio into an in-memory
// 30s ring, per the debug-record-start lifecycle command.
func (s *Supervisor) DebugRecordStart() { s.recorder.start() }

// DebugPlay plays back the debug ring verbatim through the satellite's
// playback device, per the debug-play lifecycle command.
func (s *Supervisor) DebugPlay() error {
	samples := s.recorder.snapshot()
	if len(samples) == 0 {
		return nil
	}
	if err := s.player.SetupPlayback(audio.SampleRate, 1, 2); err != nil {
		return fmt.Errorf("supervisor: debug playback setup: %w", err)
	}
	if err := s.player.EnqueuePlayback(int16ToBytes(samples)); err != nil {
		return fmt.Errorf("supervisor: debug playback enqueue: %w", err)
	}
	s.player.StopPlaybackAndAwait(nil)
	return nil
}

func int16ToBytes(samples []int16) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		out[2*i] = byte(uint16(s))
		out[2*i+1] = byte(uint16(s) >> 8)
	}
	return out
}
