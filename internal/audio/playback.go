package audio

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gen2brain/malgo"
)

// ErrNotInitialized is returned by EnqueuePlayback when no stream is open.
var ErrNotInitialized = errors.New("audio: playback not initialized")

// supportedFormats enumerates the (channels, width) pairs SetupPlayback
// accepts without falling back.
var supportedFormats = map[[2]int]bool{
	{1, 1}: true, {1, 2}: true, {2, 1}: true, {2, 2}: true,
}

// Player implements setup_playback / enqueue_playback /
// stop_playback_and_await / interrupt_playback (C1).
type Player struct {
	ctx    *malgo.AllocatedContext
	logger *log.Logger

	mu       sync.Mutex
	device   *malgo.Device
	buf      []byte // raw device-native bytes awaiting playback
	channels int
	width    int // bytes per sample
	rate     int

	draining  chan struct{} // closed when the device callback drains buf to empty
	interrupt bool
}

// NewPlayer creates a Player with no stream open yet.
func NewPlayer(logger *log.Logger) (*Player, error) {
	ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return nil, fmt.Errorf("audio: init playback context: %w", err)
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Player{ctx: ctx, logger: logger.With("component", "audio.playback")}, nil
}

// SetupPlayback opens an output stream for the given format. Unsupported
// (channels, width) pairs fall back to (1, 2) with a warning, as specified.
func (p *Player) SetupPlayback(rate, channels, width int) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.device != nil {
		p.closeDeviceLocked()
	}

	if !supportedFormats[[2]int{channels, width}] {
		p.logger.Warn("unsupported playback format, falling back to mono 16-bit",
			"requested_channels", channels, "requested_width", width)
		channels, width = 1, 2
	}

	var format malgo.FormatType
	switch width {
	case 1:
		format = malgo.FormatU8
	case 2:
		format = malgo.FormatS16
	}

	deviceConfig := malgo.DefaultDeviceConfig(malgo.Playback)
	deviceConfig.Playback.Format = format
	deviceConfig.Playback.Channels = uint32(channels)
	deviceConfig.SampleRate = uint32(rate)

	p.buf = nil
	p.channels = channels
	p.width = width
	p.rate = rate
	p.interrupt = false
	p.draining = nil

	onSend := func(output, _ []byte, _ uint32) {
		p.mu.Lock()
		n := copy(output, p.buf)
		p.buf = p.buf[n:]
		empty := len(p.buf) == 0
		draining := p.draining
		p.mu.Unlock()

		for i := n; i < len(output); i++ {
			output[i] = 0
		}
		if empty && draining != nil {
			select {
			case <-draining:
			default:
				close(draining)
			}
		}
	}

	device, err := malgo.InitDevice(p.ctx.Context, deviceConfig, malgo.DeviceCallbacks{Data: onSend})
	if err != nil {
		return fmt.Errorf("audio: init playback device: %w", err)
	}
	if err := device.Start(); err != nil {
		device.Uninit()
		return fmt.Errorf("audio: start playback device: %w", err)
	}
	p.device = device
	return nil
}

// EnqueuePlayback appends raw PCM bytes, matching the format passed to
// SetupPlayback, to the current playback stream.
func (p *Player) EnqueuePlayback(data []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.device == nil {
		return ErrNotInitialized
	}
	p.buf = append(p.buf, data...)
	return nil
}

// StopPlaybackAndAwait drains and closes the output stream, blocking until
// the underlying buffer is empty. Idempotent: a second call is a no-op.
// The wait is bounded by the queued byte count divided by the stream's
// byte rate, plus 200ms. If interrupted (cancel closed) it returns within
// 200ms for cooperative shutdown.
func (p *Player) StopPlaybackAndAwait(cancel <-chan struct{}) {
	p.mu.Lock()
	if p.device == nil {
		p.mu.Unlock()
		return
	}
	if len(p.buf) == 0 {
		p.closeDeviceLocked()
		p.mu.Unlock()
		return
	}
	draining := make(chan struct{})
	p.draining = draining
	drainBound := 200 * time.Millisecond
	if bytesPerSecond := p.rate * p.channels * p.width; bytesPerSecond > 0 {
		drainBound += time.Duration(len(p.buf)) * time.Second / time.Duration(bytesPerSecond)
	}
	p.mu.Unlock()

	select {
	case <-draining:
	case <-cancel:
	case <-time.After(drainBound):
	}

	p.mu.Lock()
	p.closeDeviceLocked()
	p.mu.Unlock()
}

// InterruptPlayback discards queued playback immediately.
func (p *Player) InterruptPlayback() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.buf = nil
	p.interrupt = true
	if p.draining != nil {
		select {
		case <-p.draining:
		default:
			close(p.draining)
		}
	}
}

// closeDeviceLocked must be called with mu held.
func (p *Player) closeDeviceLocked() {
	if p.device != nil {
		p.device.Stop()
		p.device.Uninit()
		p.device = nil
	}
	p.buf = nil
}

// Close releases all resources.
func (p *Player) Close() {
	p.mu.Lock()
	p.closeDeviceLocked()
	p.mu.Unlock()
	if p.ctx != nil {
		_ = p.ctx.Uninit()
		p.ctx.Free()
		p.ctx = nil
	}
}
