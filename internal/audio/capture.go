package audio

import (
	"encoding/binary"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/charmbracelet/log"
	"github.com/gen2brain/malgo"
)

// ChunkSamples is the canonical capture chunk size: 1280 samples at 16kHz
// (80ms), the hop the wake-word pipeline advances per tick.
const ChunkSamples = 1280

// SampleRate is the fixed capture sample rate.
const SampleRate = 16000

// Capturer delivers 16kHz mono s16 PCM chunks of exactly ChunkSamples
// samples to a callback on a dedicated goroutine, decoupled from the audio
// driver's own callback thread via a mutex-protected pending buffer (C1).
type Capturer struct {
	ctx    *malgo.AllocatedContext
	device *malgo.Device
	logger *log.Logger

	onChunk func(chunk []int16)

	running  atomic.Bool
	deviceSR uint32
	resample *linearResampler

	mu       sync.Mutex // protects pending (driver callback vs. process loop)
	pending  []int16
	stopChan chan struct{}
	wg       sync.WaitGroup
	notify   chan struct{}
}

// NewCapturer creates a Capturer. onChunk is invoked once per ChunkSamples
// block of audio, in capture order, from a dedicated goroutine (never from
// the audio driver's own thread).
func NewCapturer(logger *log.Logger, onChunk func(chunk []int16)) (*Capturer, error) {
	ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return nil, fmt.Errorf("audio: init capture context: %w", err)
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Capturer{
		ctx:     ctx,
		logger:  logger.With("component", "audio.capture"),
		onChunk: onChunk,
		notify:  make(chan struct{}, 1),
	}, nil
}

// Start begins delivering chunks. Idempotent: calling Start while already
// running logs and returns nil without altering state.
func (c *Capturer) Start() error {
	if c.running.Load() {
		c.logger.Warn("start_capture called while already active, ignoring")
		return nil
	}

	deviceConfig := malgo.DefaultDeviceConfig(malgo.Capture)
	deviceConfig.Capture.Format = malgo.FormatS16
	deviceConfig.Capture.Channels = 1
	deviceConfig.SampleRate = SampleRate
	deviceConfig.PeriodSizeInMilliseconds = 80

	c.stopChan = make(chan struct{})
	c.pending = nil

	onRecv := func(_, input []byte, _ uint32) {
		if !c.running.Load() {
			return
		}
		// Drop a trailing odd byte rather than pad it: a partial sample at
		// the tail of a driver read is discarded, not zero-extended.
		usable := len(input) - (len(input) % 2)
		if usable == 0 {
			return
		}
		samples := make([]int16, usable/2)
		for i := range samples {
			samples[i] = int16(binary.LittleEndian.Uint16(input[i*2:]))
		}
		if c.resample != nil {
			samples = float32ToInt16(c.resample.resample(int16ToFloat32(samples)))
		}

		c.mu.Lock()
		c.pending = append(c.pending, samples...)
		c.mu.Unlock()

		select {
		case c.notify <- struct{}{}:
		default:
		}
	}

	device, err := malgo.InitDevice(c.ctx.Context, deviceConfig, malgo.DeviceCallbacks{Data: onRecv})
	if err != nil {
		return fmt.Errorf("audio: init capture device: %w", err)
	}
	c.deviceSR = device.SampleRate()
	if c.deviceSR != SampleRate {
		c.resample = newLinearResampler(int(c.deviceSR), SampleRate)
		c.logger.Warn("capture device sample rate differs from target, resampling",
			"device_rate", c.deviceSR, "target_rate", SampleRate)
	}

	c.device = device
	c.running.Store(true)

	c.wg.Add(1)
	go c.processLoop()

	if err := device.Start(); err != nil {
		c.running.Store(false)
		return fmt.Errorf("audio: start capture device: %w", err)
	}
	return nil
}

// processLoop drains pending samples and emits ChunkSamples-sized chunks in
// arrival order. Runs on its own goroutine so the audio driver callback
// never blocks on application logic.
func (c *Capturer) processLoop() {
	defer c.wg.Done()
	for {
		select {
		case <-c.stopChan:
			return
		case <-c.notify:
		}

		for {
			c.mu.Lock()
			if len(c.pending) < ChunkSamples {
				c.mu.Unlock()
				break
			}
			chunk := make([]int16, ChunkSamples)
			copy(chunk, c.pending[:ChunkSamples])
			c.pending = c.pending[ChunkSamples:]
			c.mu.Unlock()

			if c.onChunk != nil && c.running.Load() {
				c.onChunk(chunk)
			}
		}

		select {
		case <-c.stopChan:
			return
		default:
		}
	}
}

// Stop halts capture and synchronously releases the device. After Stop
// returns, no further callbacks are delivered.
func (c *Capturer) Stop() {
	if !c.running.Swap(false) {
		return
	}
	close(c.stopChan)
	c.wg.Wait()

	if c.device != nil {
		c.device.Stop()
		c.device.Uninit()
		c.device = nil
	}
}

// Close releases all resources, stopping capture first if still active.
func (c *Capturer) Close() {
	c.Stop()
	if c.ctx != nil {
		_ = c.ctx.Uninit()
		c.ctx.Free()
		c.ctx = nil
	}
}
