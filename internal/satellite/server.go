package satellite

import (
	"bufio"
	"context"
	"errors"
	"io"
	"net"

	"github.com/nabuvoice/wake-satellite/internal/protocol"
)

// Serve runs the accept loop (T3) on lis until ctx is cancelled. Each
// accepted connection is handled to completion before the next Accept
// call, which is what gives the single-controller contract its serial
// semantics: a second connection is only accepted after the first
// disconnects.
func (s *Satellite) Serve(ctx context.Context, lis net.Listener) error {
	go func() {
		<-ctx.Done()
		lis.Close()
	}()

	for {
		conn, err := lis.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
			}
			return err
		}
		s.handleConnection(ctx, conn)
	}
}

// handleConnection is T4: it blocks reading frames from conn until the
// controller disconnects, the connection errors, or ctx is cancelled.
func (s *Satellite) handleConnection(ctx context.Context, conn net.Conn) {
	defer conn.Close()

	writer := protocol.NewWriter(conn)
	s.setWriter(writer)
	s.metrics.ConnectionOpened(ctx)
	defer s.metrics.ConnectionClosed(ctx)
	defer s.clearWriter(writer)

	// Closing conn on cancellation unblocks a ReadFrame that is waiting
	// for the controller's next frame.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	reader := bufio.NewReader(conn)
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		frame, err := protocol.ReadFrame(reader)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			if errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, protocol.ErrMalformed) {
				s.logger.Warn("closing connection after protocol error", "error", err)
			} else {
				s.logger.Error("connection read error", "error", err)
			}
			return
		}
		if frame == nil {
			return
		}
		if frame.RawData != nil {
			s.logger.Warn("data block is not valid JSON, keeping raw bytes", "type", frame.Header.Type)
		}

		if err := s.dispatch(frame, writer); err != nil {
			s.logger.Error("dispatch error", "type", frame.Header.Type, "error", err)
		}
	}
}

// dispatch applies the "any state" transitions (ping, describe) directly,
// and routes audio-start/audio-chunk/audio-stop onto the processor queue
// so they stay strictly ordered with captured audio.
func (s *Satellite) dispatch(frame *protocol.Frame, writer *protocol.Writer) error {
	switch frame.Header.Type {
	case protocol.TypePing:
		return writer.WriteFrame(protocol.TypePong, nil, nil)

	case protocol.TypeDescribe:
		return writer.WriteFrame(protocol.TypeInfo, protocol.InfoPayload(s.deviceName, s.deviceDescription), nil)

	case protocol.TypeAudioStart:
		rate, channels, width := soundFields(frame.Data)
		s.queue.push(event{kind: eventAudioStart, rate: rate, channels: channels, width: width})
		return nil

	case protocol.TypeAudioChunk:
		s.queue.push(event{kind: eventAudioChunk, payload: frame.Payload})
		return nil

	case protocol.TypeAudioStop:
		s.queue.push(event{kind: eventAudioStop})
		return nil

	case protocol.TypeDetect, protocol.TypeTranscribe, protocol.TypeVoiceStarted, protocol.TypeVoiceStopped:
		s.logger.Debug("received informational message", "type", frame.Header.Type)
		return nil

	case protocol.TypeError:
		s.logger.Warn("controller reported an error", "data", frame.Data)
		return nil

	default:
		s.logger.Debug("ignoring unrecognized message type", "type", frame.Header.Type)
		return nil
	}
}

// soundFields extracts rate/channels/width from an audio-start data block,
// defaulting to the satellite's own capture format if a field is absent.
func soundFields(data map[string]any) (rate, channels, width int) {
	rate, channels, width = 16000, 1, 2
	if data == nil {
		return
	}
	if v, ok := data["rate"].(float64); ok {
		rate = int(v)
	}
	if v, ok := data["channels"].(float64); ok {
		channels = int(v)
	}
	if v, ok := data["width"].(float64); ok {
		width = int(v)
	}
	return
}
