package satellite

import (
	"bufio"
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/nabuvoice/wake-satellite/internal/protocol"
)

type fakeCapture struct {
	startCount int
	stopCount  int
	startErr   error
}

func (f *fakeCapture) Start() error { f.startCount++; return f.startErr }
func (f *fakeCapture) Stop()        { f.stopCount++ }

type playbackCall struct{ rate, channels, width int }

type fakePlayback struct {
	setupErr   error
	setupCalls []playbackCall
	enqueued   [][]byte
	stopped    int
}

func (f *fakePlayback) SetupPlayback(rate, channels, width int) error {
	f.setupCalls = append(f.setupCalls, playbackCall{rate, channels, width})
	return f.setupErr
}
func (f *fakePlayback) EnqueuePlayback(data []byte) error {
	f.enqueued = append(f.enqueued, data)
	return nil
}
func (f *fakePlayback) StopPlaybackAndAwait(cancel <-chan struct{}) { f.stopped++ }
func (f *fakePlayback) InterruptPlayback()                         {}

type fakePipeline struct {
	score *float32
	calls int
}

func (f *fakePipeline) Offer(chunk []int16) (*float32, error) {
	f.calls++
	return f.score, nil
}

type fixedGate bool

func (g fixedGate) SpeechPresent([]float32) bool { return bool(g) }

func scorePtr(v float32) *float32 { return &v }

func newTestSatellite(score *float32, gate fixedGate) (*Satellite, *fakeCapture, *fakePlayback, *fakePipeline) {
	cap := &fakeCapture{}
	play := &fakePlayback{}
	pipe := &fakePipeline{score: score}
	sat := New(nil, cap, play, pipe, gate, Options{
		DeviceName:        "test",
		DeviceDescription: "test satellite",
		Threshold:         0.5,
		StreamingTimeout:  60 * time.Second,
	})
	return sat, cap, play, pipe
}

func TestIdleTransitionsToListeningOnDetection(t *testing.T) {
	sat, _, _, pipe := newTestSatellite(scorePtr(0.9), true)
	sat.handleCapture(make([]int16, 1280))
	require.Equal(t, StateListening, sat.State())
	require.Equal(t, 1, pipe.calls)
	require.False(t, sat.lastDetection.IsZero())
}

func TestScoreBelowThresholdStaysIdle(t *testing.T) {
	sat, _, _, _ := newTestSatellite(scorePtr(0.1), true)
	sat.handleCapture(make([]int16, 1280))
	require.Equal(t, StateIdle, sat.State())
}

func TestListeningExitsOnSilence(t *testing.T) {
	sat, _, _, _ := newTestSatellite(scorePtr(0.9), false)
	sat.stateMu.Lock()
	sat.state = StateListening
	sat.stateMu.Unlock()

	sat.handleCapture(make([]int16, 1280))
	require.Equal(t, StateIdle, sat.State())
}

func TestPlayingNeverInvokesClassifier(t *testing.T) {
	sat, _, _, pipe := newTestSatellite(scorePtr(0.9), true)
	sat.stateMu.Lock()
	sat.state = StatePlaying
	sat.stateMu.Unlock()

	sat.handleCapture(make([]int16, 1280))
	require.Equal(t, 0, pipe.calls)
	require.Equal(t, StatePlaying, sat.State())
}

func TestLastDetectionMonotonicallyIncreasesWhileListening(t *testing.T) {
	sat, _, _, _ := newTestSatellite(scorePtr(0.9), true)
	sat.handleCapture(make([]int16, 1280))
	require.Equal(t, StateListening, sat.State())
	first := sat.lastDetection

	time.Sleep(time.Millisecond)
	sat.handleCapture(make([]int16, 1280))
	require.Equal(t, StateListening, sat.State())
	require.True(t, sat.lastDetection.After(first))
}

func TestListeningTimesOutToIdle(t *testing.T) {
	sat, _, _, _ := newTestSatellite(scorePtr(0.1), false)
	sat.streamingTimeout = time.Millisecond
	sat.stateMu.Lock()
	sat.state = StateListening
	sat.lastDetection = time.Now().Add(-time.Second)
	sat.stateMu.Unlock()

	sat.handleCapture(make([]int16, 1280))
	require.Equal(t, StateIdle, sat.State())
}

func TestAudioStartChunkStopCycle(t *testing.T) {
	sat, cap, play, _ := newTestSatellite(nil, false)
	sat.handleAudioStart(22050, 1, 2)
	require.Equal(t, StatePlaying, sat.State())
	require.Equal(t, 1, cap.stopCount)
	require.Len(t, play.setupCalls, 1)
	require.Equal(t, playbackCall{22050, 1, 2}, play.setupCalls[0])

	sat.handleAudioChunk([]byte{1, 2, 3, 4})
	sat.handleAudioChunk([]byte{5, 6})
	require.Len(t, play.enqueued, 2)

	sat.handleAudioStop()
	require.Equal(t, StateIdle, sat.State())
	require.Equal(t, 1, play.stopped)
	require.Equal(t, 1, cap.startCount)
}

func TestAudioStartPlaybackFailureReturnsToIdle(t *testing.T) {
	sat, cap, play, _ := newTestSatellite(nil, false)
	play.setupErr = context.DeadlineExceeded

	sat.handleAudioStart(16000, 1, 2)
	require.Equal(t, StateIdle, sat.State())
	require.Equal(t, 1, cap.startCount, "capture should be restarted after the failed setup")
}

func TestStartStopIdempotent(t *testing.T) {
	sat, cap, _, _ := newTestSatellite(nil, false)
	require.NoError(t, sat.Start())
	require.NoError(t, sat.Start())
	require.Equal(t, 1, cap.startCount)

	sat.Stop()
	sat.Stop()
	require.Equal(t, 1, cap.stopCount)
}

// readWriteFrame is a tiny client helper mirroring protocol.Writer/ReadFrame
// for the connecting side of a net.Pipe in server tests.
func readWriteFrame(t *testing.T, conn net.Conn, msgType string) *protocol.Frame {
	t.Helper()
	w := protocol.NewWriter(conn)
	require.NoError(t, w.WriteFrame(msgType, nil, nil))
	frame, err := protocol.ReadFrame(bufio.NewReader(conn))
	require.NoError(t, err)
	require.NotNil(t, frame)
	return frame
}

func TestServePingPong(t *testing.T) {
	sat, _, _, _ := newTestSatellite(nil, false)
	clientConn, serverConn := net.Pipe()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	listener := newPipeListener(serverConn)
	go sat.Serve(ctx, listener)

	reply := readWriteFrame(t, clientConn, protocol.TypePing)
	require.Equal(t, protocol.TypePong, reply.Header.Type)
	clientConn.Close()
}

func TestServeDescribeReturnsSoundFormat(t *testing.T) {
	sat, _, _, _ := newTestSatellite(nil, false)
	clientConn, serverConn := net.Pipe()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	listener := newPipeListener(serverConn)
	go sat.Serve(ctx, listener)

	reply := readWriteFrame(t, clientConn, protocol.TypeDescribe)
	require.Equal(t, protocol.TypeInfo, reply.Header.Type)
	satelliteInfo, ok := reply.Data["satellite"].(map[string]any)
	require.True(t, ok)
	sndFormat, ok := satelliteInfo["snd_format"].(map[string]any)
	require.True(t, ok)
	require.Equal(t, float64(1), sndFormat["channels"])
	require.Equal(t, float64(16000), sndFormat["rate"])
	require.Equal(t, float64(2), sndFormat["width"])
	clientConn.Close()
}

// pipeListener adapts a single net.Conn (from net.Pipe) into a net.Listener
// that yields it exactly once, then blocks until closed. Sufficient for
// exercising Serve's accept-then-handle-to-completion contract in tests.
type pipeListener struct {
	conn   net.Conn
	served bool
	closed chan struct{}
}

func newPipeListener(conn net.Conn) *pipeListener {
	return &pipeListener{conn: conn, closed: make(chan struct{})}
}

func (l *pipeListener) Accept() (net.Conn, error) {
	if !l.served {
		l.served = true
		return l.conn, nil
	}
	<-l.closed
	return nil, net.ErrClosed
}

func (l *pipeListener) Close() error {
	select {
	case <-l.closed:
	default:
		close(l.closed)
	}
	return nil
}

func (l *pipeListener) Addr() net.Addr { return l.conn.LocalAddr() }
