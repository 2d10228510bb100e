package protocol

import (
	"bufio"
	"bytes"
	"io"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestWriteThenReadRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)
	require.NoError(t, w.WriteFrame(TypePing, nil, nil))

	frame, err := ReadFrame(bufio.NewReader(&buf))
	require.NoError(t, err)
	require.Equal(t, TypePing, frame.Header.Type)
	require.Equal(t, "1.0", frame.Header.Version)
	require.Nil(t, frame.Data)
	require.Nil(t, frame.Payload)
}

func TestWriteThenReadWithDataAndPayload(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)
	data := map[string]any{"rate": float64(16000)}
	payload := []byte{1, 2, 3, 4}
	require.NoError(t, w.WriteFrame(TypeAudioChunk, data, payload))

	frame, err := ReadFrame(bufio.NewReader(&buf))
	require.NoError(t, err)
	require.Equal(t, TypeAudioChunk, frame.Header.Type)
	require.Equal(t, float64(16000), frame.Data["rate"])
	require.Equal(t, payload, frame.Payload)
}

func TestReadFrameOnCleanlyClosedStreamReturnsNil(t *testing.T) {
	r := bufio.NewReader(bytes.NewReader(nil))
	frame, err := ReadFrame(r)
	require.NoError(t, err)
	require.Nil(t, frame)
}

func TestReadFrameOnHalfReceivedHeaderIsUnexpectedEOF(t *testing.T) {
	r := bufio.NewReader(bytes.NewReader([]byte(`{"type":"ping"`))) // no trailing newline
	_, err := ReadFrame(r)
	require.ErrorIs(t, err, io.ErrUnexpectedEOF)
}

func TestReadFrameShortDataIsUnexpectedEOF(t *testing.T) {
	r := bufio.NewReader(bytes.NewReader([]byte("{\"type\":\"audio-chunk\",\"version\":\"1.0\",\"data_length\":12}\n{\"rate\":1}")))
	_, err := ReadFrame(r)
	require.ErrorIs(t, err, io.ErrUnexpectedEOF)
}

func TestReadFrameMalformedHeaderIsError(t *testing.T) {
	r := bufio.NewReader(bytes.NewReader([]byte("not json\n")))
	_, err := ReadFrame(r)
	require.ErrorIs(t, err, ErrMalformed)
}

func TestReadFrameNonJSONDataIsWarningNotFatal(t *testing.T) {
	raw := "not-json!!!!"
	input := []byte("{\"type\":\"audio-chunk\",\"version\":\"1.0\",\"data_length\":12}\n" + raw)
	r := bufio.NewReader(bytes.NewReader(input))
	frame, err := ReadFrame(r)
	require.NoError(t, err)
	require.Nil(t, frame.Data)
	require.Equal(t, []byte(raw), frame.RawData)
}

func TestFramingWithPayloadConsumesExactByteCount(t *testing.T) {
	input := []byte("{\"type\":\"audio-chunk\",\"version\":\"1.0\",\"data_length\":14}\n{\"rate\":16000}NEXTFRAME")
	r := bufio.NewReader(bytes.NewReader(input))
	frame, err := ReadFrame(r)
	require.NoError(t, err)
	require.Equal(t, float64(16000), frame.Data["rate"])
	require.Nil(t, frame.Payload)

	rest, err := io.ReadAll(r)
	require.NoError(t, err)
	require.Equal(t, "NEXTFRAME", string(rest))
}

func TestTwoDescribeRepliesAreByteIdentical(t *testing.T) {
	var buf1, buf2 bytes.Buffer
	w1 := NewWriter(&buf1)
	w2 := NewWriter(&buf2)
	info := InfoPayload("sat", "a satellite")
	require.NoError(t, w1.WriteFrame(TypeInfo, info, nil))
	require.NoError(t, w2.WriteFrame(TypeInfo, info, nil))
	require.Equal(t, buf1.Bytes(), buf2.Bytes())
}
