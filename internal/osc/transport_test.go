package osc

import (
	"context"
	"io"
	"net"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func listenLoopback(t *testing.T) (net.PacketConn, int) {
	t.Helper()
	pc, err := net.ListenPacket("udp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { pc.Close() })
	return pc, pc.LocalAddr().(*net.UDPAddr).Port
}

func readDatagram(t *testing.T, pc net.PacketConn) []byte {
	t.Helper()
	require.NoError(t, pc.SetReadDeadline(time.Now().Add(2*time.Second)))
	buf := make([]byte, 1024)
	n, _, err := pc.ReadFrom(buf)
	require.NoError(t, err)
	return buf[:n]
}

func TestSenderSend(t *testing.T) {
	pc, port := listenLoopback(t)
	s := NewSender(quietLogger())

	require.NoError(t, s.Send(context.Background(), "127.0.0.1", port, NewMessage("/bpm", Int32(120))))

	got := readDatagram(t, pc)
	assert.Equal(t, []byte{'/', 'b', 'p', 'm', 0, 0, 0, 0, ',', 'i', 0, 0, 0, 0, 0, 0x78}, got)

	msg, err := Decode(got)
	require.NoError(t, err)
	assert.Equal(t, NewMessage("/bpm", Int32(120)), msg)
}

func TestSenderOneDatagramPerMessage(t *testing.T) {
	pc, port := listenLoopback(t)
	s := NewSender(quietLogger())
	ctx := context.Background()

	require.NoError(t, s.Send(ctx, "127.0.0.1", port, Drums(true)))
	require.NoError(t, s.Send(ctx, "127.0.0.1", port, Drums(false)))

	first, err := Decode(readDatagram(t, pc))
	require.NoError(t, err)
	second, err := Decode(readDatagram(t, pc))
	require.NoError(t, err)
	assert.Equal(t, Drums(true), first)
	assert.Equal(t, Drums(false), second)
}

func TestSenderEncodingErrorSendsNothing(t *testing.T) {
	pc, port := listenLoopback(t)
	s := NewSender(quietLogger())

	err := s.Send(context.Background(), "127.0.0.1", port, NewMessage("/x", nil))
	require.ErrorIs(t, err, ErrUnsupportedArgument)

	require.NoError(t, pc.SetReadDeadline(time.Now().Add(100*time.Millisecond)))
	_, _, err = pc.ReadFrom(make([]byte, 64))
	var ne net.Error
	require.ErrorAs(t, err, &ne)
	assert.True(t, ne.Timeout())
}

func TestSenderInvalidPort(t *testing.T) {
	s := NewSender(nil)
	assert.Error(t, s.Send(context.Background(), "127.0.0.1", 0, Drums(true)))
	assert.Error(t, s.SendRaw(context.Background(), "127.0.0.1", 70000, []byte{0}))
}

func TestSenderCanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	s := NewSender(quietLogger())
	err := s.Send(ctx, "127.0.0.1", 9, Drums(true))
	assert.Error(t, err)
}
