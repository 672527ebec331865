package osc

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"
)

// DefaultWriteTimeout bounds a single datagram write.
const DefaultWriteTimeout = 2 * time.Second

// Sender delivers messages as individual UDP datagrams. Every Send opens its
// own socket, so a Sender is safe for concurrent use and holds no state
// between calls. Delivery is best-effort: no acknowledgement, no retry.
type Sender struct {
	logger       logrus.FieldLogger
	dialer       net.Dialer
	writeTimeout time.Duration
}

// NewSender creates a Sender. A nil logger falls back to logrus defaults.
func NewSender(logger logrus.FieldLogger) *Sender {
	if logger == nil {
		logger = logrus.New()
	}
	return &Sender{
		logger:       logger,
		writeTimeout: DefaultWriteTimeout,
	}
}

// Send encodes msg and writes it to host:port. The message is encoded before
// any socket is opened; an encoding error leaves the network untouched.
func (s *Sender) Send(ctx context.Context, host string, port int, msg Message) error {
	data, err := Encode(msg)
	if err != nil {
		return err
	}
	return s.SendRaw(ctx, host, port, data)
}

// SendRaw writes an already-encoded payload as one datagram.
func (s *Sender) SendRaw(ctx context.Context, host string, port int, payload []byte) error {
	if port <= 0 || port > 65535 {
		return fmt.Errorf("osc: invalid port %d", port)
	}
	addr := net.JoinHostPort(host, strconv.Itoa(port))

	conn, err := s.dialer.DialContext(ctx, "udp", addr)
	if err != nil {
		return fmt.Errorf("osc: dial %s: %w", addr, err)
	}
	defer conn.Close()

	deadline := time.Now().Add(s.writeTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := conn.SetWriteDeadline(deadline); err != nil {
		return fmt.Errorf("osc: set deadline: %w", err)
	}

	if _, err := conn.Write(payload); err != nil {
		return fmt.Errorf("osc: write to %s: %w", addr, err)
	}

	s.logger.WithFields(logrus.Fields{
		"host":  host,
		"port":  port,
		"bytes": len(payload),
	}).Debug("OSC datagram sent")
	return nil
}
