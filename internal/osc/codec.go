// Package osc implements the Open Sound Control 1.0 message format used to
// drive the companion service once the device is on the network, and a
// fire-and-forget UDP transport for it. Bundles and time tags are not
// supported.
package osc

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"strings"
)

var (
	// ErrUnsupportedArgument is returned when a message carries an argument
	// that has no OSC type tag in this codec.
	ErrUnsupportedArgument = errors.New("osc: unsupported argument type")
	// ErrInvalidAddress is returned for address patterns not starting with '/'.
	ErrInvalidAddress = errors.New("osc: address pattern must start with '/'")
	// ErrInvalidString is returned for an address or string argument holding
	// a NUL byte, which OSC strings cannot carry.
	ErrInvalidString = errors.New("osc: string contains NUL byte")
	// ErrMalformed is returned by Decode for packets that are not valid messages.
	ErrMalformed = errors.New("osc: malformed message")
)

// Type tags.
const (
	TagInt32   = 'i'
	TagFloat32 = 'f'
	TagString  = 's'
)

// Arg is one typed OSC argument. Only Int32, Float32 and String implement it.
type Arg interface {
	Tag() byte
	appendTo(buf []byte) []byte
}

// Int32 is a 32-bit big-endian two's complement integer argument.
type Int32 int32

// Float32 is a 32-bit big-endian IEEE-754 argument.
type Float32 float32

// String is a NUL-terminated, 4-byte padded string argument.
type String string

func (Int32) Tag() byte   { return TagInt32 }
func (Float32) Tag() byte { return TagFloat32 }
func (String) Tag() byte  { return TagString }

func (v Int32) appendTo(buf []byte) []byte {
	return binary.BigEndian.AppendUint32(buf, uint32(v))
}

// The bit pattern is written as-is, so NaN payloads, infinities and
// negative zero survive encoding unchanged.
func (v Float32) appendTo(buf []byte) []byte {
	return binary.BigEndian.AppendUint32(buf, math.Float32bits(float32(v)))
}

func (v String) appendTo(buf []byte) []byte {
	return appendPadded(buf, string(v))
}

// Message is a single OSC message: an address pattern and its arguments.
type Message struct {
	Address string
	Args    []Arg
}

// NewMessage returns a message for address with the given arguments.
func NewMessage(address string, args ...Arg) Message {
	return Message{Address: address, Args: args}
}

// TypeTags returns the type tag string of the message, including the
// leading ','.
func (m Message) TypeTags() (string, error) {
	var sb strings.Builder
	sb.WriteByte(',')
	for i, a := range m.Args {
		if a == nil {
			return "", fmt.Errorf("%w: argument %d is nil", ErrUnsupportedArgument, i)
		}
		sb.WriteByte(a.Tag())
	}
	return sb.String(), nil
}

// String renders the message as "/address ,tags arg arg..." for logs.
func (m Message) String() string {
	var sb strings.Builder
	sb.WriteString(m.Address)
	tags, err := m.TypeTags()
	if err != nil {
		tags = ",?"
	}
	sb.WriteByte(' ')
	sb.WriteString(tags)
	for _, a := range m.Args {
		sb.WriteByte(' ')
		switch v := a.(type) {
		case String:
			fmt.Fprintf(&sb, "%q", string(v))
		case nil:
			sb.WriteString("<nil>")
		default:
			fmt.Fprintf(&sb, "%v", v)
		}
	}
	return sb.String()
}

// MarshalBinary implements encoding.BinaryMarshaler.
func (m Message) MarshalBinary() ([]byte, error) {
	return Encode(m)
}

// Encode serializes m into the raw payload of one OSC datagram:
//
//	address  NUL-terminated, padded to a multiple of 4
//	tags     ",<tag>..." NUL-terminated, padded to a multiple of 4
//	args     each argument in order (int32/float32 big-endian, strings padded)
//
// Nothing is returned when any argument is unsupported or any string
// holds a NUL byte.
func Encode(m Message) ([]byte, error) {
	if !strings.HasPrefix(m.Address, "/") {
		return nil, fmt.Errorf("%w: %q", ErrInvalidAddress, m.Address)
	}
	if strings.IndexByte(m.Address, 0) >= 0 {
		return nil, fmt.Errorf("%w: address %q", ErrInvalidString, m.Address)
	}
	tags, err := m.TypeTags()
	if err != nil {
		return nil, err
	}
	for i, a := range m.Args {
		if s, ok := a.(String); ok && strings.IndexByte(string(s), 0) >= 0 {
			return nil, fmt.Errorf("%w: argument %d %q", ErrInvalidString, i, string(s))
		}
	}

	size := paddedLen(len(m.Address)) + paddedLen(len(tags))
	for _, a := range m.Args {
		if s, ok := a.(String); ok {
			size += paddedLen(len(s))
		} else {
			size += 4
		}
	}

	buf := make([]byte, 0, size)
	buf = appendPadded(buf, m.Address)
	buf = appendPadded(buf, tags)
	for _, a := range m.Args {
		buf = a.appendTo(buf)
	}
	return buf, nil
}

// Decode parses a single OSC message produced by Encode (or any OSC 1.0
// sender restricted to the i, f and s types).
func Decode(data []byte) (Message, error) {
	address, off, err := readPadded(data, 0)
	if err != nil {
		return Message{}, fmt.Errorf("address: %w", err)
	}
	if !strings.HasPrefix(address, "/") {
		return Message{}, fmt.Errorf("%w: %q", ErrInvalidAddress, address)
	}

	msg := Message{Address: address}
	if off == len(data) {
		// Type tag string omitted by very old senders.
		return msg, nil
	}

	tags, off, err := readPadded(data, off)
	if err != nil {
		return Message{}, fmt.Errorf("type tags: %w", err)
	}
	if !strings.HasPrefix(tags, ",") {
		return Message{}, fmt.Errorf("%w: type tags %q lack ','", ErrMalformed, tags)
	}

	for _, tag := range []byte(tags[1:]) {
		switch tag {
		case TagInt32, TagFloat32:
			if len(data)-off < 4 {
				return Message{}, fmt.Errorf("%w: truncated '%c' argument", ErrMalformed, tag)
			}
			bits := binary.BigEndian.Uint32(data[off:])
			off += 4
			if tag == TagInt32 {
				msg.Args = append(msg.Args, Int32(int32(bits)))
			} else {
				msg.Args = append(msg.Args, Float32(math.Float32frombits(bits)))
			}
		case TagString:
			var s string
			s, off, err = readPadded(data, off)
			if err != nil {
				return Message{}, fmt.Errorf("string argument: %w", err)
			}
			msg.Args = append(msg.Args, String(s))
		default:
			return Message{}, fmt.Errorf("%w: tag '%c'", ErrUnsupportedArgument, tag)
		}
	}
	if off != len(data) {
		return Message{}, fmt.Errorf("%w: %d trailing bytes", ErrMalformed, len(data)-off)
	}
	return msg, nil
}

// padLen returns how many NULs follow the terminator of an n-byte string.
func padLen(n int) int {
	rem := (n + 1) % 4
	if rem == 0 {
		return 0
	}
	return 4 - rem
}

// paddedLen is the encoded size of an n-byte string: bytes, NUL, padding.
func paddedLen(n int) int {
	return n + 1 + padLen(n)
}

func appendPadded(buf []byte, s string) []byte {
	buf = append(buf, s...)
	for i := 0; i < 1+padLen(len(s)); i++ {
		buf = append(buf, 0)
	}
	return buf
}

// readPadded reads a padded string at off and returns it with the offset of
// the next segment.
func readPadded(data []byte, off int) (string, int, error) {
	if off >= len(data) {
		return "", 0, fmt.Errorf("%w: unexpected end of packet", ErrMalformed)
	}
	end := bytes.IndexByte(data[off:], 0)
	if end < 0 {
		return "", 0, fmt.Errorf("%w: missing string terminator", ErrMalformed)
	}
	s := string(data[off : off+end])
	next := off + paddedLen(end)
	if next > len(data) {
		return "", 0, fmt.Errorf("%w: truncated string padding", ErrMalformed)
	}
	return s, next, nil
}
