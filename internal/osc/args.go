package osc

import (
	"fmt"
	"math"
	"net"
	"strconv"
	"strings"
)

// ParseArg converts a command-line token into an argument.
//
// Explicit forms are "i:<int32>", "f:<float32>" and "s:<text>". A bare token
// is an Int32 if it parses as one, else a finite Float32 if it parses as
// one, else a String. Other tokens that merely look prefixed, such as
// "C:major", and words like "inf" or "nan" stay strings.
func ParseArg(token string) (Arg, error) {
	if len(token) >= 2 && token[1] == ':' {
		val := token[2:]
		switch token[0] {
		case TagInt32:
			n, err := strconv.ParseInt(val, 10, 32)
			if err != nil {
				return nil, fmt.Errorf("osc: int32 argument %q: %w", val, err)
			}
			return Int32(n), nil
		case TagFloat32:
			f, err := strconv.ParseFloat(val, 32)
			if err != nil {
				return nil, fmt.Errorf("osc: float32 argument %q: %w", val, err)
			}
			return Float32(f), nil
		case TagString:
			return String(val), nil
		}
	}

	if n, err := strconv.ParseInt(token, 10, 32); err == nil {
		return Int32(n), nil
	}
	if f, err := strconv.ParseFloat(token, 32); err == nil && !math.IsInf(f, 0) && !math.IsNaN(f) {
		return Float32(f), nil
	}
	return String(token), nil
}

// ParseArgs applies ParseArg to every token.
func ParseArgs(tokens []string) ([]Arg, error) {
	args := make([]Arg, 0, len(tokens))
	for _, t := range tokens {
		a, err := ParseArg(t)
		if err != nil {
			return nil, err
		}
		args = append(args, a)
	}
	return args, nil
}

// ParseLine splits "/address arg arg..." into a message.
func ParseLine(line string) (Message, error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return Message{}, fmt.Errorf("%w: empty line", ErrInvalidAddress)
	}
	if !strings.HasPrefix(fields[0], "/") {
		return Message{}, fmt.Errorf("%w: %q", ErrInvalidAddress, fields[0])
	}
	args, err := ParseArgs(fields[1:])
	if err != nil {
		return Message{}, err
	}
	return NewMessage(fields[0], args...), nil
}

// ParseTarget splits "host:port" into its parts.
func ParseTarget(target string) (string, int, error) {
	host, portStr, err := net.SplitHostPort(target)
	if err != nil {
		return "", 0, fmt.Errorf("osc: target %q: %w", target, err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil || port <= 0 || port > 65535 {
		return "", 0, fmt.Errorf("osc: target %q: invalid port", target)
	}
	return host, port, nil
}
