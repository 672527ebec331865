package osc

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseArg(t *testing.T) {
	tests := []struct {
		token string
		want  Arg
	}{
		{"120", Int32(120)},
		{"-3", Int32(-3)},
		{"0.5", Float32(0.5)},
		{"1e3", Float32(1000)},
		{"on", String("on")},
		{"i:7", Int32(7)},
		{"f:2", Float32(2)},
		{"s:42", String("42")},
		{"s:", String("")},
		{"99999999999", Float32(99999999999)},
		{"C:major", String("C:major")},
		{"b:0102", String("b:0102")},
		{"x:", String("x:")},
		{"inf", String("inf")},
		{"-Inf", String("-Inf")},
		{"Infinity", String("Infinity")},
		{"nan", String("nan")},
		{"NaN", String("NaN")},
		{"1e99", String("1e99")},
	}
	for _, tt := range tests {
		t.Run(tt.token, func(t *testing.T) {
			got, err := ParseArg(tt.token)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseArgErrors(t *testing.T) {
	_, err := ParseArg("i:abc")
	assert.Error(t, err)

	_, err = ParseArg("f:x")
	assert.Error(t, err)
}

func TestParseArgExplicitFloatKeepsSpecialValues(t *testing.T) {
	got, err := ParseArg("f:inf")
	require.NoError(t, err)
	assert.True(t, math.IsInf(float64(got.(Float32)), 1))

	got, err = ParseArg("f:nan")
	require.NoError(t, err)
	assert.True(t, math.IsNaN(float64(got.(Float32))))
}

func TestParseLineKeepsPrefixedWordsAsStrings(t *testing.T) {
	msg, err := ParseLine("/chord C:major inf 2")
	require.NoError(t, err)
	assert.Equal(t, NewMessage("/chord", String("C:major"), String("inf"), Int32(2)), msg)
}

func TestParseLine(t *testing.T) {
	msg, err := ParseLine("  /slider 2   64 ")
	require.NoError(t, err)
	assert.Equal(t, NewMessage("/slider", Int32(2), Int32(64)), msg)

	msg, err = ParseLine("/ping")
	require.NoError(t, err)
	assert.Equal(t, "/ping", msg.Address)
	assert.Empty(t, msg.Args)

	_, err = ParseLine("")
	assert.ErrorIs(t, err, ErrInvalidAddress)

	_, err = ParseLine("bpm 120")
	assert.ErrorIs(t, err, ErrInvalidAddress)
}

func TestParseTarget(t *testing.T) {
	host, port, err := ParseTarget("192.168.4.1:8000")
	require.NoError(t, err)
	assert.Equal(t, "192.168.4.1", host)
	assert.Equal(t, 8000, port)

	host, port, err = ParseTarget("[::1]:9000")
	require.NoError(t, err)
	assert.Equal(t, "::1", host)
	assert.Equal(t, 9000, port)

	for _, bad := range []string{"192.168.4.1", "host:0", "host:70000", "host:abc"} {
		_, _, err := ParseTarget(bad)
		assert.Error(t, err, bad)
	}
}
