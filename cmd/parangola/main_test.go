package main

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/matheoxz/parangolapp/internal/ble"
)

// fakeBoard behaves like a PARANGOLE board that joins every network it is
// given.
type fakeBoard struct {
	mu         sync.Mutex
	advertised []ble.Device
	ip         string
	written    []byte
	onStatus   func([]byte)
}

func (b *fakeBoard) Enable() error { return nil }

func (b *fakeBoard) Scan(ctx context.Context, found func(ble.Device)) error {
	for _, d := range b.advertised {
		found(d)
	}
	<-ctx.Done()
	return nil
}

func (b *fakeBoard) Connect(context.Context, string) (ble.Connection, error) {
	return b, nil
}

func (b *fakeBoard) DiscoverCharacteristic(_, charUUID string) (ble.Characteristic, error) {
	switch charUUID {
	case ble.DefaultCredentialsCharUUID:
		return credentialsChar{b}, nil
	case ble.DefaultStatusCharUUID:
		return statusChar{b}, nil
	}
	return nil, ble.ErrCharacteristicMissing
}

func (b *fakeBoard) Disconnect() error   { return nil }
func (b *fakeBoard) OnDisconnect(func()) {}

func (b *fakeBoard) payload() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return string(b.written)
}

type credentialsChar struct{ b *fakeBoard }

func (c credentialsChar) Write(data []byte) error {
	c.b.mu.Lock()
	c.b.written = append([]byte(nil), data...)
	cb := c.b.onStatus
	ip := c.b.ip
	c.b.mu.Unlock()
	if cb != nil {
		go cb([]byte("IP: " + ip))
	}
	return nil
}

func (credentialsChar) Subscribe(func([]byte)) error {
	return errors.New("not notifiable")
}

type statusChar struct{ b *fakeBoard }

func (statusChar) Write([]byte) error { return errors.New("read only") }

func (c statusChar) Subscribe(cb func([]byte)) error {
	c.b.mu.Lock()
	defer c.b.mu.Unlock()
	c.b.onStatus = cb
	return nil
}

func useBoard(t *testing.T, b *fakeBoard) {
	t.Helper()
	prev := newAdapter
	newAdapter = func() ble.Adapter { return b }
	t.Cleanup(func() { newAdapter = prev })
}

// writeTestConfig keeps tests away from the user's own config file.
func writeTestConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("log_level: error\n"+content), 0o644))
	return path
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&bytes.Buffer{})
	rootCmd.SetArgs(args)
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetErr(nil)
		rootCmd.SetArgs(nil)
	})
	err := rootCmd.Execute()
	return out.String(), err
}

func TestFormatVersion(t *testing.T) {
	assert.Equal(t, "v1.2.0", formatVersion("1.2.0"))
	assert.Equal(t, "dev", formatVersion("dev"))
	assert.Equal(t, "", formatVersion(""))
}

func TestScanCommand(t *testing.T) {
	useBoard(t, &fakeBoard{advertised: []ble.Device{
		{Name: "PARANGOLE-01", Address: "AA:AA:AA:AA:AA:01", RSSI: -50},
		{Name: "Headphones", Address: "BB:BB:BB:BB:BB:02", RSSI: -70},
		{Name: "parangole-02", Address: "AA:AA:AA:AA:AA:03", RSSI: -60},
	}})

	out, err := execute(t, "scan", "--duration", "50ms", "--config", writeTestConfig(t, ""))
	require.NoError(t, err)

	assert.Contains(t, out, "PARANGOLE-01")
	assert.Contains(t, out, "parangole-02")
	assert.NotContains(t, out, "Headphones")
}

func TestProvisionCommand(t *testing.T) {
	board := &fakeBoard{ip: "192.168.1.42"}
	useBoard(t, board)

	out, err := execute(t, "provision", "AA:AA:AA:AA:AA:01",
		"--ssid", "Home", "--password", "secret",
		"--config", writeTestConfig(t, ""))
	require.NoError(t, err)

	assert.Equal(t, "Home;secret", board.payload())
	assert.Contains(t, out, "192.168.1.42")
}

func TestLoadConfigRejectsInvalidFile(t *testing.T) {
	_, err := execute(t, "wifi", "list", "--config", writeTestConfig(t, "osc:\n  port: 0\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "osc.port")
}

func TestInitConfigCommand(t *testing.T) {
	path := filepath.Join(t.TempDir(), "parangola", "config.yaml")

	out, err := execute(t, "init-config", "--config", path)
	require.NoError(t, err)
	assert.Contains(t, out, path)
	assert.FileExists(t, path)
}
