package ble

import (
	"context"
	"fmt"
	"sync"
	"testing"
)

// mockCharacteristic records writes and allows subscribing.
type mockCharacteristic struct {
	mu            sync.Mutex
	writes        [][]byte
	writeErr      error
	subscribeErr  error
	holdSubscribe chan struct{} // if set, Subscribe waits for it to close
	holdWrite     chan struct{} // if set, Write records the data then waits for it to close
	callback      func([]byte)
}

func (c *mockCharacteristic) Write(data []byte) error {
	c.mu.Lock()
	if c.writeErr != nil {
		err := c.writeErr
		c.mu.Unlock()
		return err
	}
	cp := make([]byte, len(data))
	copy(cp, data)
	c.writes = append(c.writes, cp)
	hold := c.holdWrite
	c.mu.Unlock()

	if hold != nil {
		<-hold
	}
	return nil
}

func (c *mockCharacteristic) setHoldWrite(hold chan struct{}) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.holdWrite = hold
}

func (c *mockCharacteristic) Subscribe(cb func([]byte)) error {
	c.mu.Lock()
	hold := c.holdSubscribe
	c.mu.Unlock()
	if hold != nil {
		<-hold
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.subscribeErr != nil {
		return c.subscribeErr
	}
	c.callback = cb
	return nil
}

// Notify sends a notification to the subscriber.
func (c *mockCharacteristic) Notify(data string) {
	c.mu.Lock()
	cb := c.callback
	c.mu.Unlock()
	if cb != nil {
		cb([]byte(data))
	}
}

func (c *mockCharacteristic) subscribed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.callback != nil
}

func (c *mockCharacteristic) writeCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.writes)
}

func (c *mockCharacteristic) lastWrite() []byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.writes) == 0 {
		return nil
	}
	return c.writes[len(c.writes)-1]
}

// mockConnection simulates a BLE connection.
type mockConnection struct {
	mu           sync.Mutex
	credsChar    *mockCharacteristic
	statusChar   *mockCharacteristic // nil simulates firmware without the status characteristic
	discoverErr  error
	holdDiscover chan struct{} // if set, DiscoverCharacteristic waits for it to close
	disconnectCb func()
	disconnects  int
}

func newMockConnection() *mockConnection {
	return &mockConnection{
		credsChar:  &mockCharacteristic{},
		statusChar: &mockCharacteristic{},
	}
}

func (c *mockConnection) DiscoverCharacteristic(serviceUUID, charUUID string) (Characteristic, error) {
	c.mu.Lock()
	hold := c.holdDiscover
	c.mu.Unlock()
	if hold != nil {
		<-hold
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.discoverErr != nil {
		return nil, c.discoverErr
	}
	if serviceUUID != DefaultServiceUUID {
		return nil, fmt.Errorf("%w: service %s", ErrCharacteristicMissing, serviceUUID)
	}
	switch {
	case charUUID == DefaultCredentialsCharUUID && c.credsChar != nil:
		return c.credsChar, nil
	case charUUID == DefaultStatusCharUUID && c.statusChar != nil:
		return c.statusChar, nil
	default:
		return nil, fmt.Errorf("%w: characteristic %s", ErrCharacteristicMissing, charUUID)
	}
}

func (c *mockConnection) Disconnect() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.disconnects++
	return nil
}

func (c *mockConnection) OnDisconnect(cb func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.disconnectCb = cb
}

// SimulateDisconnect triggers the disconnect callback as the platform would
// on an unexpected link loss.
func (c *mockConnection) SimulateDisconnect() {
	c.mu.Lock()
	cb := c.disconnectCb
	c.mu.Unlock()
	if cb != nil {
		cb()
	}
}

func (c *mockConnection) disconnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.disconnects > 0
}

// mockAdapter simulates the BLE adapter.
type mockAdapter struct {
	mu          sync.Mutex
	enableErr   error
	advertised  []Device
	scanErr     error
	scans       int
	connectErr  error
	holdConnect chan struct{} // if set, Connect ignores ctx and waits for it to close
	newConn     func() *mockConnection
	connections []*mockConnection
}

func newMockAdapter(advertised ...Device) *mockAdapter {
	return &mockAdapter{
		advertised: advertised,
		newConn:    newMockConnection,
	}
}

func (a *mockAdapter) Enable() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.enableErr
}

// Scan reports every advertisement once, then runs until cancelled.
func (a *mockAdapter) Scan(ctx context.Context, found func(Device)) error {
	a.mu.Lock()
	a.scans++
	devices := append([]Device(nil), a.advertised...)
	err := a.scanErr
	a.mu.Unlock()

	if err != nil {
		return err
	}
	for _, d := range devices {
		found(d)
	}
	<-ctx.Done()
	return nil
}

func (a *mockAdapter) Connect(ctx context.Context, _ string) (Connection, error) {
	a.mu.Lock()
	hold := a.holdConnect
	err := a.connectErr
	a.mu.Unlock()

	if hold != nil {
		<-hold
	}
	if err != nil {
		return nil, err
	}

	conn := a.newConn()
	a.mu.Lock()
	a.connections = append(a.connections, conn)
	a.mu.Unlock()
	return conn, nil
}

// latestConnection returns the most recently created connection (thread-safe).
func (a *mockAdapter) latestConnection() *mockConnection {
	a.mu.Lock()
	defer a.mu.Unlock()
	if len(a.connections) == 0 {
		return nil
	}
	return a.connections[len(a.connections)-1]
}

func (a *mockAdapter) scanCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.scans
}

func TestMockAdapterImplementsInterface(t *testing.T) {
	var _ Adapter = (*mockAdapter)(nil)
}

func TestMockConnectionImplementsInterface(t *testing.T) {
	var _ Connection = (*mockConnection)(nil)
}

func TestMockCharacteristicImplementsInterface(t *testing.T) {
	var _ Characteristic = (*mockCharacteristic)(nil)
}
