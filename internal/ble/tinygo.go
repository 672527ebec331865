package ble

import (
	"context"
	"fmt"
	"sync"

	"tinygo.org/x/bluetooth"
)

// TinyGoAdapter wraps tinygo-org/bluetooth. On Linux addresses are MAC
// addresses (BlueZ); on macOS they are CoreBluetooth peripheral UUIDs.
// Either way the string form is what Device.Address carries.
type TinyGoAdapter struct {
	adapter *bluetooth.Adapter

	// mu protects the connections map.
	mu          sync.Mutex
	connections map[string]*tinyGoConnection // keyed by device address
}

// NewTinyGoAdapter creates an adapter on the system default controller.
func NewTinyGoAdapter() *TinyGoAdapter {
	return &TinyGoAdapter{
		adapter:     bluetooth.DefaultAdapter,
		connections: make(map[string]*tinyGoConnection),
	}
}

func (a *TinyGoAdapter) Enable() error {
	if err := a.adapter.Enable(); err != nil {
		return err
	}

	// A single adapter-level handler reports every disconnect; route it to
	// the connection it belongs to.
	a.adapter.SetConnectHandler(func(device bluetooth.Device, connected bool) {
		if connected {
			return
		}
		id := device.Address.String()
		a.mu.Lock()
		conn, ok := a.connections[id]
		delete(a.connections, id)
		a.mu.Unlock()
		if ok {
			conn.fireDisconnect()
		}
	})

	return nil
}

func (a *TinyGoAdapter) Scan(ctx context.Context, found func(Device)) error {
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			_ = a.adapter.StopScan()
		case <-done:
		}
	}()

	err := a.adapter.Scan(func(adapter *bluetooth.Adapter, result bluetooth.ScanResult) {
		if ctx.Err() != nil {
			// Cancelled before the scan was running; StopScan above was a no-op.
			_ = adapter.StopScan()
			return
		}
		found(Device{
			Name:    result.LocalName(),
			Address: result.Address.String(),
			RSSI:    int(result.RSSI),
		})
	})
	if err != nil && ctx.Err() == nil {
		return fmt.Errorf("ble: scan: %w", err)
	}
	return nil
}

func (a *TinyGoAdapter) Connect(ctx context.Context, address string) (Connection, error) {
	var addr bluetooth.Address
	addr.Set(address)

	// Connect blocks with its own platform timeout; ctx only lets the caller
	// stop waiting. A link that comes up after that is closed right away.
	type connectResult struct {
		device bluetooth.Device
		err    error
	}
	ch := make(chan connectResult, 1)
	go func() {
		device, err := a.adapter.Connect(addr, bluetooth.ConnectionParams{})
		ch <- connectResult{device, err}
	}()

	select {
	case <-ctx.Done():
		go func() {
			if r := <-ch; r.err == nil {
				_ = r.device.Disconnect()
			}
		}()
		return nil, fmt.Errorf("ble: connect to %s: %w", address, ctx.Err())
	case result := <-ch:
		if result.err != nil {
			return nil, fmt.Errorf("ble: connect to %s: %w", address, result.err)
		}
		conn := &tinyGoConnection{device: result.device}

		a.mu.Lock()
		a.connections[result.device.Address.String()] = conn
		a.mu.Unlock()

		return conn, nil
	}
}

var _ Adapter = (*TinyGoAdapter)(nil)

type tinyGoConnection struct {
	device bluetooth.Device

	mu           sync.Mutex
	disconnectCb func()
	services     []bluetooth.DeviceService
}

func (c *tinyGoConnection) DiscoverCharacteristic(serviceUUID, charUUID string) (Characteristic, error) {
	svcUUID, err := bluetooth.ParseUUID(serviceUUID)
	if err != nil {
		return nil, fmt.Errorf("ble: service UUID: %w", err)
	}
	charUUIDParsed, err := bluetooth.ParseUUID(charUUID)
	if err != nil {
		return nil, fmt.Errorf("ble: characteristic UUID: %w", err)
	}

	svc, err := c.service(svcUUID)
	if err != nil {
		return nil, err
	}

	chars, err := svc.DiscoverCharacteristics([]bluetooth.UUID{charUUIDParsed})
	if err != nil || len(chars) == 0 {
		return nil, fmt.Errorf("%w: characteristic %s", ErrCharacteristicMissing, charUUID)
	}

	return &tinyGoCharacteristic{char: chars[0]}, nil
}

// service discovers the provisioning service once per connection.
func (c *tinyGoConnection) service(uuid bluetooth.UUID) (*bluetooth.DeviceService, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for i := range c.services {
		if c.services[i].UUID() == uuid {
			return &c.services[i], nil
		}
	}

	svcs, err := c.device.DiscoverServices([]bluetooth.UUID{uuid})
	if err != nil || len(svcs) == 0 {
		// BlueZ and CoreBluetooth both report an absent service as an error.
		return nil, fmt.Errorf("%w: service %s", ErrCharacteristicMissing, uuid.String())
	}
	c.services = append(c.services, svcs[0])
	return &c.services[len(c.services)-1], nil
}

func (c *tinyGoConnection) Disconnect() error {
	return c.device.Disconnect()
}

func (c *tinyGoConnection) OnDisconnect(cb func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.disconnectCb = cb
}

func (c *tinyGoConnection) fireDisconnect() {
	c.mu.Lock()
	cb := c.disconnectCb
	c.mu.Unlock()
	if cb != nil {
		cb()
	}
}

type tinyGoCharacteristic struct {
	char bluetooth.DeviceCharacteristic
}

func (c *tinyGoCharacteristic) Write(data []byte) error {
	_, err := c.char.Write(data)
	return err
}

func (c *tinyGoCharacteristic) Subscribe(cb func([]byte)) error {
	return c.char.EnableNotifications(cb)
}
