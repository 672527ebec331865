// Package ble provisions a PARANGOLE board onto a WiFi network over
// Bluetooth Low Energy. It handles discovery, the connection handshake,
// the credentials write and the wait for the board's network status.
package ble

import "context"

// PARANGOLE provisioning UUIDs.
const (
	DefaultServiceUUID         = "eab05e32-bbf8-444c-b2a7-4311ed21d61d"
	DefaultCredentialsCharUUID = "0663eb35-8ef2-4412-8981-326b53272d63"
	DefaultStatusCharUUID      = "12345678-1234-1234-1234-1234567890ad"
)

// DefaultNameFilter matches the advertised name of provisioning boards.
const DefaultNameFilter = "PARANGOLE"

// Characteristic represents a BLE GATT characteristic.
type Characteristic interface {
	// Write sends data to the characteristic and waits for the write to be
	// acknowledged.
	Write(data []byte) error
	// Subscribe registers a callback for notifications on this characteristic.
	Subscribe(callback func(data []byte)) error
}

// Device is a discovered BLE peripheral. Address is its identity; an empty
// Name means the peripheral did not advertise one.
type Device struct {
	Name    string
	Address string
	RSSI    int
}

// Connection represents an active BLE connection to a peripheral.
type Connection interface {
	// DiscoverCharacteristic finds a characteristic by UUID within a service.
	// It returns an error wrapping ErrCharacteristicMissing when the service
	// or characteristic is absent.
	DiscoverCharacteristic(serviceUUID, charUUID string) (Characteristic, error)
	// Disconnect terminates the connection.
	Disconnect() error
	// OnDisconnect registers a callback invoked when the connection drops.
	OnDisconnect(callback func())
}

// Adapter abstracts the BLE hardware adapter for testing.
type Adapter interface {
	// Enable powers on the BLE adapter.
	Enable() error
	// Scan reports every advertisement it receives to found until ctx is
	// cancelled. found may be called from any goroutine.
	Scan(ctx context.Context, found func(Device)) error
	// Connect establishes a connection to the device with the given address.
	Connect(ctx context.Context, address string) (Connection, error)
}
