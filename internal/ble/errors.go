package ble

import "errors"

var (
	// ErrScanStart means the adapter could not be enabled or refused to scan.
	ErrScanStart = errors.New("ble: scan could not start")
	// ErrConnectTimeout means the link was not ready within the connect timeout.
	ErrConnectTimeout = errors.New("ble: connect timed out")
	// ErrConnectFailed means the platform reported a failure while connecting.
	ErrConnectFailed = errors.New("ble: connect failed")
	// ErrCharacteristicMissing means the provisioning service or one of its
	// characteristics is absent on the device.
	ErrCharacteristicMissing = errors.New("ble: provisioning characteristic missing")
	// ErrWriteFailed means the credentials write was rejected.
	ErrWriteFailed = errors.New("ble: credentials write failed")
	// ErrNotificationTimeout means the device sent no network status in time.
	// The link stays up.
	ErrNotificationTimeout = errors.New("ble: timed out waiting for network status")
	// ErrNetworkJoinFailed means the device reported it could not join.
	ErrNetworkJoinFailed = errors.New("ble: device failed to join network")
	// ErrBusy means a connection attempt or credentials exchange is already
	// in flight.
	ErrBusy = errors.New("ble: session busy")
	// ErrNotConnected means the operation needs an established link.
	ErrNotConnected = errors.New("ble: not connected")
	// ErrDisconnected is returned to callers whose operation was cut short by
	// a disconnect.
	ErrDisconnected = errors.New("ble: disconnected")
	// ErrClosed is returned after Close.
	ErrClosed = errors.New("ble: session closed")
)
