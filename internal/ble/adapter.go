// Package ble manages the connection to a Bluetooth Low Energy heart-rate
// monitor. It handles scanning, the connection lifecycle with retry and
// keep-alive, and heart-rate measurement notifications.
package ble

import "context"

// Heart Rate service and measurement characteristic.
const (
	HeartRateServiceUUID     = "0000180d-0000-1000-8000-00805f9b34fb"
	HeartRateMeasurementUUID = "00002a37-0000-1000-8000-00805f9b34fb"
)

// Display fallbacks.
const (
	UnknownName       = "Unknown Name"
	NotConnectedLabel = "Not Connected"
)

// Device represents a discovered BLE peripheral.
type Device struct {
	Name    string `json:"name"`
	Address string `json:"address"`
	RSSI    int    `json:"rssi"`
}

// Ref returns the registry reference for the device.
func (d Device) Ref() PeripheralRef {
	return PeripheralRef{Name: d.Name, Address: d.Address}
}

// Service is a discovered GATT service with the UUIDs of its characteristics.
type Service struct {
	UUID            string
	Characteristics []string
}

// Connection represents an active BLE connection to a peripheral.
type Connection interface {
	// IsAlive reports whether the transport still considers the link up.
	IsAlive() bool
	// Services discovers the peripheral's services and characteristics.
	Services() ([]Service, error)
	// Subscribe enables notifications on the characteristic.
	Subscribe(charUUID string, callback func(data []byte)) error
	// Unsubscribe disables notifications on the characteristic.
	Unsubscribe(charUUID string) error
	// Disconnect terminates the connection.
	Disconnect() error
}

// Adapter abstracts the BLE hardware adapter for testing.
type Adapter interface {
	// Enable powers on the BLE adapter.
	Enable() error
	// Scan reports advertising peripherals to found until ctx is done.
	Scan(ctx context.Context, found func(Device)) error
	// Connect establishes a connection to the device with the given address.
	Connect(ctx context.Context, address string) (Connection, error)
}
