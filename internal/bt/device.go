package bt

import (
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"tinygo.org/x/bluetooth"
)

type DeviceState int

const (
	Disconnected DeviceState = iota
	Connecting
	Connected
)

func (s DeviceState) String() string {
	switch s {
	case Connected:
		return "Connected"
	case Connecting:
		return "Connecting"
	case Disconnected:
		return "Disconnected"
	default:
		return "Unknown"
	}
}

// Device wraps a scanned or connected BLE peripheral. Service and
// characteristic discovery results are cached: discovering a single service
// repeatedly can interrupt operations on a service discovered earlier, so
// the first lookup discovers everything at once.
type Device struct {
	address     bluetooth.Address
	scanTimeout time.Duration
	logger      *log.Logger

	mu              sync.RWMutex
	localName       string
	scanResult      *bluetooth.ScanResult
	scanLastSeen    time.Time
	connectedDevice *bluetooth.Device
	state           DeviceState
	serviceUUIDs    []string

	// bleMu serializes characteristic operations (notifications, reads,
	// writes) against the stack.
	bleMu                  sync.Mutex
	serviceByUUID          map[string]*bluetooth.DeviceService
	charByUUID             map[string]*bluetooth.DeviceCharacteristic
	serviceCharsDiscovered map[string]bool
	allServicesDiscovered  bool
}

func newDevice(logger *log.Logger, address bluetooth.Address, scanTimeout time.Duration) *Device {
	if logger == nil {
		panic("bt.Device: logger cannot be nil")
	}
	if scanTimeout <= 0 {
		panic("bt.Device: scanTimeout must be > 0")
	}
	return &Device{
		address:                address,
		scanTimeout:            scanTimeout,
		logger:                 logger,
		localName:              "Unknown",
		scanLastSeen:           time.Unix(0, 0),
		state:                  Disconnected,
		serviceByUUID:          make(map[string]*bluetooth.DeviceService),
		charByUUID:             make(map[string]*bluetooth.DeviceCharacteristic),
		serviceCharsDiscovered: make(map[string]bool),
	}
}

func (d *Device) Address() string {
	return d.address.String()
}

func (d *Device) LocalName() string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.scanResult != nil {
		if name := d.scanResult.LocalName(); name != "" {
			return name
		}
	}
	return d.localName
}

func (d *Device) RSSI() (int16, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.scanResult == nil {
		return 0, errors.New("no rssi available")
	}
	return d.scanResult.RSSI, nil
}

func (d *Device) State() DeviceState {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.state
}

func (d *Device) IsConnected() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.connectedDevice != nil
}

// HasService reports whether the device advertised the given service UUID.
func (d *Device) HasService(uuid string) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	for _, u := range d.serviceUUIDs {
		if u == uuid {
			return true
		}
	}
	return false
}

func (d *Device) ServiceUUIDs() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.serviceUUIDs
}

func (d *Device) IsRecentlyScanned() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.scanResult == nil {
		return false
	}
	return time.Since(d.scanLastSeen) <= d.scanTimeout
}

// WaitForConnection polls until the connect handler reports the device
// connected, or the timeout elapses.
func (d *Device) WaitForConnection(timeout time.Duration) error {
	ticker := time.NewTicker(250 * time.Millisecond)
	defer ticker.Stop()

	deadline := time.After(timeout)
	for {
		select {
		case <-ticker.C:
			if d.IsConnected() {
				return nil
			}
		case <-deadline:
			return fmt.Errorf("timeout after %v waiting for connection", timeout)
		}
	}
}

// EnableNotifications subscribes callback to a characteristic's notification
// stream. Pass the UUIDs in their canonical string form.
func (d *Device) EnableNotifications(serviceUUID, charUUID string, callback func(buf []byte)) error {
	d.bleMu.Lock()
	defer d.bleMu.Unlock()

	char, err := d.characteristic(serviceUUID, charUUID)
	if err != nil {
		return err
	}
	if err := char.EnableNotifications(callback); err != nil {
		return fmt.Errorf("enable notifications on %s: %w", charUUID, err)
	}
	d.logger.Printf("Device %s: notifications enabled on %s", d.Address(), charUUID)
	return nil
}

// DisableNotifications unsubscribes from a characteristic's notifications.
func (d *Device) DisableNotifications(serviceUUID, charUUID string) error {
	d.bleMu.Lock()
	defer d.bleMu.Unlock()

	char, err := d.characteristic(serviceUUID, charUUID)
	if err != nil {
		return err
	}
	if err := char.EnableNotifications(nil); err != nil {
		return fmt.Errorf("disable notifications on %s: %w", charUUID, err)
	}
	return nil
}

func (d *Device) ReadCharacteristic(serviceUUID, charUUID string) ([]byte, error) {
	d.bleMu.Lock()
	defer d.bleMu.Unlock()

	char, err := d.characteristic(serviceUUID, charUUID)
	if err != nil {
		return nil, err
	}
	buf := make([]byte, 512)
	n, err := char.Read(buf)
	if err != nil {
		return nil, fmt.Errorf("read characteristic %s: %w", charUUID, err)
	}
	return buf[:n], nil
}

func (d *Device) WriteCharacteristic(serviceUUID, charUUID string, data []byte) error {
	d.bleMu.Lock()
	defer d.bleMu.Unlock()

	char, err := d.characteristic(serviceUUID, charUUID)
	if err != nil {
		return err
	}
	if _, err := char.Write(data); err != nil {
		return fmt.Errorf("write characteristic %s: %w", charUUID, err)
	}
	return nil
}

func (d *Device) setScanResult(result *bluetooth.ScanResult, seen time.Time) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.scanResult = result
	d.scanLastSeen = seen
}

func (d *Device) setServiceUUIDs(uuids []bluetooth.UUID) {
	strs := make([]string, 0, len(uuids))
	for _, u := range uuids {
		strs = append(strs, u.String())
	}
	d.mu.Lock()
	d.serviceUUIDs = strs
	d.mu.Unlock()
}

func (d *Device) setConnected(device *bluetooth.Device, state DeviceState) {
	d.mu.Lock()
	d.connectedDevice = device
	d.state = state
	d.mu.Unlock()
}

func (d *Device) setState(state DeviceState) {
	d.mu.Lock()
	d.state = state
	d.mu.Unlock()
}

func (d *Device) connected() *bluetooth.Device {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.connectedDevice
}

// service resolves a service by UUID, discovering all services on first use.
// Callers must hold bleMu.
func (d *Device) service(serviceUUID string) (*bluetooth.DeviceService, error) {
	if svc, ok := d.serviceByUUID[serviceUUID]; ok {
		return svc, nil
	}
	conn := d.connected()
	if conn == nil {
		return nil, errors.New("no connected device")
	}
	if !d.allServicesDiscovered {
		d.logger.Printf("Device %s: discovering services", d.Address())
		services, err := conn.DiscoverServices(nil)
		if err != nil {
			return nil, fmt.Errorf("discover services: %w", err)
		}
		for i := range services {
			svc := &services[i]
			d.serviceByUUID[svc.UUID().String()] = svc
		}
		d.allServicesDiscovered = true
	}
	svc, ok := d.serviceByUUID[serviceUUID]
	if !ok {
		return nil, fmt.Errorf("service %s not found on device", serviceUUID)
	}
	return svc, nil
}

// characteristic resolves a characteristic, discovering all characteristics
// of its service on first use. Callers must hold bleMu.
func (d *Device) characteristic(serviceUUID, charUUID string) (*bluetooth.DeviceCharacteristic, error) {
	key := serviceUUID + "_" + charUUID
	if char, ok := d.charByUUID[key]; ok {
		return char, nil
	}
	if !d.serviceCharsDiscovered[serviceUUID] {
		svc, err := d.service(serviceUUID)
		if err != nil {
			return nil, err
		}
		d.logger.Printf("Device %s: discovering characteristics of %s", d.Address(), serviceUUID)
		chars, err := svc.DiscoverCharacteristics(nil)
		if err != nil {
			return nil, fmt.Errorf("discover characteristics of %s: %w", serviceUUID, err)
		}
		for i := range chars {
			char := &chars[i]
			d.charByUUID[serviceUUID+"_"+char.UUID().String()] = char
		}
		d.serviceCharsDiscovered[serviceUUID] = true
	}
	char, ok := d.charByUUID[key]
	if !ok {
		return nil, fmt.Errorf("characteristic %s not found in service %s", charUUID, serviceUUID)
	}
	return char, nil
}
