// Package bt connects ride-pilot to BLE fitness hardware: scanning,
// connection management, and the FTMS/heart-rate link the control engine
// drives directives through.
package bt

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"tinygo.org/x/bluetooth"

	"github.com/lowaak/ride-pilot/internal/pubsub"
	"github.com/lowaak/ride-pilot/internal/safego"
)

// Manager owns the BLE adapter: it scans for devices, tracks connection
// state, and hands out Device wrappers by address.
type Manager struct {
	adapter     *bluetooth.Adapter
	scanTimeout time.Duration
	logger      *log.Logger

	mu                sync.RWMutex
	devicesByAddress  map[string]*Device
	scanning          bool
	scanContext       context.Context
	scanContextCancel context.CancelFunc

	scanDevicesTopic      *pubsub.Topic[[]*Device]
	connectedDevicesTopic *pubsub.Topic[[]*Device]

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewManager creates a Manager on the given adapter. Devices not seen in a
// scan result for scanTimeout are dropped from the scan list.
func NewManager(adapter *bluetooth.Adapter, logger *log.Logger, scanTimeout time.Duration) *Manager {
	if logger == nil {
		panic("bt.Manager: logger cannot be nil")
	}
	if scanTimeout <= 0 {
		scanTimeout = 10 * time.Second
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		adapter:               adapter,
		scanTimeout:           scanTimeout,
		logger:                logger,
		devicesByAddress:      make(map[string]*Device),
		scanDevicesTopic:      pubsub.NewTopic[[]*Device](true),
		connectedDevicesTopic: pubsub.NewTopic[[]*Device](true),
		ctx:                   ctx,
		cancel:                cancel,
	}
}

// Enable powers on the adapter and installs the connect handler that keeps
// Device state in sync with the stack.
func (m *Manager) Enable() error {
	m.adapter.SetConnectHandler(func(device bluetooth.Device, connected bool) {
		addr := device.Address.String()
		d := m.deviceFor(device.Address)
		if connected {
			m.logger.Printf("BT: device connected: %s", addr)
			d.setConnected(&device, Connected)
		} else {
			m.logger.Printf("BT: device disconnected: %s", addr)
			d.setConnected(nil, Disconnected)
		}
		m.connectedDevicesTopic.Publish(m.ConnectedDevices())
	})
	return m.adapter.Enable()
}

// DeviceByAddress returns the tracked Device for an address, or nil if the
// address has never been seen.
func (m *Manager) DeviceByAddress(address string) *Device {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.devicesByAddress[address]
}

func (m *Manager) deviceFor(address bluetooth.Address) *Device {
	m.mu.Lock()
	defer m.mu.Unlock()
	addr := address.String()
	d, ok := m.devicesByAddress[addr]
	if !ok {
		d = newDevice(m.logger, address, m.scanTimeout)
		m.devicesByAddress[addr] = d
	}
	return d
}

// StartScan begins scanning. Only devices advertising one of the filter
// service UUIDs are tracked; a nil filter tracks everything.
func (m *Manager) StartScan(serviceUUIDFilter []string) {
	m.mu.Lock()
	if m.scanning && m.scanContextCancel != nil {
		m.logger.Printf("BT: scan already running, restarting")
		m.scanContextCancel()
	}
	m.scanning = true
	m.scanContext, m.scanContextCancel = context.WithCancel(m.ctx)
	scanCtx := m.scanContext
	m.mu.Unlock()

	filterSet := make(map[string]struct{})
	for _, f := range serviceUUIDFilter {
		filterSet[f] = struct{}{}
	}

	m.wg.Add(1)
	safego.Go(m.logger, func() {
		defer m.wg.Done()
		m.pruneStaleDevices(scanCtx)
	})

	m.wg.Add(1)
	safego.Go(m.logger, func() {
		defer m.wg.Done()
		err := m.adapter.Scan(func(adapter *bluetooth.Adapter, result bluetooth.ScanResult) {
			select {
			case <-scanCtx.Done():
				return
			default:
			}
			if len(filterSet) > 0 {
				found := false
				for _, uuid := range result.ServiceUUIDs() {
					if _, ok := filterSet[uuid.String()]; ok {
						found = true
						break
					}
				}
				if !found {
					return
				}
			}
			d := m.deviceFor(result.Address)
			firstSighting := d.ServiceUUIDs() == nil
			d.setScanResult(&result, time.Now())
			if firstSighting {
				d.setServiceUUIDs(result.ServiceUUIDs())
				name := result.LocalName()
				if name == "" {
					name = "Unknown"
				}
				m.logger.Printf("BT: found device %s (%s) [RSSI %d]", name, result.Address.String(), result.RSSI)
			}
		})
		if err != nil {
			m.logger.Printf("BT: scan error: %v", err)
		}
	})

	// Publish the scan list once a second while scanning.
	m.wg.Add(1)
	safego.Go(m.logger, func() {
		defer m.wg.Done()
		ticker := time.NewTicker(time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-scanCtx.Done():
				return
			case <-ticker.C:
				m.scanDevicesTopic.Publish(m.ScanDevices())
			}
		}
	})
}

// StopScan halts scanning on the adapter.
func (m *Manager) StopScan() error {
	m.mu.Lock()
	m.scanning = false
	if m.scanContextCancel != nil {
		m.scanContextCancel()
		m.scanContextCancel = nil
	}
	m.mu.Unlock()
	return m.adapter.StopScan()
}

func (m *Manager) IsScanning() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.scanning
}

// Connect initiates a connection. Success is reported asynchronously via the
// adapter's connect handler; use Device.WaitForConnection to block on it.
func (m *Manager) Connect(d *Device) error {
	if d == nil {
		return fmt.Errorf("nil device")
	}
	m.logger.Printf("BT: connecting to %s", d.Address())
	if _, err := m.adapter.Connect(d.address, bluetooth.ConnectionParams{}); err != nil {
		return fmt.Errorf("connect %s: %w", d.Address(), err)
	}
	d.setState(Connecting)
	return nil
}

// Disconnect drops the connection to a device. A no-op if not connected.
func (m *Manager) Disconnect(d *Device) error {
	if d == nil {
		return fmt.Errorf("nil device")
	}
	conn := d.connected()
	if conn == nil {
		return nil
	}
	m.logger.Printf("BT: disconnecting from %s", d.Address())
	return conn.Disconnect()
}

// ConnectedDevices returns all devices currently connected.
func (m *Manager) ConnectedDevices() []*Device {
	m.mu.RLock()
	defer m.mu.RUnlock()
	result := make([]*Device, 0)
	for _, d := range m.devicesByAddress {
		if d.IsConnected() {
			result = append(result, d)
		}
	}
	return result
}

// ScanDevices returns all devices seen in a scan result recently.
func (m *Manager) ScanDevices() []*Device {
	m.mu.RLock()
	defer m.mu.RUnlock()
	result := make([]*Device, 0)
	for _, d := range m.devicesByAddress {
		if d.IsRecentlyScanned() {
			result = append(result, d)
		}
	}
	return result
}

// ScanDevicesChanged publishes the scan list at most once a second while a
// scan is active.
func (m *Manager) ScanDevicesChanged() *pubsub.Topic[[]*Device] {
	return m.scanDevicesTopic
}

// ConnectedDevicesChanged publishes on every connect or disconnect.
func (m *Manager) ConnectedDevicesChanged() *pubsub.Topic[[]*Device] {
	return m.connectedDevicesTopic
}

// Shutdown disconnects everything, stops scanning, and waits for the
// manager's goroutines to exit.
func (m *Manager) Shutdown() {
	m.logger.Println("BT: shutting down")
	for _, d := range m.ConnectedDevices() {
		if err := m.Disconnect(d); err != nil {
			m.logger.Printf("BT: error disconnecting %s: %v", d.Address(), err)
		}
	}
	if err := m.StopScan(); err != nil {
		m.logger.Printf("BT: error stopping scan: %v", err)
	}
	m.cancel()
	m.wg.Wait()
	m.logger.Println("BT: shutdown complete")
}

func (m *Manager) pruneStaleDevices(ctx context.Context) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.mu.Lock()
			var removed []string
			for addr, d := range m.devicesByAddress {
				if !d.IsConnected() && !d.IsRecentlyScanned() {
					delete(m.devicesByAddress, addr)
					removed = append(removed, addr)
				}
			}
			m.mu.Unlock()
			for _, addr := range removed {
				m.logger.Printf("BT: device timeout: %s", addr)
			}
		}
	}
}
