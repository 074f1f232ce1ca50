package bt

import (
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/lowaak/ride-pilot/internal/engine"
)

const connectTimeout = 10 * time.Second

// TelemetrySink receives decoded trainer and heart-rate samples. The engine
// façade satisfies this.
type TelemetrySink interface {
	IngestPower(watts float64, cadence *float64)
	IngestHeartRate(bpm float64)
}

// Link is the BLE realization of the engine's trainer transport. It owns the
// FTMS control point of one trainer plus an optional dedicated heart-rate
// strap, decodes their notification streams into the sink, and writes
// directives to the control point. Identical consecutive directives are
// dropped unless forced, so the 1 Hz control loop does not flood the radio
// during a steady segment.
type Link struct {
	manager *Manager
	logger  *log.Logger

	mu            sync.Mutex
	sink          TelemetrySink
	trainer       *Device
	hrDevice      *Device
	lastDirective engine.Directive
	hasSent       bool

	unsubConnected func()
}

// NewLink creates a Link. The telemetry sink is attached with Start and
// devices with ConnectTrainer and ConnectHeartRate; the link is constructed
// first because the engine wants its transport at construction time.
func NewLink(manager *Manager, logger *log.Logger) *Link {
	if manager == nil {
		panic("bt.Link: manager cannot be nil")
	}
	if logger == nil {
		panic("bt.Link: logger cannot be nil")
	}
	return &Link{manager: manager, logger: logger}
}

// Start attaches the telemetry sink. Notifications arriving before Start are
// dropped.
func (l *Link) Start(sink TelemetrySink) {
	if sink == nil {
		panic("bt.Link: sink cannot be nil")
	}
	l.mu.Lock()
	l.sink = sink
	l.mu.Unlock()

	l.unsubConnected = l.manager.ConnectedDevicesChanged().Subscribe(func(devices []*Device) {
		l.mu.Lock()
		trainer := l.trainer
		l.mu.Unlock()
		if trainer == nil {
			return
		}
		for _, d := range devices {
			if d == trainer {
				return
			}
		}
		l.logger.Printf("Link: trainer connection lost (%s)", trainer.Address())
	})
}

// ConnectTrainer connects to an FTMS trainer by address, acquires control,
// and subscribes to its Indoor Bike Data stream. The address must have shown
// up in a scan first.
func (l *Link) ConnectTrainer(address string) error {
	d, err := l.connect(address)
	if err != nil {
		return err
	}
	if !d.HasService(ServiceUUIDFTMS) {
		return fmt.Errorf("device %s does not advertise the fitness machine service", address)
	}

	// Control point responses arrive as indications; log them so a trainer
	// rejecting a command is visible in the log.
	if err := d.EnableNotifications(ServiceUUIDFTMS, CharUUIDFTMSControlPoint, l.handleControlPoint); err != nil {
		l.logger.Printf("Link: control point indications unavailable: %v", err)
	}

	if err := d.WriteCharacteristic(ServiceUUIDFTMS, CharUUIDFTMSControlPoint, []byte{ftmsOpRequestControl}); err != nil {
		return fmt.Errorf("request control: %w", err)
	}
	// Some trainers need Start/Resume before they accept target power.
	if err := d.WriteCharacteristic(ServiceUUIDFTMS, CharUUIDFTMSControlPoint, []byte{ftmsOpStartOrResume}); err != nil {
		l.logger.Printf("Link: start command failed (may not be required): %v", err)
	}

	if err := d.EnableNotifications(ServiceUUIDFTMS, CharUUIDIndoorBikeData, l.handleIndoorBikeData); err != nil {
		return fmt.Errorf("subscribe indoor bike data: %w", err)
	}

	if raw, err := d.ReadCharacteristic(ServiceUUIDFTMS, CharUUIDSupportedPowerRange); err == nil {
		if minW, maxW, step, perr := parseSupportedPowerRange(raw); perr == nil {
			l.logger.Printf("Link: trainer power range %d-%d W, %d W steps", minW, maxW, step)
		}
	}

	l.mu.Lock()
	l.trainer = d
	l.hasSent = false
	l.mu.Unlock()
	l.logger.Printf("Link: trainer ready: %s (%s)", d.LocalName(), address)
	return nil
}

// ConnectHeartRate connects to a heart-rate strap by address and subscribes
// to its measurement stream. Optional: trainers that report heart rate in
// Indoor Bike Data work without one.
func (l *Link) ConnectHeartRate(address string) error {
	d, err := l.connect(address)
	if err != nil {
		return err
	}
	if err := d.EnableNotifications(ServiceUUIDHeartRate, CharUUIDHeartRateMeasurement, l.handleHeartRate); err != nil {
		return fmt.Errorf("subscribe heart rate: %w", err)
	}

	l.mu.Lock()
	l.hrDevice = d
	l.mu.Unlock()
	l.logger.Printf("Link: heart-rate strap ready: %s (%s)", d.LocalName(), address)
	return nil
}

// SendDirective implements engine.Transport.
func (l *Link) SendDirective(d engine.Directive, force bool) error {
	l.mu.Lock()
	trainer := l.trainer
	if !force && l.hasSent && d == l.lastDirective {
		l.mu.Unlock()
		return nil
	}
	l.mu.Unlock()

	if trainer == nil {
		return fmt.Errorf("no trainer connected")
	}

	var payload []byte
	switch d.Kind {
	case engine.DirectiveErg:
		watts := int16(d.Watts)
		payload = []byte{ftmsOpSetTargetPower, byte(watts), byte(watts >> 8)}
		l.logger.Printf("Link: set target power %d W (force=%v)", d.Watts, force)
	case engine.DirectiveResistance:
		// FTMS resistance level is SINT16 in 0.1 units.
		level := int16(d.Percent) * 10
		payload = []byte{ftmsOpSetTargetResistance, byte(level), byte(level >> 8)}
		l.logger.Printf("Link: set target resistance %d%% (force=%v)", d.Percent, force)
	default:
		return fmt.Errorf("unknown directive kind: %v", d.Kind)
	}

	if err := trainer.WriteCharacteristic(ServiceUUIDFTMS, CharUUIDFTMSControlPoint, payload); err != nil {
		return err
	}

	l.mu.Lock()
	l.lastDirective = d
	l.hasSent = true
	l.mu.Unlock()
	return nil
}

// Shutdown quiets the notification streams and releases both devices.
func (l *Link) Shutdown() {
	l.mu.Lock()
	trainer, hr := l.trainer, l.hrDevice
	l.trainer, l.hrDevice = nil, nil
	l.mu.Unlock()

	if l.unsubConnected != nil {
		l.unsubConnected()
	}
	if trainer != nil {
		if err := trainer.DisableNotifications(ServiceUUIDFTMS, CharUUIDIndoorBikeData); err != nil {
			l.logger.Printf("Link: error disabling indoor bike data: %v", err)
		}
		if err := trainer.WriteCharacteristic(ServiceUUIDFTMS, CharUUIDFTMSControlPoint, []byte{ftmsOpStopOrPause, 0x01}); err != nil {
			l.logger.Printf("Link: stop command failed: %v", err)
		}
		if err := l.manager.Disconnect(trainer); err != nil {
			l.logger.Printf("Link: error disconnecting trainer: %v", err)
		}
	}
	if hr != nil {
		if err := hr.DisableNotifications(ServiceUUIDHeartRate, CharUUIDHeartRateMeasurement); err != nil {
			l.logger.Printf("Link: error disabling heart rate stream: %v", err)
		}
		if err := l.manager.Disconnect(hr); err != nil {
			l.logger.Printf("Link: error disconnecting heart-rate strap: %v", err)
		}
	}
}

func (l *Link) connect(address string) (*Device, error) {
	d := l.manager.DeviceByAddress(address)
	if d == nil {
		return nil, fmt.Errorf("device not found in scan results: %s", address)
	}
	if d.IsConnected() {
		return d, nil
	}
	if err := l.manager.Connect(d); err != nil {
		return nil, err
	}
	if err := d.WaitForConnection(connectTimeout); err != nil {
		return nil, err
	}
	return d, nil
}

func (l *Link) handleIndoorBikeData(buf []byte) {
	sink := l.currentSink()
	if sink == nil {
		return
	}
	data, err := parseIndoorBikeData(buf)
	if err != nil {
		l.logger.Printf("Link: indoor bike data parse error: %v (raw: %v)", err, buf)
		return
	}
	if data.PowerWatts != nil {
		sink.IngestPower(*data.PowerWatts, data.CadenceRpm)
	}
	if data.HeartRate != nil {
		sink.IngestHeartRate(*data.HeartRate)
	}
}

func (l *Link) handleHeartRate(buf []byte) {
	sink := l.currentSink()
	if sink == nil {
		return
	}
	bpm, err := parseHeartRate(buf)
	if err != nil {
		l.logger.Printf("Link: heart rate parse error: %v (raw: %v)", err, buf)
		return
	}
	sink.IngestHeartRate(bpm)
}

func (l *Link) currentSink() TelemetrySink {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.sink
}

func (l *Link) handleControlPoint(buf []byte) {
	if len(buf) < 3 || buf[0] != ftmsOpResponseCode {
		l.logger.Printf("Link: unexpected control point response: %v", buf)
		return
	}
	l.logger.Printf("Link: control point: %s -> %s", ftmsOpName(buf[1]), ftmsResultName(buf[2]))
}
