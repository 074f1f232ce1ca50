// Package sim provides a simulated trainer for running without hardware.
// It accepts directives like a real trainer and emits telemetry that
// converges on the commanded target.
package sim

import (
	"log"
	"math/rand"
	"sync"
	"time"

	"github.com/lowaak/ride-pilot/internal/engine"
	"github.com/lowaak/ride-pilot/internal/safego"
)

// TelemetrySink receives the simulated rider's samples. The engine façade
// satisfies this.
type TelemetrySink interface {
	IngestPower(watts float64, cadence *float64)
	IngestHeartRate(bpm float64)
}

// Trainer is a fake smart trainer plus rider. In ERG it tracks the commanded
// watts with lag and noise; in resistance mode it produces watts roughly
// proportional to the level. Pedaling can be toggled to exercise the
// auto-pause path.
type Trainer struct {
	logger *log.Logger

	mu           sync.Mutex
	directive    engine.Directive
	hasDirective bool
	lastSent     engine.Directive
	hasSent      bool
	pedaling     bool
	power        float64
	heartRate    float64

	rng *rand.Rand

	doneChan     chan struct{}
	wg           sync.WaitGroup
	shutdownOnce sync.Once
}

// NewTrainer creates a simulated trainer. The rider starts out pedaling.
func NewTrainer(logger *log.Logger) *Trainer {
	if logger == nil {
		panic("sim.Trainer: logger cannot be nil")
	}
	return &Trainer{
		logger:    logger,
		pedaling:  true,
		heartRate: 90,
		rng:       rand.New(rand.NewSource(time.Now().UnixNano())),
		doneChan:  make(chan struct{}),
	}
}

// SendDirective implements engine.Transport. Repeats of the last directive
// are dropped unless forced, mirroring a real transport's deduplication.
func (t *Trainer) SendDirective(d engine.Directive, force bool) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !force && t.hasSent && d == t.lastSent {
		return nil
	}
	t.lastSent = d
	t.hasSent = true
	t.directive = d
	t.hasDirective = true

	switch d.Kind {
	case engine.DirectiveErg:
		t.logger.Printf("SimTrainer: ERG target %d W (force=%v)", d.Watts, force)
	case engine.DirectiveResistance:
		t.logger.Printf("SimTrainer: resistance %d%% (force=%v)", d.Percent, force)
	}
	return nil
}

// SetPedaling toggles the simulated rider's effort.
func (t *Trainer) SetPedaling(pedaling bool) {
	t.mu.Lock()
	t.pedaling = pedaling
	t.mu.Unlock()
	t.logger.Printf("SimTrainer: pedaling=%v", pedaling)
}

// TogglePedaling flips the pedaling state and returns the new value.
func (t *Trainer) TogglePedaling() bool {
	t.mu.Lock()
	t.pedaling = !t.pedaling
	v := t.pedaling
	t.mu.Unlock()
	t.logger.Printf("SimTrainer: pedaling=%v", v)
	return v
}

// Start begins emitting telemetry into sink once per second.
func (t *Trainer) Start(sink TelemetrySink) {
	t.wg.Add(1)
	safego.Go(t.logger, func() {
		defer t.wg.Done()
		ticker := time.NewTicker(time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-t.doneChan:
				return
			case <-ticker.C:
				watts, cadence, hr := t.step()
				sink.IngestPower(watts, &cadence)
				sink.IngestHeartRate(hr)
			}
		}
	})
}

// Shutdown stops the telemetry goroutine. Safe to call multiple times.
func (t *Trainer) Shutdown() {
	t.shutdownOnce.Do(func() {
		close(t.doneChan)
		t.wg.Wait()
	})
}

// step advances the rider model by one second.
func (t *Trainer) step() (watts, cadence, heartRate float64) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.pedaling {
		t.power = 0
		// HR decays toward resting while coasting.
		t.heartRate += (70 - t.heartRate) * 0.05
		return 0, 0, t.heartRate
	}

	target := 120.0 // freewheeling effort when nothing is commanded
	if t.hasDirective {
		switch t.directive.Kind {
		case engine.DirectiveErg:
			target = float64(t.directive.Watts)
		case engine.DirectiveResistance:
			target = float64(t.directive.Percent) * 3.5
		}
	}

	// First-order lag toward target, then measurement noise.
	t.power += (target - t.power) * 0.4
	watts = t.power + t.rng.Float64()*10 - 5
	if watts < 0 {
		watts = 0
	}

	cadence = 88 + t.rng.Float64()*6
	hrTarget := 80 + t.power*0.45
	if hrTarget > 195 {
		hrTarget = 195
	}
	t.heartRate += (hrTarget - t.heartRate) * 0.03
	return watts, cadence, t.heartRate
}
