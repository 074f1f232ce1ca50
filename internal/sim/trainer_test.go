package sim

import (
	"io"
	"log"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lowaak/ride-pilot/internal/engine"
)

func newTestTrainer() *Trainer {
	return NewTrainer(log.New(io.Discard, "", 0))
}

func TestSendDirective_DeduplicatesUnlessForced(t *testing.T) {
	tr := newTestTrainer()
	d := engine.Directive{Kind: engine.DirectiveErg, Watts: 150}

	require.NoError(t, tr.SendDirective(d, false))
	require.NoError(t, tr.SendDirective(d, false))
	require.NoError(t, tr.SendDirective(d, true))

	tr.mu.Lock()
	defer tr.mu.Unlock()
	assert.True(t, tr.hasDirective)
	assert.Equal(t, d, tr.directive)
}

func TestStep_ConvergesOnErgTarget(t *testing.T) {
	tr := newTestTrainer()
	require.NoError(t, tr.SendDirective(engine.Directive{Kind: engine.DirectiveErg, Watts: 200}, true))

	var watts float64
	for i := 0; i < 30; i++ {
		watts, _, _ = tr.step()
	}
	assert.InDelta(t, 200, watts, 15)
}

func TestStep_CoastingEmitsZeroPower(t *testing.T) {
	tr := newTestTrainer()
	tr.SetPedaling(false)

	watts, cadence, _ := tr.step()
	assert.Equal(t, 0.0, watts)
	assert.Equal(t, 0.0, cadence)
}

func TestTogglePedaling(t *testing.T) {
	tr := newTestTrainer()
	assert.False(t, tr.TogglePedaling())
	assert.True(t, tr.TogglePedaling())
}
