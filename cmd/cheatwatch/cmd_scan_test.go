package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"cheatwatch/internal/stages"
)

func TestConsoleProgress_OneLinePerPhase(t *testing.T) {
	var buf bytes.Buffer
	report := consoleProgress(&buf)

	// Concurrent scans interleave their phases.
	for _, p := range []stages.Phase{
		stages.PhaseHash, stages.PhaseBrowser, stages.PhaseHash, stages.PhaseChat,
		stages.PhaseBrowser, stages.PhaseChat, stages.PhaseHash, stages.PhaseAggregate,
	} {
		report(stages.Status{State: stages.StateRunning, Phase: p, Percent: 50})
	}

	out := buf.String()
	assert.Equal(t, 4, strings.Count(out, "[PHASE]"))
	for _, p := range []stages.Phase{stages.PhaseHash, stages.PhaseBrowser, stages.PhaseChat, stages.PhaseAggregate} {
		assert.Equal(t, 1, strings.Count(out, "[PHASE] "+string(p)+" "), p)
	}
}
