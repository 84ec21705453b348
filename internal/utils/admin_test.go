package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestElevationHint(t *testing.T) {
	assert.Empty(t, ElevationHint(true))
	assert.Contains(t, ElevationHint(false), "will be skipped")
}
