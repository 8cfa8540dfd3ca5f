package cli

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHostOnly_StripsPort(t *testing.T) {
	assert.Equal(t, "10.0.0.1", hostOnly("10.0.0.1:3005"))
}

func TestHostOnly_BareHostUnchanged(t *testing.T) {
	assert.Equal(t, "10.0.0.1", hostOnly("10.0.0.1"))
}

func TestHostOnly_TrimsWhitespace(t *testing.T) {
	assert.Equal(t, "10.0.0.1", hostOnly("  10.0.0.1  "))
}
