package cache

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKeyHelpers(t *testing.T) {
	assert.Equal(t, "pairpilot:universe", GenerateKey("pairpilot", "universe"))
	assert.Equal(t, "universe:default:1d", GenerateKeyWithParams("universe", "default", "1d"))
	assert.Equal(t, "universe:*", BuildPattern("universe:"))
}
