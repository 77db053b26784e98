package providers

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewDeepgramProvider_RejectsEmptyKey(t *testing.T) {
	p, err := NewDeepgramProvider("", "")
	assert.Error(t, err)
	assert.Nil(t, p)
}

func TestNewDeepgramProvider_DefaultsModel(t *testing.T) {
	p, err := NewDeepgramProvider("test-key", "")
	assert.NoError(t, err)
	assert.Equal(t, "nova-2", p.model)
}

func TestNewDeepgramProvider_HonorsExplicitModel(t *testing.T) {
	p, err := NewDeepgramProvider("test-key", "nova-3")
	assert.NoError(t, err)
	assert.Equal(t, "nova-3", p.model)
}
