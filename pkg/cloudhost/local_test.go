package cloudhost

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

var _ Host = (*Local)(nil)
var _ Host = (*Fake)(nil)

func TestLocalCanTerminate(t *testing.T) {
	l := NewLocal("")
	assert.True(t, l.CanTerminate())
	assert.NoError(t, l.TerminateInstance())
}

func TestLocalDefaultsDataPath(t *testing.T) {
	l := NewLocal("")
	assert.Equal(t, "/", l.dataPath)
}

func TestFakePublishStatRecordsValue(t *testing.T) {
	f := NewFake()
	f.PublishStat("Load", "percent", 42.5)
	assert.Equal(t, 42.5, f.Stats["Load"])
}
