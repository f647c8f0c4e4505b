package stats

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/linkmux/linkmux/linkmux-srv/config"
)

func TestFactoryDisabledReturnsDummy(t *testing.T) {
	factory := NewCollectorFactory()
	collector, err := factory.CreateCollector(&config.StatisticsConfig{Enabled: false})
	require.NoError(t, err)
	assert.IsType(t, &DummyCollector{}, collector)
}

func TestFactoryDefaultsToMemory(t *testing.T) {
	factory := NewCollectorFactory()
	collector, err := factory.CreateCollector(&config.StatisticsConfig{Enabled: true})
	require.NoError(t, err)
	assert.IsType(t, &MemoryCollector{}, collector)
}

func TestFactoryExplicitDummy(t *testing.T) {
	factory := NewCollectorFactory()
	collector, err := factory.CreateCollector(&config.StatisticsConfig{
		Enabled: true,
		Backend: config.StatsBackendDummy,
	})
	require.NoError(t, err)
	assert.IsType(t, &DummyCollector{}, collector)
}

func TestFactoryPostgresRequiresDSN(t *testing.T) {
	factory := NewCollectorFactory()
	_, err := factory.CreateCollector(&config.StatisticsConfig{
		Enabled: true,
		Backend: config.StatsBackendPostgres,
	})
	assert.Error(t, err)
}

func TestFactoryUnknownBackend(t *testing.T) {
	factory := NewCollectorFactory()
	_, err := factory.CreateCollector(&config.StatisticsConfig{
		Enabled: true,
		Backend: "cassandra",
	})
	assert.Error(t, err)
}
