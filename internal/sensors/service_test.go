package sensors

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skyfence/airtrack/internal/config"
	"github.com/skyfence/airtrack/pkg/logger"
)

func testSensorsConfig(scenario string) *config.Config {
	cfg := &config.Config{}
	cfg.Sensors = config.SensorsConfig{
		Enabled:               true,
		Scenario:              scenario,
		Seed:                  42,
		MaxDetectionsPerCycle: 5000,
		Radar:                 testRadarConfig(),
		IFF:                   testIFFConfig(),
	}
	return cfg
}

func TestServiceScenarioPopulations(t *testing.T) {
	t.Parallel()

	t.Run("mixed spawns a varied population", func(t *testing.T) {
		t.Parallel()
		svc := NewService(testSensorsConfig("mixed"), logger.NewNop(), entityBase)
		entities := svc.Entities()
		require.Len(t, entities, 6)

		types := map[EntityType]int{}
		for _, e := range entities {
			types[e.Characteristics.Type]++
		}
		assert.Equal(t, 2, types[EntityCommercialAircraft])
		assert.Equal(t, 1, types[EntityMilitaryAircraft])
		assert.Equal(t, 1, types[EntityHelicopter])
		assert.Equal(t, 2, types[EntityDrone])
	})

	t.Run("approach spawns inbound airliners", func(t *testing.T) {
		t.Parallel()
		svc := NewService(testSensorsConfig("approach"), logger.NewNop(), entityBase)
		entities := svc.Entities()
		require.Len(t, entities, 4)

		friendly := 0
		for _, e := range entities {
			if e.Friendly {
				friendly++
			}
		}
		assert.Equal(t, 3, friendly)
	})

	t.Run("drone swarm carries no transponders", func(t *testing.T) {
		t.Parallel()
		svc := NewService(testSensorsConfig("drone_swarm"), logger.NewNop(), entityBase)
		entities := svc.Entities()
		require.Len(t, entities, 7)

		for _, e := range entities {
			assert.Equal(t, EntityDrone, e.Characteristics.Type)
			assert.Empty(t, e.IFFCode)
		}
	})
}

func TestServiceCollectProducesValidDetections(t *testing.T) {
	t.Parallel()

	svc := NewService(testSensorsConfig("mixed"), logger.NewNop(), entityBase)
	batch := svc.Collect(entityBase.Add(time.Second))

	// At minimum the IFF picks up every transponder-equipped entity and the
	// radar sees the close-in traffic
	assert.GreaterOrEqual(t, len(batch), 4)
	for _, det := range batch {
		assert.True(t, det.Valid(), "detection %s must be well formed", det.ID)
		assert.NotEmpty(t, det.SensorID)
		assert.False(t, det.Timestamp.IsZero())
	}
}

func TestServiceCollectHonorsPerCycleCap(t *testing.T) {
	t.Parallel()

	cfg := testSensorsConfig("mixed")
	cfg.Sensors.MaxDetectionsPerCycle = 3
	svc := NewService(cfg, logger.NewNop(), entityBase)

	batch := svc.Collect(entityBase.Add(time.Second))
	assert.Len(t, batch, 3)
}

func TestServiceSeededRunsAreReproducible(t *testing.T) {
	t.Parallel()

	a := NewService(testSensorsConfig("mixed"), logger.NewNop(), entityBase)
	b := NewService(testSensorsConfig("mixed"), logger.NewNop(), entityBase)

	at := entityBase.Add(time.Second)
	assert.Equal(t, a.Collect(at), b.Collect(at))
}

func TestServiceDisabledSensorsContributeNothing(t *testing.T) {
	t.Parallel()

	cfg := testSensorsConfig("mixed")
	cfg.Sensors.Radar.Enabled = false
	cfg.Sensors.IFF.Enabled = false
	svc := NewService(cfg, logger.NewNop(), entityBase)

	assert.Empty(t, svc.Collect(entityBase.Add(time.Second)))
}
