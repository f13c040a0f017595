package tracking

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

// ---------------------------------------------------------------------------
// Initialize
// ---------------------------------------------------------------------------

func TestKalmanInitialize(t *testing.T) {
	t.Parallel()

	t.Run("seeds position and velocity", func(t *testing.T) {
		t.Parallel()
		f := NewKalmanFilter(1.0, 10.0, 100.0)
		state := f.Initialize(Position{X: 100, Y: -200, Z: 3000}, &Velocity{VX: 10, VY: -5, VZ: 1})

		assert.Equal(t, Position{X: 100, Y: -200, Z: 3000}, state.Position())
		assert.Equal(t, Velocity{VX: 10, VY: -5, VZ: 1}, state.Velocity())
		for i := 0; i < stateDim; i++ {
			assert.InDelta(t, 100.0, state.P.At(i, i), 1e-12)
		}
	})

	t.Run("missing velocity starts at zero", func(t *testing.T) {
		t.Parallel()
		f := NewKalmanFilter(1.0, 10.0, 100.0)
		state := f.Initialize(Position{X: 1, Y: 2, Z: 3}, nil)

		assert.Equal(t, Velocity{}, state.Velocity())
	})

	t.Run("non-positive parameters fall back to defaults", func(t *testing.T) {
		t.Parallel()
		f := NewKalmanFilter(0, -1, 0)
		state := f.Initialize(Position{}, nil)

		assert.InDelta(t, 100.0, state.P.At(0, 0), 1e-12)
		assert.InDelta(t, 10.0, f.measurementNoise, 1e-12)
		assert.InDelta(t, 1.0, f.processNoise, 1e-12)
	})
}

// ---------------------------------------------------------------------------
// Predict
// ---------------------------------------------------------------------------

func TestKalmanPredict(t *testing.T) {
	t.Parallel()

	t.Run("advances position by velocity", func(t *testing.T) {
		t.Parallel()
		f := NewKalmanFilter(1.0, 10.0, 100.0)
		state := f.Initialize(Position{}, &Velocity{VX: 10, VY: -5, VZ: 2})

		predicted := f.Predict(state, 1.0)

		assert.InDelta(t, 10.0, predicted.Position().X, 1e-9)
		assert.InDelta(t, -5.0, predicted.Position().Y, 1e-9)
		assert.InDelta(t, 2.0, predicted.Position().Z, 1e-9)
		assert.Equal(t, Velocity{VX: 10, VY: -5, VZ: 2}, predicted.Velocity())
	})

	t.Run("scales with dt", func(t *testing.T) {
		t.Parallel()
		f := NewKalmanFilter(1.0, 10.0, 100.0)
		state := f.Initialize(Position{X: 100}, &Velocity{VX: 20})

		predicted := f.Predict(state, 2.5)

		assert.InDelta(t, 150.0, predicted.Position().X, 1e-9)
	})

	t.Run("inflates covariance by process noise scaled by dt", func(t *testing.T) {
		t.Parallel()
		f := NewKalmanFilter(1.0, 10.0, 100.0)
		state := f.Initialize(Position{}, nil)

		predicted := f.Predict(state, 1.0)

		// With P = 100*I: F*P*F^T has 100*(1+dt^2) = 200 on the position
		// diagonal and 100*dt = 100 on the position/velocity cross terms.
		assert.InDelta(t, 201.0, predicted.P.At(0, 0), 1e-9)
		assert.InDelta(t, 100.0, predicted.P.At(0, 3), 1e-9)
		assert.InDelta(t, 101.0, predicted.P.At(3, 3), 1e-9)
	})

	t.Run("does not mutate the input state", func(t *testing.T) {
		t.Parallel()
		f := NewKalmanFilter(1.0, 10.0, 100.0)
		state := f.Initialize(Position{X: 5}, &Velocity{VX: 1})

		_ = f.Predict(state, 1.0)

		assert.InDelta(t, 5.0, state.Position().X, 1e-12)
		assert.InDelta(t, 100.0, state.P.At(0, 0), 1e-12)
	})
}

// ---------------------------------------------------------------------------
// Update
// ---------------------------------------------------------------------------

func TestKalmanUpdate(t *testing.T) {
	t.Parallel()

	t.Run("pulls the estimate toward the measurement", func(t *testing.T) {
		t.Parallel()
		f := NewKalmanFilter(1.0, 10.0, 100.0)
		state := f.Initialize(Position{}, nil)

		updated := f.Update(state, Position{X: 10}, nil, 10.0)

		// Gain on a diagonal P is 100/(100+10), so x moves to 10*100/110.
		assert.InDelta(t, 9.0909, updated.Position().X, 1e-3)
		assert.InDelta(t, 0.0, updated.Velocity().VX, 1e-9)
		assert.Less(t, updated.P.At(0, 0), state.P.At(0, 0))
	})

	t.Run("velocity measurement corrects velocity directly", func(t *testing.T) {
		t.Parallel()
		f := NewKalmanFilter(1.0, 10.0, 100.0)
		state := f.Initialize(Position{}, nil)

		updated := f.Update(state, Position{}, &Velocity{VX: 50}, 10.0)

		assert.InDelta(t, 45.4545, updated.Velocity().VX, 1e-3)
	})

	t.Run("exact measurement leaves the state unchanged", func(t *testing.T) {
		t.Parallel()
		f := NewKalmanFilter(1.0, 10.0, 100.0)
		state := f.Initialize(Position{X: 42, Y: -7, Z: 1000}, nil)

		updated := f.Update(state, Position{X: 42, Y: -7, Z: 1000}, nil, 10.0)

		assert.InDelta(t, 42.0, updated.Position().X, 1e-9)
		assert.InDelta(t, -7.0, updated.Position().Y, 1e-9)
		assert.InDelta(t, 1000.0, updated.Position().Z, 1e-9)
	})

	t.Run("singular innovation covariance skips the correction", func(t *testing.T) {
		t.Parallel()
		f := NewKalmanFilter(1.0, 10.0, 100.0)
		// Zero covariance with effectively zero measurement noise makes S
		// singular; the update must fall back to the prediction.
		state := &KalmanState{x: mat.NewVecDense(stateDim, nil), P: mat.NewDense(stateDim, stateDim, nil)}

		updated := f.Update(state, Position{X: 500}, nil, 1e-300)

		assert.Same(t, state, updated)
		assert.InDelta(t, 0.0, updated.Position().X, 1e-12)
	})

	t.Run("non-positive noise falls back to the filter default", func(t *testing.T) {
		t.Parallel()
		f := NewKalmanFilter(1.0, 10.0, 100.0)
		state := f.Initialize(Position{}, nil)

		updated := f.Update(state, Position{X: 10}, nil, 0)

		// Same gain as an explicit noise of 10.
		assert.InDelta(t, 9.0909, updated.Position().X, 1e-3)
	})
}

// ---------------------------------------------------------------------------
// Convergence
// ---------------------------------------------------------------------------

func TestKalmanVelocityFromPositionOnlyUpdates(t *testing.T) {
	t.Parallel()

	// A constant-velocity target observed by position only: the velocity
	// estimate must be recovered through the covariance cross terms.
	f := NewKalmanFilter(1.0, 10.0, 100.0)
	state := f.Initialize(Position{}, nil)

	for k := 1; k <= 8; k++ {
		state = f.Predict(state, 1.0)
		truth := Position{X: 10.0 * float64(k)}
		state = f.Update(state, truth, nil, 10.0)
	}

	assert.InDelta(t, 10.0, state.Velocity().VX, 0.5)
	assert.InDelta(t, 80.0, state.Position().X, 1.5)
}

// ---------------------------------------------------------------------------
// Covariance invariants
// ---------------------------------------------------------------------------

func TestKalmanCovarianceStaysSymmetric(t *testing.T) {
	t.Parallel()

	rng := rand.New(rand.NewSource(42))
	f := NewKalmanFilter(1.0, 10.0, 100.0)

	for iter := 0; iter < 100; iter++ {
		pos := Position{
			X: (rng.Float64() - 0.5) * 2e5,
			Y: (rng.Float64() - 0.5) * 2e5,
			Z: rng.Float64() * 2e4,
		}
		vel := &Velocity{
			VX: (rng.Float64() - 0.5) * 600,
			VY: (rng.Float64() - 0.5) * 600,
			VZ: (rng.Float64() - 0.5) * 40,
		}
		state := f.Initialize(pos, vel)

		for step := 0; step < 5; step++ {
			dt := 0.1 + rng.Float64()*4.9
			state = f.Predict(state, dt)

			meas := Position{
				X: pos.X + (rng.Float64()-0.5)*200,
				Y: pos.Y + (rng.Float64()-0.5)*200,
				Z: pos.Z + (rng.Float64()-0.5)*100,
			}
			state = f.Update(state, meas, nil, rng.Float64()*50)

			requireSymmetricPSD(t, state.P)
		}
	}
}

func requireSymmetricPSD(t *testing.T, P *mat.Dense) {
	t.Helper()
	r, c := P.Dims()
	require.Equal(t, r, c)
	for i := 0; i < r; i++ {
		require.GreaterOrEqual(t, P.At(i, i), -1e-9, "negative variance at %d", i)
		for j := i + 1; j < c; j++ {
			require.InDelta(t, P.At(i, j), P.At(j, i), 1e-9, "asymmetry at (%d,%d)", i, j)
		}
	}
}

// ---------------------------------------------------------------------------
// Uncertainty scalars
// ---------------------------------------------------------------------------

func TestKalmanUncertaintyScalars(t *testing.T) {
	t.Parallel()

	f := NewKalmanFilter(1.0, 10.0, 100.0)
	state := f.Initialize(Position{}, nil)

	assert.InDelta(t, 100.0, state.PositionUncertainty(), 1e-12)
	assert.InDelta(t, 100.0, state.VelocityUncertainty(), 1e-12)

	// An update narrows position uncertainty; prediction inflates it again.
	updated := f.Update(state, Position{X: 1}, nil, 10.0)
	assert.Less(t, updated.PositionUncertainty(), 100.0)

	predicted := f.Predict(updated, 10.0)
	assert.Greater(t, predicted.PositionUncertainty(), updated.PositionUncertainty())

	if math.IsNaN(predicted.PositionUncertainty()) {
		t.Fatal("uncertainty must stay finite")
	}
}
