package tracking

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

const (
	stateDim = 6 // [x, y, z, vx, vy, vz]

	// Innovation covariance determinants below this are treated as singular
	// and the correction step is skipped for the cycle.
	singularEpsilon = 1e-12
)

// KalmanState holds one track's state estimate: a 6-dimensional state vector
// and its covariance. States are value-like; predict and update return fresh
// states and never mutate their input.
type KalmanState struct {
	x *mat.VecDense // State vector [x, y, z, vx, vy, vz]
	P *mat.Dense    // 6x6 state covariance
}

// Position returns the position part of the state vector
func (s *KalmanState) Position() Position {
	return Position{X: s.x.AtVec(0), Y: s.x.AtVec(1), Z: s.x.AtVec(2)}
}

// Velocity returns the velocity part of the state vector
func (s *KalmanState) Velocity() Velocity {
	return Velocity{VX: s.x.AtVec(3), VY: s.x.AtVec(4), VZ: s.x.AtVec(5)}
}

// PositionUncertainty returns the mean of the three positional diagonal
// covariance entries
func (s *KalmanState) PositionUncertainty() float64 {
	return (s.P.At(0, 0) + s.P.At(1, 1) + s.P.At(2, 2)) / 3.0
}

// VelocityUncertainty returns the mean of the three velocity diagonal
// covariance entries
func (s *KalmanState) VelocityUncertainty() float64 {
	return (s.P.At(3, 3) + s.P.At(4, 4) + s.P.At(5, 5)) / 3.0
}

// Covariance returns a copy of the covariance matrix
func (s *KalmanState) Covariance() *mat.Dense {
	out := mat.NewDense(stateDim, stateDim, nil)
	out.Copy(s.P)
	return out
}

// KalmanFilter implements a discrete-time linear Kalman filter with a
// constant-velocity motion model. Measurements are positions, optionally
// with velocities when the sensor provides them.
type KalmanFilter struct {
	processNoise       float64 // Process noise intensity, applied per second
	measurementNoise   float64 // Default measurement noise variance when a detection carries none
	initialUncertainty float64 // Initial covariance diagonal for new states
}

// NewKalmanFilter creates a filter with the given noise parameters.
// Non-positive parameters fall back to their conventional defaults.
func NewKalmanFilter(processNoise, measurementNoise, initialUncertainty float64) *KalmanFilter {
	if processNoise <= 0 {
		processNoise = 1.0
	}
	if measurementNoise <= 0 {
		measurementNoise = 10.0
	}
	if initialUncertainty <= 0 {
		initialUncertainty = 100.0
	}
	return &KalmanFilter{
		processNoise:       processNoise,
		measurementNoise:   measurementNoise,
		initialUncertainty: initialUncertainty,
	}
}

// Initialize seeds a new state from a first detection. A missing velocity
// starts the velocity components at zero; repeated position updates narrow
// them through the correlated covariance terms.
func (f *KalmanFilter) Initialize(position Position, velocity *Velocity) *KalmanState {
	x := mat.NewVecDense(stateDim, nil)
	x.SetVec(0, position.X)
	x.SetVec(1, position.Y)
	x.SetVec(2, position.Z)
	if velocity != nil {
		x.SetVec(3, velocity.VX)
		x.SetVec(4, velocity.VY)
		x.SetVec(5, velocity.VZ)
	}

	P := mat.NewDense(stateDim, stateDim, nil)
	for i := 0; i < stateDim; i++ {
		P.Set(i, i, f.initialUncertainty)
	}

	return &KalmanState{x: x, P: P}
}

// Predict advances the state by dt seconds under the constant-velocity model
// and inflates the covariance by the process noise scaled by dt.
func (f *KalmanFilter) Predict(state *KalmanState, dt float64) *KalmanState {
	F := identity(stateDim)
	F.Set(0, 3, dt)
	F.Set(1, 4, dt)
	F.Set(2, 5, dt)

	// x_k|k-1 = F * x_k-1|k-1
	xPred := mat.NewVecDense(stateDim, nil)
	xPred.MulVec(F, state.x)

	// P_k|k-1 = F * P_k-1|k-1 * F^T + Q*dt
	var fp mat.Dense
	fp.Mul(F, state.P)
	PPred := mat.NewDense(stateDim, stateDim, nil)
	PPred.Mul(&fp, F.T())
	q := f.processNoise * dt
	for i := 0; i < stateDim; i++ {
		PPred.Set(i, i, PPred.At(i, i)+q)
	}

	return &KalmanState{x: xPred, P: PPred}
}

// Update corrects a predicted state with a measured position and, when
// available, a measured velocity. measurementNoise is the measurement noise
// variance; a non-positive value falls back to the filter default. If the
// innovation covariance is singular the correction is skipped and the
// predicted state is returned unchanged.
func (f *KalmanFilter) Update(state *KalmanState, position Position, velocity *Velocity, measurementNoise float64) *KalmanState {
	if measurementNoise <= 0 {
		measurementNoise = f.measurementNoise
	}

	// Observation matrix and measurement vector. Position-only detections
	// observe the first three state components; velocity-bearing detections
	// observe all six.
	measDim := 3
	if velocity != nil {
		measDim = stateDim
	}

	H := mat.NewDense(measDim, stateDim, nil)
	for i := 0; i < measDim; i++ {
		H.Set(i, i, 1)
	}

	z := mat.NewVecDense(measDim, nil)
	z.SetVec(0, position.X)
	z.SetVec(1, position.Y)
	z.SetVec(2, position.Z)
	if velocity != nil {
		z.SetVec(3, velocity.VX)
		z.SetVec(4, velocity.VY)
		z.SetVec(5, velocity.VZ)
	}

	// Innovation: y = z - H*x
	var hx mat.VecDense
	hx.MulVec(H, state.x)
	y := mat.NewVecDense(measDim, nil)
	y.SubVec(z, &hx)

	// Innovation covariance: S = H*P*H^T + R
	var hp mat.Dense
	hp.Mul(H, state.P)
	var S mat.Dense
	S.Mul(&hp, H.T())
	for i := 0; i < measDim; i++ {
		S.Set(i, i, S.At(i, i)+measurementNoise)
	}

	// A singular innovation covariance is a recoverable condition: skip the
	// correction and keep the prediction.
	if math.Abs(mat.Det(&S)) < singularEpsilon {
		return state
	}
	var sInv mat.Dense
	if err := sInv.Inverse(&S); err != nil {
		return state
	}

	// Kalman gain: K = P*H^T*S^-1
	var pht mat.Dense
	pht.Mul(state.P, H.T())
	var K mat.Dense
	K.Mul(&pht, &sInv)

	// x_k|k = x_k|k-1 + K*y
	var ky mat.VecDense
	ky.MulVec(&K, y)
	xNew := mat.NewVecDense(stateDim, nil)
	xNew.AddVec(state.x, &ky)

	// P_k|k = (I - K*H) * P_k|k-1
	var kh mat.Dense
	kh.Mul(&K, H)
	var ikh mat.Dense
	ikh.Sub(identity(stateDim), &kh)
	PNew := mat.NewDense(stateDim, stateDim, nil)
	PNew.Mul(&ikh, state.P)

	// Re-symmetrize to counter floating-point drift
	symmetrize(PNew)

	return &KalmanState{x: xNew, P: PNew}
}

func identity(n int) *mat.Dense {
	m := mat.NewDense(n, n, nil)
	for i := 0; i < n; i++ {
		m.Set(i, i, 1)
	}
	return m
}

// symmetrize replaces m with (m + m^T) / 2 in place
func symmetrize(m *mat.Dense) {
	r, _ := m.Dims()
	for i := 0; i < r; i++ {
		for j := i + 1; j < r; j++ {
			v := (m.At(i, j) + m.At(j, i)) / 2
			m.Set(i, j, v)
			m.Set(j, i, v)
		}
	}
}
