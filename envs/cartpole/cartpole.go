// Package cartpole is the classic pole-balancing control task, used as
// the default environment for the training CLI.
package cartpole

import (
	"math"

	erand "golang.org/x/exp/rand"

	"vecrl/core"
)

const (
	gravity        = 9.81
	massCart       = 1.0
	massPole       = 0.1
	poleLength     = 0.5
	totalMass      = massCart + massPole
	poleMassLength = massPole * poleLength
	forceMax       = 10.0
	tau            = 0.02

	xThreshold     = 2.4
	thetaThreshold = 12.0 * math.Pi / 180.0
	maxSteps       = 500

	// ObsDim is x, xDot, theta, thetaDot.
	ObsDim     = 4
	NumActions = 2
)

type Env struct {
	x        float64
	xDot     float64
	theta    float64
	thetaDot float64
	steps    int

	rng *erand.Rand
}

var _ core.Env = &Env{}

func New(seed uint64) *Env {
	return &Env{rng: erand.New(erand.NewSource(seed))}
}

// Constructor builds cartpole instances with per-instance seeds derived
// from a base seed.
func Constructor(baseSeed uint64) core.EnvConstructor {
	return core.EnvConstructorFunc(func(i int) (core.Env, error) {
		return New(baseSeed + uint64(i)), nil
	})
}

func (e *Env) ObservationSpace() core.Space { return core.Vector(ObsDim) }
func (e *Env) ActionSpace() core.Space      { return core.Discrete(NumActions) }

func (e *Env) Reset() ([]float64, error) {
	e.x = e.rng.Float64()*0.1 - 0.05
	e.xDot = e.rng.Float64()*0.1 - 0.05
	e.theta = e.rng.Float64()*0.1 - 0.05
	e.thetaDot = e.rng.Float64()*0.1 - 0.05
	e.steps = 0
	return e.observation(), nil
}

// Step applies one Euler integration step of the cart-pole dynamics.
// Action 0 pushes left, 1 pushes right. Reward is 1 per step survived;
// the episode ends when the cart or pole leaves its threshold or after
// maxSteps.
func (e *Env) Step(action int) ([]float64, float64, bool, error) {
	force := forceMax
	if action == 0 {
		force = -forceMax
	}

	cosTheta := math.Cos(e.theta)
	sinTheta := math.Sin(e.theta)

	temp := (force + poleMassLength*e.thetaDot*e.thetaDot*sinTheta) / totalMass
	thetaAcc := (gravity*sinTheta - cosTheta*temp) /
		(poleLength * (4.0/3.0 - massPole*cosTheta*cosTheta/totalMass))
	xAcc := temp - poleMassLength*thetaAcc*cosTheta/totalMass

	e.x += tau * e.xDot
	e.xDot += tau * xAcc
	e.theta += tau * e.thetaDot
	e.thetaDot += tau * thetaAcc
	e.steps++

	fell := e.x < -xThreshold || e.x > xThreshold ||
		e.theta < -thetaThreshold || e.theta > thetaThreshold
	done := fell || e.steps >= maxSteps

	return e.observation(), 1.0, done, nil
}

func (e *Env) Close() error {
	return nil
}

func (e *Env) observation() []float64 {
	return []float64{e.x, e.xDot, e.theta, e.thetaDot}
}

func MaxSteps() int {
	return maxSteps
}
