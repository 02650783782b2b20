package cartpole

import (
	"math"
	"testing"
)

func TestResetStartsNearUpright(t *testing.T) {
	e := New(1)
	obs, err := e.Reset()
	if err != nil {
		t.Fatalf("reset: %v", err)
	}
	if len(obs) != ObsDim {
		t.Fatalf("observation length = %d, want %d", len(obs), ObsDim)
	}
	for i, v := range obs {
		if v < -0.05 || v > 0.05 {
			t.Errorf("initial state[%d] = %v outside [-0.05, 0.05]", i, v)
		}
	}
}

func TestSeedsAreReproducible(t *testing.T) {
	a, _ := New(7).Reset()
	b, _ := New(7).Reset()
	c, _ := New(8).Reset()

	for i := range a {
		if a[i] != b[i] {
			t.Errorf("same seed diverged at state[%d]: %v vs %v", i, a[i], b[i])
		}
	}
	same := true
	for i := range a {
		if a[i] != c[i] {
			same = false
		}
	}
	if same {
		t.Errorf("different seeds produced identical initial states")
	}
}

func TestConstantPushFailsEventually(t *testing.T) {
	e := New(3)
	if _, err := e.Reset(); err != nil {
		t.Fatalf("reset: %v", err)
	}

	for step := 1; step <= MaxSteps(); step++ {
		obs, reward, done, err := e.Step(1)
		if err != nil {
			t.Fatalf("step %d: %v", step, err)
		}
		if reward != 1 {
			t.Fatalf("step %d reward = %v, want 1", step, reward)
		}
		if done {
			// Pushing right forever tips the pole well before the step cap.
			if step >= MaxSteps() {
				t.Fatalf("constant push survived to the step cap")
			}
			if math.Abs(obs[2]) < thetaThreshold && math.Abs(obs[0]) < xThreshold {
				t.Fatalf("done at step %d with state inside both thresholds: %v", step, obs)
			}
			return
		}
	}
	t.Fatalf("episode never terminated")
}

func TestResetClearsEpisodeState(t *testing.T) {
	e := New(5)
	if _, err := e.Reset(); err != nil {
		t.Fatalf("reset: %v", err)
	}
	for i := 0; i < 20; i++ {
		if _, _, done, err := e.Step(i % 2); err != nil {
			t.Fatalf("step: %v", err)
		} else if done {
			break
		}
	}
	obs, err := e.Reset()
	if err != nil {
		t.Fatalf("second reset: %v", err)
	}
	for i, v := range obs {
		if v < -0.05 || v > 0.05 {
			t.Errorf("post-reset state[%d] = %v outside [-0.05, 0.05]", i, v)
		}
	}
}

func TestConstructorDerivesDistinctSeeds(t *testing.T) {
	ctor := Constructor(100)
	e0, err := ctor.NewEnv(0)
	if err != nil {
		t.Fatalf("new env 0: %v", err)
	}
	e1, err := ctor.NewEnv(1)
	if err != nil {
		t.Fatalf("new env 1: %v", err)
	}
	a, _ := e0.Reset()
	b, _ := e1.Reset()
	same := true
	for i := range a {
		if a[i] != b[i] {
			same = false
		}
	}
	if same {
		t.Errorf("sibling instances produced identical initial states")
	}
}
