package scene

import (
	"testing"

	"github.com/bmizerany/assert"
)

func TestSimSubstrateInstantiate(t *testing.T) {
	ss := NewSimSubstrate()
	ss.Prepare("environments/lobby", 12, 30)

	h, err := ss.Instantiate("environments/lobby", nil)
	assert.Equal(t, nil, err)
	assert.Equal(t, 12, h.ChildCount())
	assert.Equal(t, 30, h.ColliderCount())
	assert.Equal(t, true, h.Active())

	_, err = ss.Instantiate("environments/void", nil)
	assert.NotEqual(t, nil, err)
}

func TestSimSubstrateFailures(t *testing.T) {
	ss := NewSimSubstrate()
	ss.Prepare("avatars/base", 3, 1)
	ss.SetFailures("avatars/base", 2)

	_, err := ss.Instantiate("avatars/base", nil)
	assert.NotEqual(t, nil, err)
	_, err = ss.Instantiate("avatars/base", nil)
	assert.NotEqual(t, nil, err)
	h, err := ss.Instantiate("avatars/base", nil)
	assert.Equal(t, nil, err)
	assert.Equal(t, 3, h.ChildCount())
}

func TestSimSubstrateAfterPhysicsSteps(t *testing.T) {
	ss := NewSimSubstrate()

	called := 0
	ss.AfterPhysicsSteps(3, func() {
		called += 1
	})
	assert.Equal(t, 0, called)

	ss.Step()
	ss.Step()
	assert.Equal(t, 0, called)
	ss.Step()
	assert.Equal(t, 1, called)
	ss.Step()
	assert.Equal(t, 1, called)

	ss.AfterPhysicsSteps(0, func() {
		called += 1
	})
	assert.Equal(t, 2, called)
}

func TestVector3Distance(t *testing.T) {
	a := Vector3{0, 3, 0}
	b := Vector3{4, 0, 0}
	assert.Equal(t, Coord(5), a.DistanceTo(b))
}
