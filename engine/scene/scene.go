package scene

import (
	"fmt"
	"math"
)

// Coord is the type of scene coordinates (x, y, z)
type Coord float32

// Vector3 is a position or offset in the scene
type Vector3 struct {
	X Coord
	Y Coord
	Z Coord
}

func (v Vector3) String() string {
	return fmt.Sprintf("(%.1f, %.1f, %.1f)", v.X, v.Y, v.Z)
}

// DistanceTo calculates distance between two positions
func (v Vector3) DistanceTo(o Vector3) Coord {
	dx := v.X - o.X
	dy := v.Y - o.Y
	dz := v.Z - o.Z
	return Coord(math.Sqrt(float64(dx*dx + dy*dy + dz*dz)))
}

// Handle is an instantiated object hierarchy in the scene substrate
type Handle interface {
	Key() string
	Active() bool
	SetActive(active bool)
	ChildCount() int
	ColliderCount() int
	PositionY() Coord
	SetPositionY(y Coord)
	SetParent(parent Handle, localOffset Vector3)
	Destroy()
	IsDestroyed() bool
}

// Label is a floating text object in the scene
type Label interface {
	Handle
	Text() string
	SetText(text string)
}

// Substrate is the scene and physics layer the world runtime drives.
// All substrate calls must happen on the main loop.
type Substrate interface {
	// Instantiate constructs the object hierarchy stored under key
	Instantiate(key string, data []byte) (Handle, error)
	// CreateLabel creates a floating text label
	CreateLabel(text string) Label
	// AfterPhysicsSteps invokes callback after the given number of physics steps
	AfterPhysicsSteps(steps int, callback func())
}
