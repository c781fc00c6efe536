package scene

import (
	"github.com/pkg/errors"

	"github.com/holoverse/holoworld/engine/hwutils"
)

// SimSubstrate is a headless scene substrate. Objects are bookkeeping records
// and physics steps are advanced explicitly by the main loop calling Step.
type SimSubstrate struct {
	templates map[string]simTemplate
	failures  map[string]int
	step      int
	pending   []simPending
}

type simTemplate struct {
	children  int
	colliders int
}

type simPending struct {
	dueStep  int
	callback func()
}

// NewSimSubstrate creates an empty headless substrate
func NewSimSubstrate() *SimSubstrate {
	return &SimSubstrate{
		templates: map[string]simTemplate{},
		failures:  map[string]int{},
	}
}

// Prepare registers the object hierarchy stored under key
func (ss *SimSubstrate) Prepare(key string, children int, colliders int) {
	ss.templates[key] = simTemplate{children: children, colliders: colliders}
}

// SetFailures makes the next n Instantiate calls for key fail
func (ss *SimSubstrate) SetFailures(key string, n int) {
	ss.failures[key] = n
}

// Instantiate constructs the object hierarchy stored under key
func (ss *SimSubstrate) Instantiate(key string, data []byte) (Handle, error) {
	if n := ss.failures[key]; n > 0 {
		ss.failures[key] = n - 1
		return nil, errors.Errorf("instantiate %s failed", key)
	}

	tmpl, ok := ss.templates[key]
	if !ok {
		if len(data) == 0 {
			return nil, errors.Errorf("instantiate %s: no such object", key)
		}
		// raw asset bytes with no registered template: a plain single object
		tmpl = simTemplate{children: 1, colliders: 1}
	}

	return &simHandle{
		key:       key,
		active:    true,
		children:  tmpl.children,
		colliders: tmpl.colliders,
	}, nil
}

// CreateLabel creates a floating text label
func (ss *SimSubstrate) CreateLabel(text string) Label {
	return &simLabel{
		simHandle: simHandle{key: "__label__", active: true},
		text:      text,
	}
}

// AfterPhysicsSteps invokes callback after the given number of physics steps
func (ss *SimSubstrate) AfterPhysicsSteps(steps int, callback func()) {
	if steps <= 0 {
		hwutils.RunPanicless(callback)
		return
	}
	ss.pending = append(ss.pending, simPending{
		dueStep:  ss.step + steps,
		callback: callback,
	})
}

// Step advances the simulated physics by one step
func (ss *SimSubstrate) Step() {
	ss.step += 1
	left := ss.pending[:0]
	for _, p := range ss.pending {
		if p.dueStep <= ss.step {
			hwutils.RunPanicless(p.callback)
		} else {
			left = append(left, p)
		}
	}
	ss.pending = left
}

type simHandle struct {
	key       string
	active    bool
	children  int
	colliders int
	posY      Coord
	parent    *simHandle
	destroyed bool
}

func (h *simHandle) Key() string {
	return h.key
}

func (h *simHandle) Active() bool {
	return h.active
}

func (h *simHandle) SetActive(active bool) {
	h.active = active
}

func (h *simHandle) ChildCount() int {
	return h.children
}

func (h *simHandle) ColliderCount() int {
	return h.colliders
}

func (h *simHandle) PositionY() Coord {
	return h.posY
}

func (h *simHandle) SetPositionY(y Coord) {
	h.posY = y
}

func (h *simHandle) SetParent(parent Handle, localOffset Vector3) {
	if parent != nil {
		h.parent = parent.(*simHandle)
	} else {
		h.parent = nil
	}
	h.posY = localOffset.Y
}

func (h *simHandle) Destroy() {
	h.destroyed = true
	h.active = false
}

func (h *simHandle) IsDestroyed() bool {
	return h.destroyed
}

type simLabel struct {
	simHandle
	text string
}

func (l *simLabel) Text() string {
	return l.text
}

func (l *simLabel) SetText(text string) {
	l.text = text
}
