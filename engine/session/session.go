package session

import (
	"fmt"
	"time"

	timer "github.com/xiaonanln/goTimer"

	"github.com/holoverse/holoworld/engine/catalog"
	"github.com/holoverse/holoworld/engine/config"
	"github.com/holoverse/holoworld/engine/hwlog"
	"github.com/holoverse/holoworld/engine/hwutils"
)

// State is the join session state
type State int

// All join session states. TimedOut and Failed are terminal, Ready is the
// terminal success state.
const (
	StateInit State = iota
	StateWaitingForCatalog
	StateLoadingWorld
	StateReady
	StateTimedOut
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateInit:
		return "Init"
	case StateWaitingForCatalog:
		return "WaitingForCatalog"
	case StateLoadingWorld:
		return "LoadingWorld"
	case StateReady:
		return "Ready"
	case StateTimedOut:
		return "TimedOut"
	case StateFailed:
		return "Failed"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// IsTerminal returns if no further transition can happen from the state
func (s State) IsTerminal() bool {
	return s == StateReady || s == StateTimedOut || s == StateFailed
}

// Progress reports the world load fraction with the estimated remaining time.
// ETA is 0 until two progress samples establish a rate.
type Progress struct {
	Fraction float64
	ETA      time.Duration
}

// Callbacks receive session transitions and progress. All callbacks run on
// the main loop.
type Callbacks struct {
	OnStateChange func(old, new State)
	OnProgress    func(p Progress)
	OnReady       func(world *catalog.WorldInstance)
	OnTimedOut    func(reason string)
	OnFailed      func(reason string)
}

// Orchestrator drives one join session from Init to Ready, retrying the world
// load step within a bounded deadline. All methods must be called on the main
// loop.
type Orchestrator struct {
	cfg       *config.SessionConfig
	loader    *catalog.Loader
	callbacks Callbacks

	state      State
	spaceID    string
	worldKey   string
	retryCount int
	listening  bool

	stepTimer  *timer.Timer
	totalTimer *timer.Timer

	lastFraction float64
	lastSample   time.Time
	eta          time.Duration
}

// NewOrchestrator creates a join session orchestrator over the asset loader
func NewOrchestrator(cfg *config.SessionConfig, loader *catalog.Loader, callbacks Callbacks) *Orchestrator {
	return &Orchestrator{
		cfg:       cfg,
		loader:    loader,
		callbacks: callbacks,
		state:     StateInit,
	}
}

// State returns the current session state
func (o *Orchestrator) State() State {
	return o.state
}

// RetryCount returns how many world load steps timed out and were retried
func (o *Orchestrator) RetryCount() int {
	return o.retryCount
}

// ETA returns the latest estimated remaining world load time
func (o *Orchestrator) ETA() time.Duration {
	return o.eta
}

// Join starts the session towards the space. The catalog manifest is resolved
// first; manifest failure is non-fatal and the world load proceeds on local
// defaults.
func (o *Orchestrator) Join(spaceID string) {
	if o.state != StateInit {
		hwlog.Warnf("session: Join(%s) ignored in state %s", spaceID, o.state)
		return
	}

	o.spaceID = spaceID
	o.worldKey = o.loader.WorldKey(spaceID)
	o.totalTimer = timer.AddCallback(o.cfg.TotalTimeout, o.onTotalTimeout)

	o.setState(StateWaitingForCatalog)
	o.loader.LoadCatalog(func(err error) {
		if o.state != StateWaitingForCatalog {
			return
		}
		o.setState(StateLoadingWorld)
		o.beginWorldStep()
	})
}

// beginWorldStep (re-)enters the world load step: a loaded world completes the
// session immediately, otherwise the load is triggered and a step deadline is
// armed. Triggering is idempotent in the loader, so a retry never duplicates
// an in-flight load.
func (o *Orchestrator) beginWorldStep() {
	if o.loader.IsLoaded(o.worldKey) {
		o.finishReady()
		return
	}

	if !o.listening {
		o.listening = true
		o.loader.AddListener(o.worldKey, catalog.Listener{
			OnProgress: o.noteProgress,
			OnComplete: func(h *catalog.AssetHandle) {
				if o.state != StateLoadingWorld {
					return
				}
				o.finishReady()
			},
			OnFailed: func(h *catalog.AssetHandle, reason string) {
				if o.state != StateLoadingWorld {
					return
				}
				o.fail(reason)
			},
		})
	}

	o.loader.LoadAsset(o.worldKey)
	o.stepTimer = timer.AddCallback(o.cfg.WorldTimeout, o.onWorldStepTimeout)
}

func (o *Orchestrator) onWorldStepTimeout() {
	if o.state != StateLoadingWorld {
		return
	}

	if o.loader.IsLoaded(o.worldKey) {
		o.finishReady()
		return
	}

	if o.retryCount >= o.cfg.MaxRetries {
		o.fail(fmt.Sprintf("world %s did not load after %d retries", o.worldKey, o.cfg.MaxRetries))
		return
	}

	o.retryCount += 1
	hwlog.Warnf("session %s: world load step timed out, retrying (%d/%d)", o.spaceID, o.retryCount, o.cfg.MaxRetries)
	o.beginWorldStep()
}

func (o *Orchestrator) onTotalTimeout() {
	if o.state.IsTerminal() {
		return
	}

	o.cancelTimers()
	o.setState(StateTimedOut)
	reason := fmt.Sprintf("session %s timed out after %s", o.spaceID, o.cfg.TotalTimeout)
	hwlog.Errorf("session: %s", reason)
	if o.callbacks.OnTimedOut != nil {
		hwutils.RunPanicless(func() { o.callbacks.OnTimedOut(reason) })
	}
}

// noteProgress folds a progress sample into the ETA estimate: the remaining
// fraction divided by the observed progress rate
func (o *Orchestrator) noteProgress(fraction float64) {
	if o.state != StateLoadingWorld {
		return
	}

	now := time.Now()
	if !o.lastSample.IsZero() && fraction > o.lastFraction {
		elapsed := now.Sub(o.lastSample).Seconds()
		if elapsed > 0 {
			rate := (fraction - o.lastFraction) / elapsed
			o.eta = time.Duration((1 - fraction) / rate * float64(time.Second))
		}
	}
	o.lastFraction = fraction
	o.lastSample = now

	if o.callbacks.OnProgress != nil {
		p := Progress{Fraction: fraction, ETA: o.eta}
		hwutils.RunPanicless(func() { o.callbacks.OnProgress(p) })
	}
}

func (o *Orchestrator) finishReady() {
	o.cancelTimers()
	o.setState(StateReady)
	o.eta = 0

	world := o.loader.GetWorldInstance(o.worldKey)
	hwlog.Infof("session %s: ready, world %s loaded (step retries: %d)", o.spaceID, o.worldKey, o.retryCount)
	if o.callbacks.OnReady != nil {
		hwutils.RunPanicless(func() { o.callbacks.OnReady(world) })
	}
}

func (o *Orchestrator) fail(reason string) {
	o.cancelTimers()
	o.setState(StateFailed)
	hwlog.Errorf("session %s: failed: %s", o.spaceID, reason)
	if o.callbacks.OnFailed != nil {
		hwutils.RunPanicless(func() { o.callbacks.OnFailed(reason) })
	}
}

func (o *Orchestrator) cancelTimers() {
	if o.stepTimer != nil {
		o.stepTimer.Cancel()
		o.stepTimer = nil
	}
	if o.totalTimer != nil {
		o.totalTimer.Cancel()
		o.totalTimer = nil
	}
}

func (o *Orchestrator) setState(next State) {
	if o.state == next {
		return
	}
	old := o.state
	o.state = next
	hwlog.Debugf("session %s: %s -> %s", o.spaceID, old, next)
	if o.callbacks.OnStateChange != nil {
		hwutils.RunPanicless(func() { o.callbacks.OnStateChange(old, next) })
	}
}
