package avatar

import (
	"fmt"
	"time"

	timer "github.com/xiaonanln/goTimer"
	"golang.org/x/net/context"

	"github.com/holoverse/holoworld/engine/catalog"
	"github.com/holoverse/holoworld/engine/config"
	"github.com/holoverse/holoworld/engine/entity"
	"github.com/holoverse/holoworld/engine/hwlog"
	"github.com/holoverse/holoworld/engine/hwutils"
	"github.com/holoverse/holoworld/engine/post"
	"github.com/holoverse/holoworld/engine/scene"
)

// LoadState is the avatar load state of one entity
type LoadState int

// All avatar load states
const (
	StateIdle LoadState = iota
	StateAwaitingURL
	StateLoading
	StateRetrying
	StateReady
	StateFailed
)

func (s LoadState) String() string {
	switch s {
	case StateIdle:
		return "Idle"
	case StateAwaitingURL:
		return "AwaitingURL"
	case StateLoading:
		return "Loading"
	case StateRetrying:
		return "Retrying"
	case StateReady:
		return "Ready"
	case StateFailed:
		return "Failed"
	}
	return fmt.Sprintf("LoadState(%d)", int(s))
}

// Sync keeps one entity's visual avatar consistent with its replicated
// avatarUrl attribute: the attribute change is the only load trigger, on the
// owner and every peer alike. Loads retry with a bounded budget, the first
// remote reveal snaps the entity to the ground baseline, and a periodic
// self-heal re-asserts the scene hierarchy. All methods must be called on the
// main loop.
type Sync struct {
	cfg       *config.AvatarConfig
	fetcher   catalog.Fetcher
	substrate scene.Substrate
	e         *entity.Entity
	rig       scene.Handle
	isOwner   bool

	state          LoadState
	loadInFlight   bool
	loadedOnce     bool
	lastLoadedURL  string
	retryCount     int
	hasResetOffset bool
	visible        bool

	handle  scene.Handle
	nameTag scene.Label

	urlWatchCancel func()
	urlWaitTimer   *timer.Timer

	loadCompleteCbs []func(success bool)
}

// New creates the avatar sync for the entity. rig is the entity's scene
// anchor the avatar and name tag attach to. isOwner marks the entity owned by
// the local connection; only remote avatars get the baseline snap on first
// reveal.
func New(cfg *config.AvatarConfig, fetcher catalog.Fetcher, substrate scene.Substrate,
	e *entity.Entity, rig scene.Handle, isOwner bool) *Sync {

	return &Sync{
		cfg:       cfg,
		fetcher:   fetcher,
		substrate: substrate,
		e:         e,
		rig:       rig,
		isOwner:   isOwner,
		state:     StateIdle,
	}
}

// State returns the current load state
func (s *Sync) State() LoadState {
	return s.state
}

// RetryCount returns how many failed attempts the current or last load took
func (s *Sync) RetryCount() int {
	return s.retryCount
}

// IsVisible returns if the avatar and name tag are revealed
func (s *Sync) IsVisible() bool {
	return s.visible
}

// Handle returns the loaded avatar scene object, or nil
func (s *Sync) Handle() scene.Handle {
	return s.handle
}

// NameTag returns the entity's name tag label
func (s *Sync) NameTag() scene.Label {
	return s.nameTag
}

// OnLoadComplete registers a callback fired whenever a load settles, with
// success=false when the retry budget is exhausted
func (s *Sync) OnLoadComplete(cb func(success bool)) {
	s.loadCompleteCbs = append(s.loadCompleteCbs, cb)
}

// SetNameText updates the name tag text. Visibility is not touched: the tag
// reveals together with the avatar.
func (s *Sync) SetNameText(text string) {
	s.nameTag.SetText(text)
}

// Start creates the name tag and begins watching the avatarUrl attribute.
// Checking the current value and subscribing happen as one step, so a URL
// replicated before Start is never missed.
func (s *Sync) Start() {
	s.nameTag = s.substrate.CreateLabel("")
	s.nameTag.SetActive(false)
	s.nameTag.SetParent(s.rig, scene.Vector3{Y: scene.Coord(s.cfg.NameTagHeight)})

	s.urlWatchCancel = s.e.Attrs.OnChange("avatarUrl", func(val interface{}) {
		url, ok := val.(string)
		if !ok {
			return
		}
		s.onURL(url)
	})
	if url := s.e.Attrs.GetStr("avatarUrl"); url != "" {
		s.onURL(url)
	} else if !s.isOwner {
		s.awaitURL()
	}

	s.e.AddTimer(s.cfg.SelfHealInterval, s.selfHeal)
}

// Stop cancels the attribute watch. Entity timers die with the entity.
func (s *Sync) Stop() {
	if s.urlWatchCancel != nil {
		s.urlWatchCancel()
		s.urlWatchCancel = nil
	}
}

// awaitURL waits a bounded window for the owner's URL to replicate, then
// falls back to the default avatar, or logs and stays put when no default is
// configured
func (s *Sync) awaitURL() {
	s.state = StateAwaitingURL
	var waited time.Duration

	s.urlWaitTimer = s.e.AddTimer(s.cfg.URLPollInterval, func() {
		if s.state != StateAwaitingURL {
			s.cancelURLWait()
			return
		}
		if url := s.e.Attrs.GetStr("avatarUrl"); url != "" {
			s.cancelURLWait()
			s.onURL(url)
			return
		}

		waited += s.cfg.URLPollInterval
		if waited < s.cfg.URLWaitTimeout {
			return
		}
		s.cancelURLWait()

		if s.cfg.DefaultURL != "" {
			hwlog.Warnf("avatar %s: no avatarUrl after %s, using default avatar", s.e, s.cfg.URLWaitTimeout)
			s.onURL(s.cfg.DefaultURL)
		} else {
			hwlog.Warnf("avatar %s: no avatarUrl after %s and no default configured, not loading", s.e, s.cfg.URLWaitTimeout)
		}
	})
}

func (s *Sync) cancelURLWait() {
	if s.urlWaitTimer != nil {
		s.e.CancelTimer(s.urlWaitTimer)
		s.urlWaitTimer = nil
	}
}

// onURL is the sole load trigger. Identical URLs and triggers arriving while
// a load is in flight are dropped.
func (s *Sync) onURL(url string) {
	if url == "" {
		return
	}
	if s.loadInFlight {
		hwlog.Debugf("avatar %s: load already in flight, trigger for %s dropped", s.e, url)
		return
	}
	if s.loadedOnce && url == s.lastLoadedURL {
		return
	}

	s.loadInFlight = true
	s.state = StateLoading
	s.retryCount = 0
	s.attempt(url)
}

func (s *Sync) attempt(url string) {
	ctx, cancel := context.WithTimeout(s.e.Context(), s.cfg.LoadTimeout)
	go func() {
		data, err := s.fetcher.Fetch(ctx, url)
		cancel()

		post.Post(func() {
			if s.e.IsDestroyed() {
				return
			}
			s.finishAttempt(url, data, err)
		})
	}()
}

func (s *Sync) finishAttempt(url string, data []byte, err error) {
	if err == nil {
		var handle scene.Handle
		handle, err = s.substrate.Instantiate(url, data)
		if err == nil {
			s.onLoadSucceeded(url, handle)
			return
		}
	}

	if s.retryCount >= s.cfg.MaxRetries {
		hwlog.Errorf("avatar %s: load of %s failed after %d retries: %v", s.e, url, s.retryCount, err)
		s.state = StateFailed
		s.loadInFlight = false
		s.fireLoadComplete(false)
		return
	}

	s.retryCount += 1
	s.state = StateRetrying
	hwlog.Warnf("avatar %s: load of %s failed (retry %d/%d): %v", s.e, url, s.retryCount, s.cfg.MaxRetries, err)
	s.e.AddCallback(s.cfg.RetryDelay, func() {
		s.attempt(url)
	})
}

func (s *Sync) onLoadSucceeded(url string, handle scene.Handle) {
	if s.handle != nil && !s.handle.IsDestroyed() {
		s.handle.Destroy()
	}
	s.handle = handle
	s.lastLoadedURL = url
	s.loadedOnce = true
	s.loadInFlight = false
	s.state = StateReady

	handle.SetParent(s.rig, scene.Vector3{Y: scene.Coord(s.cfg.AttachOffsetY)})
	hwlog.Infof("avatar %s: %s loaded (retries: %d)", s.e, url, s.retryCount)

	if !s.isOwner && !s.hasResetOffset {
		s.resetOffsetAndReveal()
	} else {
		s.reveal()
	}
	s.fireLoadComplete(true)
}

// resetOffsetAndReveal hides the avatar, snaps the rig to the ground
// baseline, re-verifies the snap one physics step later and only then reveals
// avatar and name tag together. Runs at most once per entity lifetime.
func (s *Sync) resetOffsetAndReveal() {
	s.hasResetOffset = true
	s.handle.SetActive(false)
	s.nameTag.SetActive(false)
	s.visible = false

	s.rig.SetPositionY(scene.Coord(s.cfg.BaselineY))
	s.substrate.AfterPhysicsSteps(1, func() {
		if s.e.IsDestroyed() {
			return
		}
		// physics may have displaced the rig during the hidden step
		if s.rig.PositionY() != scene.Coord(s.cfg.BaselineY) {
			s.rig.SetPositionY(scene.Coord(s.cfg.BaselineY))
		}
		s.reveal()
	})
}

func (s *Sync) reveal() {
	s.handle.SetActive(true)
	s.nameTag.SetActive(true)
	s.visible = true
}

func (s *Sync) fireLoadComplete(success bool) {
	for _, cb := range s.loadCompleteCbs {
		cb := cb
		hwutils.RunPanicless(func() { cb(success) })
	}
}

// selfHeal re-asserts the scene hierarchy and re-attempts a load the trigger
// missed
func (s *Sync) selfHeal() {
	if s.handle != nil && !s.handle.IsDestroyed() {
		s.handle.SetParent(s.rig, scene.Vector3{Y: scene.Coord(s.cfg.AttachOffsetY)})
		if s.handle.Active() != s.visible {
			hwlog.Warnf("avatar %s: self-heal fixing avatar visibility to %v", s.e, s.visible)
			s.handle.SetActive(s.visible)
		}
	}
	if s.nameTag != nil && !s.nameTag.IsDestroyed() {
		s.nameTag.SetParent(s.rig, scene.Vector3{Y: scene.Coord(s.cfg.NameTagHeight)})
		if s.nameTag.Active() != s.visible {
			s.nameTag.SetActive(s.visible)
		}
	}

	if !s.loadedOnce && !s.loadInFlight && s.state != StateFailed {
		if url := s.e.Attrs.GetStr("avatarUrl"); url != "" {
			hwlog.Warnf("avatar %s: self-heal re-attempting missed load of %s", s.e, url)
			s.onURL(url)
		}
	}
}
