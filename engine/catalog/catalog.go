package catalog

import (
	"fmt"
	"time"

	timer "github.com/xiaonanln/goTimer"
	"golang.org/x/net/context"

	"github.com/holoverse/holoworld/engine/config"
	"github.com/holoverse/holoworld/engine/hwlog"
	"github.com/holoverse/holoworld/engine/hwutils"
	"github.com/holoverse/holoworld/engine/netutil"
	"github.com/holoverse/holoworld/engine/opmon"
	"github.com/holoverse/holoworld/engine/post"
	"github.com/holoverse/holoworld/engine/scene"
)

// AssetState is the lifecycle state of an asset handle
type AssetState int

// All asset handle states
const (
	AssetNotLoaded AssetState = iota
	AssetLoading
	AssetLoaded
	AssetFailed
)

func (s AssetState) String() string {
	switch s {
	case AssetNotLoaded:
		return "NotLoaded"
	case AssetLoading:
		return "Loading"
	case AssetLoaded:
		return "Loaded"
	case AssetFailed:
		return "Failed"
	}
	return fmt.Sprintf("AssetState(%d)", int(s))
}

// AssetHandle tracks one keyed asset load. A key has exactly one handle, so a
// key is in at most one of {Loading, Loaded} at any instant.
type AssetHandle struct {
	Key        string
	State      AssetState
	Progress   float64
	RetryCount int
}

func (h *AssetHandle) String() string {
	return fmt.Sprintf("AssetHandle<%s|%s|%.2f|retry %d>", h.Key, h.State, h.Progress, h.RetryCount)
}

// WorldInstance is a world asset instantiated into the scene
type WorldInstance struct {
	ID            string
	Root          scene.Handle
	VerifiedReady bool
}

// Listener receives load events for one asset key
type Listener struct {
	OnProgress func(fraction float64)
	OnComplete func(handle *AssetHandle)
	OnFailed   func(handle *AssetHandle, reason string)
}

type loadRun struct {
	handle       *AssetHandle
	attemptStart time.Time
	progressTick *timer.Timer
	cancelFetch  context.CancelFunc
}

// Loader resolves a remote manifest and loads named asset bundles with
// bounded retries. All methods must be called on the main loop; fetches run
// on worker goroutines and deliver their results back via post.
type Loader struct {
	cfg       *config.CatalogConfig
	fetcher   Fetcher
	substrate scene.Substrate

	manifest  map[string]string // key -> bundle url; nil until catalog load succeeds
	handles   map[string]*AssetHandle
	worlds    map[string]*WorldInstance
	listeners map[string][]Listener
	runs      map[string]*loadRun
	ctx       context.Context
	cancel    context.CancelFunc
}

// NewLoader creates an asset catalog loader driving instantiation into the substrate
func NewLoader(cfg *config.CatalogConfig, fetcher Fetcher, substrate scene.Substrate) *Loader {
	ctx, cancel := context.WithCancel(context.Background())
	return &Loader{
		cfg:       cfg,
		fetcher:   fetcher,
		substrate: substrate,
		handles:   map[string]*AssetHandle{},
		worlds:    map[string]*WorldInstance{},
		listeners: map[string][]Listener{},
		runs:      map[string]*loadRun{},
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Close cancels all in-flight fetches
func (ld *Loader) Close() {
	ld.cancel()
}

// LoadCatalog fetches the remote manifest once with a hard timeout. Failure
// is non-fatal: the loader falls back to local default resolution, and the
// callback still reports the error for logging.
func (ld *Loader) LoadCatalog(callback func(err error)) {
	if ld.cfg.URL == "" {
		hwlog.Infof("catalog: no manifest URL configured, using local defaults")
		if callback != nil {
			post.Post(func() { callback(nil) })
		}
		return
	}

	op := opmon.StartOperation("catalog.fetchManifest")
	ctx, cancel := context.WithTimeout(ld.ctx, ld.cfg.FetchTimeout)
	go func() {
		data, err := ld.fetcher.Fetch(ctx, ld.cfg.URL)
		cancel()

		post.Post(func() {
			op.Finish(ld.cfg.FetchTimeout)

			if err != nil {
				// non-fatal: fall back to local default asset resolution
				hwlog.Warnf("catalog: manifest fetch failed, falling back to local defaults: %v", err)
				if callback != nil {
					callback(err)
				}
				return
			}

			var manifest map[string]string
			if err := netutil.MSG_PACKER.UnpackMsg(data, &manifest); err != nil {
				hwlog.Warnf("catalog: manifest unpack failed, falling back to local defaults: %v", err)
				if callback != nil {
					callback(err)
				}
				return
			}

			ld.manifest = manifest
			hwlog.Infof("catalog: manifest loaded, %d entries", len(manifest))
			if callback != nil {
				callback(nil)
			}
		})
	}()
}

// WorldKey returns the asset key of a space's world bundle
func (ld *Loader) WorldKey(spaceID string) string {
	return ld.cfg.KeyPrefix + spaceID
}

// HasManifest returns if the remote manifest was resolved
func (ld *Loader) HasManifest() bool {
	return ld.manifest != nil
}

// IsLoaded returns if the key is loaded
func (ld *Loader) IsLoaded(key string) bool {
	h, ok := ld.handles[key]
	return ok && h.State == AssetLoaded
}

// IsLoading returns if the key is loading
func (ld *Loader) IsLoading(key string) bool {
	h, ok := ld.handles[key]
	return ok && h.State == AssetLoading
}

// GetHandle returns the handle of the key, or nil
func (ld *Loader) GetHandle(key string) *AssetHandle {
	return ld.handles[key]
}

// GetWorldInstance returns the world instance registered for the key, or nil
func (ld *Loader) GetWorldInstance(key string) *WorldInstance {
	return ld.worlds[key]
}

// AddListener subscribes to load events of the key. If the key is already
// terminal the matching callback fires immediately on the next post tick.
func (ld *Loader) AddListener(key string, l Listener) {
	if h, ok := ld.handles[key]; ok {
		if h.State == AssetLoaded {
			if l.OnComplete != nil {
				post.Post(func() { l.OnComplete(h) })
			}
			return
		}
		if h.State == AssetFailed {
			if l.OnFailed != nil {
				post.Post(func() { l.OnFailed(h, "load already failed") })
			}
			return
		}
	}
	ld.listeners[key] = append(ld.listeners[key], l)
}

// LoadAsset starts loading the key, or returns the existing handle if the key
// is already Loading or Loaded (idempotent)
func (ld *Loader) LoadAsset(key string) *AssetHandle {
	if h, ok := ld.handles[key]; ok {
		if h.State == AssetLoading || h.State == AssetLoaded {
			return h
		}
		if h.State == AssetFailed {
			// terminal, no auto-retry
			return h
		}
	}

	h := &AssetHandle{
		Key:   key,
		State: AssetLoading,
	}
	ld.handles[key] = h
	ld.runs[key] = &loadRun{handle: h}

	hwlog.Infof("catalog: loading asset %s ...", key)
	ld.startAttempt(h)
	return h
}

func (ld *Loader) resolveURL(key string) string {
	if ld.manifest != nil {
		if url, ok := ld.manifest[key]; ok {
			return url
		}
	}
	// local default resolution: the substrate resolves the bare key
	return ""
}

func (ld *Loader) startAttempt(h *AssetHandle) {
	run := ld.runs[h.Key]
	if run == nil {
		return
	}
	run.attemptStart = time.Now()

	url := ld.resolveURL(h.Key)
	if url == "" {
		// locally resolvable, no fetch needed
		ld.finishAttempt(h, nil, nil)
		return
	}

	op := opmon.StartOperation("catalog.loadAsset")
	ctx, cancel := context.WithTimeout(ld.ctx, ld.cfg.AttemptTimeout)
	run.cancelFetch = cancel
	run.progressTick = timer.AddTimer(ld.cfg.ProgressInterval, func() {
		ld.emitProgress(h)
	})

	go func() {
		data, err := ld.fetcher.Fetch(ctx, url)
		cancel()

		post.Post(func() {
			op.Finish(ld.cfg.AttemptTimeout)
			ld.finishAttempt(h, data, err)
		})
	}()
}

func (ld *Loader) emitProgress(h *AssetHandle) {
	run := ld.runs[h.Key]
	if run == nil || h.State != AssetLoading {
		return
	}

	elapsed := time.Since(run.attemptStart)
	fraction := float64(elapsed) / float64(ld.cfg.AttemptTimeout)
	if fraction > 0.95 {
		fraction = 0.95
	}
	if fraction > h.Progress {
		h.Progress = fraction
	}

	for _, l := range ld.listeners[h.Key] {
		if l.OnProgress != nil {
			hwutils.RunPanicless(func() { l.OnProgress(h.Progress) })
		}
	}
}

func (ld *Loader) finishAttempt(h *AssetHandle, data []byte, err error) {
	run := ld.runs[h.Key]
	if run == nil || h.State != AssetLoading {
		return
	}
	if run.progressTick != nil {
		run.progressTick.Cancel()
		run.progressTick = nil
	}

	if err == nil {
		var root scene.Handle
		root, err = ld.substrate.Instantiate(h.Key, data)
		if err == nil {
			ld.onLoadSucceeded(h, root)
			return
		}
	}

	// attempt failed
	h.RetryCount += 1
	hwlog.Warnf("catalog: asset %s attempt failed (retry %d/%d): %v", h.Key, h.RetryCount, ld.cfg.MaxAttempts, err)

	if h.RetryCount >= ld.cfg.MaxAttempts {
		ld.onLoadFailed(h, fmt.Sprintf("asset %s failed after %d attempts: %v — please refresh and rejoin", h.Key, h.RetryCount, err))
		return
	}

	timer.AddCallback(ld.cfg.RetryBackoff, func() {
		if h.State != AssetLoading {
			return
		}
		ld.startAttempt(h)
	})
}

func (ld *Loader) onLoadSucceeded(h *AssetHandle, root scene.Handle) {
	h.State = AssetLoaded
	h.Progress = 1

	world := &WorldInstance{
		ID:   h.Key,
		Root: root,
	}
	ld.worlds[h.Key] = world
	delete(ld.runs, h.Key)

	hwlog.Infof("catalog: asset %s loaded (retries: %d)", h.Key, h.RetryCount)

	listeners := ld.listeners[h.Key]
	delete(ld.listeners, h.Key)
	for _, l := range listeners {
		if l.OnProgress != nil {
			hwutils.RunPanicless(func() { l.OnProgress(1) })
		}
		if l.OnComplete != nil {
			hwutils.RunPanicless(func() { l.OnComplete(h) })
		}
	}
}

func (ld *Loader) onLoadFailed(h *AssetHandle, reason string) {
	h.State = AssetFailed
	delete(ld.runs, h.Key)

	hwlog.Errorf("catalog: %s", reason)

	listeners := ld.listeners[h.Key]
	delete(ld.listeners, h.Key)
	for _, l := range listeners {
		if l.OnFailed != nil {
			hwutils.RunPanicless(func() { l.OnFailed(h, reason) })
		}
	}
}
