package post

import (
	"sync"

	"github.com/holoverse/holoworld/engine/hwutils"
)

// Callback is a deferred piece of work for the main loop
type Callback func()

var (
	callbacks []Callback
	lock      sync.Mutex
)

// Post queues f to run on the main loop after the current tick's work.
// Safe to call from any goroutine.
func Post(f Callback) {
	lock.Lock()
	callbacks = append(callbacks, f)
	lock.Unlock()
}

// Tick drains the queue on the main loop. Callbacks posted while draining
// run in the same tick, so the queue is empty when Tick returns.
func Tick() {
	for {
		lock.Lock()
		if len(callbacks) == 0 {
			lock.Unlock()
			break
		}
		// swap out the slice under the lock, run the batch outside it
		batch := callbacks
		callbacks = make([]Callback, 0, len(batch))
		lock.Unlock()

		for _, f := range batch {
			hwutils.RunPanicless(f)
		}
	}
}
