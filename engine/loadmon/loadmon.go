package loadmon

import (
	"os"
	"sync"
	"time"

	"github.com/shirou/gopsutil/process"
	"golang.org/x/net/context"

	"github.com/holoverse/holoworld/engine/hwlog"
	"github.com/holoverse/holoworld/engine/hwutils"
)

// Monitor samples the server process CPU usage periodically
type Monitor struct {
	proc     *process.Process
	interval time.Duration

	lock       sync.RWMutex
	cpuPercent float64
}

// NewMonitor creates a monitor over the current process
func NewMonitor(interval time.Duration) *Monitor {
	pid := os.Getpid()
	proc, err := process.NewProcess(int32(pid))
	if err != nil {
		hwlog.Fatalf("loadmon: can not find own process: pid = %v", pid)
	}

	return &Monitor{
		proc:     proc,
		interval: interval,
	}
}

// Start begins sampling until the context is cancelled
func (m *Monitor) Start(ctx context.Context) {
	go hwutils.RepeatUntilPanicless(func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-time.After(m.interval):
			}

			pcnt, err := m.proc.CPUPercentWithContext(ctx)
			if err != nil {
				hwlog.Warnf("loadmon: get process cpu percent failed: %s", err)
				continue
			}

			m.lock.Lock()
			m.cpuPercent = pcnt
			m.lock.Unlock()
			hwlog.Debugf("loadmon: cpu percent is %.3f%%", pcnt)
		}
	})
}

// CPUPercent returns the latest CPU usage sample
func (m *Monitor) CPUPercent() float64 {
	m.lock.RLock()
	defer m.lock.RUnlock()
	return m.cpuPercent
}
