package prometheus

import (
	"context"
	"sync"
	"time"

	"github.com/Swind/go-cycle-dispatcher/core"
	prom "github.com/prometheus/client_golang/prometheus"
)

// DispatcherSnapshotProvider provides current dispatcher stats snapshots.
type DispatcherSnapshotProvider interface {
	Stats() core.DispatcherStats
}

// FrameCounter reports how many frames a host loop has completed.
type FrameCounter interface {
	Frames() int64
}

// SnapshotPoller periodically exports dispatcher Stats() snapshots into Prometheus gauges.
type SnapshotPoller struct {
	interval time.Duration

	dispatchersMu sync.RWMutex
	dispatchers   map[string]DispatcherSnapshotProvider

	hostsMu sync.RWMutex
	hosts   map[string]FrameCounter

	pending         *prom.GaugeVec
	runningRoutines *prom.GaugeVec
	delayed         *prom.GaugeVec
	executed        *prom.GaugeVec
	rejected        *prom.GaugeVec
	closed          *prom.GaugeVec
	hostFrames      *prom.GaugeVec

	stateMu sync.Mutex
	running bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// NewSnapshotPoller creates a snapshot poller and registers its collectors.
func NewSnapshotPoller(namespace string, reg prom.Registerer, interval time.Duration) (*SnapshotPoller, error) {
	if namespace == "" {
		namespace = "dispatch"
	}
	if reg == nil {
		reg = prom.DefaultRegisterer
	}
	if interval <= 0 {
		interval = time.Second
	}

	pending := prom.NewGaugeVec(prom.GaugeOpts{
		Namespace: namespace,
		Name:      "pending",
		Help:      "Queued items per dispatcher and cycle.",
	}, []string{"dispatcher", "cycle"})
	runningRoutines := prom.NewGaugeVec(prom.GaugeOpts{
		Namespace: namespace,
		Name:      "running_routines",
		Help:      "Routines started and not yet finished.",
	}, []string{"dispatcher"})
	delayed := prom.NewGaugeVec(prom.GaugeOpts{
		Namespace: namespace,
		Name:      "delayed",
		Help:      "Items waiting for their delay to elapse.",
	}, []string{"dispatcher"})
	executed := prom.NewGaugeVec(prom.GaugeOpts{
		Namespace: namespace,
		Name:      "executed_snapshot",
		Help:      "Payload invocations snapshot.",
	}, []string{"dispatcher"})
	rejected := prom.NewGaugeVec(prom.GaugeOpts{
		Namespace: namespace,
		Name:      "rejected_snapshot",
		Help:      "Rejected submission count snapshot.",
	}, []string{"dispatcher"})
	closed := prom.NewGaugeVec(prom.GaugeOpts{
		Namespace: namespace,
		Name:      "closed",
		Help:      "Dispatcher closed state (1=closed, 0=open).",
	}, []string{"dispatcher"})
	hostFrames := prom.NewGaugeVec(prom.GaugeOpts{
		Namespace: namespace,
		Name:      "host_frames",
		Help:      "Frames completed by a host loop.",
	}, []string{"host"})

	var err error
	if pending, err = registerCollector(reg, pending); err != nil {
		return nil, err
	}
	if runningRoutines, err = registerCollector(reg, runningRoutines); err != nil {
		return nil, err
	}
	if delayed, err = registerCollector(reg, delayed); err != nil {
		return nil, err
	}
	if executed, err = registerCollector(reg, executed); err != nil {
		return nil, err
	}
	if rejected, err = registerCollector(reg, rejected); err != nil {
		return nil, err
	}
	if closed, err = registerCollector(reg, closed); err != nil {
		return nil, err
	}
	if hostFrames, err = registerCollector(reg, hostFrames); err != nil {
		return nil, err
	}

	return &SnapshotPoller{
		interval:        interval,
		dispatchers:     make(map[string]DispatcherSnapshotProvider),
		hosts:           make(map[string]FrameCounter),
		pending:         pending,
		runningRoutines: runningRoutines,
		delayed:         delayed,
		executed:        executed,
		rejected:        rejected,
		closed:          closed,
		hostFrames:      hostFrames,
	}, nil
}

// AddDispatcher adds or replaces a dispatcher snapshot provider by name.
func (p *SnapshotPoller) AddDispatcher(name string, provider DispatcherSnapshotProvider) {
	if p == nil || provider == nil {
		return
	}
	name = normalizeLabel(name, "dispatcher")
	p.dispatchersMu.Lock()
	p.dispatchers[name] = provider
	p.dispatchersMu.Unlock()
}

// AddHost adds or replaces a host loop frame counter by name.
func (p *SnapshotPoller) AddHost(name string, host FrameCounter) {
	if p == nil || host == nil {
		return
	}
	name = normalizeLabel(name, "host")
	p.hostsMu.Lock()
	p.hosts[name] = host
	p.hostsMu.Unlock()
}

// Start begins periodic polling; repeated calls are no-ops.
func (p *SnapshotPoller) Start(ctx context.Context) {
	if p == nil {
		return
	}

	p.stateMu.Lock()
	if p.running {
		p.stateMu.Unlock()
		return
	}
	pollCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.done = make(chan struct{})
	p.running = true
	done := p.done
	p.stateMu.Unlock()

	go p.loop(pollCtx, done)
}

// Stop stops periodic polling; repeated calls are safe.
func (p *SnapshotPoller) Stop() {
	if p == nil {
		return
	}

	p.stateMu.Lock()
	if !p.running {
		p.stateMu.Unlock()
		return
	}
	cancel := p.cancel
	done := p.done
	p.stateMu.Unlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}

	p.stateMu.Lock()
	p.running = false
	p.cancel = nil
	p.done = nil
	p.stateMu.Unlock()
}

func (p *SnapshotPoller) loop(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.CollectOnce()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.CollectOnce()
		}
	}
}

// CollectOnce exports one snapshot of every registered provider.
func (p *SnapshotPoller) CollectOnce() {
	p.dispatchersMu.RLock()
	for name, provider := range p.dispatchers {
		stats := provider.Stats()
		for cycle, n := range stats.PendingByCycle {
			p.pending.WithLabelValues(name, normalizeLabel(cycle, "unknown")).Set(float64(n))
		}
		p.runningRoutines.WithLabelValues(name).Set(float64(stats.RunningRoutines))
		p.delayed.WithLabelValues(name).Set(float64(stats.Delayed))
		p.executed.WithLabelValues(name).Set(float64(stats.Executed))
		p.rejected.WithLabelValues(name).Set(float64(stats.Rejected))
		if stats.Closed {
			p.closed.WithLabelValues(name).Set(1)
		} else {
			p.closed.WithLabelValues(name).Set(0)
		}
	}
	p.dispatchersMu.RUnlock()

	p.hostsMu.RLock()
	for name, host := range p.hosts {
		p.hostFrames.WithLabelValues(name).Set(float64(host.Frames()))
	}
	p.hostsMu.RUnlock()
}
