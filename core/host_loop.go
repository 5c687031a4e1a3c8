package core

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"
)

// ErrHostLoopStarted is returned by Start on a loop that already ran.
var ErrHostLoopStarted = errors.New("dispatch: host loop already started")

// HostLoopConfig configures frame pacing for HostLoop.
type HostLoopConfig struct {
	// FrameInterval is the target time between frames. Defaults to 16ms.
	FrameInterval time.Duration

	// FixedStep is the simulated time consumed by one FixedUpdate drain.
	// Defaults to 20ms.
	FixedStep time.Duration

	// MaxFixedStepsPerFrame caps FixedUpdate drains in one frame. Backlog
	// beyond the cap is dropped. Defaults to 5.
	MaxFixedStepsPerFrame int

	// TickInterval is the time between Tick drains. Defaults to 100ms.
	TickInterval time.Duration

	// ShutdownOnStop shuts the dispatcher down when the loop exits.
	ShutdownOnStop bool

	// Logger defaults to the dispatcher's logger.
	Logger Logger
}

// DefaultHostLoopConfig returns the default frame pacing.
func DefaultHostLoopConfig() *HostLoopConfig {
	return &HostLoopConfig{
		FrameInterval:         16 * time.Millisecond,
		FixedStep:             20 * time.Millisecond,
		MaxFixedStepsPerFrame: 5,
		TickInterval:          100 * time.Millisecond,
		ShutdownOnStop:        true,
	}
}

// HostLoop binds a dedicated goroutine to a Dispatcher and drains its cycles
// once per frame, the way a game engine's player loop would. The goroutine
// is the dispatcher's main context.
//
// Frame order: FixedUpdate (zero or more times, fixed-step accumulator),
// Update, LateUpdate, then Tick when TickInterval has elapsed.
type HostLoop struct {
	d      *Dispatcher
	config HostLoopConfig
	logger Logger

	// Lifecycle control
	ctx     context.Context
	cancel  context.CancelFunc
	started atomic.Bool
	stopped chan struct{}
	once    sync.Once

	frames atomic.Int64

	// frameMu guards frameSignal, which is closed and replaced after every frame.
	frameMu     sync.Mutex
	frameSignal chan struct{}
}

// NewHostLoop creates a loop for d. A nil config uses DefaultHostLoopConfig.
func NewHostLoop(d *Dispatcher, config *HostLoopConfig) *HostLoop {
	if config == nil {
		config = DefaultHostLoopConfig()
	}
	cfg := *config
	defaults := DefaultHostLoopConfig()
	if cfg.FrameInterval <= 0 {
		cfg.FrameInterval = defaults.FrameInterval
	}
	if cfg.FixedStep <= 0 {
		cfg.FixedStep = defaults.FixedStep
	}
	if cfg.MaxFixedStepsPerFrame <= 0 {
		cfg.MaxFixedStepsPerFrame = defaults.MaxFixedStepsPerFrame
	}
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = defaults.TickInterval
	}

	logger := cfg.Logger
	if logger == nil {
		logger = d.logger
	}

	return &HostLoop{
		d:           d,
		config:      cfg,
		logger:      logger,
		stopped:     make(chan struct{}),
		frameSignal: make(chan struct{}),
	}
}

// Dispatcher returns the dispatcher this loop drains.
func (h *HostLoop) Dispatcher() *Dispatcher {
	return h.d
}

// Start spawns the loop goroutine. The loop runs until ctx ends, Stop is
// called or the dispatcher shuts down.
func (h *HostLoop) Start(ctx context.Context) error {
	if !h.started.CompareAndSwap(false, true) {
		return ErrHostLoopStarted
	}
	h.ctx, h.cancel = context.WithCancel(ctx)
	go h.runLoop()
	return nil
}

// Stop ends the loop and waits for the current frame to finish.
// Calling Stop on a loop that never started is a no-op.
func (h *HostLoop) Stop() {
	if !h.started.Load() {
		return
	}
	h.once.Do(func() {
		h.cancel()
		<-h.stopped
	})
}

// Frames returns the number of completed frames.
func (h *HostLoop) Frames() int64 {
	return h.frames.Load()
}

// Done is closed when the loop goroutine has exited.
func (h *HostLoop) Done() <-chan struct{} {
	return h.stopped
}

// WaitFrames blocks until n more frames have completed, the loop exits or
// ctx ends.
func (h *HostLoop) WaitFrames(ctx context.Context, n int) error {
	target := h.frames.Load() + int64(n)
	for h.frames.Load() < target {
		h.frameMu.Lock()
		signal := h.frameSignal
		h.frameMu.Unlock()

		if h.frames.Load() >= target {
			return nil
		}
		select {
		case <-signal:
		case <-h.stopped:
			if h.frames.Load() >= target {
				return nil
			}
			return ErrEngineShutdown
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// WaitStopped blocks until the loop goroutine exits or ctx ends.
func (h *HostLoop) WaitStopped(ctx context.Context) error {
	select {
	case <-h.stopped:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// runLoop is the main context: every drain happens on this goroutine.
func (h *HostLoop) runLoop() {
	defer close(h.stopped)
	defer func() {
		if h.config.ShutdownOnStop {
			h.d.Shutdown()
		}
	}()

	ticker := time.NewTicker(h.config.FrameInterval)
	defer ticker.Stop()

	clock := h.d.Clock()
	last := clock.Now()
	var fixedAcc, tickAcc time.Duration

	h.logger.Info("host loop started",
		F("dispatcher", h.d.Name()),
		F("frame_interval", h.config.FrameInterval),
	)

	for {
		select {
		case <-h.ctx.Done():
			h.logger.Info("host loop stopped",
				F("dispatcher", h.d.Name()),
				F("frames", h.frames.Load()),
			)
			return
		case <-h.d.shutdownChan:
			h.logger.Info("host loop exiting after dispatcher shutdown",
				F("dispatcher", h.d.Name()),
				F("frames", h.frames.Load()),
			)
			return
		case <-ticker.C:
		}

		now := clock.Now()
		delta := now.Sub(last)
		last = now
		if delta < 0 {
			delta = 0
		}

		fixedAcc += delta
		steps := 0
		for fixedAcc >= h.config.FixedStep && steps < h.config.MaxFixedStepsPerFrame {
			h.drain(CycleFixedUpdate)
			fixedAcc -= h.config.FixedStep
			steps++
		}
		if fixedAcc >= h.config.FixedStep {
			h.logger.Debug("fixed update backlog dropped",
				F("dispatcher", h.d.Name()),
				F("backlog", fixedAcc),
			)
			fixedAcc = 0
		}

		h.drain(CycleUpdate)
		h.drain(CycleLateUpdate)

		tickAcc += delta
		if tickAcc >= h.config.TickInterval {
			h.drain(CycleTick)
			tickAcc = 0
		}

		h.frames.Add(1)
		h.frameMu.Lock()
		close(h.frameSignal)
		h.frameSignal = make(chan struct{})
		h.frameMu.Unlock()
	}
}

func (h *HostLoop) drain(cycle Cycle) {
	if err := h.d.Drain(cycle); err != nil {
		h.logger.Warn("drain failed",
			F("dispatcher", h.d.Name()),
			F("cycle", cycle.String()),
			F("error", err),
		)
	}
}
