package processor

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"
)

// FaultConfig is the runtime fault-injection knob. It exists for testing the
// requeue and retry paths without real infrastructure faults.
type FaultConfig struct {
	Delay       time.Duration
	FailureRate float64
}

func (c FaultConfig) Validate() error {
	if c.Delay < 0 {
		return fmt.Errorf("delay must not be negative, got %s", c.Delay)
	}
	if c.FailureRate < 0 || c.FailureRate > 1 {
		return fmt.Errorf("failure_rate must be within [0, 1], got %v", c.FailureRate)
	}
	return nil
}

// Faults is safe for concurrent use. A nil *Faults injects nothing.
type Faults struct {
	mu    sync.RWMutex
	cfg   FaultConfig
	roll  func() float64
	sleep func(ctx context.Context, d time.Duration) error
}

func NewFaults(cfg FaultConfig) (*Faults, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Faults{
		cfg:   cfg,
		roll:  rand.Float64,
		sleep: sleepCtx,
	}, nil
}

func (f *Faults) Set(cfg FaultConfig) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	f.mu.Lock()
	f.cfg = cfg
	f.mu.Unlock()
	return nil
}

func (f *Faults) Config() FaultConfig {
	if f == nil {
		return FaultConfig{}
	}
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.cfg
}

// Wait serves the configured artificial delay.
func (f *Faults) Wait(ctx context.Context) error {
	cfg := f.Config()
	if cfg.Delay <= 0 {
		return nil
	}
	return f.sleep(ctx, cfg.Delay)
}

// Trip returns ErrInjected with the configured probability.
func (f *Faults) Trip() error {
	cfg := f.Config()
	if cfg.FailureRate <= 0 {
		return nil
	}
	if f.roll() < cfg.FailureRate {
		return ErrInjected
	}
	return nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
