package snapshot

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// PrunerConfig controls the scheduled snapshot cleanup
type PrunerConfig struct {
	Enabled  bool   `json:"enabled"`
	Schedule string `json:"schedule"` // cron expression, default hourly
	Keep     int    `json:"keep"`     // snapshots retained per presentation
}

// DefaultPrunerConfig returns the default cleanup settings
func DefaultPrunerConfig() PrunerConfig {
	return PrunerConfig{
		Enabled:  true,
		Schedule: "@hourly",
		Keep:     20,
	}
}

// Validate checks the pruner configuration
func (c PrunerConfig) Validate() error {
	if !c.Enabled {
		return nil
	}
	if c.Schedule == "" {
		return fmt.Errorf("pruner schedule cannot be empty")
	}
	if c.Keep < 1 {
		return fmt.Errorf("pruner must keep at least 1 snapshot (got %d)", c.Keep)
	}
	return nil
}

// Pruner periodically removes old snapshots on a cron schedule
type Pruner struct {
	store   *Store
	config  PrunerConfig
	cron    *cron.Cron
	mu      sync.Mutex
	running bool
	lastRun time.Time
}

// NewPruner creates a pruner over the given store
func NewPruner(store *Store, config PrunerConfig) *Pruner {
	return &Pruner{
		store:  store,
		config: config,
		cron:   cron.New(),
	}
}

// Start schedules the cleanup job
func (p *Pruner) Start() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.running {
		return fmt.Errorf("pruner is already running")
	}
	if !p.config.Enabled {
		log.Println("[Snapshot] Pruner disabled in configuration")
		return nil
	}

	if _, err := p.cron.AddFunc(p.config.Schedule, p.runOnce); err != nil {
		return fmt.Errorf("failed to schedule snapshot pruning: %w", err)
	}

	p.cron.Start()
	p.running = true
	log.Printf("[Snapshot] Pruner started (schedule %s, keep %d)", p.config.Schedule, p.config.Keep)
	return nil
}

// Stop halts the schedule and waits for a running job to finish
func (p *Pruner) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.running {
		return
	}
	ctx := p.cron.Stop()
	p.running = false

	select {
	case <-ctx.Done():
	case <-time.After(10 * time.Second):
		log.Println("[Snapshot] Pruner stop timed out")
	}
}

func (p *Pruner) runOnce() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	removed, err := p.store.Prune(ctx, p.config.Keep)
	if err != nil {
		log.Printf("[Snapshot] Prune failed: %v", err)
		return
	}

	p.mu.Lock()
	p.lastRun = time.Now()
	p.mu.Unlock()

	if removed > 0 {
		log.Printf("[Snapshot] Pruned %d old snapshots", removed)
	}
}
