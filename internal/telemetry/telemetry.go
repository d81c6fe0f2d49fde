// Package telemetry gathers raw dimension samples from one or more sources
// and drives the periodic sampling loop.
package telemetry

// #region imports
import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/danielpatrickdp/regen-loop/internal/entropy"
)

// #endregion

// #region source

// Source produces one raw telemetry batch for a system. Implementations
// include the HTTP probe client and the replay harness's scripted source.
type Source interface {
	Measure(ctx context.Context, systemID string) (entropy.Batch, error)
}

// #endregion

// #region collect

// Collect queries all sources concurrently and merges their samples into a
// single batch. Collection is all-or-nothing: any source failure fails the
// whole collection, since a partial picture would skew the weighted score.
// Later sources win when two report the same dimension.
func Collect(ctx context.Context, systemID string, timeout time.Duration, sources ...Source) (entropy.Batch, error) {
	if len(sources) == 0 {
		return entropy.Batch{}, fmt.Errorf("telemetry: no sources configured")
	}
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	batches := make([]entropy.Batch, len(sources))
	g, gctx := errgroup.WithContext(ctx)
	for i, src := range sources {
		i, src := i, src
		g.Go(func() error {
			b, err := src.Measure(gctx, systemID)
			if err != nil {
				return fmt.Errorf("telemetry: source %d: %w", i, err)
			}
			batches[i] = b
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return entropy.Batch{}, err
	}

	merged := entropy.Batch{
		SystemID: systemID,
		Samples:  make(map[string]entropy.DimensionSample),
		TakenAt:  time.Now().UTC(),
	}
	for _, b := range batches {
		for dim, sample := range b.Samples {
			merged.Samples[dim] = sample
		}
	}
	return merged, nil
}

// #endregion

// #region sampler

// TriggerFunc starts one cycle for a system. It blocks for the cycle's
// duration and returns the cycle's terminal error, if any.
type TriggerFunc func(ctx context.Context, systemID string) error

// Sampler fires the trigger for each configured system on a fixed interval.
// Ticks that arrive while a system's previous trigger is still running are
// dropped rather than queued, so load never builds a backlog of cycles.
type Sampler struct {
	interval time.Duration
	systems  []string
	trigger  TriggerFunc

	mu      sync.Mutex
	running map[string]bool
	wg      sync.WaitGroup
}

// NewSampler creates a sampler for the given systems.
func NewSampler(interval time.Duration, systems []string, trigger TriggerFunc) *Sampler {
	return &Sampler{
		interval: interval,
		systems:  systems,
		trigger:  trigger,
		running:  make(map[string]bool),
	}
}

// Run ticks until the context is cancelled, then waits for in-flight
// triggers to finish.
func (s *Sampler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.wg.Wait()
			return
		case <-ticker.C:
			for _, systemID := range s.systems {
				s.fire(ctx, systemID)
			}
		}
	}
}

func (s *Sampler) fire(ctx context.Context, systemID string) {
	s.mu.Lock()
	if s.running[systemID] {
		s.mu.Unlock()
		log.Printf("[SAMPLER] system=%s tick dropped, previous cycle still running", systemID)
		return
	}
	s.running[systemID] = true
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer func() {
			s.mu.Lock()
			delete(s.running, systemID)
			s.mu.Unlock()
		}()
		if err := s.trigger(ctx, systemID); err != nil {
			log.Printf("[SAMPLER] system=%s cycle error: %v", systemID, err)
		}
	}()
}

// #endregion
