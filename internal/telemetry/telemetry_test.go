package telemetry

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/danielpatrickdp/regen-loop/internal/entropy"
)

type stubSource struct {
	samples map[string]entropy.DimensionSample
	err     error
	delay   time.Duration
}

func (s stubSource) Measure(ctx context.Context, systemID string) (entropy.Batch, error) {
	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return entropy.Batch{}, ctx.Err()
		}
	}
	if s.err != nil {
		return entropy.Batch{}, s.err
	}
	return entropy.Batch{SystemID: systemID, Samples: s.samples, TakenAt: time.Now()}, nil
}

func TestCollectMergesSources(t *testing.T) {
	a := stubSource{samples: map[string]entropy.DimensionSample{
		"validation": {Errors: 2, Total: 10},
	}}
	b := stubSource{samples: map[string]entropy.DimensionSample{
		"semantic": {QualityRatio: 0.8, Total: 10},
	}}

	batch, err := Collect(context.Background(), "sys-a", time.Second, a, b)
	if err != nil {
		t.Fatalf("collect: %v", err)
	}
	if batch.SystemID != "sys-a" {
		t.Fatalf("unexpected system id %s", batch.SystemID)
	}
	if len(batch.Samples) != 2 {
		t.Fatalf("expected 2 merged samples, got %d", len(batch.Samples))
	}
	if batch.Samples["validation"].Errors != 2 {
		t.Fatal("validation sample lost in merge")
	}
}

func TestCollectAllOrNothing(t *testing.T) {
	ok := stubSource{samples: map[string]entropy.DimensionSample{
		"validation": {Errors: 1, Total: 10},
	}}
	bad := stubSource{err: errors.New("probe unreachable")}

	_, err := Collect(context.Background(), "sys-a", time.Second, ok, bad)
	if err == nil {
		t.Fatal("expected error when any source fails")
	}
}

func TestCollectNoSources(t *testing.T) {
	_, err := Collect(context.Background(), "sys-a", time.Second)
	if err == nil {
		t.Fatal("expected error with no sources")
	}
}

func TestCollectTimeout(t *testing.T) {
	slow := stubSource{
		delay:   200 * time.Millisecond,
		samples: map[string]entropy.DimensionSample{"validation": {}},
	}

	_, err := Collect(context.Background(), "sys-a", 20*time.Millisecond, slow)
	if err == nil {
		t.Fatal("expected timeout error")
	}
}

func TestSamplerDropsOverlappingTicks(t *testing.T) {
	var fired atomic.Int32
	release := make(chan struct{})
	var once sync.Once

	trigger := func(ctx context.Context, systemID string) error {
		fired.Add(1)
		<-release
		return nil
	}

	s := NewSampler(10*time.Millisecond, []string{"sys-a"}, trigger)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()

	// Several ticks elapse while the first trigger is blocked; all but the
	// first must be dropped.
	time.Sleep(80 * time.Millisecond)
	once.Do(func() { close(release) })
	cancel()
	<-done

	if got := fired.Load(); got != 1 {
		t.Fatalf("expected exactly 1 in-flight trigger, got %d", got)
	}
}

func TestSamplerFiresPerSystem(t *testing.T) {
	var mu sync.Mutex
	seen := map[string]int{}

	trigger := func(ctx context.Context, systemID string) error {
		mu.Lock()
		seen[systemID]++
		mu.Unlock()
		return nil
	}

	s := NewSampler(10*time.Millisecond, []string{"sys-a", "sys-b"}, trigger)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()

	time.Sleep(60 * time.Millisecond)
	cancel()
	<-done

	mu.Lock()
	defer mu.Unlock()
	if seen["sys-a"] == 0 || seen["sys-b"] == 0 {
		t.Fatalf("expected both systems sampled, got %v", seen)
	}
}
