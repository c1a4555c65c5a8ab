package authcore

import (
	"context"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestSweeperRunNow(t *testing.T) {
	engine, _, done := newTestEngine(t, func(cfg *Config) {
		cfg.Token.RefreshTTL = 20 * time.Millisecond
		cfg.Token.InactiveRetention = 0
	})
	defer done()

	ctx := context.Background()
	if _, err := engine.Login(ctx, testEmail, testPassword); err != nil {
		t.Fatalf("login failed: %v", err)
	}

	time.Sleep(40 * time.Millisecond)

	sweeper := NewSweeper(engine)
	result, err := sweeper.RunNow(ctx)
	if err != nil {
		t.Fatalf("sweep failed: %v", err)
	}
	if result.Expired != 1 {
		t.Fatalf("expected 1 expired record removed, got %d", result.Expired)
	}

	snap := engine.MetricsSnapshot()
	if snap.Counters[MetricSweepRun] != 1 {
		t.Fatalf("expected 1 sweep run counted, got %d", snap.Counters[MetricSweepRun])
	}
	if snap.Counters[MetricSweepDeleted] != 1 {
		t.Fatalf("expected 1 sweep deletion counted, got %d", snap.Counters[MetricSweepDeleted])
	}
}

func TestSweeperLogsCountsAndStats(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)

	cfg := testConfig(t)
	cfg.Token.RefreshTTL = 20 * time.Millisecond
	cfg.Token.InactiveRetention = 0

	provider := newMemoryProvider()
	seedUser(t, provider)

	mr, rdb := newTestRedis(t)
	defer mr.Close()
	defer rdb.Close()

	engine, err := New().
		WithConfig(cfg).
		WithRedis(rdb).
		WithUserProvider(provider).
		WithLogger(zap.New(core)).
		Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	defer engine.Close()

	ctx := context.Background()
	if _, err := engine.Login(ctx, testEmail, testPassword); err != nil {
		t.Fatalf("login failed: %v", err)
	}

	time.Sleep(40 * time.Millisecond)

	sweeper := NewSweeper(engine)
	if _, err := sweeper.RunNow(ctx); err != nil {
		t.Fatalf("sweep failed: %v", err)
	}

	entries := logs.FilterMessage("token sweep completed").All()
	if len(entries) != 1 {
		t.Fatalf("expected 1 sweep log entry, got %d", len(entries))
	}
	fields := entries[0].ContextMap()
	if fields["expired_removed"] != int64(1) {
		t.Fatalf("expected expired_removed=1, got %v", fields["expired_removed"])
	}
	if fields["inactive_removed"] != int64(0) {
		t.Fatalf("expected inactive_removed=0, got %v", fields["inactive_removed"])
	}
	if fields["active"] != int64(0) || fields["total"] != int64(0) {
		t.Fatalf("expected post-sweep stats in log, got %v", fields)
	}

	// A pass that removes nothing still reports its counts.
	if _, err := sweeper.RunNow(ctx); err != nil {
		t.Fatalf("second sweep failed: %v", err)
	}
	if n := len(logs.FilterMessage("token sweep completed").All()); n != 2 {
		t.Fatalf("expected 2 sweep log entries, got %d", n)
	}
}

func TestSweeperScheduledSweep(t *testing.T) {
	engine, _, done := newTestEngine(t, func(cfg *Config) {
		cfg.Sweeper.Interval = 20 * time.Millisecond
	})
	defer done()

	sweeper := NewSweeper(engine)
	sweeper.Start(context.Background())
	defer sweeper.Stop()

	deadline := time.After(2 * time.Second)
	for {
		if engine.MetricsSnapshot().Counters[MetricSweepRun] > 0 {
			return
		}
		select {
		case <-deadline:
			t.Fatal("expected at least one scheduled sweep")
		case <-time.After(10 * time.Millisecond):
		}
	}
}

func TestSweeperStopIdempotent(t *testing.T) {
	engine, _, done := newTestEngine(t, nil)
	defer done()

	sweeper := NewSweeper(engine)
	sweeper.Start(context.Background())
	sweeper.Stop()
	sweeper.Stop()
}

func TestSweeperStopBeforeStart(t *testing.T) {
	engine, _, done := newTestEngine(t, nil)
	defer done()

	sweeper := NewSweeper(engine)
	sweeper.Stop()

	// Start after Stop must not spin up the loop.
	sweeper.Start(context.Background())
	if n := engine.MetricsSnapshot().Counters[MetricSweepRun]; n != 0 {
		t.Fatalf("expected no sweeps, got %d", n)
	}
}

func TestSweeperStartIdempotent(t *testing.T) {
	engine, _, done := newTestEngine(t, nil)
	defer done()

	sweeper := NewSweeper(engine)
	ctx := context.Background()
	sweeper.Start(ctx)
	sweeper.Start(ctx)
	sweeper.Stop()
}

func TestSweeperContextCancelStopsLoop(t *testing.T) {
	engine, _, done := newTestEngine(t, func(cfg *Config) {
		cfg.Sweeper.Interval = 10 * time.Millisecond
	})
	defer done()

	ctx, cancel := context.WithCancel(context.Background())
	sweeper := NewSweeper(engine)
	sweeper.Start(ctx)
	cancel()

	// Stop must return promptly once the context killed the loop.
	doneCh := make(chan struct{})
	go func() {
		sweeper.Stop()
		close(doneCh)
	}()
	select {
	case <-doneCh:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop did not return after context cancellation")
	}
}
