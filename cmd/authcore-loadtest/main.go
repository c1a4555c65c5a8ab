// Command authcore-loadtest measures token issuance and rotation
// throughput against Redis. With no -redis-addr it runs fully
// self-contained on miniredis.
package main

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"flag"
	"fmt"
	"os"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/authcore-io/authcore"
)

func main() {
	var (
		tokens      = flag.Int("tokens", 10000, "number of refresh tokens to seed")
		concurrency = flag.Int("concurrency", 128, "number of concurrent workers")
		ops         = flag.Int("ops", 50000, "rotations to perform")
		redisAddr   = flag.String("redis-addr", "", "redis address; if empty, REDIS_ADDR env or miniredis is used")
	)
	flag.Parse()

	if *tokens <= 0 || *concurrency <= 0 || *ops <= 0 {
		fmt.Fprintln(os.Stderr, "tokens, concurrency, and ops must be > 0")
		os.Exit(2)
	}

	ctx := context.Background()

	addr := *redisAddr
	if addr == "" {
		addr = os.Getenv("REDIS_ADDR")
	}

	var (
		cleanup func()
		client  redis.UniversalClient
	)
	if addr == "" {
		mr, err := miniredis.Run()
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to start miniredis: %v\n", err)
			os.Exit(1)
		}
		client = redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{mr.Addr()}})
		cleanup = func() {
			_ = client.Close()
			mr.Close()
		}
		fmt.Printf("using miniredis at %s\n", mr.Addr())
	} else {
		client = redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{addr}})
		cleanup = func() { _ = client.Close() }
		fmt.Printf("using redis at %s\n", addr)
	}
	defer cleanup()

	engine, err := buildEngine(client)
	if err != nil {
		fmt.Fprintf(os.Stderr, "engine build failed: %v\n", err)
		os.Exit(1)
	}
	defer engine.Close()

	fmt.Printf("seeding %d tokens...\n", *tokens)
	startSeed := time.Now()
	refreshTokens := make([]string, *tokens)
	for i := 0; i < *tokens; i++ {
		pair, err := engine.Issue(ctx, fmt.Sprintf("user-%d", i))
		if err != nil {
			fmt.Fprintf(os.Stderr, "seed issue failed: %v\n", err)
			os.Exit(1)
		}
		refreshTokens[i] = pair.RefreshToken
	}
	fmt.Printf("seeded in %s\n", time.Since(startSeed).Round(time.Millisecond))

	stats := runRotationPhase(ctx, engine, refreshTokens, *ops, *concurrency)

	fmt.Println("---- results ----")
	printStats("rotate", stats)

	tokenStats, err := engine.TokenStats(ctx)
	if err == nil {
		fmt.Printf("store: active=%d inactive=%d total=%d\n",
			tokenStats.Active, tokenStats.Inactive, tokenStats.Total)
	}
}

func buildEngine(client redis.UniversalClient) (*authcore.Engine, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, err
	}

	cfg := authcore.DefaultConfig()
	cfg.JWT.PrivateKey = priv
	cfg.JWT.PublicKey = pub
	// Throttling would dominate a tight benchmark loop.
	cfg.Security.EnableRefreshThrottle = false

	return authcore.New().
		WithConfig(cfg).
		WithRedis(client).
		WithUserProvider(benchProvider{}).
		Build()
}

// runRotationPhase has each worker chain rotations on its own token so
// every Refresh call presents a currently-active token.
func runRotationPhase(ctx context.Context, engine *authcore.Engine, seed []string, ops, concurrency int) phaseStats {
	var (
		wg        sync.WaitGroup
		cursor    int64
		failures  int64
		latencies = make([]time.Duration, 0, ops)
		mu        sync.Mutex
	)

	start := time.Now()
	for w := 0; w < concurrency; w++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			current := seed[worker%len(seed)]
			for {
				i := int(atomic.AddInt64(&cursor, 1)) - 1
				if i >= ops {
					return
				}

				t0 := time.Now()
				pair, err := engine.Refresh(ctx, current)
				d := time.Since(t0)
				if err != nil {
					atomic.AddInt64(&failures, 1)
				} else {
					current = pair.RefreshToken
				}

				mu.Lock()
				latencies = append(latencies, d)
				mu.Unlock()
			}
		}(w)
	}
	wg.Wait()
	total := time.Since(start)
	return computeStats(total, latencies, failures)
}

type phaseStats struct {
	total    time.Duration
	ops      int
	failures int64
	p50      time.Duration
	p95      time.Duration
	p99      time.Duration
	opsPerS  float64
}

func computeStats(total time.Duration, samples []time.Duration, failures int64) phaseStats {
	if len(samples) == 0 {
		return phaseStats{total: total}
	}
	sort.Slice(samples, func(i, j int) bool { return samples[i] < samples[j] })
	return phaseStats{
		total:    total,
		ops:      len(samples),
		failures: failures,
		p50:      percentile(samples, 50),
		p95:      percentile(samples, 95),
		p99:      percentile(samples, 99),
		opsPerS:  float64(len(samples)) / total.Seconds(),
	}
}

func percentile(samples []time.Duration, p int) time.Duration {
	if len(samples) == 0 {
		return 0
	}
	if p <= 0 {
		return samples[0]
	}
	if p >= 100 {
		return samples[len(samples)-1]
	}
	idx := (len(samples) - 1) * p / 100
	return samples[idx]
}

func printStats(name string, s phaseStats) {
	fmt.Printf("%s: ops=%d failures=%d total=%s ops/sec=%.0f p50=%s p95=%s p99=%s\n",
		name,
		s.ops,
		s.failures,
		s.total.Round(time.Millisecond),
		s.opsPerS,
		s.p50.Round(time.Microsecond),
		s.p95.Round(time.Microsecond),
		s.p99.Round(time.Microsecond),
	)
}

// benchProvider satisfies the user provider without a real account
// database; the benchmark never exercises credential paths.
type benchProvider struct{}

func (benchProvider) GetUserByEmail(context.Context, string) (authcore.UserRecord, error) {
	return authcore.UserRecord{}, authcore.ErrUserNotFound
}

func (benchProvider) GetUserByID(context.Context, string) (authcore.UserRecord, error) {
	return authcore.UserRecord{}, authcore.ErrUserNotFound
}

func (benchProvider) UpdatePasswordHash(context.Context, string, string) error {
	return nil
}
