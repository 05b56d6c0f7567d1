package main

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	mathrand "math/rand"
	"os"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	goToken "github.com/MrEthical07/goToken"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/pflag"
)

type sessionState struct {
	principal string
	pair      goToken.TokenPair
	mu        sync.Mutex
}

type options struct {
	sessions    int
	concurrency int
	ops         int
	races       int
	racers      int
	redisAddr   string
	prefix      string
}

func main() {
	var opts options
	flagSet := pflag.NewFlagSet("gotoken-loadtest", pflag.ContinueOnError)
	flagSet.IntVar(&opts.sessions, "sessions", 10000, "number of logins to seed")
	flagSet.IntVar(&opts.concurrency, "concurrency", 128, "number of concurrent workers")
	flagSet.IntVar(&opts.ops, "ops", 100000, "operations per phase (verify + rotate)")
	flagSet.IntVar(&opts.races, "races", 500, "refresh tokens to race in the replay phase")
	flagSet.IntVar(&opts.racers, "racers", 8, "concurrent presenters per raced token")
	flagSet.StringVar(&opts.redisAddr, "redis-addr", "", "redis address; if empty, REDIS_ADDR env or miniredis is used")
	flagSet.StringVar(&opts.prefix, "prefix", "gtload", "redis key prefix")

	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	if opts.sessions <= 0 || opts.concurrency <= 0 || opts.ops <= 0 || opts.racers <= 0 {
		fmt.Fprintln(os.Stderr, "sessions, concurrency, ops and racers must be > 0")
		os.Exit(2)
	}

	if err := run(context.Background(), opts); err != nil {
		fmt.Fprintf(os.Stderr, "loadtest: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, opts options) error {
	addr := opts.redisAddr
	if addr == "" {
		addr = os.Getenv("REDIS_ADDR")
	}

	var client redis.UniversalClient
	if addr == "" {
		mr, err := miniredis.Run()
		if err != nil {
			return fmt.Errorf("start miniredis: %w", err)
		}
		defer mr.Close()
		addr = mr.Addr()
		fmt.Printf("using miniredis at %s\n", addr)
	} else {
		fmt.Printf("using redis at %s\n", addr)
	}
	client = redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{addr}})
	defer client.Close()

	cfg := goToken.DefaultConfig()
	cfg.JWT.SigningMethod = "hs256"
	cfg.JWT.Access.PrivateKey = randomSecret()
	cfg.JWT.Refresh.PrivateKey = randomSecret()
	cfg.Session.RedisPrefix = opts.prefix
	cfg.Security.EnableRefreshThrottle = false
	cfg.Audit.Enabled = false

	m, err := goToken.New().
		WithConfig(cfg).
		WithRedis(client).
		WithMetricsEnabled(true).
		WithLatencyHistograms(true).
		Build()
	if err != nil {
		return fmt.Errorf("build manager: %w", err)
	}
	defer m.Close()

	states := make([]sessionState, opts.sessions)
	fmt.Printf("seeding %d logins...\n", opts.sessions)
	startSeed := time.Now()
	for i := range states {
		p := goToken.Principal{ID: fmt.Sprintf("user-%d", i), Role: goToken.RoleMember}
		pair, err := m.IssueLogin(ctx, p)
		if err != nil {
			return fmt.Errorf("issue login: %w", err)
		}
		states[i].principal = p.ID
		states[i].pair = pair
	}
	fmt.Printf("seeded in %s\n", time.Since(startSeed).Round(time.Millisecond))

	verifyStats := runPhase(opts.ops, opts.concurrency, func(r *mathrand.Rand, _ int) error {
		st := &states[r.Intn(len(states))]
		st.mu.Lock()
		token := st.pair.AccessToken
		st.mu.Unlock()
		_, err := m.VerifyAccess(ctx, token)
		return err
	})

	rotateStats := runPhase(opts.ops, opts.concurrency, func(r *mathrand.Rand, _ int) error {
		st := &states[r.Intn(len(states))]
		st.mu.Lock()
		defer st.mu.Unlock()
		pair, err := m.Refresh(ctx, st.pair.RefreshToken)
		if err != nil {
			return err
		}
		st.pair = pair
		return nil
	})

	races := opts.races
	if races > len(states) {
		races = len(states)
	}
	violations, raceLosses := runReplayRace(ctx, m, states[:races], opts.racers)

	fmt.Println("---- results ----")
	printStats("verify", verifyStats)
	printStats("rotate", rotateStats)
	fmt.Printf("replay race: tokens=%d racers=%d denied=%d double_winners=%d\n", races, opts.racers, raceLosses, violations)
	printSnapshot(m.MetricsSnapshot())

	if violations > 0 {
		return fmt.Errorf("%d refresh tokens were redeemed more than once", violations)
	}
	return nil
}

// runReplayRace presents each refresh token from several goroutines at once
// and counts tokens that produced more than one successful rotation.
func runReplayRace(ctx context.Context, m *goToken.Manager, states []sessionState, racers int) (violations, denied int64) {
	for i := range states {
		token := states[i].pair.RefreshToken

		var (
			wg      sync.WaitGroup
			winners int64
			start   = make(chan struct{})
		)
		for j := 0; j < racers; j++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				<-start
				_, err := m.Refresh(ctx, token)
				switch {
				case err == nil:
					atomic.AddInt64(&winners, 1)
				case errors.Is(err, goToken.ErrDenied):
					atomic.AddInt64(&denied, 1)
				}
			}()
		}
		close(start)
		wg.Wait()

		if winners > 1 {
			violations++
		}
	}
	return violations, denied
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

func runPhase(ops, concurrency int, op func(r *mathrand.Rand, worker int) error) phaseStats {
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
			r := mathrand.New(mathrand.NewSource(time.Now().UnixNano() + int64(worker)*7919))
			for {
				i := int(atomic.AddInt64(&cursor, 1)) - 1
				if i >= ops {
					return
				}
				t0 := time.Now()
				err := op(r, worker)
				d := time.Since(t0)
				if err != nil {
					atomic.AddInt64(&failures, 1)
				}
				mu.Lock()
				latencies = append(latencies, d)
				mu.Unlock()
			}
		}(w)
	}
	wg.Wait()
	return computeStats(time.Since(start), latencies, failures)
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

func printSnapshot(s goToken.MetricsSnapshot) {
	fmt.Printf("counters: refresh_success=%d reuse_detected=%d verify_success=%d verify_revoked=%d\n",
		s.Counters[goToken.MetricRefreshSuccess],
		s.Counters[goToken.MetricRefreshReuseDetected],
		s.Counters[goToken.MetricVerifySuccess],
		s.Counters[goToken.MetricVerifyRevoked],
	)
}

func randomSecret() []byte {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		panic(err)
	}
	return b
}
