// Command sessiongate-loadtest measures token verification against a Redis
// directory and session-room fan-out through the realtime router.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/MrEthical07/sessiongate"
	"github.com/MrEthical07/sessiongate/permission"
	"github.com/MrEthical07/sessiongate/realtime"
	"github.com/MrEthical07/sessiongate/store"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func main() {
	var (
		users       = flag.Int("users", 10000, "number of users to seed")
		rooms       = flag.Int("rooms", 100, "number of session rooms for the fan-out phase")
		concurrency = flag.Int("concurrency", 256, "number of concurrent workers")
		ops         = flag.Int("ops", 200000, "operations per phase (verify + broadcast)")
		redisAddr   = flag.String("redis-addr", "", "redis address; if empty, REDIS_ADDR env or miniredis is used")
		prefix      = flag.String("prefix", "sgload", "directory key prefix")
		cacheSize   = flag.Int("cache", 0, "identity cache size; 0 disables the cache")
	)
	flag.Parse()

	if *users <= 0 || *rooms <= 0 || *concurrency <= 0 || *ops <= 0 {
		fmt.Fprintln(os.Stderr, "users, rooms, concurrency, and ops must be > 0")
		os.Exit(2)
	}

	ctx := context.Background()

	client, cleanup, err := openRedis(*redisAddr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "redis: %v\n", err)
		os.Exit(1)
	}
	defer cleanup()

	var directory store.Directory = store.NewRedisStore(client, *prefix)
	if *cacheSize > 0 {
		directory = store.NewCached(directory, *cacheSize, time.Minute)
	}

	cfg := sessiongate.DefaultConfig()
	cfg.JWT.PrivateKey = []byte("sessiongate-loadtest-secret-0123456789")
	engine, err := sessiongate.New().WithConfig(cfg).WithIdentityProvider(directory).WithLatencyHistograms(true).Build()
	if err != nil {
		fmt.Fprintf(os.Stderr, "engine: %v\n", err)
		os.Exit(1)
	}
	defer engine.Close()

	fmt.Printf("seeding %d users...\n", *users)
	startSeed := time.Now()
	identities := make([]sessiongate.Identity, 0, *users)
	tokens := make([]string, 0, *users)
	for i := 0; i < *users; i++ {
		u, err := directory.Create(ctx, store.User{
			Name:  fmt.Sprintf("user-%d", i),
			Email: fmt.Sprintf("user-%d@load.test", i),
			Role:  permission.RoleStudent,
		})
		if err != nil {
			fmt.Fprintf(os.Stderr, "create failed: %v\n", err)
			os.Exit(1)
		}
		tok, err := engine.IssueAccessToken(u.ID)
		if err != nil {
			fmt.Fprintf(os.Stderr, "issue failed: %v\n", err)
			os.Exit(1)
		}
		identities = append(identities, u.Identity())
		tokens = append(tokens, tok)
	}
	fmt.Printf("seeded in %s\n", time.Since(startSeed).Round(time.Millisecond))

	verifyStats := runPhase(*ops, *concurrency, 7919, func(r *rand.Rand) error {
		_, err := engine.Verify(ctx, tokens[r.Intn(len(tokens))])
		return err
	})

	router := realtime.NewRouter(engine, realtime.Options{Metrics: engine.Metrics(), QueueSize: 256})
	conns := acceptAll(ctx, router, identities, *rooms)
	stopDrain := drain(conns)

	broadcastStats := runPhase(*ops, *concurrency, 6151, func(r *rand.Rand) error {
		idx := r.Intn(len(conns))
		data, _ := json.Marshal(map[string]string{
			"sessionId": roomName(idx % *rooms),
			"message":   "ping",
		})
		return router.Dispatch(ctx, conns[idx], realtime.Frame{Event: realtime.EventSessionMessage, Data: data})
	})

	for _, c := range conns {
		router.Disconnect(ctx, c)
	}
	stopDrain()

	m := engine.Metrics()
	fmt.Println("---- results ----")
	printStats("verify", verifyStats)
	printStats("broadcast", broadcastStats)
	fmt.Printf("frames: delivered=%d dropped=%d\n", m.Value(sessiongate.MetricFrameDelivered), m.Value(sessiongate.MetricFrameDropped))
	if cached, ok := directory.(*store.Cached); ok {
		hits, misses := cached.Stats()
		fmt.Printf("cache: hits=%d misses=%d\n", hits, misses)
	}
}

func openRedis(addr string) (redis.UniversalClient, func(), error) {
	if addr == "" {
		addr = os.Getenv("REDIS_ADDR")
	}
	if addr != "" {
		client := redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{addr}})
		fmt.Printf("using redis at %s\n", addr)
		return client, func() { _ = client.Close() }, nil
	}

	mr, err := miniredis.Run()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to start miniredis: %w", err)
	}
	client := redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{mr.Addr()}})
	fmt.Printf("using miniredis at %s\n", mr.Addr())
	return client, func() {
		_ = client.Close()
		mr.Close()
	}, nil
}

func roomName(i int) string {
	return fmt.Sprintf("load-%d", i)
}

// acceptAll admits one connection per identity and joins it to a session
// room chosen round-robin.
func acceptAll(ctx context.Context, router *realtime.Router, identities []sessiongate.Identity, rooms int) []*realtime.Conn {
	conns := make([]*realtime.Conn, 0, len(identities))
	for i, id := range identities {
		c := router.Accept(ctx, id)
		data, _ := json.Marshal(roomName(i % rooms))
		_ = router.Dispatch(ctx, c, realtime.Frame{Event: realtime.EventJoinSession, Data: data})
		conns = append(conns, c)
	}
	return conns
}

// drain empties every outbound queue until its connection closes, standing
// in for the socket writers.
func drain(conns []*realtime.Conn) func() {
	var wg sync.WaitGroup
	for _, c := range conns {
		wg.Add(1)
		go func(c *realtime.Conn) {
			defer wg.Done()
			for {
				select {
				case <-c.Outbound():
				case <-c.Done():
					return
				}
			}
		}(c)
	}
	return wg.Wait
}

func runPhase(ops, concurrency int, seed int64, op func(r *rand.Rand) error) phaseStats {
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
			r := rand.New(rand.NewSource(time.Now().UnixNano() + int64(worker)*seed))
			for {
				i := int(atomic.AddInt64(&cursor, 1)) - 1
				if i >= ops {
					return
				}
				t0 := time.Now()
				err := op(r)
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
	if p <= 0 {
		return samples[0]
	}
	if p >= 100 {
		return samples[len(samples)-1]
	}
	return samples[(len(samples)-1)*p/100]
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
