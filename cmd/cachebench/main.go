package main

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/d60-Lab/friendzone/config"
	"github.com/d60-Lab/friendzone/internal/cache"
	"github.com/d60-Lab/friendzone/internal/service"
	"github.com/d60-Lab/friendzone/internal/store"
	"github.com/d60-Lab/friendzone/pkg/database"
	"github.com/d60-Lab/friendzone/pkg/logger"
)

func main() {
	ctx := context.Background()
	cfg := must(config.Load())
	mustDo(logger.Init(cfg.App.Env, cfg.Log.Level))
	defer logger.Sync()

	const (
		userCount   = 2000
		inboxes     = 50
		perInbox    = 40
		requestsRun = 3000
	)

	client := must(database.InitRedis(ctx, cfg))
	defer client.Close()

	// 文档存储用内存，只比较显示名的取法
	st := store.NewMemoryStore()
	locker := service.NewKeyLocker()
	opts := []service.Option{service.WithBcryptCost(4)}

	plainDir := service.NewDirectoryService(st, locker, nil, opts...)
	names := cache.NewNameCache(client, cfg.Redis.KeyPrefix+"-bench", cfg.Redis.CacheTTL)
	cachedDir := service.NewDirectoryService(st, locker, names, opts...)

	fmt.Println("Setting up test data...")
	ids := make([]string, userCount)
	for i := range ids {
		u := must(plainDir.Create(ctx, service.CreateUserInput{
			Name:     fmt.Sprintf("user_%d", i),
			Email:    fmt.Sprintf("user_%d@example.com", i),
			Password: "secret",
		}))
		ids[i] = u.ID
	}

	msgs := service.NewMessagingService(st, locker, plainDir, opts...)
	rnd := rand.New(rand.NewSource(42))
	for i := 0; i < inboxes; i++ {
		for j := 0; j < perInbox; j++ {
			peer := ids[rnd.Intn(userCount)]
			must(msgs.Send(ctx, peer, ids[i], "hello"))
		}
	}
	fmt.Printf("Test data ready: %d users, %d inboxes x %d messages\n", userCount, inboxes, perInbox)

	reqs := make([]string, requestsRun)
	for i := range reqs {
		reqs[i] = ids[rnd.Intn(inboxes)]
	}

	noCache := runScenario(ctx, service.NewMessagingService(st, locker, plainDir, opts...), reqs, client, nil)
	withCache := runScenario(ctx, service.NewMessagingService(st, locker, cachedDir, opts...), reqs, client, names)

	fmt.Printf("\nConversation list latency (%d req across %d inboxes, backend=%s + Redis names)\n", requestsRun, inboxes, cfg.Store.Backend)
	for _, r := range []struct {
		label string
		res   scenarioResult
	}{{"No cache", noCache}, {"Name cache", withCache}} {
		fmt.Printf("%-12s avg=%v p95=%v p99=%v hits=%d misses=%d cache_keys=%d mem=%s\n",
			r.label, avg(r.res.durations), pct(r.res.durations, 0.95), pct(r.res.durations, 0.99),
			r.res.hits, r.res.misses, r.res.cacheKeys, formatBytes(r.res.memoryBytes),
		)
	}

	mustDo(names.Invalidate(ctx, ids...))
}

type scenarioResult struct {
	durations   []time.Duration
	hits        int64
	misses      int64
	cacheKeys   int
	memoryBytes int64
}

func runScenario(ctx context.Context, svc service.MessagingService, reqs []string, client *redis.Client, names *cache.NameCache) scenarioResult {
	durations := make([]time.Duration, 0, len(reqs))
	for _, userID := range reqs {
		st := time.Now()
		if _, err := svc.Conversations(ctx, userID); err != nil {
			fmt.Fprintf(os.Stderr, "conversations %s: %v\n", userID, err)
			continue
		}
		durations = append(durations, time.Since(st))
	}

	res := scenarioResult{durations: durations}
	if names != nil {
		res.hits, res.misses = names.Counters()
	}
	if n, err := client.DBSize(ctx).Result(); err == nil {
		res.cacheKeys = int(n)
	}
	if info, err := client.Info(ctx, "memory").Result(); err == nil {
		res.memoryBytes = parseRedisMemory(info)
	}
	return res
}

// parseRedisMemory 从 INFO memory 中取 used_memory
func parseRedisMemory(info string) int64 {
	for _, line := range strings.Split(info, "\n") {
		line = strings.TrimSpace(line)
		if v, ok := strings.CutPrefix(line, "used_memory:"); ok {
			n, _ := strconv.ParseInt(v, 10, 64)
			return n
		}
	}
	return 0
}

func formatBytes(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}

func avg(vs []time.Duration) time.Duration {
	if len(vs) == 0 {
		return 0
	}
	var sum time.Duration
	for _, v := range vs {
		sum += v
	}
	return sum / time.Duration(len(vs))
}

func pct(vs []time.Duration, p float64) time.Duration {
	if len(vs) == 0 {
		return 0
	}
	sorted := append([]time.Duration(nil), vs...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	idx := int(math.Ceil(p*float64(len(sorted)))) - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}

func must[T any](v T, err error) T {
	if err != nil {
		panic(err)
	}
	return v
}

func mustDo(err error) {
	if err != nil {
		panic(err)
	}
}
