package main

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"os"
	"sort"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/d60-Lab/friendzone/config"
	"github.com/d60-Lab/friendzone/internal/app"
	"github.com/d60-Lab/friendzone/internal/model"
	"github.com/d60-Lab/friendzone/internal/service"
	"github.com/d60-Lab/friendzone/pkg/logger"
)

func must[T any](v T, err error) T {
	if err != nil {
		panic(err)
	}
	return v
}

func envInt(name string, def int) int {
	if s := os.Getenv(name); s != "" {
		if n, err := strconv.Atoi(s); err == nil && n > 0 {
			return n
		}
	}
	return def
}

// recorder 按操作名收集延迟
type recorder struct {
	mu   sync.Mutex
	recs map[string][]time.Duration
}

func (r *recorder) add(op string, d time.Duration) {
	r.mu.Lock()
	r.recs[op] = append(r.recs[op], d)
	r.mu.Unlock()
}

func pct(vs []time.Duration, p float64) time.Duration {
	if len(vs) == 0 {
		return 0
	}
	xs := append([]time.Duration(nil), vs...)
	sort.Slice(xs, func(i, j int) bool { return xs[i] < xs[j] })
	k := int(math.Ceil(p*float64(len(xs)))) - 1
	if k < 0 {
		k = 0
	}
	if k >= len(xs) {
		k = len(xs) - 1
	}
	return xs[k]
}

func main() {
	cfg := must(config.Load())
	if err := logger.Init(cfg.App.Env, cfg.Log.Level); err != nil {
		panic(err)
	}
	defer logger.Sync()

	ctx := context.Background()
	a := must(app.New(ctx, cfg))
	defer func() {
		if err := a.Close(); err != nil {
			logger.Error("close app", zap.Error(err))
		}
	}()

	N := envInt("N", 200)
	OPS := envInt("OPS", 2000)
	CONC := envInt("CONC", 8)

	// seed users
	users := make([]*model.User, N)
	seedStart := time.Now()
	for i := 0; i < N; i++ {
		users[i] = must(a.Directory.Create(ctx, service.CreateUserInput{
			Name:     fmt.Sprintf("bench-%d", i),
			Email:    fmt.Sprintf("bench-%d-%d@example.com", i, seedStart.UnixNano()),
			Password: "p",
		}))
	}
	seedDur := time.Since(seedStart)

	posts := make([]*model.Post, 0, N)
	for i := 0; i < N; i += 10 {
		posts = append(posts, must(a.Feed.CreatePost(ctx, users[i].ID, fmt.Sprintf("post from %d", i))))
	}

	rec := &recorder{recs: make(map[string][]time.Duration)}
	feed := make(chan int, OPS)
	for i := 0; i < OPS; i++ {
		feed <- i
	}
	close(feed)

	t0 := time.Now()
	g, gctx := errgroup.WithContext(ctx)
	for w := 0; w < CONC; w++ {
		seed := int64(w) + t0.UnixNano()
		g.Go(func() error {
			rng := rand.New(rand.NewSource(seed))
			for i := range feed {
				from := users[rng.Intn(N)]
				to := users[rng.Intn(N)]
				st := time.Now()
				switch i % 4 {
				case 0:
					if from.ID == to.ID {
						continue
					}
					req, err := a.Friends.SendRequest(gctx, from.ID, to.ID)
					if err != nil {
						// 重复申请和已是好友属于正常拒绝
						continue
					}
					if _, err := a.Friends.Accept(gctx, req.ID); err != nil {
						return fmt.Errorf("accept %s: %w", req.ID, err)
					}
					rec.add("request+accept", time.Since(st))
				case 1:
					p := posts[rng.Intn(len(posts))]
					if _, err := a.Feed.ToggleLike(gctx, p.ID, from.ID); err != nil {
						return err
					}
					rec.add("toggleLike", time.Since(st))
				case 2:
					if _, err := a.Messaging.Send(gctx, from.ID, to.ID, "ping"); err != nil {
						return err
					}
					rec.add("send", time.Since(st))
				case 3:
					if _, err := a.Messaging.Conversations(gctx, from.ID); err != nil {
						return err
					}
					rec.add("conversations", time.Since(st))
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		logger.Error("bench failed", zap.Error(err))
		os.Exit(1)
	}
	runDur := time.Since(t0)

	// 校验好友关系对称
	asym := 0
	edges := 0
	for _, u := range users {
		fresh := must(a.Directory.FindByID(ctx, u.ID))
		for _, f := range fresh.Friends {
			edges++
			ok := must(a.Friends.AreFriends(ctx, f, u.ID))
			if !ok {
				asym++
			}
		}
	}

	q0 := time.Now()
	feedPosts := must(a.Feed.ListFeed(ctx))
	feedDur := time.Since(q0)

	fmt.Printf("backend=%s N=%d OPS=%d CONC=%d\n", cfg.Store.Backend, N, OPS, CONC)
	fmt.Printf("seed users: %v (%v/user)\n", seedDur, seedDur/time.Duration(N))
	fmt.Printf("mixed ops total: %v\n", runDur)
	ops := make([]string, 0, len(rec.recs))
	for op := range rec.recs {
		ops = append(ops, op)
	}
	sort.Strings(ops)
	for _, op := range ops {
		vs := rec.recs[op]
		fmt.Printf("  %-15s n=%d p50=%v p95=%v p99=%v\n", op, len(vs), pct(vs, 0.50), pct(vs, 0.95), pct(vs, 0.99))
	}
	fmt.Printf("friend edges: %d, asymmetric: %d\n", edges, asym)
	fmt.Printf("list feed(%d posts): %v\n", len(feedPosts), feedDur)
	if a.Names != nil {
		hits, misses := a.Names.Counters()
		fmt.Printf("name cache: hits=%d misses=%d\n", hits, misses)
	}
	if asym > 0 {
		os.Exit(1)
	}
}
