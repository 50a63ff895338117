package cache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"

	"github.com/vizionai/vizion/internal/engine"
)

type lookups struct {
	mu   sync.Mutex
	seen map[string]int
}

func (l *lookups) CacheLookup(feed, result string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.seen == nil {
		l.seen = map[string]int{}
	}
	l.seen[feed+"/"+result]++
}

func setupCache(t *testing.T) (*Cache, *miniredis.Miniredis, *lookups) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := goredis.NewClient(&goredis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() { rdb.Close() })
	c := New(rdb, nil)
	rec := &lookups{}
	c.Metrics = rec
	return c, mr, rec
}

func TestTTLTable(t *testing.T) {
	tests := []struct {
		ft   engine.FeedType
		want time.Duration
	}{
		{engine.FeedRecent, 60 * time.Second},
		{engine.FeedFollowing, 120 * time.Second},
		{engine.FeedTrending, 300 * time.Second},
		{engine.FeedTop, 600 * time.Second},
		{engine.FeedHot, DefaultTTL},
		{engine.FeedRising, DefaultTTL},
		{engine.FeedType("bogus"), DefaultTTL},
	}
	for _, tt := range tests {
		if got := TTL(tt.ft); got != tt.want {
			t.Errorf("TTL(%s) = %v, want %v", tt.ft, got, tt.want)
		}
	}
	if PostTTL != time.Hour {
		t.Errorf("PostTTL = %v, want 1h", PostTTL)
	}
}

func TestKeys(t *testing.T) {
	if got := FeedKey(engine.FeedTop, "20:0"); got != "feed:top:20:0" {
		t.Errorf("FeedKey = %q", got)
	}
	if got := PostKey("abc"); got != "post:abc" {
		t.Errorf("PostKey = %q", got)
	}
}

func TestSetGetAndExpiry(t *testing.T) {
	c, mr, rec := setupCache(t)
	ctx := context.Background()

	if _, ok := c.Get(ctx, engine.FeedTrending, "k"); ok {
		t.Fatal("empty cache returned a hit")
	}
	c.Set(ctx, engine.FeedTrending, "k", []byte(`{"posts":[]}`), 0)

	got, ok := c.Get(ctx, engine.FeedTrending, "k")
	if !ok || string(got) != `{"posts":[]}` {
		t.Fatalf("Get = %q, %v", got, ok)
	}
	if ttl := mr.TTL("feed:trending:k"); ttl != 300*time.Second {
		t.Errorf("stored ttl = %v, want 300s", ttl)
	}

	mr.FastForward(301 * time.Second)
	if _, ok := c.Get(ctx, engine.FeedTrending, "k"); ok {
		t.Error("entry survived its TTL")
	}
	if rec.seen["trending/hit"] != 1 || rec.seen["trending/miss"] != 2 {
		t.Errorf("lookups = %v", rec.seen)
	}
}

func TestPostEntries(t *testing.T) {
	c, mr, _ := setupCache(t)
	ctx := context.Background()

	c.SetPost(ctx, "p1", []byte("x"))
	if ttl := mr.TTL("post:p1"); ttl != time.Hour {
		t.Errorf("post ttl = %v, want 1h", ttl)
	}
	c.Set(ctx, engine.FeedRecent, "a", []byte("1"), 0)

	c.InvalidatePost(ctx, "p1")
	if _, ok := c.GetPost(ctx, "p1"); ok {
		t.Error("post survived InvalidatePost")
	}
	if _, ok := c.Get(ctx, engine.FeedRecent, "a"); ok {
		t.Error("feed page survived InvalidatePost")
	}
}

func TestInvalidatePattern(t *testing.T) {
	c, mr, _ := setupCache(t)
	ctx := context.Background()

	for i := 0; i < 250; i++ {
		mr.Set(fmt.Sprintf("feed:recent:%d", i), "v")
	}
	c.SetPost(ctx, "keep", []byte("v"))

	c.InvalidateFeeds(ctx)

	for _, k := range mr.Keys() {
		if k != "post:keep" {
			t.Errorf("key %q survived invalidation", k)
		}
	}
}

func TestRedisDownIsAMiss(t *testing.T) {
	c, mr, rec := setupCache(t)
	ctx := context.Background()
	c.Set(ctx, engine.FeedRecent, "k", []byte("v"), 0)
	mr.Close()

	if _, ok := c.Get(ctx, engine.FeedRecent, "k"); ok {
		t.Error("hit while redis is down")
	}
	c.Set(ctx, engine.FeedRecent, "k", []byte("v"), 0)
	c.InvalidateFeeds(ctx)

	if rec.seen["recent/error"] != 1 {
		t.Errorf("lookups = %v, want one error", rec.seen)
	}
}

func TestDisabledCache(t *testing.T) {
	c := New(nil, nil)
	ctx := context.Background()
	if c.Enabled() {
		t.Error("nil client reported enabled")
	}
	c.Set(ctx, engine.FeedRecent, "k", []byte("v"), 0)
	if _, ok := c.Get(ctx, engine.FeedRecent, "k"); ok {
		t.Error("disabled cache returned a hit")
	}
	c.InvalidatePost(ctx, "x")
	if err := c.Close(); err != nil {
		t.Errorf("Close = %v", err)
	}
}

func TestOpenWithoutURL(t *testing.T) {
	c := Open(context.Background(), "", nil)
	if c.Enabled() {
		t.Error("empty url should disable the cache")
	}
	c = Open(context.Background(), "not a url", nil)
	if c.Enabled() {
		t.Error("bad url should disable the cache")
	}
}

func TestOpenMiniredis(t *testing.T) {
	mr := miniredis.RunT(t)
	c := Open(context.Background(), "redis://"+mr.Addr(), nil)
	t.Cleanup(func() { c.Close() })
	if !c.Enabled() {
		t.Fatal("Open against miniredis should enable the cache")
	}
}

func TestFetchLoadsOnce(t *testing.T) {
	c, _, _ := setupCache(t)
	ctx := context.Background()

	var calls atomic.Int32
	load := func(context.Context) ([]byte, error) {
		calls.Add(1)
		return []byte("page"), nil
	}
	for i := 0; i < 3; i++ {
		got, err := c.Fetch(ctx, engine.FeedHot, "k", load)
		if err != nil || string(got) != "page" {
			t.Fatalf("Fetch = %q, %v", got, err)
		}
	}
	if n := calls.Load(); n != 1 {
		t.Errorf("loader calls = %d, want 1", n)
	}

	boom := errors.New("boom")
	if _, err := c.Fetch(ctx, engine.FeedTop, "k", func(context.Context) ([]byte, error) { return nil, boom }); !errors.Is(err, boom) {
		t.Errorf("Fetch err = %v, want boom", err)
	}
	if _, ok := c.Get(ctx, engine.FeedTop, "k"); ok {
		t.Error("failed load was cached")
	}
}

func TestFetchSurvivesCallerCancel(t *testing.T) {
	c, _, _ := setupCache(t)

	started := make(chan struct{})
	release := make(chan struct{})
	load := func(ctx context.Context) ([]byte, error) {
		close(started)
		select {
		case <-release:
			return []byte("page"), nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	first, cancelFirst := context.WithCancel(context.Background())
	firstErr := make(chan error, 1)
	go func() {
		_, err := c.Fetch(first, engine.FeedRecent, "k", load)
		firstErr <- err
	}()
	<-started

	type result struct {
		data []byte
		err  error
	}
	second := make(chan result, 1)
	go func() {
		data, err := c.Fetch(context.Background(), engine.FeedRecent, "k", func(context.Context) ([]byte, error) {
			return nil, errors.New("second load must not run")
		})
		second <- result{data, err}
	}()
	// Give the second caller time to join the in-flight load.
	time.Sleep(20 * time.Millisecond)

	cancelFirst()
	if err := <-firstErr; !errors.Is(err, context.Canceled) {
		t.Errorf("first caller err = %v, want context.Canceled", err)
	}
	close(release)

	res := <-second
	if res.err != nil || string(res.data) != "page" {
		t.Fatalf("second caller = %q, %v", res.data, res.err)
	}
	if got, ok := c.Get(context.Background(), engine.FeedRecent, "k"); !ok || string(got) != "page" {
		t.Errorf("cached = %q, %v", got, ok)
	}
}
