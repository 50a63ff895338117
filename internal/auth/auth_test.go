package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/vizionai/vizion/internal/store"
)

func TestNewCredentials(t *testing.T) {
	c, err := NewCredentials(bcrypt.MinCost)
	if err != nil {
		t.Fatalf("NewCredentials: %v", err)
	}
	if !ValidKeyFormat(c.APIKey) {
		t.Errorf("APIKey %q fails its own format", c.APIKey)
	}
	if !strings.HasPrefix(c.ClaimToken, ClaimPrefix) || len(c.ClaimToken) != len(ClaimPrefix)+32 {
		t.Errorf("ClaimToken = %q", c.ClaimToken)
	}
	if !strings.HasPrefix(c.ClaimCode, CodePrefix) || len(c.ClaimCode) != len(CodePrefix)+4 {
		t.Errorf("ClaimCode = %q", c.ClaimCode)
	}
	for _, r := range strings.TrimPrefix(c.ClaimCode, CodePrefix) {
		if !strings.ContainsRune(claimAlphabet, r) {
			t.Errorf("ClaimCode has %q outside the alphabet", r)
		}
	}
	if !Verify(c.APIKey, c.Hash) {
		t.Error("hash does not verify its key")
	}
	if Verify("viz_"+strings.Repeat("0", 32), c.Hash) {
		t.Error("hash verifies a different key")
	}
	if c.Lookup != Lookup(c.APIKey) || len(c.Lookup) != 64 {
		t.Errorf("Lookup = %q", c.Lookup)
	}

	other, _ := NewCredentials(bcrypt.MinCost)
	if other.APIKey == c.APIKey {
		t.Error("two registrations produced the same key")
	}
}

func TestValidKeyFormat(t *testing.T) {
	tests := []struct {
		key  string
		want bool
	}{
		{"viz_0123456789abcdef0123456789abcdef", true},
		{"viz_0123456789ABCDEF0123456789abcdef", false},
		{"viz_0123", false},
		{"key_0123456789abcdef0123456789abcdef", false},
		{"", false},
	}
	for _, tt := range tests {
		if got := ValidKeyFormat(tt.key); got != tt.want {
			t.Errorf("ValidKeyFormat(%q) = %v, want %v", tt.key, got, tt.want)
		}
	}
}

func TestClaimURL(t *testing.T) {
	if got := ClaimURL("https://vizion.ai/", "viz_claim_x"); got != "https://vizion.ai/claim/viz_claim_x" {
		t.Errorf("ClaimURL = %q", got)
	}
}

func TestCredentialCacheExpiry(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	c := NewCredentialCache(time.Minute, 0)
	c.Now = func() time.Time { return now }

	c.Put("d1", Identity{ID: "a", Name: "alpha"})
	if id, ok := c.Get("d1"); !ok || id.ID != "a" {
		t.Fatalf("Get = %+v, %v", id, ok)
	}

	now = now.Add(time.Minute)
	if _, ok := c.Get("d1"); ok {
		t.Error("entry returned at its expiry instant")
	}
	c.Put("d2", Identity{ID: "b"})
	if n := c.Sweep(); n != 1 {
		t.Errorf("Sweep removed %d, want 1", n)
	}
	if c.Len() != 1 {
		t.Errorf("Len = %d, want 1", c.Len())
	}
}

func TestCredentialCacheBounded(t *testing.T) {
	c := NewCredentialCache(time.Hour, 100)
	for i := 0; i < 5000; i++ {
		c.Put(fmt.Sprint(i), Identity{ID: fmt.Sprint(i)})
	}
	if c.Len() != 100 {
		t.Errorf("Len = %d, want 100", c.Len())
	}
	if _, ok := c.Get("0"); ok {
		t.Error("oldest entry survived eviction")
	}
	if id, ok := c.Get("4999"); !ok || id.ID != "4999" {
		t.Errorf("newest entry = %+v, %v", id, ok)
	}
}

func TestCredentialCacheConcurrent(t *testing.T) {
	c := NewCredentialCache(0, 0)
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			key := fmt.Sprint(i)
			for j := 0; j < 100; j++ {
				c.Put(key, Identity{ID: "x"})
				c.Get(key)
				c.Sweep()
			}
		}(i)
	}
	wg.Wait()
	if c.Len() != 8 {
		t.Errorf("Len = %d, want 8", c.Len())
	}
}

func TestStartSweeper(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	var mu sync.Mutex
	c := NewCredentialCache(time.Second, 0)
	c.Now = func() time.Time { mu.Lock(); defer mu.Unlock(); return now }
	c.Put("d", Identity{ID: "a"})
	mu.Lock()
	now = now.Add(time.Hour)
	mu.Unlock()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	c.StartSweeper(ctx, 5*time.Millisecond)

	deadline := time.Now().Add(2 * time.Second)
	for c.Len() != 0 {
		if time.Now().After(deadline) {
			t.Fatal("sweeper never removed the expired entry")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

type countingFinder struct {
	db    *store.DB
	calls int
}

func (f *countingFinder) GetAgentByKeyLookup(ctx context.Context, lookup string) (*store.Agent, error) {
	f.calls++
	return f.db.GetAgentByKeyLookup(ctx, lookup)
}

func TestResolve(t *testing.T) {
	db, err := store.OpenMemory()
	if err != nil {
		t.Fatalf("OpenMemory: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	ctx := context.Background()

	creds, err := NewCredentials(bcrypt.MinCost)
	if err != nil {
		t.Fatalf("NewCredentials: %v", err)
	}
	agent := &store.Agent{
		Name:         "painter",
		APIKeyHash:   creds.Hash,
		APIKeyLookup: creds.Lookup,
		ClaimCode:    creds.ClaimCode,
		ClaimToken:   creds.ClaimToken,
	}
	if err := db.CreateAgent(ctx, agent); err != nil {
		t.Fatalf("CreateAgent: %v", err)
	}

	finder := &countingFinder{db: db}
	a := NewAuthenticator(finder)

	for i := 0; i < 2; i++ {
		id, err := a.Resolve(ctx, creds.APIKey)
		if err != nil {
			t.Fatalf("Resolve: %v", err)
		}
		if id.ID != agent.ID || id.Name != "painter" {
			t.Errorf("identity = %+v", id)
		}
	}
	if finder.calls != 1 {
		t.Errorf("store lookups = %d, want 1 (second from cache)", finder.calls)
	}

	if _, err := a.Resolve(ctx, "nope"); !errors.Is(err, ErrInvalidFormat) {
		t.Errorf("bad format err = %v", err)
	}
	if _, err := a.Resolve(ctx, "viz_"+strings.Repeat("f", 32)); !errors.Is(err, ErrInvalidKey) {
		t.Errorf("unknown key err = %v", err)
	}
}

func TestContextIdentity(t *testing.T) {
	if _, ok := FromContext(context.Background()); ok {
		t.Error("empty context has an identity")
	}
	ctx := WithIdentity(context.Background(), Identity{ID: "a"})
	if id, ok := FromContext(ctx); !ok || id.ID != "a" {
		t.Errorf("FromContext = %+v, %v", id, ok)
	}
}
