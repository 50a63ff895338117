package ratelimit

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

type clock struct{ t time.Time }

func (c *clock) now() time.Time { return c.t }

func newLimiter(rule Rule) (*Limiter, *clock) {
	c := &clock{t: time.Unix(1_700_000_000, 0)}
	l := New(rule)
	l.Now = c.now
	return l, c
}

func TestAllowPerKey(t *testing.T) {
	l, c := newLimiter(Like)

	if ok, _ := l.Allow("a"); !ok {
		t.Fatal("first like rejected")
	}
	ok, retry := l.Allow("a")
	if ok {
		t.Fatal("second like within 5s allowed")
	}
	if retry <= 0 || retry > 5*time.Second {
		t.Errorf("retry = %v, want (0, 5s]", retry)
	}
	if ok, _ := l.Allow("b"); !ok {
		t.Error("other client shares a bucket")
	}

	c.t = c.t.Add(5 * time.Second)
	if ok, _ := l.Allow("a"); !ok {
		t.Error("like rejected after the window")
	}
}

func TestRejectedDoesNotConsume(t *testing.T) {
	l, c := newLimiter(Comment)
	l.Allow("a")
	for i := 0; i < 5; i++ {
		l.Allow("a")
	}
	c.t = c.t.Add(20 * time.Second)
	if ok, _ := l.Allow("a"); !ok {
		t.Error("rejected attempts pushed the window out")
	}
}

func TestBurstMatchesMax(t *testing.T) {
	l, _ := newLimiter(Follow)
	for i := 0; i < Follow.Max; i++ {
		if ok, _ := l.Allow("a"); !ok {
			t.Fatalf("follow %d rejected", i+1)
		}
	}
	if ok, _ := l.Allow("a"); ok {
		t.Error("follow beyond max allowed")
	}
}

func TestCleanup(t *testing.T) {
	l, c := newLimiter(Like)
	l.Allow("a")
	c.t = c.t.Add(3 * time.Second)
	l.Allow("b")
	c.t = c.t.Add(3 * time.Second)

	if n := l.Cleanup(); n != 1 {
		t.Errorf("Cleanup removed %d, want 1", n)
	}
	if l.Len() != 1 {
		t.Errorf("Len = %d, want 1", l.Len())
	}
}

type rejections map[string]int

func (r rejections) RateLimited(rule string) { r[rule]++ }

func TestHandler429(t *testing.T) {
	l, _ := newLimiter(Post)
	rec := rejections{}
	l.Metrics = rec
	h := l.Handler(nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
	}))

	req := httptest.NewRequest("POST", "/api/v1/posts", nil)
	req.RemoteAddr = "10.0.0.1:5555"

	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	if w.Code != http.StatusCreated {
		t.Fatalf("first = %d, want 201", w.Code)
	}

	w = httptest.NewRecorder()
	h.ServeHTTP(w, req)
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("second = %d, want 429", w.Code)
	}
	var body struct {
		StatusCode int    `json:"statusCode"`
		Error      string `json:"error"`
		Message    string `json:"message"`
		RetryAfter string `json:"retryAfter"`
	}
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.StatusCode != 429 || body.Error != "Too Many Requests" {
		t.Errorf("body = %+v", body)
	}
	if body.RetryAfter != "30 minutes" || body.Message != "Rate limit exceeded. Retry in 30 minutes" {
		t.Errorf("retry = %q / %q", body.RetryAfter, body.Message)
	}
	if w.Header().Get("Retry-After") != "1800" {
		t.Errorf("Retry-After = %q, want 1800", w.Header().Get("Retry-After"))
	}
	if rec["post"] != 1 {
		t.Errorf("rejections = %v", rec)
	}

	other := httptest.NewRequest("POST", "/api/v1/posts", nil)
	other.RemoteAddr = "10.0.0.2:5555"
	w = httptest.NewRecorder()
	h.ServeHTTP(w, other)
	if w.Code != http.StatusCreated {
		t.Errorf("other client = %d, want 201", w.Code)
	}
}

func TestFormatRetry(t *testing.T) {
	tests := []struct {
		d    time.Duration
		want string
	}{
		{200 * time.Millisecond, "1 second"},
		{4500 * time.Millisecond, "5 seconds"},
		{90 * time.Second, "2 minutes"},
		{time.Hour, "1 hour"},
	}
	for _, tt := range tests {
		if got := FormatRetry(tt.d); got != tt.want {
			t.Errorf("FormatRetry(%v) = %q, want %q", tt.d, got, tt.want)
		}
	}
}

func TestByIP(t *testing.T) {
	r := httptest.NewRequest("GET", "/", nil)
	r.RemoteAddr = "192.0.2.7:1234"
	if got := ByIP(r); got != "192.0.2.7" {
		t.Errorf("ByIP = %q", got)
	}
	r.RemoteAddr = "192.0.2.7"
	if got := ByIP(r); got != "192.0.2.7" {
		t.Errorf("ByIP without port = %q", got)
	}
}
