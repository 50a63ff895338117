package engine

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"testing"
	"time"
)

func testEngine(t *testing.T) (*Engine, *mockStore) {
	t.Helper()
	s := newMockStore()
	e := New(s, nil)
	e.Now = func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) }
	return e, s
}

func TestComputeRatioNoPostsIsUnbounded(t *testing.T) {
	e, s := testEngine(t)
	s.add("a", agentCounts{likesGiven: 0, commentsGiven: 0, posts: 0})

	r, err := e.ComputeRatio(context.Background(), "a")
	if err != nil {
		t.Fatalf("ComputeRatio: %v", err)
	}
	if !r.Ratio.IsUnbounded() {
		t.Errorf("ratio = %v, want unbounded", r.Ratio)
	}
	if r.Engagements != 0 {
		t.Errorf("engagements = %d, want 0", r.Engagements)
	}
}

func TestComputeRatio(t *testing.T) {
	e, s := testEngine(t)
	s.add("a", agentCounts{likesGiven: 9, commentsGiven: 3, posts: 2})

	r, err := e.ComputeRatio(context.Background(), "a")
	if err != nil {
		t.Fatalf("ComputeRatio: %v", err)
	}
	v, ok := r.Ratio.Value()
	if !ok || v != 6.0 {
		t.Errorf("ratio = %v, want 6.0", r.Ratio)
	}
	if r.Engagements != 12 {
		t.Errorf("engagements = %d, want 12", r.Engagements)
	}
}

func TestComputeRatioStoreFailure(t *testing.T) {
	e, s := testEngine(t)
	s.add("a", agentCounts{})
	s.failFor["a"] = true

	_, err := e.ComputeRatio(context.Background(), "a")
	if !errors.Is(err, ErrDependencyUnavailable) {
		t.Fatalf("err = %v, want ErrDependencyUnavailable", err)
	}
	if !errors.Is(err, errFailing) {
		t.Errorf("err = %v, want wrapped store error", err)
	}
}

func TestCanPostScenario(t *testing.T) {
	e, s := testEngine(t)
	rec := &mockRecorder{}
	e.Metrics = rec
	s.add("A", agentCounts{likesGiven: 8, commentsGiven: 4, posts: 2})
	s.add("B", agentCounts{likesGiven: 7, commentsGiven: 3, posts: 3})

	a, err := e.CanPost(context.Background(), "A")
	if err != nil {
		t.Fatalf("CanPost A: %v", err)
	}
	if !a.Allowed || a.Deficit != 0 {
		t.Errorf("A = allowed %v deficit %d, want true 0", a.Allowed, a.Deficit)
	}
	if a.Message != "You can create posts" {
		t.Errorf("A message = %q", a.Message)
	}

	b, err := e.CanPost(context.Background(), "B")
	if err != nil {
		t.Fatalf("CanPost B: %v", err)
	}
	if b.Allowed {
		t.Error("B allowed, want denied")
	}
	if b.Deficit != 5 {
		t.Errorf("B deficit = %d, want 5", b.Deficit)
	}
	if b.Message != "Engage with 5 more posts before creating new content" {
		t.Errorf("B message = %q", b.Message)
	}
	if v, _ := b.Ratio.Value(); math.Abs(v-10.0/3.0) > 1e-9 {
		t.Errorf("B ratio = %v, want 3.33", v)
	}

	if rec.allowed != 1 || rec.denied != 1 {
		t.Errorf("recorder = %+v, want 1 allowed 1 denied", rec)
	}
}

func TestDecideProperties(t *testing.T) {
	for posts := 0; posts <= 6; posts++ {
		for given := 0; given <= 40; given++ {
			d := Decide(NewEngagementRatio(given, 0, posts))
			if posts == 0 && !d.Allowed {
				t.Fatalf("posts=0 given=%d: denied, want allowed", given)
			}
			if d.Allowed && d.Deficit != 0 {
				t.Fatalf("posts=%d given=%d: allowed with deficit %d", posts, given, d.Deficit)
			}
			if !d.Allowed && d.Deficit <= 0 {
				t.Fatalf("posts=%d given=%d: denied with deficit %d", posts, given, d.Deficit)
			}
			if !d.Allowed {
				after := Decide(NewEngagementRatio(given+d.Deficit, 0, posts))
				if !after.Allowed {
					t.Fatalf("posts=%d given=%d: still denied after %d more", posts, given, d.Deficit)
				}
			}
		}
	}
}

func TestDecisionJSON(t *testing.T) {
	d := Decide(NewEngagementRatio(3, 1, 0))
	data, err := json.Marshal(d)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var got map[string]any
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got["ratio"] != nil {
		t.Errorf("ratio = %v, want null", got["ratio"])
	}
	if got["can_post"] != true {
		t.Errorf("can_post = %v, want true", got["can_post"])
	}
	if got["required_ratio"] != 5.0 {
		t.Errorf("required_ratio = %v, want 5", got["required_ratio"])
	}
}

func TestRatioUnmarshal(t *testing.T) {
	var r Ratio
	if err := json.Unmarshal([]byte("2.5"), &r); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if v, ok := r.Value(); !ok || v != 2.5 {
		t.Errorf("ratio = %v, want 2.5", r)
	}
	if err := json.Unmarshal([]byte("null"), &r); err != nil {
		t.Fatalf("unmarshal null: %v", err)
	}
	if !r.IsUnbounded() {
		t.Errorf("ratio = %v, want unbounded", r)
	}
}

func TestScore(t *testing.T) {
	got := Score(ScoreMetrics{Likes: 10, Comments: 2, Followers: 4})
	if got.Score != 16 {
		t.Errorf("score = %v, want 16", got.Score)
	}
	if got.Rate != 4.0 {
		t.Errorf("rate = %v, want 4.0", got.Rate)
	}

	got = Score(ScoreMetrics{Likes: 7, Comments: 1, CarouselViews: 4})
	if got.Score != 12 {
		t.Errorf("score = %v, want 12", got.Score)
	}
	if got.Rate != 0 || math.IsNaN(got.Rate) {
		t.Errorf("rate = %v, want 0 with no followers", got.Rate)
	}
}

func TestComputeScore(t *testing.T) {
	e, s := testEngine(t)
	s.add("a", agentCounts{likesReceived: 10, commentsReceived: 2, followers: 4})

	got, err := e.ComputeScore(context.Background(), "a")
	if err != nil {
		t.Fatalf("ComputeScore: %v", err)
	}
	if got.TotalScore != 16 || got.EngagementRate != 4.0 {
		t.Errorf("score = %+v, want 16 / 4.0", got)
	}
	if !got.UpdatedAt.Equal(e.Now()) {
		t.Errorf("UpdatedAt = %v, want frozen clock", got.UpdatedAt)
	}
}

func TestRecomputeAllIsolatesFailures(t *testing.T) {
	e, s := testEngine(t)
	rec := &mockRecorder{}
	e.Metrics = rec
	s.add("a", agentCounts{likesReceived: 1})
	s.add("b", agentCounts{likesReceived: 2})
	s.add("c", agentCounts{likesReceived: 3, followers: 3})
	s.failFor["b"] = true

	res, err := e.RecomputeAll(context.Background())
	if err != nil {
		t.Fatalf("RecomputeAll: %v", err)
	}
	if len(res.Results) != 2 {
		t.Fatalf("results = %d, want 2", len(res.Results))
	}
	if len(res.Failures) != 1 || res.Failures[0].AgentID != "b" {
		t.Fatalf("failures = %+v, want exactly b", res.Failures)
	}
	if _, ok := s.upserted["b"]; ok {
		t.Error("failed agent should not be upserted")
	}
	if c := s.upserted["c"]; c.TotalScore != 3 || c.EngagementRate != 1 {
		t.Errorf("c = %+v, want score 3 rate 1", c)
	}
	if rec.succeeded != 2 || rec.failed != 1 {
		t.Errorf("recorder = %+v", rec)
	}
}

func TestRecomputeAllUpsertsTwice(t *testing.T) {
	e, s := testEngine(t)
	s.add("a", agentCounts{likesReceived: 1})

	if _, err := e.RecomputeAll(context.Background()); err != nil {
		t.Fatalf("first run: %v", err)
	}
	s.counts["a"] = agentCounts{likesReceived: 5}
	if _, err := e.RecomputeAll(context.Background()); err != nil {
		t.Fatalf("second run: %v", err)
	}
	if got := s.upserted["a"].TotalScore; got != 5 {
		t.Errorf("score = %v, want 5 after second run", got)
	}
}

func TestRecomputeAllListFailure(t *testing.T) {
	e, s := testEngine(t)
	s.listErr = errFailing

	if _, err := e.RecomputeAll(context.Background()); !errors.Is(err, ErrDependencyUnavailable) {
		t.Fatalf("err = %v, want ErrDependencyUnavailable", err)
	}
}

func TestRecomputeAllCancelled(t *testing.T) {
	e, s := testEngine(t)
	s.add("a", agentCounts{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := e.RecomputeAll(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
}
