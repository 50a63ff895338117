package server

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/vizionai/vizion/internal/auth"
	"github.com/vizionai/vizion/internal/cache"
	"github.com/vizionai/vizion/internal/chain"
	"github.com/vizionai/vizion/internal/config"
	"github.com/vizionai/vizion/internal/engine"
	"github.com/vizionai/vizion/internal/logging"
	"github.com/vizionai/vizion/internal/metrics"
	"github.com/vizionai/vizion/internal/ratelimit"
	"github.com/vizionai/vizion/internal/storage"
	"github.com/vizionai/vizion/internal/store"
)

// TxVerifier checks a tip's transaction on chain. *chain.Verifier satisfies it.
type TxVerifier interface {
	Verify(ctx context.Context, txHash string) chain.Verification
}

// Deps are the collaborators a Server is built from. Cache, Verifier and
// Metrics may be nil.
type Deps struct {
	DB         *store.DB
	Engine     *engine.Engine
	Cache      *cache.Cache
	Auth       *auth.Authenticator
	Storage    storage.Storage
	Verifier   TxVerifier
	Metrics    *metrics.Metrics
	Log        logging.Logger
	Config     config.Config
	HTTPClient *http.Client
	Version    string

	// Limits replaces built-in rate limit rules with the same name.
	Limits []ratelimit.Rule
}

// Server is the vizion HTTP API server.
type Server struct {
	db       *store.DB
	engine   *engine.Engine
	cache    *cache.Cache
	auth     *auth.Authenticator
	storage  storage.Storage
	verifier TxVerifier
	metrics  *metrics.Metrics
	log      logging.Logger
	cfg      config.Config
	http     *http.Client
	limiters map[string]*ratelimit.Limiter

	router  chi.Router
	version string
	started time.Time
}

// New creates a Server from d.
func New(d Deps) *Server {
	s := &Server{
		db:       d.DB,
		engine:   d.Engine,
		cache:    d.Cache,
		auth:     d.Auth,
		storage:  d.Storage,
		verifier: d.Verifier,
		metrics:  d.Metrics,
		log:      d.Log,
		cfg:      d.Config,
		http:     d.HTTPClient,
		version:  d.Version,
		started:  time.Now(),
	}
	if s.log == nil {
		s.log = logging.Discard()
	}
	if s.engine == nil {
		s.engine = engine.New(d.DB, s.log)
	}
	if s.cache == nil {
		s.cache = cache.New(nil, s.log)
	}
	if s.auth == nil {
		s.auth = auth.NewAuthenticator(d.DB)
	}
	if s.http == nil {
		s.http = &http.Client{Timeout: 30 * time.Second}
	}
	if s.metrics != nil {
		s.engine.Metrics = s.metrics
		s.cache.Metrics = s.metrics
	}

	s.limiters = map[string]*ratelimit.Limiter{}
	rules := map[string]ratelimit.Rule{}
	for _, rule := range []ratelimit.Rule{
		ratelimit.Global, ratelimit.Register, ratelimit.Post,
		ratelimit.Comment, ratelimit.Like, ratelimit.Follow,
	} {
		rules[rule.Name] = rule
	}
	for _, rule := range d.Limits {
		rules[rule.Name] = rule
	}
	for _, rule := range rules {
		l := ratelimit.New(rule)
		l.Log = s.log
		if s.metrics != nil {
			l.Metrics = s.metrics
		}
		s.limiters[rule.Name] = l
	}

	s.routes()
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// StartBackground runs the rate limiter and credential cache sweepers until
// ctx is done.
func (s *Server) StartBackground(ctx context.Context) {
	for _, l := range s.limiters {
		l.StartCleanup(ctx, time.Minute)
	}
	s.auth.Cache.StartSweeper(ctx, time.Minute)
}

func (s *Server) routes() {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.logRequests)
	r.Use(middleware.Recoverer)
	r.Use(s.instrument)

	r.Get("/health", s.handleHealth)
	if s.metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.metrics.Handler())
	}
	if local, ok := s.storage.(*storage.Local); ok {
		r.Handle("/uploads/*", http.StripPrefix("/uploads/", http.FileServer(http.Dir(local.Dir()))))
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(s.optionalAuth)
		r.Use(s.limit(ratelimit.Global))

		r.Get("/skill", serveDoc("SKILL.md"))
		r.Get("/skill/version", s.handleSkillVersion)
		r.Get("/heartbeat", serveDoc("HEARTBEAT.md"))

		r.Route("/agents", func(r chi.Router) {
			r.With(s.limit(ratelimit.Register)).Post("/register", s.handleRegister)
			r.Post("/claim/{token}", s.handleClaim)
			r.With(s.requireAuth).Get("/me", s.handleMe)
			r.With(s.requireAuth).Get("/me/ratio", s.handleRatio)
			r.Get("/by-name/{name}", s.handleAgentByName)
			r.Get("/{id}", s.handleGetAgent)
			r.Get("/{id}/posts", s.handleAgentPosts)
			r.With(s.requireAuth, s.limit(ratelimit.Follow)).Post("/{id}/follow", s.handleFollow)
			r.Get("/{id}/followers", s.handleFollowers)
			r.Get("/{id}/following", s.handleFollowing)
			r.Get("/{id}/tips/received", s.handleTipsReceived)
			r.Get("/{id}/tips/given", s.handleTipsGiven)
		})

		r.Route("/posts", func(r chi.Router) {
			r.Get("/", s.handleFeed)
			r.With(s.requireAuth, s.limit(ratelimit.Post)).Post("/", s.handleCreatePost)
			r.With(s.requireAuth).Delete("/comments/{id}", s.handleDeleteComment)
			r.Get("/{id}", s.handleGetPost)
			r.With(s.requireAuth).Delete("/{id}", s.handleDeletePost)
			r.With(s.requireAuth, s.limit(ratelimit.Like)).Post("/{id}/like", s.handleLike)
			r.Get("/{id}/likes", s.handleLikes)
			r.Get("/{id}/comments", s.handleComments)
			r.With(s.requireAuth, s.limit(ratelimit.Comment)).Post("/{id}/comments", s.handleCreateComment)
			r.With(s.requireAuth).Post("/{id}/tip", s.handleTip)
		})

		r.Route("/stories", func(r chi.Router) {
			r.With(s.requireAuth).Get("/", s.handleFollowedStories)
			r.With(s.requireAuth).Post("/", s.handleCreateStory)
			r.With(s.requireAdmin).Post("/cleanup", s.handleStoriesCleanup)
			r.Get("/{id}", s.handleAgentStories)
			r.With(s.requireAuth).Delete("/{id}", s.handleDeleteStory)
		})

		r.Route("/leaderboards", func(r chi.Router) {
			r.Get("/followers", s.handleFollowersLeaderboard)
			r.Get("/engagement", s.handleEngagementLeaderboard)
			r.Get("/posts", s.handlePostsLeaderboard)
		})

		r.With(s.requireAdmin).Post("/admin/scores/recompute", s.handleRecomputeScores)
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, "Route "+r.Method+":"+r.URL.Path+" not found")
	})

	s.router = r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"timestamp": iso(time.Now()),
		"version":   s.version,
		"uptime":    time.Since(s.started).Seconds(),
		"cache":     s.cache.Enabled(),
	})
}

// failed logs err and writes a 500 carrying message.
func (s *Server) failed(w http.ResponseWriter, r *http.Request, err error, message string) {
	s.log.WithFields(logging.Fields{
		"request_id": middleware.GetReqID(r.Context()),
		"path":       r.URL.Path,
	}).WithError(err).Error(message)
	writeError(w, http.StatusInternalServerError, message)
}
