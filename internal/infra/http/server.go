package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"chainsign/internal/config"
	"chainsign/internal/domain"
	"chainsign/internal/infra/cachemem"
	"chainsign/internal/infra/crypto"
	"chainsign/internal/infra/db"
	"chainsign/internal/infra/lock"
	"chainsign/internal/infra/memstore"
	"chainsign/internal/infra/metrics"
	"chainsign/internal/infra/policyopa"
	"chainsign/internal/infra/ratelimit"
	"chainsign/internal/usecase"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

type Server struct {
	cfg    config.Config
	store  *db.Store
	r      *gin.Engine
	logger *zap.Logger

	registry *usecase.DeviceRegistry
	engine   *usecase.ChainEngine
	query    *usecase.TransactionQuery
	verifier *usecase.ChainVerifier
	metrics  *metrics.Metrics
	redis    *redis.Client

	adminAPIKey string
	initErr     error

	rateLimiter         domain.RateLimiter
	rateLimitRequests   int
	rateLimitWindow     time.Duration
	rateLimitFailClosed bool
}

// NewServer wires the full service from configuration. Initialization errors are reported by Run.
func NewServer(cfg config.Config, store *db.Store, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{cfg: cfg, store: store, logger: logger, metrics: metrics.New()}
	s.r = s.newEngine()
	s.initDeps()
	s.initRateLimit(nil)
	s.routes()
	return s
}

type ServerDeps struct {
	Registry    *usecase.DeviceRegistry
	Engine      *usecase.ChainEngine
	Query       *usecase.TransactionQuery
	Verifier    *usecase.ChainVerifier
	Metrics     *metrics.Metrics
	Logger      *zap.Logger
	RateLimiter domain.RateLimiter
	AdminAPIKey string
}

func NewServerWithDeps(cfg config.Config, deps ServerDeps) *Server {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	m := deps.Metrics
	if m == nil {
		m = metrics.New()
	}
	s := &Server{
		cfg:         cfg,
		logger:      logger,
		registry:    deps.Registry,
		engine:      deps.Engine,
		query:       deps.Query,
		verifier:    deps.Verifier,
		metrics:     m,
		adminAPIKey: deps.AdminAPIKey,
	}
	s.r = s.newEngine()
	s.initRateLimit(deps.RateLimiter)
	s.routes()
	return s
}

func (s *Server) newEngine() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), requestID(), s.metrics.Middleware(), requestLogger(s.logger))
	return r
}

func (s *Server) initDeps() {
	s.adminAPIKey = s.cfg.AdminAPIKey

	var repo usecase.Repository
	if s.store != nil && s.store.DB != nil {
		repo = db.NewRepository(s.store.DB)
	} else {
		repo = memstore.New()
	}

	keys, err := crypto.NewService(crypto.Options{RSABits: s.cfg.RSAKeyBits, Curve: s.cfg.ECCCurve})
	if err != nil {
		s.initErr = fmt.Errorf("key service: %w", err)
		return
	}

	if s.needsRedis() {
		s.redis = redis.NewClient(&redis.Options{
			Addr:     s.cfg.RedisAddr,
			Password: s.cfg.RedisPassword,
			DB:       s.cfg.RedisDB,
		})
	}

	var locker usecase.DeviceLocker
	switch s.cfg.LockBackend {
	case "", config.LockBackendLocal:
		locker = lock.NewLocal()
	case config.LockBackendRedis:
		if s.redis == nil {
			s.initErr = errors.New("LOCK_BACKEND=redis requires REDIS_ADDR")
			return
		}
		redisLock, err := lock.NewRedis(s.redis, lock.RedisOptions{TTL: s.cfg.LockTTL(), Logger: s.logger})
		if err != nil {
			s.initErr = err
			return
		}
		locker = redisLock
	default:
		s.initErr = fmt.Errorf("unsupported lock backend %q", s.cfg.LockBackend)
		return
	}

	policy, err := policyopa.NewEngine(context.Background(), s.cfg.PolicyPath)
	if err != nil {
		s.initErr = err
		return
	}
	s.logger.Info("admission policy loaded", zap.String("source", policy.Source()))

	registry := usecase.NewDeviceRegistry(repo, keys, locker)
	registry.Signers = cachemem.NewSigners(0)
	registry.Policy = policy
	registry.Limits = domain.AdmissionLimits{MaxDataBytes: s.cfg.MaxDataBytes}
	registry.LockTimeout = s.cfg.LockTimeout()
	registry.Logger = s.logger.Named("registry")
	registry.Observer = s.metrics

	engine := usecase.NewChainEngine(registry)
	engine.Logger = s.logger.Named("engine")

	verifier := usecase.NewChainVerifier(repo, keys)
	verifier.Logger = s.logger.Named("verifier")

	s.registry = registry
	s.engine = engine
	s.query = usecase.NewTransactionQuery(repo)
	s.verifier = verifier
}

func (s *Server) needsRedis() bool {
	if s.cfg.RedisAddr == "" {
		return false
	}
	return s.cfg.LockBackend == config.LockBackendRedis || s.cfg.RateLimitRequests > 0
}

func (s *Server) initRateLimit(override domain.RateLimiter) {
	if override != nil {
		s.rateLimiter = override
	}
	if s.rateLimiter == nil && s.cfg.RateLimitRequests > 0 {
		if s.redis != nil {
			if limiter, err := ratelimit.NewRedisLimiter(s.redis, nil); err == nil {
				s.rateLimiter = limiter
			}
		}
		if s.rateLimiter == nil {
			s.rateLimiter = ratelimit.NewMemoryLimiter(ratelimit.MemoryLimiterConfig{
				MaxKeys: s.cfg.RateLimitMaxKeys,
			})
		}
	}
	s.rateLimitRequests = s.cfg.RateLimitRequests
	s.rateLimitWindow = time.Minute
	if s.cfg.RateLimitWindowSeconds > 0 {
		s.rateLimitWindow = s.cfg.RateLimitWindow()
	}
	s.rateLimitFailClosed = s.cfg.RateLimitFailClosed
}

func (s *Server) routes() {
	s.r.GET("/healthz", s.handleHealth)
	s.r.GET("/metrics", gin.WrapH(s.metrics.Handler()))

	v1 := s.r.Group("/api/v1")
	{
		v1.POST("/devices", s.handleRegisterDevice)
		v1.GET("/devices", s.handleListDevices)
		v1.GET("/devices/:device_id", s.handleGetDevice)
		v1.POST("/devices/:device_id/deactivate", s.handleDeactivateDevice)
		v1.GET("/devices/:device_id/chain/verify", s.handleVerifyChain)

		v1.POST("/transactions", s.handleCreateTransaction)
		v1.GET("/transactions", s.handleListTransactions)
		v1.GET("/transactions/:transaction_id", s.handleGetTransaction)
	}

	s.r.NoRoute(func(c *gin.Context) {
		writeErrorCode(c, http.StatusNotFound, "NOT_FOUND", "route not found")
	})
}

func (s *Server) mode() string {
	if s.store != nil && s.store.DB != nil {
		return "db"
	}
	return "no-db"
}

func (s *Server) Handler() http.Handler {
	return s.r
}

func (s *Server) Run() error {
	if s.initErr != nil {
		return s.initErr
	}
	s.logger.Info("http server listening", zap.String("addr", s.cfg.HTTPAddr), zap.String("mode", s.mode()))
	return s.r.Run(s.cfg.HTTPAddr)
}

// Close releases the Redis client when the server created one.
func (s *Server) Close() error {
	if s.redis != nil {
		return s.redis.Close()
	}
	return nil
}
