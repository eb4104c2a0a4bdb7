// Package httpapi is the gin-based HTTP management surface: stored-claim
// inspection, manual settlement, and runtime reconfiguration of chain
// adapters and the settlement threshold.
package httpapi

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/socialwire/claimbridge/internal/chainadapter"
	"github.com/socialwire/claimbridge/internal/claimstore"
	"github.com/socialwire/claimbridge/internal/claimtypes"
	"github.com/socialwire/claimbridge/internal/metrics"
	"github.com/socialwire/claimbridge/internal/settlement"
)

// ClaimExchangeEnabled reports whether the claim exchange subsystem is
// turned on; when false every endpoint that would touch it answers 503
// instead of attempting the operation.
type FeatureFlag interface {
	ClaimExchangeEnabled() bool
}

// Server is the HTTP management surface for one claimbridge process.
type Server struct {
	router  *gin.Engine
	metrics *metrics.Metrics
	log     *zap.Logger

	store      *claimstore.Store
	trigger    *settlement.Trigger
	registry   *chainadapter.Registry
	flag       FeatureFlag
	reconfig   ReconfigureAdapters
	httpServer *http.Server
}

// ReconfigureAdapters rebuilds and re-registers a chain adapter from a
// runtime reconfiguration request. Implemented in cmd/claimrelay, which
// alone holds the long-lived chain RPC clients each adapter wraps.
type ReconfigureAdapters interface {
	ReconfigureEVM(req ConfigureEVMRequest) error
	ReconfigureXRP(req ConfigureXRPRequest) error
	ReconfigureAptos(req ConfigureAptosRequest) error
}

// New builds the router and registers every route.
func New(store *claimstore.Store, trigger *settlement.Trigger, registry *chainadapter.Registry, flag FeatureFlag, reconfig ReconfigureAdapters, m *metrics.Metrics, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	if m == nil {
		m = metrics.New(nil)
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()

	s := &Server{
		router:   router,
		metrics:  m,
		log:      log,
		store:    store,
		trigger:  trigger,
		registry: registry,
		flag:     flag,
		reconfig: reconfig,
	}

	router.Use(gin.Recovery())
	router.Use(s.loggingMiddleware())
	router.Use(m.Middleware())

	router.GET("/metrics", m.Handler())
	router.GET("/claims/:peerId", s.handleGetClaims)
	router.POST("/settlement/execute", s.handleSettlementExecute)
	router.GET("/settlement/status/:peerId", s.handleSettlementStatus)
	router.POST("/configure-evm", s.handleConfigureEVM)
	router.POST("/configure-xrp", s.handleConfigureXRP)
	router.POST("/configure-aptos", s.handleConfigureAptos)
	router.POST("/configure-settlement", s.handleConfigureSettlement)

	return s
}

// Handler returns the underlying router, for embedding in a larger mux
// or driving directly in tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run starts the HTTP server and blocks until it exits.
func (s *Server) Run(addr string) error {
	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	s.log.Info("httpapi: listening", zap.String("addr", addr))
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("httpapi: listen: %w", err)
	}
	return nil
}

// Shutdown gracefully stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) claimExchangeEnabled() bool {
	return s.flag == nil || s.flag.ClaimExchangeEnabled()
}

func (s *Server) requireClaimExchange(c *gin.Context) bool {
	if s.claimExchangeEnabled() {
		return true
	}
	c.JSON(http.StatusServiceUnavailable, gin.H{"error": "claim exchange is disabled"})
	return false
}

func parseChain(raw string) (claimtypes.Chain, bool) {
	switch raw {
	case "evm":
		return claimtypes.ChainEVM, true
	case "xrp":
		return claimtypes.ChainXRP, true
	case "aptos":
		return claimtypes.ChainAptos, true
	case "":
		return "", true
	default:
		return "", false
	}
}
