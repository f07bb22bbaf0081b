// Package server exposes the vault over HTTP.
package server

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"vault-go/internal/fs"
	"vault-go/internal/vault"
)

// DefaultAccountHeader carries the caller's account id when no other header is configured.
const DefaultAccountHeader = "X-Account-ID"

// Policy holds the upload limits enforced before a request reaches the handlers.
type Policy struct {
	AccountHeader string
	MaxFileSize   int64 // bytes, <= 0: unlimited
	Extensions    *fs.ExtensionMatcher
}

// Server routes HTTP requests to a vault Manager.
type Server struct {
	manager  *vault.Manager
	fsmgr    vault.FilesystemManager
	logger   vault.Logger
	policy   Policy
	gatherer prometheus.Gatherer
	engine   *gin.Engine
}

// NewServer creates a Server and registers its routes.
// A nil gatherer disables the /metrics route.
func NewServer(manager *vault.Manager, fsmgr vault.FilesystemManager, logger vault.Logger, policy Policy, gatherer prometheus.Gatherer) *Server {
	if policy.AccountHeader == "" {
		policy.AccountHeader = DefaultAccountHeader
	}
	if policy.Extensions == nil {
		policy.Extensions = fs.NewExtensionMatcher(nil)
	}

	s := &Server{
		manager:  manager,
		fsmgr:    fsmgr,
		logger:   logger,
		policy:   policy,
		gatherer: gatherer,
	}
	s.engine = s.routes()
	return s
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.engine
}

func (s *Server) routes() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), s.requestLogger())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	if s.gatherer != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{})))
	}

	v1 := r.Group("/v1")
	v1.Use(s.uploadPolicy(), s.quotaCheck())
	{
		v1.GET("/usage", s.getUsage)
		v1.GET("/files", s.listFiles)
		v1.POST("/files", s.uploadFile)
		v1.DELETE("/files", s.deleteFile)
	}
	return r
}

// requestLogger logs one line per request through the vault logger.
func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		args := []any{
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration", time.Since(start),
		}
		if account := c.GetHeader(s.policy.AccountHeader); account != "" {
			args = append(args, "account", account)
		}
		if c.Writer.Status() >= http.StatusInternalServerError {
			s.logger.Error("request failed", args...)
			return
		}
		s.logger.Debug("request", args...)
	}
}

func (s *Server) accountID(c *gin.Context) string {
	return c.GetHeader(s.policy.AccountHeader)
}
