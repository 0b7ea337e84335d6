// Package server assembles the gin engine: middleware chain, route groups,
// and handler registration.
package server

import (
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.uber.org/zap"

	"labstate/internal/audit"
	distillhandler "labstate/internal/distill/handler"
	healthhandler "labstate/internal/health/handler"
	labhandler "labstate/internal/lab/handler"
	labrepo "labstate/internal/lab/repository"
	runhandler "labstate/internal/run/handler"
	"labstate/internal/security"
	"labstate/internal/server/middleware"
	signalhandler "labstate/internal/signal/handler"
	statehandler "labstate/internal/state/handler"
)

// Deps carries everything the router needs. All fields are required except
// where noted.
type Deps struct {
	Log         *zap.Logger
	Validator   *security.Validator
	AuditLogger *audit.Logger
	Labs        labrepo.Repository

	Health  *healthhandler.Handler
	Lab     *labhandler.Handler
	Signal  *signalhandler.Handler
	State   *statehandler.Handler
	Run     *runhandler.Handler
	Distill *distillhandler.Handler

	// Env switches gin into release mode for anything other than "development".
	Env string
}

// New builds the engine with the full middleware chain and all routes mounted.
func New(d Deps) *gin.Engine {
	if d.Env != "development" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(otelgin.Middleware("labstate"))
	r.Use(requestLogger(d.Log))

	d.Health.Register(r)

	api := r.Group("/api/v1", middleware.Auth(d.Validator), middleware.Audit(d.AuditLogger))
	d.Lab.Register(api)

	lab := api.Group("/labs/:labID", middleware.RequireLab(d.Labs))
	d.Signal.Register(lab)
	d.State.Register(lab)
	d.Run.Register(lab)
	d.Distill.Register(lab)

	return r
}

func requestLogger(log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.Info("request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("ip", c.ClientIP()))
	}
}
