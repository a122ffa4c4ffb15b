package bootstrap

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/GoSim-25-26J-441/rvd-backend/config"
	accountshttp "github.com/GoSim-25-26J-441/rvd-backend/internal/accounts/http"
	"github.com/GoSim-25-26J-441/rvd-backend/internal/accounts/repository"
	httpapi "github.com/GoSim-25-26J-441/rvd-backend/internal/api/http"
	"github.com/GoSim-25-26J-441/rvd-backend/internal/api/http/middleware"
	"github.com/GoSim-25-26J-441/rvd-backend/internal/auth"
	"github.com/GoSim-25-26J-441/rvd-backend/internal/metrics"
	projectshttp "github.com/GoSim-25-26J-441/rvd-backend/internal/projects/http"
	"github.com/GoSim-25-26J-441/rvd-backend/internal/projects/service"
)

type RouterDeps struct {
	ServiceName string
	Config      *config.Config
	Projects    *service.ProjectService
	Accounts    repository.Store
	Logger      *zap.Logger
	Metrics     *metrics.Metrics
	Gatherer    prometheus.Gatherer
}

func BuildRouter(dep RouterDeps) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestIDMiddleware(dep.Logger, dep.Metrics))
	r.Use(cors.New(corsConfig(dep.Config.Server.CORSAllowedOrigins)))

	// Interfaces stay nil when there is no accounts backend.
	var (
		lookup auth.AccountLookup
		pinger httpapi.Pinger
	)
	if dep.Accounts != nil {
		lookup = dep.Accounts
		pinger = dep.Accounts
	}

	healthHandler := httpapi.NewHealthHandler(dep.ServiceName, dep.Config.App.Version, dep.Config.Workspace.Dir, pinger)
	healthHandler.RegisterRoutes(r)

	if dep.Gatherer != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(dep.Gatherer, promhttp.HandlerOpts{})))
	}

	limits := dep.Config.Limits
	uploads := middleware.NewRateLimiter(limits.UploadRatePerSec, limits.UploadBurst)

	api := r.Group("/api/v1")
	projectsHandler := projectshttp.New(dep.Projects, projectshttp.Options{
		Accounts:      lookup,
		AppsBaseURL:   dep.Config.Workspace.AppsBaseURL,
		MaxUpload:     limits.MaxUploadBytes,
		UploadLimiter: uploads.Middleware(),
		Logger:        dep.Logger,
	})
	projectsHandler.Register(api.Group("/projects"))

	if dep.Accounts != nil {
		accountshttp.New(dep.Accounts, dep.Logger).Register(api.Group("/accounts"))
	}

	return r
}

func corsConfig(origins []string) cors.Config {
	cfg := cors.Config{
		AllowMethods:  []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Authorization", auth.HeaderIdentity, middleware.HeaderRequestID},
		ExposeHeaders: []string{"Content-Disposition", middleware.HeaderRequestID},
		MaxAge:        12 * time.Hour,
	}
	for _, o := range origins {
		if o == "*" {
			cfg.AllowAllOrigins = true
			return cfg
		}
	}
	cfg.AllowOrigins = origins
	return cfg
}
