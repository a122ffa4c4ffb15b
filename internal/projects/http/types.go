package http

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/GoSim-25-26J-441/rvd-backend/internal/auth"
	"github.com/GoSim-25-26J-441/rvd-backend/internal/logging"
	"github.com/GoSim-25-26J-441/rvd-backend/internal/projects/service"
)

// DefaultMaxUploadBytes caps archive and wav uploads when no limit is set.
const DefaultMaxUploadBytes = 64 << 20

// Handler bundles the dependencies for projects HTTP endpoints.
type Handler struct {
	svc           *service.ProjectService
	accounts      auth.AccountLookup
	appsBaseURL   string
	maxUpload     int64
	uploadLimiter gin.HandlerFunc
	log           *zap.Logger
}

// Options holds the optional parts of a Handler.
type Options struct {
	// Accounts resolves identities to accounts. Nil lets every identified
	// caller act as a Developer.
	Accounts      auth.AccountLookup
	AppsBaseURL   string
	MaxUpload     int64
	UploadLimiter gin.HandlerFunc
	Logger        *zap.Logger
}

func New(svc *service.ProjectService, opts Options) *Handler {
	if opts.MaxUpload <= 0 {
		opts.MaxUpload = DefaultMaxUploadBytes
	}
	return &Handler{
		svc:           svc,
		accounts:      opts.Accounts,
		appsBaseURL:   opts.AppsBaseURL,
		maxUpload:     opts.MaxUpload,
		uploadLimiter: opts.UploadLimiter,
		log:           logging.OrNop(opts.Logger),
	}
}
