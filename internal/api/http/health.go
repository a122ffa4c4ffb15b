package http

import (
	"context"
	"net/http"
	"os"
	"time"

	"github.com/gin-gonic/gin"
)

type HealthResponse struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	Service   string    `json:"service"`
	Version   string    `json:"version"`
	Workspace string    `json:"workspace"`
	Accounts  string    `json:"accounts,omitempty"`
}

// Pinger is satisfied by the accounts stores.
type Pinger interface {
	Ping(ctx context.Context) error
}

type HealthHandler struct {
	serviceName string
	version     string
	workspace   string
	accounts    Pinger
}

// NewHealthHandler reports on the workspace directory and, when accounts is
// not nil, the accounts backend.
func NewHealthHandler(serviceName, version, workspaceDir string, accounts Pinger) *HealthHandler {
	return &HealthHandler{
		serviceName: serviceName,
		version:     version,
		workspace:   workspaceDir,
		accounts:    accounts,
	}
}

func (h *HealthHandler) HealthCheck(c *gin.Context) {
	status := "healthy"
	code := http.StatusOK

	wsStatus := "up"
	if fi, err := os.Stat(h.workspace); err != nil || !fi.IsDir() {
		wsStatus = "down"
		status = "unhealthy"
		code = http.StatusServiceUnavailable
	}

	accStatus := "disabled"
	if h.accounts != nil {
		pingCtx, cancel := context.WithTimeout(c.Request.Context(), 1*time.Second)
		defer cancel()

		if err := h.accounts.Ping(pingCtx); err != nil {
			accStatus = "down"
			if status == "healthy" {
				status = "degraded"
			}
		} else {
			accStatus = "up"
		}
	}

	c.JSON(code, HealthResponse{
		Status:    status,
		Timestamp: time.Now().UTC(),
		Service:   h.serviceName,
		Version:   h.version,
		Workspace: wsStatus,
		Accounts:  accStatus,
	})
}

func (h *HealthHandler) RegisterRoutes(r gin.IRouter) {
	r.GET("/health", h.HealthCheck)
	r.GET("/healthz", h.HealthCheck)
}
