package bootstrap

import (
	"go.uber.org/zap"

	"github.com/GoSim-25-26J-441/rvd-backend/config"
	"github.com/GoSim-25-26J-441/rvd-backend/internal/metrics"
	"github.com/GoSim-25-26J-441/rvd-backend/internal/projects/repository"
	"github.com/GoSim-25-26J-441/rvd-backend/internal/projects/service"
	"github.com/GoSim-25-26J-441/rvd-backend/internal/workspace"
)

// OpenProjects opens the workspace and the project service on top of it.
func OpenProjects(cfg *config.WorkspaceConfig, log *zap.Logger, m *metrics.Metrics) (*service.ProjectService, *workspace.Workspace, error) {
	ws, err := workspace.New(cfg.Dir)
	if err != nil {
		return nil, nil, err
	}
	svc := service.NewProjectService(repository.NewProjectRepository(ws), service.Options{
		Version: cfg.ProjectVersion,
		Logger:  log,
		Metrics: m,
	})
	return svc, ws, nil
}
