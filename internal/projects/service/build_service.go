package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/GoSim-25-26J-441/rvd-backend/internal/logging"
	"github.com/GoSim-25-26J-441/rvd-backend/internal/metrics"
	"github.com/GoSim-25-26J-441/rvd-backend/internal/projects/domain"
	"github.com/GoSim-25-26J-441/rvd-backend/internal/projects/repository"
	"github.com/GoSim-25-26J-441/rvd-backend/internal/workspace"
)

const (
	ManifestFile = "manifest.json"
	NodesDir     = "nodes"
)

// Manifest describes a built project artifact.
type Manifest struct {
	Project     string    `json:"project"`
	Kind        string    `json:"kind"`
	Version     int       `json:"version"`
	StartNode   string    `json:"startNode"`
	Nodes       []string  `json:"nodes"`
	BuiltAt     time.Time `json:"builtAt"`
	StateSHA256 string    `json:"stateSha256"`
}

// BuildService compiles a project state into the artifact the runtime
// serves from <project>/build. Callers hold the project lock.
type BuildService struct {
	repo      *repository.ProjectRepository
	validator *StateValidator
	version   int
	log       *zap.Logger
	metrics   *metrics.Metrics
	now       func() time.Time
}

func NewBuildService(repo *repository.ProjectRepository, v *StateValidator, version int, log *zap.Logger, m *metrics.Metrics) *BuildService {
	return &BuildService{
		repo:      repo,
		validator: v,
		version:   version,
		log:       logging.OrNop(log),
		metrics:   m,
		now:       time.Now,
	}
}

// BuildProject validates state and replaces the project's artifact with a
// fresh build of it. It never modifies the stored state.
func (b *BuildService) BuildProject(ctx context.Context, name string, state *domain.ProjectState) (*Manifest, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if state == nil {
		return nil, fmt.Errorf("%w: nil state", domain.ErrInvalidServiceParameters)
	}
	if state.Header.Version != b.version {
		return nil, &domain.IncompatibleVersionError{Project: name, Stored: state.Header.Version, Expected: b.version}
	}
	if err := b.validator.Validate(state); err != nil {
		return nil, err
	}

	raw, err := json.Marshal(state)
	if err != nil {
		return nil, domain.NewStorageError("marshal state", name, err)
	}
	sum := sha256.Sum256(raw)
	digest := hex.EncodeToString(sum[:])

	start := time.Now()
	m, err := b.build(name, state, digest)
	b.metrics.Build(start, err)
	if err != nil {
		b.log.Error("build failed", zap.String("project", name), zap.Error(err))
		return nil, err
	}
	b.log.Debug("project built", zap.String("project", name), zap.String("sha256", digest))
	return m, nil
}

func (b *BuildService) build(name string, state *domain.ProjectState, digest string) (*Manifest, error) {
	dir, err := b.repo.Dir(name)
	if err != nil {
		return nil, err
	}
	ws := b.repo.Workspace()

	staging, err := ws.NewStagingDir()
	if err != nil {
		return nil, err
	}
	defer os.RemoveAll(staging)

	m := &Manifest{
		Project:     name,
		Kind:        state.Header.ProjectKind,
		Version:     state.Header.Version,
		StartNode:   state.Header.StartNodeName,
		Nodes:       make([]string, 0, len(state.Nodes)),
		BuiltAt:     b.now().UTC(),
		StateSHA256: digest,
	}

	nodesDir := filepath.Join(staging, NodesDir)
	if err := os.Mkdir(nodesDir, 0o755); err != nil {
		return nil, domain.NewStorageError("build", name, err)
	}
	for _, n := range state.Nodes {
		body, err := json.MarshalIndent(n, "", "  ")
		if err != nil {
			return nil, domain.NewStorageError("build node "+n.Name, name, err)
		}
		if err := workspace.WriteFileAtomic(filepath.Join(nodesDir, n.Name+".json"), body, 0o644); err != nil {
			return nil, domain.NewStorageError("build node "+n.Name, name, err)
		}
		m.Nodes = append(m.Nodes, n.Name)
	}

	body, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return nil, domain.NewStorageError("build manifest", name, err)
	}
	if err := workspace.WriteFileAtomic(filepath.Join(staging, ManifestFile), body, 0o644); err != nil {
		return nil, domain.NewStorageError("build manifest", name, err)
	}

	target := filepath.Join(dir, workspace.BuildDir)
	trash := ws.TrashPath()
	hadOld := true
	if err := os.Rename(target, trash); err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			return nil, domain.NewStorageError("swap build", name, err)
		}
		hadOld = false
	}
	if err := os.Rename(staging, target); err != nil {
		if hadOld {
			_ = os.Rename(trash, target)
		}
		return nil, domain.NewStorageError("swap build", name, err)
	}
	if hadOld {
		if err := os.RemoveAll(trash); err != nil {
			b.log.Warn("old build not removed", zap.String("project", name), zap.String("path", trash), zap.Error(err))
		}
	}
	return m, nil
}

// LoadManifest reads the manifest of the current artifact.
func (b *BuildService) LoadManifest(name string) (*Manifest, error) {
	dir, err := b.repo.Dir(name)
	if err != nil {
		return nil, err
	}
	body, err := os.ReadFile(filepath.Join(dir, workspace.BuildDir, ManifestFile))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s has not been built", domain.ErrStorageEntityNotFound, name)
	}
	if err != nil {
		return nil, domain.NewStorageError("read manifest", name, err)
	}
	var m Manifest
	if err := json.Unmarshal(body, &m); err != nil {
		return nil, domain.NewStorageError("parse manifest", name, err)
	}
	return &m, nil
}
