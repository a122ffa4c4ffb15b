package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/GoSim-25-26J-441/rvd-backend/internal/logging"
	"github.com/GoSim-25-26J-441/rvd-backend/internal/metrics"
	"github.com/GoSim-25-26J-441/rvd-backend/internal/projects/domain"
	"github.com/GoSim-25-26J-441/rvd-backend/internal/projects/repository"
	"github.com/GoSim-25-26J-441/rvd-backend/internal/projects/templates"
	"github.com/GoSim-25-26J-441/rvd-backend/internal/workspace"
)

// DefaultVersion is the project schema version this build of the service
// reads and writes.
const DefaultVersion = 3

const defaultImportName = "imported-project"

// Options configures a ProjectService. Zero values pick the defaults.
type Options struct {
	Version   int
	Upgraders map[int]Upgrader
	Logger    *zap.Logger
	Metrics   *metrics.Metrics
}

// ProjectService handles project-related business logic. It is the only
// place that checks ownership and holds project locks.
type ProjectService struct {
	repo     *repository.ProjectRepository
	ws       *workspace.Workspace
	validate *StateValidator
	builder  *BuildService
	upgrader *UpgradeService
	builds   singleflight.Group
	version  int
	log      *zap.Logger
	metrics  *metrics.Metrics
}

// NewProjectService creates a new project service
func NewProjectService(repo *repository.ProjectRepository, opts Options) *ProjectService {
	if opts.Version == 0 {
		opts.Version = DefaultVersion
	}
	log := logging.OrNop(opts.Logger)
	v := NewStateValidator()
	return &ProjectService{
		repo:     repo,
		ws:       repo.Workspace(),
		validate: v,
		builder:  NewBuildService(repo, v, opts.Version, log, opts.Metrics),
		upgrader: NewUpgradeService(repo, opts.Version, opts.Upgraders, log, opts.Metrics),
		version:  opts.Version,
		log:      log,
		metrics:  opts.Metrics,
	}
}

// Version returns the schema version projects must be at to be built.
func (s *ProjectService) Version() int { return s.version }

// Builder returns the build service.
func (s *ProjectService) Builder() *BuildService { return s.builder }

// CreateProject lays out a new project of the given kind owned by owner and
// builds it. An empty kind means voice.
func (s *ProjectService) CreateProject(ctx context.Context, name, kind, owner string) (_ *domain.ProjectState, err error) {
	defer func() { s.metrics.Op("create", err) }()

	if kind == "" {
		kind = domain.KindVoice
	}
	if !domain.IsKnownKind(kind) {
		return nil, fmt.Errorf("%w: unknown project kind %q", domain.ErrInvalidServiceParameters, kind)
	}
	if err := workspace.ValidateName(name); err != nil {
		return nil, err
	}

	state, err := templates.Initial(kind, s.version, owner)
	if err != nil {
		return nil, err
	}

	unlock, err := s.ws.Lock(name)
	if err != nil {
		return nil, err
	}
	defer unlock()

	if err := s.repo.Create(name, state); err != nil {
		return nil, err
	}
	if _, err := s.builder.BuildProject(ctx, name, state); err != nil {
		if rmErr := s.repo.Delete(name); rmErr != nil {
			s.log.Error("created project not rolled back", zap.String("project", name), zap.Error(rmErr))
		}
		return nil, fmt.Errorf("initial build of %s: %w", name, err)
	}
	s.log.Info("project created", zap.String("project", name), zap.String("kind", kind), zap.String("owner", owner))
	return state, nil
}

// LoadProject returns the full state of a project the identity may access.
func (s *ProjectService) LoadProject(ctx context.Context, identity, name string) (*domain.ProjectState, error) {
	if _, err := s.authorize(identity, name); err != nil {
		return nil, err
	}
	return s.repo.LoadProject(name)
}

// LoadProjectInfo returns the header of a project the identity may access.
func (s *ProjectService) LoadProjectInfo(ctx context.Context, identity, name string) (*domain.StateHeader, error) {
	return s.authorize(identity, name)
}

// ListProjects returns the projects visible to identity: its own and the
// owner-less ones. Projects whose header cannot be read are skipped.
func (s *ProjectService) ListProjects(ctx context.Context, identity string) ([]domain.ProjectItem, error) {
	return s.listItems(func(h *domain.StateHeader) bool { return canAccess(h, identity) })
}

func (s *ProjectService) listItems(keep func(*domain.StateHeader) bool) ([]domain.ProjectItem, error) {
	names, err := s.repo.ListProjectNames()
	if err != nil {
		return nil, err
	}
	items := make([]domain.ProjectItem, 0, len(names))
	for _, name := range names {
		h, err := s.repo.LoadHeader(name)
		if err != nil {
			s.log.Warn("skipping unreadable project", zap.String("project", name), zap.Error(err))
			continue
		}
		if !keep(h) {
			continue
		}
		items = append(items, domain.ProjectItem{Name: name, Kind: h.ProjectKind, Owner: h.Owner, Version: h.Version})
	}
	return items, nil
}

// UpdateProject replaces the state of a project with data and rebuilds it.
// The stored owner, kind and version are kept whatever data says.
func (s *ProjectService) UpdateProject(ctx context.Context, identity, name string, data []byte) (err error) {
	defer func() { s.metrics.Op("update", err) }()

	unlock, err := s.ws.Lock(name)
	if err != nil {
		return err
	}
	defer unlock()

	stored, err := s.authorize(identity, name)
	if err != nil {
		return err
	}
	if stored.Version != s.version {
		return &domain.IncompatibleVersionError{Project: name, Stored: stored.Version, Expected: s.version}
	}

	var state domain.ProjectState
	if err := json.Unmarshal(data, &state); err != nil {
		return &domain.ValidationError{Items: []domain.ValidationItem{{Field: "state", Message: "malformed JSON: " + err.Error()}}}
	}
	state.Header.Owner = stored.Owner
	state.Header.ProjectKind = stored.ProjectKind
	state.Header.Version = stored.Version
	if err := s.validate.Validate(&state); err != nil {
		return err
	}

	if err := s.repo.StoreProject(name, &state); err != nil {
		return err
	}
	if _, err := s.builder.BuildProject(ctx, name, &state); err != nil {
		return err
	}
	return nil
}

// RenameProject moves a project to newName and rebuilds it under that name.
func (s *ProjectService) RenameProject(ctx context.Context, identity, oldName, newName string) (err error) {
	defer func() { s.metrics.Op("rename", err) }()

	if err := workspace.ValidateName(newName); err != nil {
		return err
	}
	unlock, err := s.ws.LockPair(oldName, newName)
	if err != nil {
		return err
	}
	defer unlock()

	if _, err := s.authorize(identity, oldName); err != nil {
		return err
	}
	if err := s.repo.Rename(oldName, newName); err != nil {
		return err
	}
	s.log.Info("project renamed", zap.String("from", oldName), zap.String("to", newName))

	state, err := s.repo.LoadProject(newName)
	if err != nil {
		return err
	}
	if state.Header.Version != s.version {
		// Built on upgrade.
		return nil
	}
	_, err = s.builder.BuildProject(ctx, newName, state)
	return err
}

// DeleteProject removes a project with all its resources. Deleting a missing
// project fails with ErrProjectDoesNotExist.
func (s *ProjectService) DeleteProject(ctx context.Context, identity, name string) (err error) {
	defer func() { s.metrics.Op("delete", err) }()

	unlock, err := s.ws.Lock(name)
	if err != nil {
		return err
	}
	defer unlock()

	if _, err := s.authorize(identity, name); err != nil {
		return err
	}
	if err := s.repo.Delete(name); err != nil {
		return err
	}
	s.log.Info("project deleted", zap.String("project", name))
	return nil
}

// ArchiveProject writes the project as a zip archive to w.
func (s *ProjectService) ArchiveProject(ctx context.Context, identity, name string, w io.Writer) (err error) {
	defer func() { s.metrics.Op("archive", err) }()

	unlock, err := s.ws.Lock(name)
	if err != nil {
		return err
	}
	defer unlock()

	if _, err := s.authorize(identity, name); err != nil {
		return err
	}
	return s.repo.WriteArchive(name, w)
}

// ImportProjectFromArchive installs the project held in the zip archive r and
// returns the name it was given. The name comes from suggestedName, with a
// numeric suffix when taken. The importer becomes the owner. Older projects
// are upgraded before they are installed. Nothing is left behind on failure.
func (s *ProjectService) ImportProjectFromArchive(ctx context.Context, identity string, r io.Reader, suggestedName string) (_ string, err error) {
	defer func() { s.metrics.Op("import", err) }()

	tmp, err := os.CreateTemp(s.ws.BasePath(), workspace.TempPrefix+"import-*")
	if err != nil {
		return "", domain.NewStorageError("buffer archive", "", err)
	}
	defer func() {
		tmp.Close()
		os.Remove(tmp.Name())
	}()
	size, err := io.Copy(tmp, r)
	if err != nil {
		return "", domain.NewStorageError("buffer archive", "", err)
	}

	staging, err := s.ws.NewStagingDir()
	if err != nil {
		return "", err
	}
	defer os.RemoveAll(staging)

	if err := repository.ExtractArchive(tmp, size, staging); err != nil {
		return "", err
	}
	base := ImportName(suggestedName)
	if err := s.prepareImported(ctx, identity, base, staging); err != nil {
		return "", err
	}

	for i := 0; ; i++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		candidate := base
		if i > 0 {
			candidate = base + "-" + strconv.Itoa(i)
		}
		name, done, err := s.installImported(ctx, staging, candidate)
		if err != nil {
			return "", err
		}
		if done {
			return name, nil
		}
	}
}

// prepareImported upgrades the staged state, makes identity its owner and
// validates it. A state that cannot be upgraded, parsed or validated makes
// the archive malformed; a state newer than the running version stays an
// IncompatibleVersionError.
func (s *ProjectService) prepareImported(ctx context.Context, identity, name, staging string) error {
	statePath := filepath.Join(staging, workspace.StateFile)
	raw, err := os.ReadFile(statePath)
	if err != nil {
		return domain.NewStorageError("read imported state", name, err)
	}
	raw, from, err := s.upgrader.UpgradeRaw(ctx, name, raw)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		var ierr *domain.IncompatibleVersionError
		if errors.As(err, &ierr) {
			return err
		}
		return malformedImport(name, err)
	}

	var state domain.ProjectState
	if err := json.Unmarshal(raw, &state); err != nil {
		return malformedImport(name, err)
	}
	state.Header.Owner = identity
	if err := s.validate.Validate(&state); err != nil {
		return malformedImport(name, err)
	}
	body, err := json.MarshalIndent(&state, "", "  ")
	if err != nil {
		return domain.NewStorageError("marshal imported state", name, err)
	}
	if err := workspace.WriteFileAtomic(statePath, body, 0o644); err != nil {
		return domain.NewStorageError("write imported state", name, err)
	}
	if from != s.version {
		s.log.Info("imported project upgraded", zap.String("project", name), zap.Int("from", from), zap.Int("to", s.version))
	}
	return nil
}

func malformedImport(name string, err error) error {
	return domain.NewStorageError("import", name, fmt.Errorf("%w: %v", repository.ErrMalformedArchive, err))
}

func (s *ProjectService) installImported(ctx context.Context, staging, candidate string) (string, bool, error) {
	unlock, err := s.ws.Lock(candidate)
	if err != nil {
		return "", false, err
	}
	defer unlock()

	if s.repo.Exists(candidate) {
		return "", false, nil
	}
	err = s.repo.Install(staging, candidate)
	if errors.Is(err, domain.ErrProjectAlreadyExists) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}

	state, err := s.repo.LoadProject(candidate)
	if err == nil {
		_, err = s.builder.BuildProject(ctx, candidate, state)
	}
	if err != nil {
		if rmErr := s.repo.Delete(candidate); rmErr != nil {
			s.log.Error("imported project not rolled back", zap.String("project", candidate), zap.Error(rmErr))
		}
		return "", false, err
	}
	s.log.Info("project imported", zap.String("project", candidate))
	return candidate, true, nil
}

// ImportName derives a project name from an uploaded file name: directories
// and a .zip extension are dropped and characters not allowed in project
// names become dashes.
func ImportName(suggested string) string {
	suggested = strings.ReplaceAll(suggested, `\`, "/")
	if i := strings.LastIndex(suggested, "/"); i >= 0 {
		suggested = suggested[i+1:]
	}
	if strings.HasSuffix(strings.ToLower(suggested), ".zip") {
		suggested = suggested[:len(suggested)-len(".zip")]
	}

	var b strings.Builder
	for _, r := range suggested {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == ' ', r == '.', r == '_', r == '-':
			b.WriteRune(r)
		default:
			b.WriteRune('-')
		}
	}
	name := strings.TrimLeft(b.String(), " ._-")
	name = strings.TrimRight(name, " .")
	if len(name) > 100 {
		name = strings.TrimRight(name[:100], " .")
	}
	if workspace.ValidateName(name) != nil {
		return defaultImportName
	}
	return name
}

// UpgradeProject brings a project to the running version and rebuilds it
// from the upgraded state. It returns the version the project started at.
func (s *ProjectService) UpgradeProject(ctx context.Context, identity, name string) (_ int, err error) {
	defer func() { s.metrics.Op("upgrade", err) }()

	unlock, err := s.ws.Lock(name)
	if err != nil {
		return 0, err
	}
	defer unlock()

	if _, err := s.authorize(identity, name); err != nil {
		return 0, err
	}
	from, err := s.upgrader.Upgrade(ctx, name)
	if err != nil {
		return from, err
	}
	state, err := s.repo.LoadProject(name)
	if err != nil {
		return from, err
	}
	if _, err := s.builder.BuildProject(ctx, name, state); err != nil {
		return from, err
	}
	return from, nil
}

// BuildProject rebuilds the artifact of a project from its stored state.
// Requests by the same identity for a project whose build is in flight
// share that build's result.
func (s *ProjectService) BuildProject(ctx context.Context, identity, name string) (_ *Manifest, err error) {
	defer func() { s.metrics.Op("build", err) }()

	v, err, shared := s.builds.Do(name+"\x00"+identity, func() (any, error) {
		return s.buildStored(ctx, identity, name)
	})
	if shared {
		s.metrics.BuildShared()
	}
	if err != nil {
		return nil, err
	}
	return v.(*Manifest), nil
}

func (s *ProjectService) buildStored(ctx context.Context, identity, name string) (*Manifest, error) {
	unlock, err := s.ws.Lock(name)
	if err != nil {
		return nil, err
	}
	defer unlock()

	if _, err := s.authorize(identity, name); err != nil {
		return nil, err
	}
	state, err := s.repo.LoadProject(name)
	if err != nil {
		return nil, err
	}
	return s.builder.BuildProject(ctx, name, state)
}

// AddWav stores a wav asset, replacing one with the same name.
func (s *ProjectService) AddWav(ctx context.Context, identity, name, filename string, r io.Reader) (*domain.WavItem, error) {
	unlock, err := s.ws.Lock(name)
	if err != nil {
		return nil, err
	}
	defer unlock()

	if _, err := s.authorize(identity, name); err != nil {
		return nil, err
	}
	if _, err := s.repo.StoreWav(name, filename, r); err != nil {
		return nil, err
	}
	items, err := s.repo.ListWavs(name)
	if err != nil {
		return nil, err
	}
	for i := range items {
		if items[i].Filename == filename {
			return &items[i], nil
		}
	}
	return nil, fmt.Errorf("%w: %s", domain.ErrWavItemDoesNotExist, filename)
}

// RemoveWav deletes a wav asset. Removing a missing asset fails with
// ErrWavItemDoesNotExist.
func (s *ProjectService) RemoveWav(ctx context.Context, identity, name, filename string) error {
	unlock, err := s.ws.Lock(name)
	if err != nil {
		return err
	}
	defer unlock()

	if _, err := s.authorize(identity, name); err != nil {
		return err
	}
	return s.repo.DeleteWav(name, filename)
}

// ListWavs returns the wav assets of a project.
func (s *ProjectService) ListWavs(ctx context.Context, identity, name string) ([]domain.WavItem, error) {
	if _, err := s.authorize(identity, name); err != nil {
		return nil, err
	}
	return s.repo.ListWavs(name)
}

// OpenWav opens a wav asset for streaming. There is no ownership check: the
// media server fetches prompts anonymously.
func (s *ProjectService) OpenWav(ctx context.Context, name, filename string) (*os.File, error) {
	return s.repo.OpenWav(name, filename)
}

// GetSettings returns the project settings.
func (s *ProjectService) GetSettings(ctx context.Context, identity, name string) (*domain.ProjectSettings, error) {
	if _, err := s.authorize(identity, name); err != nil {
		return nil, err
	}
	return s.repo.LoadSettings(name)
}

// SaveSettings replaces the project settings.
func (s *ProjectService) SaveSettings(ctx context.Context, identity, name string, settings *domain.ProjectSettings) error {
	if settings == nil {
		return fmt.Errorf("%w: settings are required", domain.ErrInvalidServiceParameters)
	}
	unlock, err := s.ws.Lock(name)
	if err != nil {
		return err
	}
	defer unlock()

	if _, err := s.authorize(identity, name); err != nil {
		return err
	}
	return s.repo.StoreSettings(name, settings)
}

// GetCallControl returns the call-control info of a project.
func (s *ProjectService) GetCallControl(ctx context.Context, identity, name string) (*domain.CallControlInfo, error) {
	if _, err := s.authorize(identity, name); err != nil {
		return nil, err
	}
	return s.repo.LoadCallControl(name)
}

// SaveCallControl replaces the call-control info. A nil info clears it.
func (s *ProjectService) SaveCallControl(ctx context.Context, identity, name string, info *domain.CallControlInfo) error {
	unlock, err := s.ws.Lock(name)
	if err != nil {
		return err
	}
	defer unlock()

	if _, err := s.authorize(identity, name); err != nil {
		return err
	}
	if info == nil {
		return s.repo.ClearCallControl(name)
	}
	return s.repo.StoreCallControl(name, info)
}
