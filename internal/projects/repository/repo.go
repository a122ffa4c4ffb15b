package repository

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/GoSim-25-26J-441/rvd-backend/internal/projects/domain"
	"github.com/GoSim-25-26J-441/rvd-backend/internal/workspace"
)

// ProjectRepository persists project records as JSON files under the workspace.
// It does no locking and no authorization; callers hold the project lock.
type ProjectRepository struct {
	ws *workspace.Workspace
}

// NewProjectRepository creates a new project repository
func NewProjectRepository(ws *workspace.Workspace) *ProjectRepository {
	return &ProjectRepository{ws: ws}
}

// Workspace returns the underlying workspace.
func (r *ProjectRepository) Workspace() *workspace.Workspace { return r.ws }

// Exists reports whether a project directory exists.
func (r *ProjectRepository) Exists(name string) bool {
	return r.ws.ProjectExists(name)
}

// Dir resolves the directory of an existing project.
func (r *ProjectRepository) Dir(name string) (string, error) {
	return r.ws.ResolveProject(name)
}

// ListProjectNames returns every project in the workspace.
func (r *ProjectRepository) ListProjectNames() ([]string, error) {
	return r.ws.ProjectNames()
}

// Create lays out a new project with its initial state in a staging
// directory, then moves it into place.
func (r *ProjectRepository) Create(name string, state *domain.ProjectState) error {
	target, err := r.ws.ProjectDir(name)
	if err != nil {
		return err
	}
	if r.ws.ProjectExists(name) {
		return fmt.Errorf("%w: %s", domain.ErrProjectAlreadyExists, name)
	}

	staging, err := r.ws.NewStagingDir()
	if err != nil {
		return err
	}
	defer os.RemoveAll(staging)

	if err := os.Mkdir(filepath.Join(staging, workspace.WavsDir), 0o755); err != nil {
		return domain.NewStorageError("create wavs dir", name, err)
	}
	b, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return domain.NewStorageError("marshal state", name, err)
	}
	if err := workspace.WriteFileAtomic(filepath.Join(staging, workspace.StateFile), b, 0o644); err != nil {
		return domain.NewStorageError("write state", name, err)
	}
	return r.install(staging, target, name)
}

// Install moves a fully prepared staging directory into place as project name.
func (r *ProjectRepository) Install(staging, name string) error {
	target, err := r.ws.ProjectDir(name)
	if err != nil {
		return err
	}
	if r.ws.ProjectExists(name) {
		return fmt.Errorf("%w: %s", domain.ErrProjectAlreadyExists, name)
	}
	if err := workspace.CheckLayout(staging); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrBadWorkspaceDirectoryStructure, err)
	}
	return r.install(staging, target, name)
}

func (r *ProjectRepository) install(staging, target, name string) error {
	if err := os.Rename(staging, target); err != nil {
		return domain.NewStorageError("install project", name, err)
	}
	return nil
}

// LoadRawState returns the state file as stored.
func (r *ProjectRepository) LoadRawState(name string) ([]byte, error) {
	dir, err := r.ws.ResolveProject(name)
	if err != nil {
		return nil, err
	}
	b, err := os.ReadFile(filepath.Join(dir, workspace.StateFile))
	if err != nil {
		return nil, domain.NewStorageError("read state", name, err)
	}
	return b, nil
}

// StoreRawState replaces the state file with b.
func (r *ProjectRepository) StoreRawState(name string, b []byte) error {
	dir, err := r.ws.ResolveProject(name)
	if err != nil {
		return err
	}
	if !json.Valid(b) {
		return domain.NewStorageError("write state", name, errors.New("state is not valid JSON"))
	}
	if err := workspace.WriteFileAtomic(filepath.Join(dir, workspace.StateFile), b, 0o644); err != nil {
		return domain.NewStorageError("write state", name, err)
	}
	return nil
}

// LoadProject reads the full project state.
func (r *ProjectRepository) LoadProject(name string) (*domain.ProjectState, error) {
	b, err := r.LoadRawState(name)
	if err != nil {
		return nil, err
	}
	var state domain.ProjectState
	if err := json.Unmarshal(b, &state); err != nil {
		return nil, domain.NewStorageError("parse state", name, err)
	}
	defaultVersion(&state.Header)
	return &state, nil
}

// LoadHeader reads only the header of the project state.
func (r *ProjectRepository) LoadHeader(name string) (*domain.StateHeader, error) {
	b, err := r.LoadRawState(name)
	if err != nil {
		return nil, err
	}
	var partial struct {
		Header *domain.StateHeader `json:"header"`
	}
	if err := json.Unmarshal(b, &partial); err != nil {
		return nil, domain.NewStorageError("parse header", name, err)
	}
	if partial.Header == nil {
		return nil, domain.NewStorageError("parse header", name, errors.New("state has no header"))
	}
	defaultVersion(partial.Header)
	return partial.Header, nil
}

// defaultVersion treats states written before the header carried a version
// as version 1.
func defaultVersion(h *domain.StateHeader) {
	if h.Version == 0 {
		h.Version = 1
	}
}

// StoreProject writes the full project state.
func (r *ProjectRepository) StoreProject(name string, state *domain.ProjectState) error {
	b, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return domain.NewStorageError("marshal state", name, err)
	}
	return r.StoreRawState(name, b)
}

// LoadSettings reads the project settings record.
func (r *ProjectRepository) LoadSettings(name string) (*domain.ProjectSettings, error) {
	var s domain.ProjectSettings
	if err := r.loadRecord(name, workspace.SettingsFile, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// StoreSettings writes the project settings record.
func (r *ProjectRepository) StoreSettings(name string, s *domain.ProjectSettings) error {
	return r.storeRecord(name, workspace.SettingsFile, s)
}

// LoadCallControl reads the call-control info record.
func (r *ProjectRepository) LoadCallControl(name string) (*domain.CallControlInfo, error) {
	var info domain.CallControlInfo
	if err := r.loadRecord(name, workspace.CallControlFile, &info); err != nil {
		return nil, err
	}
	return &info, nil
}

// StoreCallControl writes the call-control info record.
func (r *ProjectRepository) StoreCallControl(name string, info *domain.CallControlInfo) error {
	return r.storeRecord(name, workspace.CallControlFile, info)
}

// ClearCallControl removes the call-control info record if present.
func (r *ProjectRepository) ClearCallControl(name string) error {
	dir, err := r.ws.ResolveProject(name)
	if err != nil {
		return err
	}
	err = os.Remove(filepath.Join(dir, workspace.CallControlFile))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return domain.NewStorageError("clear cc", name, err)
	}
	return nil
}

func (r *ProjectRepository) loadRecord(name, file string, v any) error {
	dir, err := r.ws.ResolveProject(name)
	if err != nil {
		return err
	}
	b, err := os.ReadFile(filepath.Join(dir, file))
	if errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("%w: %s/%s", domain.ErrStorageEntityNotFound, name, file)
	}
	if err != nil {
		return domain.NewStorageError("read "+file, name, err)
	}
	if err := json.Unmarshal(b, v); err != nil {
		return domain.NewStorageError("parse "+file, name, err)
	}
	return nil
}

func (r *ProjectRepository) storeRecord(name, file string, v any) error {
	dir, err := r.ws.ResolveProject(name)
	if err != nil {
		return err
	}
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return domain.NewStorageError("marshal "+file, name, err)
	}
	if err := workspace.WriteFileAtomic(filepath.Join(dir, file), b, 0o644); err != nil {
		return domain.NewStorageError("write "+file, name, err)
	}
	return nil
}

// ValidateWavName checks a wav file name before it is joined to a path.
func ValidateWavName(filename string) error {
	if workspace.ValidateName(filename) != nil {
		return fmt.Errorf("%w: %q", domain.ErrInvalidWavName, filename)
	}
	return nil
}

func (r *ProjectRepository) wavsDir(name string) (string, error) {
	dir, err := r.ws.ResolveProject(name)
	if err != nil {
		return "", err
	}
	wavs := filepath.Join(dir, workspace.WavsDir)
	if err := os.MkdirAll(wavs, 0o755); err != nil {
		return "", domain.NewStorageError("create wavs dir", name, err)
	}
	return wavs, nil
}

// StoreWav writes a wav asset, replacing any asset with the same name.
func (r *ProjectRepository) StoreWav(name, filename string, src io.Reader) (int64, error) {
	if err := ValidateWavName(filename); err != nil {
		return 0, err
	}
	wavs, err := r.wavsDir(name)
	if err != nil {
		return 0, err
	}
	n, err := workspace.WriteStreamAtomic(filepath.Join(wavs, filename), src, 0o644)
	if err != nil {
		return 0, domain.NewStorageError("write wav "+filename, name, err)
	}
	return n, nil
}

// OpenWav opens a wav asset for reading.
func (r *ProjectRepository) OpenWav(name, filename string) (*os.File, error) {
	if err := ValidateWavName(filename); err != nil {
		return nil, err
	}
	wavs, err := r.wavsDir(name)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(filepath.Join(wavs, filename))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", domain.ErrWavItemDoesNotExist, filename)
	}
	if err != nil {
		return nil, domain.NewStorageError("open wav "+filename, name, err)
	}
	return f, nil
}

// ListWavs returns the wav assets of a project ordered by name.
func (r *ProjectRepository) ListWavs(name string) ([]domain.WavItem, error) {
	wavs, err := r.wavsDir(name)
	if err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(wavs)
	if err != nil {
		return nil, domain.NewStorageError("list wavs", name, err)
	}
	items := make([]domain.WavItem, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		info, err := e.Info()
		if err != nil {
			return nil, domain.NewStorageError("stat wav "+e.Name(), name, err)
		}
		items = append(items, domain.WavItem{
			Filename: e.Name(),
			Size:     info.Size(),
			Modified: info.ModTime().UTC(),
		})
	}
	sort.Slice(items, func(i, j int) bool { return items[i].Filename < items[j].Filename })
	return items, nil
}

// DeleteWav removes a wav asset.
func (r *ProjectRepository) DeleteWav(name, filename string) error {
	if err := ValidateWavName(filename); err != nil {
		return err
	}
	wavs, err := r.wavsDir(name)
	if err != nil {
		return err
	}
	err = os.Remove(filepath.Join(wavs, filename))
	if errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("%w: %s", domain.ErrWavItemDoesNotExist, filename)
	}
	if err != nil {
		return domain.NewStorageError("delete wav "+filename, name, err)
	}
	return nil
}

// Rename moves a project directory to a new name with a single rename.
func (r *ProjectRepository) Rename(oldName, newName string) error {
	src, err := r.ws.ResolveProject(oldName)
	if err != nil {
		return err
	}
	dst, err := r.ws.ProjectDir(newName)
	if err != nil {
		return err
	}
	if _, err := os.Lstat(dst); err == nil {
		return fmt.Errorf("%w: %s", domain.ErrProjectDirectoryAlreadyExists, newName)
	}
	if err := os.Rename(src, dst); err != nil {
		return domain.NewStorageError("rename to "+newName, oldName, err)
	}
	return nil
}

// Delete removes a project and everything under it. The directory is first
// moved out of the way so the name disappears in one step.
func (r *ProjectRepository) Delete(name string) error {
	dir, err := r.ws.ProjectDir(name)
	if err != nil {
		return err
	}
	if !r.ws.ProjectExists(name) {
		return fmt.Errorf("%w: %s", domain.ErrProjectDoesNotExist, name)
	}
	trash := r.ws.TrashPath()
	if err := os.Rename(dir, trash); err != nil {
		return domain.NewStorageError("delete", name, err)
	}
	if err := os.RemoveAll(trash); err != nil {
		return domain.NewStorageError("purge", name, err)
	}
	return nil
}
