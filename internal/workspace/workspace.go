// Package workspace maps project names onto directories under a single base
// path. It owns the physical layout of a project:
//
//	<base>/<name>/state      project state
//	<base>/<name>/settings   project settings (optional)
//	<base>/<name>/cc         call-control info (optional)
//	<base>/<name>/wavs/      wav assets
//	<base>/<name>/build/     build artifact
//
// Entries whose name starts with a dot are internal (staging, trash, temp
// files) and are never reported as projects.
package workspace

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/GoSim-25-26J-441/rvd-backend/internal/projects/domain"
)

const (
	StateFile       = "state"
	SettingsFile    = "settings"
	CallControlFile = "cc"
	WavsDir         = "wavs"
	BuildDir        = "build"

	StagingPrefix = ".staging-"
	TrashPrefix   = ".trash-"
	TempPrefix    = ".tmp-"
	LocksDir      = ".locks"

	maxNameLength = 128
)

var namePattern = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9 ._-]*$`)

// Workspace resolves project names to directories under base.
type Workspace struct {
	base  string
	locks *Locker
}

// New opens the workspace rooted at base, creating the directory if needed.
func New(base string) (*Workspace, error) {
	if strings.TrimSpace(base) == "" {
		return nil, fmt.Errorf("workspace base path is empty")
	}
	abs, err := filepath.Abs(base)
	if err != nil {
		return nil, fmt.Errorf("resolve workspace path: %w", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("create workspace: %w", err)
	}
	locks := filepath.Join(abs, LocksDir)
	if err := os.MkdirAll(locks, 0o755); err != nil {
		return nil, fmt.Errorf("create lock dir: %w", err)
	}
	return &Workspace{base: abs, locks: NewLocker(locks)}, nil
}

// BasePath returns the absolute workspace directory.
func (w *Workspace) BasePath() string { return w.base }

// ValidateName checks that name is safe to use as a directory name.
func ValidateName(name string) error {
	if name == "" || len(name) > maxNameLength {
		return domain.ErrInvalidProjectName
	}
	if name != strings.TrimSpace(name) {
		return domain.ErrInvalidProjectName
	}
	if name == "." || name == ".." || strings.ContainsAny(name, "/\\\x00") {
		return domain.ErrInvalidProjectName
	}
	if !namePattern.MatchString(name) || filepath.Clean(name) != name {
		return domain.ErrInvalidProjectName
	}
	return nil
}

// ProjectDir returns the directory a project with the given name lives in,
// without checking that it exists.
func (w *Workspace) ProjectDir(name string) (string, error) {
	if err := ValidateName(name); err != nil {
		return "", err
	}
	return filepath.Join(w.base, name), nil
}

// ProjectExists reports whether a directory exists for name.
func (w *Workspace) ProjectExists(name string) bool {
	dir, err := w.ProjectDir(name)
	if err != nil {
		return false
	}
	fi, err := os.Stat(dir)
	return err == nil && fi.IsDir()
}

// ResolveProject returns the directory of an existing project after
// checking its layout.
func (w *Workspace) ResolveProject(name string) (string, error) {
	dir, err := w.ProjectDir(name)
	if err != nil {
		return "", err
	}
	fi, err := os.Stat(dir)
	if errors.Is(err, fs.ErrNotExist) {
		return "", fmt.Errorf("%w: %s", domain.ErrProjectDoesNotExist, name)
	}
	if err != nil {
		return "", domain.NewStorageError("stat project", name, err)
	}
	if !fi.IsDir() {
		return "", fmt.Errorf("%w: %s is not a directory", domain.ErrBadWorkspaceDirectoryStructure, name)
	}
	if err := CheckLayout(dir); err != nil {
		return "", fmt.Errorf("%w: %s: %v", domain.ErrBadWorkspaceDirectoryStructure, name, err)
	}
	return dir, nil
}

// CheckLayout verifies the expected sub-structure of a project directory.
func CheckLayout(dir string) error {
	fi, err := os.Stat(filepath.Join(dir, StateFile))
	if err != nil {
		return fmt.Errorf("missing %s file", StateFile)
	}
	if fi.IsDir() {
		return fmt.Errorf("%s is a directory", StateFile)
	}
	for _, sub := range []string{WavsDir, BuildDir} {
		fi, err := os.Stat(filepath.Join(dir, sub))
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return err
		}
		if !fi.IsDir() {
			return fmt.Errorf("%s is not a directory", sub)
		}
	}
	for _, f := range []string{SettingsFile, CallControlFile} {
		fi, err := os.Stat(filepath.Join(dir, f))
		if err == nil && fi.IsDir() {
			return fmt.Errorf("%s is a directory", f)
		}
	}
	return nil
}

// ProjectNames lists the project directories in name order.
func (w *Workspace) ProjectNames() ([]string, error) {
	entries, err := os.ReadDir(w.base)
	if err != nil {
		return nil, domain.NewStorageError("list workspace", "", err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		if ValidateName(e.Name()) != nil {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)
	return names, nil
}

// NewStagingDir creates an internal directory for assembling a project
// before it is moved into place.
func (w *Workspace) NewStagingDir() (string, error) {
	dir := filepath.Join(w.base, StagingPrefix+uuid.NewString())
	if err := os.Mkdir(dir, 0o755); err != nil {
		return "", domain.NewStorageError("create staging dir", "", err)
	}
	return dir, nil
}

// TrashPath returns a fresh internal path a project can be moved to before
// removal.
func (w *Workspace) TrashPath() string {
	return filepath.Join(w.base, TrashPrefix+uuid.NewString())
}

// Lock acquires the advisory lock of a project and returns its release func.
// The lock holds across every Workspace opened on the same base path,
// whichever process opened it.
func (w *Workspace) Lock(name string) (func(), error) {
	unlock, err := w.locks.Lock(name)
	if err != nil {
		return nil, domain.NewStorageError("lock", name, err)
	}
	return unlock, nil
}

// LockPair acquires the locks of two projects in a stable order.
func (w *Workspace) LockPair(a, b string) (func(), error) {
	unlock, err := w.locks.LockPair(a, b)
	if err != nil {
		return nil, domain.NewStorageError("lock", a, err)
	}
	return unlock, nil
}
