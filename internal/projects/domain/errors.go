package domain

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrProjectDoesNotExist            = errors.New("project does not exist")
	ErrProjectAlreadyExists           = errors.New("project already exists")
	ErrProjectDirectoryAlreadyExists  = errors.New("project directory already exists")
	ErrStorageEntityNotFound          = errors.New("storage entity not found")
	ErrWavItemDoesNotExist            = errors.New("wav item does not exist")
	ErrUnauthorized                   = errors.New("unauthorized")
	ErrValidation                     = errors.New("validation failed")
	ErrStorage                        = errors.New("storage failure")
	ErrUpgrade                        = errors.New("upgrade failed")
	ErrBadWorkspaceDirectoryStructure = errors.New("bad workspace directory structure")
	ErrIncompatibleProjectVersion     = errors.New("incompatible project version")
	ErrInvalidServiceParameters       = errors.New("invalid service parameters")
	ErrInvalidProjectName             = errors.New("invalid project name")
	ErrInvalidWavName                 = errors.New("invalid wav file name")
)

// StorageError reports an I/O or parse failure on a project record.
type StorageError struct {
	Op      string
	Project string
	Err     error
}

func (e *StorageError) Error() string {
	if e.Project == "" {
		return fmt.Sprintf("storage: %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("storage: %s %q: %v", e.Op, e.Project, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

func (e *StorageError) Is(target error) bool { return target == ErrStorage }

// NewStorageError wraps err, keeping nil as nil.
func NewStorageError(op, project string, err error) error {
	if err == nil {
		return nil
	}
	return &StorageError{Op: op, Project: project, Err: err}
}

// ValidationItem is one structural problem found in a submitted state.
type ValidationItem struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError lists every problem found in a submitted state.
type ValidationError struct {
	Items []ValidationItem `json:"items"`
}

func (e *ValidationError) Error() string {
	msgs := make([]string, 0, len(e.Items))
	for _, it := range e.Items {
		msgs = append(msgs, it.Field+": "+it.Message)
	}
	return "validation failed: " + strings.Join(msgs, "; ")
}

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

// UpgradeError reports the step that could not be applied. Reached is the
// version the project was left at.
type UpgradeError struct {
	Project string
	From    int
	To      int
	Reached int
	Err     error
}

func (e *UpgradeError) Error() string {
	return fmt.Sprintf("upgrade %q from version %d to %d failed (project left at %d): %v",
		e.Project, e.From, e.To, e.Reached, e.Err)
}

func (e *UpgradeError) Unwrap() error { return e.Err }

func (e *UpgradeError) Is(target error) bool { return target == ErrUpgrade }

// IncompatibleVersionError is returned when a project's stored version does
// not match the version the running system expects.
type IncompatibleVersionError struct {
	Project  string
	Stored   int
	Expected int
}

func (e *IncompatibleVersionError) Error() string {
	return fmt.Sprintf("project %q is at version %d, expected %d", e.Project, e.Stored, e.Expected)
}

func (e *IncompatibleVersionError) Is(target error) bool {
	return target == ErrIncompatibleProjectVersion
}
