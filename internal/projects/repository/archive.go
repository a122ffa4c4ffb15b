package repository

import (
	"archive/zip"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/GoSim-25-26J-441/rvd-backend/internal/projects/domain"
	"github.com/GoSim-25-26J-441/rvd-backend/internal/workspace"
)

const (
	maxArchiveEntries = 10000
	maxArchiveBytes   = 512 << 20
)

// ErrMalformedArchive marks import failures caused by the archive content.
var ErrMalformedArchive = errors.New("malformed project archive")

// WriteArchive writes the project directory as a zip to w. Entries are rooted
// at "<name>/". The build artifact and internal files are left out.
func (r *ProjectRepository) WriteArchive(name string, w io.Writer) error {
	dir, err := r.ws.ResolveProject(name)
	if err != nil {
		return err
	}

	zw := zip.NewWriter(w)
	err = filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(dir, p)
		if err != nil {
			return err
		}
		if rel == "." {
			return nil
		}
		if strings.HasPrefix(d.Name(), ".") || rel == workspace.BuildDir {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		entry := path.Join(name, filepath.ToSlash(rel))
		if d.IsDir() {
			_, err := zw.Create(entry + "/")
			return err
		}
		if !d.Type().IsRegular() {
			return nil
		}
		return addFile(zw, p, entry)
	})
	if err != nil {
		_ = zw.Close()
		return domain.NewStorageError("archive", name, err)
	}
	if err := zw.Close(); err != nil {
		return domain.NewStorageError("archive", name, err)
	}
	return nil
}

func addFile(zw *zip.Writer, src, entry string) error {
	f, err := os.Open(src)
	if err != nil {
		return err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return err
	}
	hdr, err := zip.FileInfoHeader(info)
	if err != nil {
		return err
	}
	hdr.Name = entry
	hdr.Method = zip.Deflate
	w, err := zw.CreateHeader(hdr)
	if err != nil {
		return err
	}
	_, err = io.Copy(w, f)
	return err
}

// ExtractArchive unpacks a project archive into dest, which must be an empty
// directory. Archives may hold the project files at the root or under a
// single top-level folder. Anything that escapes dest, is not a regular file
// or lacks a state file is rejected.
func ExtractArchive(src io.ReaderAt, size int64, dest string) error {
	zr, err := zip.NewReader(src, size)
	if err != nil {
		return domain.NewStorageError("import", "", fmt.Errorf("%w: %v", ErrMalformedArchive, err))
	}
	if len(zr.File) > maxArchiveEntries {
		return domain.NewStorageError("import", "", fmt.Errorf("%w: too many entries", ErrMalformedArchive))
	}

	prefix, err := archiveRoot(zr.File)
	if err != nil {
		return domain.NewStorageError("import", "", err)
	}

	var total int64
	for _, f := range zr.File {
		rel, ok, err := entryPath(f.Name, prefix)
		if err != nil {
			return domain.NewStorageError("import", "", err)
		}
		if !ok {
			continue
		}
		target := filepath.Join(dest, filepath.FromSlash(rel))

		if f.FileInfo().IsDir() {
			if err := os.MkdirAll(target, 0o755); err != nil {
				return domain.NewStorageError("import", "", err)
			}
			continue
		}
		if !f.Mode().IsRegular() {
			return domain.NewStorageError("import", "", fmt.Errorf("%w: %s is not a regular file", ErrMalformedArchive, f.Name))
		}
		total += int64(f.UncompressedSize64)
		if total > maxArchiveBytes {
			return domain.NewStorageError("import", "", fmt.Errorf("%w: archive too large", ErrMalformedArchive))
		}
		if err := extractFile(f, target); err != nil {
			return domain.NewStorageError("import", "", err)
		}
	}

	if fi, err := os.Stat(filepath.Join(dest, workspace.StateFile)); err != nil || fi.IsDir() {
		return domain.NewStorageError("import", "", fmt.Errorf("%w: no %s file", ErrMalformedArchive, workspace.StateFile))
	}
	return nil
}

// archiveRoot finds the folder the project files live under: "" when the
// state file is at the root, otherwise the single top-level folder.
func archiveRoot(files []*zip.File) (string, error) {
	tops := map[string]bool{}
	for _, f := range files {
		name := strings.TrimPrefix(f.Name, "./")
		if name == workspace.StateFile {
			return "", nil
		}
		top, _, _ := strings.Cut(name, "/")
		if top != "" && !skippedTop(top) {
			tops[top] = true
		}
	}
	if len(tops) != 1 {
		return "", fmt.Errorf("%w: no %s file", ErrMalformedArchive, workspace.StateFile)
	}
	for top := range tops {
		return top + "/", nil
	}
	return "", nil
}

// skippedTop reports top-level folders added by archivers rather than users.
func skippedTop(top string) bool {
	if top == "." || top == ".." {
		return false
	}
	return top == "__MACOSX" || strings.HasPrefix(top, ".")
}

// entryPath maps an archive entry to a path relative to the project root.
// ok is false for entries that should be skipped.
func entryPath(name, prefix string) (rel string, ok bool, err error) {
	name = strings.TrimPrefix(name, "./")
	if top, _, _ := strings.Cut(name, "/"); skippedTop(top) || name+"/" == prefix {
		return "", false, nil
	}
	if strings.Contains(name, `\`) || path.IsAbs(name) {
		return "", false, fmt.Errorf("%w: illegal entry %q", ErrMalformedArchive, name)
	}
	if !strings.HasPrefix(name, prefix) {
		return "", false, fmt.Errorf("%w: entry %q outside %q", ErrMalformedArchive, name, prefix)
	}
	rel = strings.TrimSuffix(strings.TrimPrefix(name, prefix), "/")
	if rel == "" {
		return "", false, nil
	}
	clean := path.Clean(rel)
	if clean != rel || clean == ".." || strings.HasPrefix(clean, "../") {
		return "", false, fmt.Errorf("%w: illegal entry %q", ErrMalformedArchive, name)
	}
	for _, part := range strings.Split(clean, "/") {
		if strings.HasPrefix(part, ".") {
			return "", false, nil
		}
	}
	if clean == workspace.BuildDir || strings.HasPrefix(clean, workspace.BuildDir+"/") {
		return "", false, nil
	}
	return clean, true, nil
}

func extractFile(f *zip.File, target string) error {
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return err
	}
	rc, err := f.Open()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedArchive, err)
	}
	defer rc.Close()

	out, err := os.OpenFile(target, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if errors.Is(err, fs.ErrExist) {
		return fmt.Errorf("%w: duplicate entry %s", ErrMalformedArchive, f.Name)
	}
	if err != nil {
		return err
	}
	limited := io.LimitReader(rc, int64(f.UncompressedSize64)+1)
	n, err := io.Copy(out, limited)
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedArchive, err)
	}
	if n > int64(f.UncompressedSize64) {
		return fmt.Errorf("%w: %s is larger than declared", ErrMalformedArchive, f.Name)
	}
	return nil
}
