package workspace

import (
	"io"
	"os"
	"path/filepath"
)

// WriteFileAtomic writes data to a temp file next to path, syncs it and
// renames it over path. Readers see either the old or the new content.
func WriteFileAtomic(path string, data []byte, perm os.FileMode) error {
	_, err := writeAtomic(path, perm, func(f *os.File) (int64, error) {
		n, err := f.Write(data)
		return int64(n), err
	})
	return err
}

// WriteStreamAtomic is WriteFileAtomic for a stream. It returns the number
// of bytes written.
func WriteStreamAtomic(path string, r io.Reader, perm os.FileMode) (int64, error) {
	return writeAtomic(path, perm, func(f *os.File) (int64, error) {
		return io.Copy(f, r)
	})
}

func writeAtomic(path string, perm os.FileMode, fill func(*os.File) (int64, error)) (int64, error) {
	tmp, err := os.CreateTemp(filepath.Dir(path), TempPrefix+"*")
	if err != nil {
		return 0, err
	}
	tmpName := tmp.Name()

	success := false
	defer func() {
		if !success {
			_ = tmp.Close()
			_ = os.Remove(tmpName)
		}
	}()

	if err := tmp.Chmod(perm); err != nil {
		return 0, err
	}
	n, err := fill(tmp)
	if err != nil {
		return 0, err
	}
	if err := tmp.Sync(); err != nil {
		return 0, err
	}
	if err := tmp.Close(); err != nil {
		return 0, err
	}
	if err := os.Rename(tmpName, path); err != nil {
		return 0, err
	}

	success = true
	return n, nil
}
