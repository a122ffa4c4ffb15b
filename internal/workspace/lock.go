package workspace

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"path/filepath"
	"sync"

	"github.com/gofrs/flock"
)

// Locker hands out one lock per key. Inside a process a key is guarded by a
// mutex; when the Locker has a directory the mutex holder also takes a file
// lock there, which excludes other processes (and other Lockers) sharing the
// directory. Mutex entries are dropped once nobody holds or waits for them.
type Locker struct {
	dir   string
	mu    sync.Mutex
	locks map[string]*keyLock
}

type keyLock struct {
	mu   sync.Mutex
	refs int
}

// NewLocker returns an empty Locker keeping its lock files in dir. An empty
// dir gives a process-local Locker.
func NewLocker(dir string) *Locker {
	return &Locker{dir: dir, locks: make(map[string]*keyLock)}
}

// Lock blocks until key is free and returns the release func.
func (l *Locker) Lock(key string) (func(), error) {
	l.mu.Lock()
	kl, ok := l.locks[key]
	if !ok {
		kl = &keyLock{}
		l.locks[key] = kl
	}
	kl.refs++
	l.mu.Unlock()

	kl.mu.Lock()
	release := func() {
		kl.mu.Unlock()
		l.mu.Lock()
		kl.refs--
		if kl.refs == 0 {
			delete(l.locks, key)
		}
		l.mu.Unlock()
	}

	var fl *flock.Flock
	if l.dir != "" {
		fl = flock.New(l.lockFile(key))
		if err := fl.Lock(); err != nil {
			release()
			return nil, fmt.Errorf("lock %q: %w", key, err)
		}
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			if fl != nil {
				_ = fl.Unlock()
			}
			release()
		})
	}, nil
}

// LockPair locks a and b in lexical order so that two callers locking the
// same pair can never deadlock.
func (l *Locker) LockPair(a, b string) (func(), error) {
	if a == b {
		return l.Lock(a)
	}
	first, second := a, b
	if second < first {
		first, second = second, first
	}
	u1, err := l.Lock(first)
	if err != nil {
		return nil, err
	}
	u2, err := l.Lock(second)
	if err != nil {
		u1()
		return nil, err
	}
	return func() {
		u2()
		u1()
	}, nil
}

// Keys are arbitrary strings, so lock files are named by digest.
func (l *Locker) lockFile(key string) string {
	sum := sha256.Sum256([]byte(key))
	return filepath.Join(l.dir, hex.EncodeToString(sum[:16])+".lock")
}

func (l *Locker) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}
