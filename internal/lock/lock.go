// Package lock implements the workspace's exclusive writer lock: a single
// JSON file recording which process holds write access to .drift/, so the
// watch engine, a manual scan, and the quality-gate orchestrator never
// interleave writes to the pattern/manifest/history stores.
package lock

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/ruizrica/drift/internal/errors"
)

// record is the on-disk shape of a held lock.
type record struct {
	PID       int       `json:"pid"`
	Holder    string    `json:"holder"`
	Acquired  time.Time `json:"acquired"`
}

// Lock guards exclusive access to one workspace's store directory.
type Lock struct {
	path string
}

// New returns a Lock backed by the given lock file path
// (".drift/index/.lock" for the workspace-wide lock).
func New(path string) *Lock {
	return &Lock{path: path}
}

// Acquire blocks (polling every 50ms) until it wins the lock or ctx/timeout
// expires, reclaiming a stale lock (held longer than staleAfter) along the
// way. It returns a release function the caller must call to drop the
// lock, and an error if the timeout elapses first.
func (l *Lock) Acquire(ctx context.Context, holder string, staleAfter, timeout time.Duration) (func(), error) {
	deadline := time.Now().Add(timeout)
	const pollInterval = 50 * time.Millisecond

	for {
		ok, err := l.tryAcquire(holder, staleAfter)
		if err != nil {
			return nil, err
		}
		if ok {
			return func() { _ = os.Remove(l.path) }, nil
		}

		select {
		case <-ctx.Done():
			return nil, errors.New(errors.KindLock, "lock.acquire", ctx.Err()).WithPath(l.path)
		case <-time.After(pollInterval):
		}

		if time.Now().After(deadline) {
			return nil, errors.New(errors.KindLock, "lock.acquire", fmt.Errorf("timed out after %s waiting for %s", timeout, l.path)).WithPath(l.path)
		}
	}
}

func (l *Lock) tryAcquire(holder string, staleAfter time.Duration) (bool, error) {
	if existing, err := l.read(); err == nil {
		if time.Since(existing.Acquired) > staleAfter {
			_ = os.Remove(l.path)
		} else {
			return false, nil
		}
	}

	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return false, errors.New(errors.KindLock, "lock.mkdir", err).WithPath(l.path)
	}

	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		if os.IsExist(err) {
			return false, nil
		}
		return false, errors.New(errors.KindLock, "lock.create", err).WithPath(l.path)
	}
	defer f.Close()

	rec := record{PID: os.Getpid(), Holder: holder, Acquired: time.Now()}
	enc := json.NewEncoder(f)
	if err := enc.Encode(rec); err != nil {
		return false, errors.New(errors.KindLock, "lock.write", err).WithPath(l.path)
	}
	return true, nil
}

func (l *Lock) read() (record, error) {
	data, err := os.ReadFile(l.path)
	if err != nil {
		return record{}, err
	}
	var rec record
	if err := json.Unmarshal(data, &rec); err != nil {
		return record{}, err
	}
	return rec, nil
}
