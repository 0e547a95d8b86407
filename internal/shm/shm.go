// Package shm implements the POSIX shared-memory discipline datasets move
// through: a creator creates a segment, writes it, and closes its
// descriptor without unlinking; a consumer opens a segment read-only and
// closes without unlinking; only the owning worker ever unlinks, on
// teardown or explicit purge. The backing store is /dev/shm.
package shm

import (
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

const shmDir = "/dev/shm"

// Registry tracks, for every dataset id this process has created or been
// told about, its exact produced length. Shared memory is allocated in
// multiples of the platform's mapping granularity, so the registered
// length is authoritative: decoders must only ever see the first Length
// bytes, never the full segment capacity.
type Registry struct {
	mu      sync.Mutex
	lengths map[string]int
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{lengths: make(map[string]int)}
}

// Create writes b into a new shared-memory segment named id, registers
// its exact length, and closes the segment's descriptor without
// unlinking it. The creator never unlinks.
func (r *Registry) Create(id string, b []byte) error {
	path := filepath.Join(shmDir, id)
	fd, err := unix.Open(path, unix.O_CREAT|unix.O_RDWR|unix.O_TRUNC, 0o600)
	if err != nil {
		return errors.Wrapf(err, "creating shared memory segment %s", id)
	}
	defer unix.Close(fd)

	size := len(b)
	if size == 0 {
		size = 1 // zero-length mappings are not portable; pad by one byte
	}
	if err := unix.Ftruncate(fd, int64(size)); err != nil {
		return errors.Wrapf(err, "sizing shared memory segment %s", id)
	}
	if len(b) > 0 {
		data, err := unix.Mmap(fd, 0, size, unix.PROT_WRITE, unix.MAP_SHARED)
		if err != nil {
			return errors.Wrapf(err, "mapping shared memory segment %s", id)
		}
		copy(data, b)
		if err := unix.Munmap(data); err != nil {
			return errors.Wrapf(err, "unmapping shared memory segment %s", id)
		}
	}

	r.mu.Lock()
	r.lengths[id] = len(b)
	r.mu.Unlock()
	return nil
}

// Read opens segment id read-only, copies out exactly its registered
// length of bytes (never the padded capacity), and closes the descriptor
// without unlinking. The consumer never unlinks either.
func (r *Registry) Read(id string) ([]byte, error) {
	r.mu.Lock()
	length, ok := r.lengths[id]
	r.mu.Unlock()
	if !ok {
		return nil, errors.Errorf("dataset %s not present in registry", id)
	}

	path := filepath.Join(shmDir, id)
	fd, err := unix.Open(path, unix.O_RDONLY, 0)
	if err != nil {
		return nil, errors.Wrapf(err, "opening shared memory segment %s", id)
	}
	defer unix.Close(fd)

	if length == 0 {
		return []byte{}, nil
	}
	data, err := unix.Mmap(fd, 0, length, unix.PROT_READ, unix.MAP_SHARED)
	if err != nil {
		return nil, errors.Wrapf(err, "mapping shared memory segment %s", id)
	}
	defer unix.Munmap(data)

	out := make([]byte, length)
	copy(out, data)
	return out, nil
}

// Stream opens segment id read-only and invokes fn once per chunk of at
// most blockLen bytes, in order. Backs the worker's /data/{dataset-id}
// responses.
func (r *Registry) Stream(id string, blockLen int, fn func([]byte) error) error {
	r.mu.Lock()
	length, ok := r.lengths[id]
	r.mu.Unlock()
	if !ok {
		return errors.Errorf("dataset %s not present in registry", id)
	}
	if length == 0 {
		return nil
	}

	path := filepath.Join(shmDir, id)
	fd, err := unix.Open(path, unix.O_RDONLY, 0)
	if err != nil {
		return errors.Wrapf(err, "opening shared memory segment %s", id)
	}
	defer unix.Close(fd)

	data, err := unix.Mmap(fd, 0, length, unix.PROT_READ, unix.MAP_SHARED)
	if err != nil {
		return errors.Wrapf(err, "mapping shared memory segment %s", id)
	}
	defer unix.Munmap(data)

	for i := 0; i < length; i += blockLen {
		end := i + blockLen
		if end > length {
			end = length
		}
		chunk := make([]byte, end-i)
		copy(chunk, data[i:end])
		if err := fn(chunk); err != nil {
			return err
		}
	}
	return nil
}

// Length returns the registered length of id, if known. Used by a task
// child process to report its output length back to the worker process
// that spawned it, since a child process's own Registry is its own
// in-memory instance, not shared with the parent.
func (r *Registry) Length(id string) (int, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.lengths[id]
	return l, ok
}

// Contains reports whether id is currently registered.
func (r *Registry) Contains(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.lengths[id]
	return ok
}

// Register records length for an id created out-of-band (e.g. a segment
// reported by a child task process over its exception/result pipe rather
// than written through this Registry directly).
func (r *Registry) Register(id string, length int) {
	r.mu.Lock()
	r.lengths[id] = length
	r.mu.Unlock()
}

// Purge unlinks segment id and removes it from the registry. Only the
// owning worker calls this, on job teardown or explicit cache eviction.
func (r *Registry) Purge(id string) error {
	r.mu.Lock()
	_, ok := r.lengths[id]
	delete(r.lengths, id)
	r.mu.Unlock()
	if !ok {
		return errors.Errorf("dataset %s not present in registry", id)
	}
	path := filepath.Join(shmDir, id)
	if err := unix.Unlink(path); err != nil && !os.IsNotExist(err) {
		return errors.Wrapf(err, "unlinking shared memory segment %s", id)
	}
	return nil
}

// PurgeAll unlinks every currently registered segment, best-effort,
// returning the first error encountered (if any) after attempting all of
// them.
func (r *Registry) PurgeAll() error {
	r.mu.Lock()
	ids := make([]string, 0, len(r.lengths))
	for id := range r.lengths {
		ids = append(ids, id)
	}
	r.mu.Unlock()

	var firstErr error
	for _, id := range ids {
		if err := r.Purge(id); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// WaitFor polls Contains until id appears or timeout elapses, to absorb
// the propagation lag between a producer task finishing and its dataset
// becoming visible to a consumer querying a different Registry instance
// (e.g. across a controller status round-trip).
func (r *Registry) WaitFor(id string, timeout, pollEvery time.Duration) error {
	deadline := time.Now().Add(timeout)
	for {
		if r.Contains(id) {
			return nil
		}
		if time.Now().After(deadline) {
			return errors.Errorf("dataset %s did not become visible within %s", id, timeout)
		}
		time.Sleep(pollEvery)
	}
}
