package storage

import "sync"

// Overlay buffers writes on top of a backing Database until Commit flushes
// them. An action that fails part-way calls Discard instead, so the backing
// store never observes a partial state transition.
type Overlay struct {
	mu      sync.RWMutex
	backing Database
	dirty   map[string][]byte
	deleted map[string]struct{}
}

// NewOverlay wraps the provided database with a write buffer.
func NewOverlay(backing Database) *Overlay {
	return &Overlay{
		backing: backing,
		dirty:   make(map[string][]byte),
		deleted: make(map[string]struct{}),
	}
}

func (o *Overlay) Put(key []byte, value []byte) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	k := string(key)
	o.dirty[k] = append([]byte(nil), value...)
	delete(o.deleted, k)
	return nil
}

func (o *Overlay) Get(key []byte) ([]byte, error) {
	o.mu.RLock()
	k := string(key)
	if _, gone := o.deleted[k]; gone {
		o.mu.RUnlock()
		return nil, ErrNotFound
	}
	if value, ok := o.dirty[k]; ok {
		o.mu.RUnlock()
		return append([]byte(nil), value...), nil
	}
	o.mu.RUnlock()
	return o.backing.Get(key)
}

func (o *Overlay) Has(key []byte) (bool, error) {
	o.mu.RLock()
	k := string(key)
	if _, gone := o.deleted[k]; gone {
		o.mu.RUnlock()
		return false, nil
	}
	if _, ok := o.dirty[k]; ok {
		o.mu.RUnlock()
		return true, nil
	}
	o.mu.RUnlock()
	return o.backing.Has(key)
}

func (o *Overlay) Delete(key []byte) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	k := string(key)
	delete(o.dirty, k)
	o.deleted[k] = struct{}{}
	return nil
}

// Commit flushes buffered writes and deletions to the backing store and
// clears the buffer. Writes are applied in arbitrary order; each key carries
// its final value so ordering does not matter.
func (o *Overlay) Commit() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	for k, v := range o.dirty {
		if err := o.backing.Put([]byte(k), v); err != nil {
			return err
		}
	}
	for k := range o.deleted {
		if err := o.backing.Delete([]byte(k)); err != nil {
			return err
		}
	}
	o.dirty = make(map[string][]byte)
	o.deleted = make(map[string]struct{})
	return nil
}

// Discard drops buffered writes without touching the backing store.
func (o *Overlay) Discard() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.dirty = make(map[string][]byte)
	o.deleted = make(map[string]struct{})
}

// Close discards pending writes and closes the backing store.
func (o *Overlay) Close() {
	o.Discard()
	o.backing.Close()
}
