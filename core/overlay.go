package core

// overlayStore buffers writes in memory over a base KVStore so a prospective
// multi-leaf SMT update can be staged and its resulting root checked before
// any of it reaches the real store (§4.4: "all atomic; failure = no state
// change"). Reads fall through to base for keys the overlay hasn't touched.
type overlayStore struct {
	base    KVStore
	writes  map[string][]byte
	deleted map[string]bool
}

func newOverlayStore(base KVStore) *overlayStore {
	return &overlayStore{
		base:    base,
		writes:  make(map[string][]byte),
		deleted: make(map[string]bool),
	}
}

func (o *overlayStore) Set(key, value []byte) error {
	k := string(key)
	cp := append([]byte(nil), value...)
	o.writes[k] = cp
	delete(o.deleted, k)
	return nil
}

func (o *overlayStore) Get(key []byte) ([]byte, error) {
	k := string(key)
	if o.deleted[k] {
		return nil, ErrKeyNotFound
	}
	if v, ok := o.writes[k]; ok {
		return append([]byte(nil), v...), nil
	}
	return o.base.Get(key)
}

func (o *overlayStore) Has(key []byte) (bool, error) {
	k := string(key)
	if o.deleted[k] {
		return false, nil
	}
	if _, ok := o.writes[k]; ok {
		return true, nil
	}
	return o.base.Has(key)
}

func (o *overlayStore) Delete(key []byte) error {
	k := string(key)
	delete(o.writes, k)
	o.deleted[k] = true
	return nil
}

// Iterator is not exercised by the staging paths that use overlayStore (the
// SMT and its account/token schemas only Get/Set/Delete single keys), so a
// merging iterator over base+overlay is not implemented.
func (o *overlayStore) Iterator(prefix []byte) Iterator {
	panic("core: overlayStore.Iterator is unsupported")
}

func (o *overlayStore) Close() error { return nil }

// empty reports whether the overlay has accumulated no staged writes.
func (o *overlayStore) empty() bool {
	return len(o.writes) == 0 && len(o.deleted) == 0
}

// commitInto flushes the overlay's staged writes into dst as a single atomic
// unit: through dst's Batcher if it implements one (DurableStore), so the
// whole staged message lands as one WAL record per §4.4's "writes are
// grouped per message into a single atomic batch"; applied directly
// otherwise, since a store with no Batcher (InMemoryStore) has no durable
// WAL whose replay boundary would matter.
func (o *overlayStore) commitInto(dst KVStore) error {
	if o.empty() {
		return nil
	}
	if b, ok := dst.(Batcher); ok {
		batch := b.NewBatch()
		for k, v := range o.writes {
			batch.Set([]byte(k), v)
		}
		for k := range o.deleted {
			batch.Delete([]byte(k))
		}
		return batch.Commit()
	}
	for k, v := range o.writes {
		if err := dst.Set([]byte(k), v); err != nil {
			return err
		}
	}
	for k := range o.deleted {
		if err := dst.Delete([]byte(k)); err != nil {
			return err
		}
	}
	return nil
}
