package storefakes

import (
	"context"
	"sync"

	"github.com/fyd-app/go-fyd-client/sessions"
)

var _ sessions.Store = (*FakeStore)(nil)

// FakeStore is an in-memory sessions.Store for tests. Err, when set, is
// returned by every operation to simulate storage I/O failure.
type FakeStore struct {
	lock   sync.RWMutex
	record *sessions.Record

	Err  error
	Puts int
}

func NewFakeStore() *FakeStore {
	return &FakeStore{}
}

func (f *FakeStore) Get(ctx context.Context) (*sessions.Record, error) {
	f.lock.RLock()
	defer f.lock.RUnlock()
	if f.Err != nil {
		return nil, f.Err
	}
	if f.record == nil {
		return nil, nil
	}
	rec := *f.record
	return &rec, nil
}

func (f *FakeStore) Put(ctx context.Context, record *sessions.Record) error {
	f.lock.Lock()
	defer f.lock.Unlock()
	if f.Err != nil {
		return f.Err
	}
	rec := *record
	f.record = &rec
	f.Puts++
	return nil
}

func (f *FakeStore) Clear(ctx context.Context) error {
	f.lock.Lock()
	defer f.lock.Unlock()
	if f.Err != nil {
		return f.Err
	}
	f.record = nil
	return nil
}
