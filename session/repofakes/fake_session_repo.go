package repofakes

import (
	"sync"

	"github.com/tunzadent/dentclient/session"
)

var _ session.Repo = (*FakeSessionRepo)(nil)

// FakeSessionRepo is an in-memory session store, used in tests and as an
// ephemeral store for callers that do not want anything written to disk.
type FakeSessionRepo struct {
	values map[string]string
	lock   sync.RWMutex
}

func NewFakeSessionRepo() *FakeSessionRepo {
	return &FakeSessionRepo{
		values: make(map[string]string),
	}
}

func (sr *FakeSessionRepo) Get(key string) (string, error) {
	sr.lock.RLock()
	defer sr.lock.RUnlock()

	value, ok := sr.values[key]
	if !ok {
		return "", session.ErrKeyNotFound
	}
	return value, nil
}

func (sr *FakeSessionRepo) Set(key, value string) error {
	sr.lock.Lock()
	defer sr.lock.Unlock()

	sr.values[key] = value
	return nil
}

func (sr *FakeSessionRepo) Delete(key string) error {
	sr.lock.Lock()
	defer sr.lock.Unlock()

	delete(sr.values, key)
	return nil
}

func (sr *FakeSessionRepo) Clear() error {
	sr.lock.Lock()
	defer sr.lock.Unlock()

	sr.values = make(map[string]string)
	return nil
}
