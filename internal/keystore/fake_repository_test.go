package keystore

import (
	"context"
	"sync"
)

// fakeRepository is an in-memory Repository used by keystore_test.go and
// tokenstore_test.go so those tests exercise KeyStore/TokenStore logic
// without depending on a real SQLite file.
type fakeRepository struct {
	mu    sync.Mutex
	kv    map[string][]byte
	token *fakeToken
}

type fakeToken struct {
	backupID []byte
	data     []byte
	tries    uint32
}

func newFakeRepository() *fakeRepository {
	return &fakeRepository{kv: make(map[string][]byte)}
}

func (f *fakeRepository) GetKey(_ context.Context, name string) ([]byte, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.kv[name]
	return v, ok, nil
}

func (f *fakeRepository) PutKey(_ context.Context, name string, value []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.kv[name] = append([]byte(nil), value...)
	return nil
}

func (f *fakeRepository) PutKeys(_ context.Context, kv map[string][]byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for name, value := range kv {
		f.kv[name] = append([]byte(nil), value...)
	}
	return nil
}

func (f *fakeRepository) DeleteKeysExcept(_ context.Context, keep ...string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	keepSet := make(map[string]bool, len(keep))
	for _, k := range keep {
		keepSet[k] = true
	}
	for k := range f.kv {
		if !keepSet[k] {
			delete(f.kv, k)
		}
	}
	return nil
}

func (f *fakeRepository) GetToken(_ context.Context) ([]byte, []byte, uint32, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.token == nil {
		return nil, nil, 0, false, nil
	}
	return f.token.backupID, f.token.data, f.token.tries, true, nil
}

func (f *fakeRepository) PutToken(_ context.Context, backupID, data []byte, tries uint32) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.token = &fakeToken{
		backupID: append([]byte(nil), backupID...),
		data:     append([]byte(nil), data...),
		tries:    tries,
	}
	return nil
}

func (f *fakeRepository) DeleteToken(_ context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.token = nil
	return nil
}
