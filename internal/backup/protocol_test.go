package backup

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/vaultkey/kbsclient/internal/attestation"
	"github.com/vaultkey/kbsclient/internal/enclave"
	"github.com/vaultkey/kbsclient/internal/envelope"
	"github.com/vaultkey/kbsclient/internal/events"
	"github.com/vaultkey/kbsclient/internal/kbslog"
	"github.com/vaultkey/kbsclient/internal/kdf"
	"github.com/vaultkey/kbsclient/internal/keystore"
	"github.com/vaultkey/kbsclient/models"
)

// fakeRepository is a minimal in-memory keystore.Repository.
type fakeRepository struct {
	mu   sync.Mutex
	keys map[string][]byte
	tok  *struct {
		backupID, data []byte
		tries          uint32
	}
}

func newFakeRepository() *fakeRepository { return &fakeRepository{keys: make(map[string][]byte)} }

func (f *fakeRepository) GetKey(_ context.Context, name string) ([]byte, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.keys[name]
	return v, ok, nil
}

func (f *fakeRepository) PutKey(_ context.Context, name string, value []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.keys[name] = append([]byte(nil), value...)
	return nil
}

func (f *fakeRepository) PutKeys(_ context.Context, kv map[string][]byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for name, value := range kv {
		f.keys[name] = append([]byte(nil), value...)
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
	for k := range f.keys {
		if !keepSet[k] {
			delete(f.keys, k)
		}
	}
	return nil
}

func (f *fakeRepository) GetToken(context.Context) (backupID, data []byte, tries uint32, found bool, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.tok == nil {
		return nil, nil, 0, false, nil
	}
	return f.tok.backupID, f.tok.data, f.tok.tries, true, nil
}

func (f *fakeRepository) PutToken(_ context.Context, backupID, data []byte, tries uint32) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tok = &struct {
		backupID, data []byte
		tries          uint32
	}{backupID, data, tries}
	return nil
}

func (f *fakeRepository) DeleteToken(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tok = nil
	return nil
}

// fakeEnclave implements EnclaveRequester with a queue of canned responses.
type fakeEnclave struct {
	backupID  []byte
	fetchErr  error
	responses []models.InnerResponse
	reqErr    error
	tags      []models.RequestTag
}

func (f *fakeEnclave) FetchBackupID(context.Context, enclave.TokenReader, *attestation.AuthOption) ([]byte, error) {
	return f.backupID, f.fetchErr
}

func (f *fakeEnclave) Request(_ context.Context, opt enclave.RequestOption, _ enclave.RequestContext, _ *attestation.AuthOption) (models.InnerResponse, error) {
	f.tags = append(f.tags, opt.Tag())
	if f.reqErr != nil {
		return models.InnerResponse{}, f.reqErr
	}
	if len(f.responses) == 0 {
		return models.InnerResponse{}, errors.New("fakeEnclave: no more responses queued")
	}
	resp := f.responses[0]
	f.responses = f.responses[1:]
	return resp, nil
}

func cheapParams() (kdf.EncryptionAccessParams, kdf.VerificationParams) {
	return kdf.EncryptionAccessParams{Iterations: 1, MemoryKiB: 64, Parallelism: 1, KeyLen: 64},
		kdf.VerificationParams{Iterations: 1, MemoryKiB: 64, Parallelism: 1, KeyLen: 32}
}

func newTestProtocol(t *testing.T, fe *fakeEnclave) (*Protocol, *keystore.KeyStore) {
	t.Helper()
	repo := newFakeRepository()
	sink := events.NewSink(4)
	ks := keystore.New(repo, sink, kbslog.Nop(), true, false)
	if err := ks.WarmCaches(t.Context()); err != nil {
		t.Fatalf("WarmCaches: %v", err)
	}
	enc, ver := cheapParams()
	proto := New(ks, fe, kbslog.Nop(), true).WithParams(enc, ver)
	return proto, ks
}

func seedToken(t *testing.T, ks *keystore.KeyStore, backupID []byte) {
	t.Helper()
	tries := uint32(models.MaximumKeyAttempts)
	data := bytes.Repeat([]byte{0x01}, 32)
	if err := ks.Tokens.UpdateNext(t.Context(), data, backupID, &tries); err != nil {
		t.Fatalf("seedToken: %v", err)
	}
}

func TestGenerateAndBackup_Success(t *testing.T) {
	backupID := bytes.Repeat([]byte{0x02}, 32)
	fe := &fakeEnclave{
		backupID: backupID,
		responses: []models.InnerResponse{
			{Status: models.StatusOk, Token: bytes.Repeat([]byte{0x03}, 32), Tries: models.MaximumKeyAttempts},
		},
	}
	proto, ks := newTestProtocol(t, fe)
	seedToken(t, ks, backupID)

	if err := proto.GenerateAndBackup(t.Context(), "1234", nil); err != nil {
		t.Fatalf("GenerateAndBackup: %v", err)
	}
	if !ks.Cache().HasMasterKey() {
		t.Fatal("expected a master key to be cached after a successful backup")
	}
	if len(fe.tags) != 1 || fe.tags[0] != models.RequestTagBackup {
		t.Fatalf("expected exactly one backup request, got %v", fe.tags)
	}
}

func TestGenerateAndBackup_AlreadyExists_DoesNotStore(t *testing.T) {
	backupID := bytes.Repeat([]byte{0x02}, 32)
	fe := &fakeEnclave{
		backupID: backupID,
		responses: []models.InnerResponse{
			{Status: models.StatusAlreadyExists, Token: bytes.Repeat([]byte{0x03}, 32), Tries: 5},
		},
	}
	proto, ks := newTestProtocol(t, fe)
	seedToken(t, ks, backupID)

	if err := proto.GenerateAndBackup(t.Context(), "1234", nil); err != nil {
		t.Fatalf("GenerateAndBackup: %v", err)
	}
	if ks.Cache().HasMasterKey() {
		t.Fatal("alreadyExists must not store a master key")
	}
}

func TestGenerateAndBackup_NotYetValid_IsAssertionError(t *testing.T) {
	backupID := bytes.Repeat([]byte{0x02}, 32)
	fe := &fakeEnclave{
		backupID:  backupID,
		responses: []models.InnerResponse{{Status: models.StatusNotYetValid, Token: bytes.Repeat([]byte{0x03}, 32)}},
	}
	proto, ks := newTestProtocol(t, fe)
	seedToken(t, ks, backupID)

	err := proto.GenerateAndBackup(t.Context(), "1234", nil)
	if _, ok := err.(*AssertionError); !ok {
		t.Fatalf("want *AssertionError, got %T (%v)", err, err)
	}
}

func TestRestore_Success_ReBacksUpAndStores(t *testing.T) {
	backupID := bytes.Repeat([]byte{0x02}, 32)

	// Precompute a real envelope so Envelope.Open in Restore succeeds.
	enc, _ := cheapParams()
	var masterKey models.MasterKey
	for i := range masterKey {
		masterKey[i] = byte(i)
	}
	encKey, _, err := kdf.DeriveEncryptionAndAccessKey(enc, "1234", backupID)
	if err != nil {
		t.Fatalf("derive: %v", err)
	}
	env, err := envelope.Seal(masterKey[:], encKey)
	if err != nil {
		t.Fatalf("seal: %v", err)
	}

	fe := &fakeEnclave{
		backupID: backupID,
		responses: []models.InnerResponse{
			{Status: models.StatusOk, Token: bytes.Repeat([]byte{0x03}, 32), Tries: 7, Data: env},
			{Status: models.StatusOk, Token: bytes.Repeat([]byte{0x04}, 32), Tries: models.MaximumKeyAttempts},
		},
	}
	proto, ks := newTestProtocol(t, fe)
	seedToken(t, ks, backupID)

	if err := proto.Restore(t.Context(), "1234", nil); err != nil {
		t.Fatalf("Restore: %v", err)
	}
	if !ks.Cache().HasMasterKey() {
		t.Fatal("expected the restored master key to be cached")
	}
	if len(fe.tags) != 2 || fe.tags[0] != models.RequestTagRestore || fe.tags[1] != models.RequestTagBackup {
		t.Fatalf("expected restore then rebackup, got %v", fe.tags)
	}
}

func TestRestore_PinMismatch_ReturnsInvalidPin(t *testing.T) {
	backupID := bytes.Repeat([]byte{0x02}, 32)
	fe := &fakeEnclave{
		backupID:  backupID,
		responses: []models.InnerResponse{{Status: models.StatusPinMismatch, Token: bytes.Repeat([]byte{0x05}, 32), Tries: 7}},
	}
	proto, ks := newTestProtocol(t, fe)
	seedToken(t, ks, backupID)

	err := proto.Restore(t.Context(), "0000", nil)
	invalid, ok := err.(*InvalidPin)
	if !ok {
		t.Fatalf("want *InvalidPin, got %T (%v)", err, err)
	}
	if invalid.TriesRemaining != 7 {
		t.Fatalf("TriesRemaining = %d, want 7", invalid.TriesRemaining)
	}
	if ks.Cache().HasMasterKey() {
		t.Fatal("a pin mismatch must not populate the master key cache")
	}
}

func TestRestore_Missing_ReturnsBackupMissingAndLeavesTokenUntouched(t *testing.T) {
	backupID := bytes.Repeat([]byte{0x02}, 32)
	fe := &fakeEnclave{
		backupID:  backupID,
		responses: []models.InnerResponse{{Status: models.StatusMissing}},
	}
	proto, ks := newTestProtocol(t, fe)
	seedToken(t, ks, backupID)

	before, err := ks.Tokens.Current(t.Context())
	if err != nil {
		t.Fatalf("Current: %v", err)
	}

	err = proto.Restore(t.Context(), "1234", nil)
	if _, ok := err.(*BackupMissing); !ok {
		t.Fatalf("want *BackupMissing, got %T (%v)", err, err)
	}

	after, err := ks.Tokens.Current(t.Context())
	if err != nil {
		t.Fatalf("Current: %v", err)
	}
	if !bytes.Equal(before.Data[:], after.Data[:]) {
		t.Fatal("a missing-status restore must not update the stored token")
	}
}

func TestRestore_TokenMismatch_IsAssertionError(t *testing.T) {
	backupID := bytes.Repeat([]byte{0x02}, 32)
	fe := &fakeEnclave{
		backupID:  backupID,
		responses: []models.InnerResponse{{Status: models.StatusTokenMismatch, Token: bytes.Repeat([]byte{0x06}, 32)}},
	}
	proto, ks := newTestProtocol(t, fe)
	seedToken(t, ks, backupID)

	err := proto.Restore(t.Context(), "1234", nil)
	if _, ok := err.(*AssertionError); !ok {
		t.Fatalf("want *AssertionError, got %T (%v)", err, err)
	}
}

func TestDeleteKeys_ClearsLocalStateRegardlessOfEnclaveOutcome(t *testing.T) {
	backupID := bytes.Repeat([]byte{0x02}, 32)
	fe := &fakeEnclave{reqErr: errors.New("enclave unreachable")}
	proto, ks := newTestProtocol(t, fe)
	seedToken(t, ks, backupID)

	var mk models.MasterKey
	if err := ks.Store(t.Context(), mk, models.PinTypeNumeric, "v", false); err != nil {
		t.Fatalf("Store: %v", err)
	}

	if err := proto.DeleteKeys(t.Context(), nil); err != nil {
		t.Fatalf("DeleteKeys: %v", err)
	}
	if ks.Cache().HasMasterKey() {
		t.Fatal("DeleteKeys must clear the master key even when the enclave call fails")
	}
	tok, err := ks.Tokens.Current(t.Context())
	if err != nil {
		t.Fatalf("Current: %v", err)
	}
	if tok != nil {
		t.Fatal("DeleteKeys must clear the stored token")
	}
	if ks.Cache().StorageServiceKey() == nil {
		t.Fatal("DeleteKeys must preserve the transitional storage service key")
	}
}
