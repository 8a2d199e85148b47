package auth

import (
	"bytes"
	"context"
	"sync"
	"time"

	domainauth "github.com/shhvang/rSpotify/internal/domain/auth"
	"github.com/shhvang/rSpotify/internal/secrets"
)

func testCipher() *secrets.TokenCipher {
	cipher, err := secrets.NewTokenCipher(bytes.Repeat([]byte{0xAB}, 32))
	if err != nil {
		panic(err)
	}
	return cipher
}

// memoryHandoffStore mirrors the Redis store's contract: take operations are
// atomic under the mutex and expired records read as absent.
type memoryHandoffStore struct {
	mu       sync.Mutex
	states   map[string]domainauth.LoginState
	handoffs map[string]domainauth.AuthorizationHandoff

	saveErr error
	takeErr error
}

func newMemoryHandoffStore() *memoryHandoffStore {
	return &memoryHandoffStore{
		states:   make(map[string]domainauth.LoginState),
		handoffs: make(map[string]domainauth.AuthorizationHandoff),
	}
}

func (m *memoryHandoffStore) SaveLoginState(_ context.Context, state domainauth.LoginState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.saveErr != nil {
		return m.saveErr
	}
	m.states[state.State] = state
	return nil
}

func (m *memoryHandoffStore) TakeLoginState(_ context.Context, stateToken string) (*domainauth.LoginState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.takeErr != nil {
		return nil, m.takeErr
	}
	record, ok := m.states[stateToken]
	if !ok {
		return nil, nil
	}
	delete(m.states, stateToken)
	if record.Expired(time.Now()) {
		return nil, nil
	}
	return &record, nil
}

func (m *memoryHandoffStore) SaveHandoff(_ context.Context, handoff domainauth.AuthorizationHandoff) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.saveErr != nil {
		return m.saveErr
	}
	m.handoffs[handoff.ID] = handoff
	return nil
}

func (m *memoryHandoffStore) TakeHandoff(_ context.Context, handoffID string) (*domainauth.AuthorizationHandoff, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.takeErr != nil {
		return nil, m.takeErr
	}
	record, ok := m.handoffs[handoffID]
	if !ok {
		return nil, nil
	}
	delete(m.handoffs, handoffID)
	if record.Expired(time.Now()) {
		return nil, nil
	}
	return &record, nil
}

func (m *memoryHandoffStore) Ping(context.Context) error { return nil }

func (m *memoryHandoffStore) stateCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.states)
}

// memoryTokenRepo is an in-memory TokenRepository with call accounting.
type memoryTokenRepo struct {
	mu      sync.Mutex
	records map[int64]domainauth.TokenRecord
	upserts int

	getErr    error
	upsertErr error
}

func newMemoryTokenRepo() *memoryTokenRepo {
	return &memoryTokenRepo{records: make(map[int64]domainauth.TokenRecord)}
}

func (m *memoryTokenRepo) Upsert(_ context.Context, record domainauth.TokenRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.upsertErr != nil {
		return m.upsertErr
	}
	m.records[record.OwnerID] = record
	m.upserts++
	return nil
}

func (m *memoryTokenRepo) Get(_ context.Context, ownerID int64) (*domainauth.TokenRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getErr != nil {
		return nil, m.getErr
	}
	record, ok := m.records[ownerID]
	if !ok {
		return nil, nil
	}
	return &record, nil
}

func (m *memoryTokenRepo) Delete(_ context.Context, ownerID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.records, ownerID)
	return nil
}

func (m *memoryTokenRepo) upsertCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.upserts
}

func (m *memoryTokenRepo) seed(record domainauth.TokenRecord) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[record.OwnerID] = record
}

// fakeIdP scripts exchange and refresh outcomes and counts calls.
type fakeIdP struct {
	mu sync.Mutex

	exchangeGrant *domainauth.TokenGrant
	exchangeErrs  []error
	exchangeCalls int
	lastCode      string
	lastVerifier  string

	refreshGrant *domainauth.TokenGrant
	refreshErrs  []error
	refreshCalls int
	lastRefresh  string

	revoked []string
}

func (f *fakeIdP) Exchange(_ context.Context, code, codeVerifier string) (*domainauth.TokenGrant, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.exchangeCalls++
	f.lastCode = code
	f.lastVerifier = codeVerifier
	if len(f.exchangeErrs) > 0 {
		err := f.exchangeErrs[0]
		f.exchangeErrs = f.exchangeErrs[1:]
		if err != nil {
			return nil, err
		}
	}
	grant := *f.exchangeGrant
	return &grant, nil
}

func (f *fakeIdP) Refresh(_ context.Context, refreshToken string) (*domainauth.TokenGrant, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.refreshCalls++
	f.lastRefresh = refreshToken
	if len(f.refreshErrs) > 0 {
		err := f.refreshErrs[0]
		f.refreshErrs = f.refreshErrs[1:]
		if err != nil {
			return nil, err
		}
	}
	grant := *f.refreshGrant
	return &grant, nil
}

func (f *fakeIdP) Revoke(_ context.Context, refreshToken string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.revoked = append(f.revoked, refreshToken)
	return nil
}

func (f *fakeIdP) exchangeCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.exchangeCalls
}

func (f *fakeIdP) refreshCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.refreshCalls
}
