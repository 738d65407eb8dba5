package service

import (
	"context"
	"sync"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/iliyamo/ceremony-admission/internal/model"
	"github.com/iliyamo/ceremony-admission/internal/repository"
)

// memTickets is an in-memory TicketStore whose MarkAsUsed is atomic
// under a mutex, mirroring the conditional UPDATE of the SQL store.
type memTickets struct {
	mu      sync.Mutex
	byID    map[uint64]*model.Ticket
	byNonce map[string]uint64
}

func newMemTickets() *memTickets {
	return &memTickets{byID: map[uint64]*model.Ticket{}, byNonce: map[string]uint64{}}
}

func (m *memTickets) put(t model.Ticket) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.byID[t.ID] = &t
	m.byNonce[t.Nonce] = t.ID
}

func (m *memTickets) FindByID(_ context.Context, id uint64) (*model.Ticket, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.byID[id]
	if !ok {
		return nil, repository.ErrTicketNotFound
	}
	cp := *t
	return &cp, nil
}

func (m *memTickets) FindByNonce(ctx context.Context, nonce string) (*model.Ticket, error) {
	m.mu.Lock()
	id, ok := m.byNonce[nonce]
	m.mu.Unlock()
	if !ok {
		return nil, repository.ErrTicketNotFound
	}
	return m.FindByID(ctx, id)
}

func (m *memTickets) MarkAsUsed(_ context.Context, id uint64, at time.Time) (*model.Ticket, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.byID[id]
	if !ok || t.UsedAt != nil {
		return nil, nil
	}
	t.UsedAt = &at
	cp := *t
	return &cp, nil
}

func (m *memTickets) Revoke(_ context.Context, id uint64, at time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.byID[id]
	if !ok {
		return false, nil
	}
	t.RevokedAt = &at
	return true, nil
}

type mockTickets struct{ mock.Mock }

func (m *mockTickets) FindByID(ctx context.Context, id uint64) (*model.Ticket, error) {
	args := m.Called(ctx, id)
	t, _ := args.Get(0).(*model.Ticket)
	return t, args.Error(1)
}

func (m *mockTickets) FindByNonce(ctx context.Context, nonce string) (*model.Ticket, error) {
	args := m.Called(ctx, nonce)
	t, _ := args.Get(0).(*model.Ticket)
	return t, args.Error(1)
}

func (m *mockTickets) MarkAsUsed(ctx context.Context, id uint64, at time.Time) (*model.Ticket, error) {
	args := m.Called(ctx, id, at)
	t, _ := args.Get(0).(*model.Ticket)
	return t, args.Error(1)
}

func (m *mockTickets) Revoke(ctx context.Context, id uint64, at time.Time) (bool, error) {
	args := m.Called(ctx, id, at)
	return args.Bool(0), args.Error(1)
}

type mockVerifier struct{ mock.Mock }

func (m *mockVerifier) Verify(ctx context.Context, payload any, sig string) (bool, error) {
	args := m.Called(ctx, payload, sig)
	return args.Bool(0), args.Error(1)
}

type mockSink struct{ mock.Mock }

func (m *mockSink) Append(ctx context.Context, rec model.ScanRecord) error {
	return m.Called(ctx, rec).Error(0)
}

type stubSigner struct {
	sig string
	err error
}

func (s stubSigner) Sign(context.Context, any) (string, error) { return s.sig, s.err }
