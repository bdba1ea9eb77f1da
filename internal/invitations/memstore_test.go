package invitations

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/aliuyar1234/inviteguard/internal/store"
	"github.com/google/uuid"
)

// memStore is an in-memory Store with the same constraint behavior as the
// SQL drivers.
type memStore struct {
	mu          sync.Mutex
	invitations map[uuid.UUID]Invitation
	accounts    map[string]Account
	tenants     map[uuid.UUID]string

	failDelete      error
	failUpdate      error
	failExpireWrite error
}

func newMemStore() *memStore {
	return &memStore{
		invitations: make(map[uuid.UUID]Invitation),
		accounts:    make(map[string]Account),
		tenants:     make(map[uuid.UUID]string),
	}
}

func (m *memStore) EmailExists(_ context.Context, email string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.accounts[email]
	return ok, nil
}

func (m *memStore) HasPendingInvitation(_ context.Context, email string, tenantID uuid.UUID) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.hasPendingLocked(email, tenantID, uuid.Nil), nil
}

func (m *memStore) hasPendingLocked(email string, tenantID, except uuid.UUID) bool {
	for _, inv := range m.invitations {
		if inv.ID != except && inv.Email == email && inv.TenantID == tenantID && inv.Status == StatusPending {
			return true
		}
	}
	return false
}

func (m *memStore) TenantName(_ context.Context, tenantID uuid.UUID) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	name, ok := m.tenants[tenantID]
	if !ok {
		return "", store.ErrNotFound
	}
	return name, nil
}

func (m *memStore) InsertInvitation(_ context.Context, inv *Invitation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.hasPendingLocked(inv.Email, inv.TenantID, uuid.Nil) {
		return store.ErrDuplicate
	}
	m.invitations[inv.ID] = *inv
	return nil
}

func (m *memStore) FindInvitation(_ context.Context, tenantID, id uuid.UUID) (*Invitation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	inv, ok := m.invitations[id]
	if !ok || inv.TenantID != tenantID {
		return nil, store.ErrNotFound
	}
	return &inv, nil
}

func (m *memStore) FindPendingByPrefix(_ context.Context, prefix string) ([]Invitation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Invitation
	for _, inv := range m.invitations {
		if inv.TokenPrefix == prefix && inv.Status == StatusPending {
			out = append(out, inv)
		}
	}
	return out, nil
}

func (m *memStore) ListInvitations(_ context.Context, tenantID uuid.UUID, filter ListFilter) ([]Invitation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Invitation
	for _, inv := range m.invitations {
		if inv.TenantID != tenantID {
			continue
		}
		if filter.Status != nil && inv.Status != *filter.Status {
			continue
		}
		out = append(out, inv)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (m *memStore) UpdatePending(_ context.Context, inv *Invitation, expectHash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if inv.Status == StatusExpired && m.failExpireWrite != nil {
		return m.failExpireWrite
	}
	if m.failUpdate != nil {
		return m.failUpdate
	}
	return m.updatePendingLocked(inv, expectHash)
}

func (m *memStore) updatePendingLocked(inv *Invitation, expectHash string) error {
	current, ok := m.invitations[inv.ID]
	if !ok || !current.matchesPending(expectHash) {
		return store.ErrNotPending
	}
	current.Status = inv.Status
	current.TokenHash = inv.TokenHash
	current.TokenPrefix = inv.TokenPrefix
	current.ExpiresAt = inv.ExpiresAt
	current.UpdatedAt = inv.UpdatedAt
	m.invitations[inv.ID] = current
	return nil
}

func (m *memStore) DeleteInvitation(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failDelete != nil {
		return m.failDelete
	}
	delete(m.invitations, id)
	return nil
}

func (m *memStore) ExpireOverdue(_ context.Context, now time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for id, inv := range m.invitations {
		if inv.Status == StatusPending && inv.ExpiresAt.Before(now) {
			inv.Status = StatusExpired
			inv.UpdatedAt = now
			m.invitations[id] = inv
			n++
		}
	}
	return n, nil
}

// WithTx applies fn's writes only if fn returns nil.
func (m *memStore) WithTx(_ context.Context, fn func(tx Tx) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	tx := &memTx{store: m, accounts: make(map[string]Account), updates: make(map[uuid.UUID]Invitation)}
	if err := fn(tx); err != nil {
		return err
	}
	for email, acc := range tx.accounts {
		m.accounts[email] = acc
	}
	for id, inv := range tx.updates {
		m.invitations[id] = inv
	}
	return nil
}

func (m *memStore) addAccount(email string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.accounts[email] = Account{ID: uuid.New(), Email: email}
}

func (m *memStore) get(id uuid.UUID) (Invitation, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	inv, ok := m.invitations[id]
	return inv, ok
}

func (m *memStore) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.invitations)
}

func (inv Invitation) matchesPending(expectHash string) bool {
	if inv.Status != StatusPending {
		return false
	}
	return expectHash == AnyTokenHash || inv.TokenHash == expectHash
}

type memTx struct {
	store    *memStore
	accounts map[string]Account
	updates  map[uuid.UUID]Invitation
}

func (t *memTx) CreateAccount(_ context.Context, account Account) (uuid.UUID, error) {
	if _, ok := t.store.accounts[account.Email]; ok {
		return uuid.Nil, store.ErrDuplicate
	}
	t.accounts[account.Email] = account
	return account.ID, nil
}

func (t *memTx) UpdatePending(_ context.Context, inv *Invitation, expectHash string) error {
	current, ok := t.store.invitations[inv.ID]
	if !ok || !current.matchesPending(expectHash) {
		return store.ErrNotPending
	}
	current.Status = inv.Status
	current.UpdatedAt = inv.UpdatedAt
	t.updates[inv.ID] = current
	return nil
}

// recordingNotifier captures every message and fails when err is set.
type recordingNotifier struct {
	mu       sync.Mutex
	messages []Message
	err      error
}

func (n *recordingNotifier) SendInvitation(_ context.Context, msg Message) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.messages = append(n.messages, msg)
	return n.err
}

func (n *recordingNotifier) last() Message {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.messages[len(n.messages)-1]
}

var errRelayDown = errors.New("relay down")
