// File: internal/usecase/mocks_test.go
package usecase

import (
	"context"
	"encoding/json"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"podcast-subscription-backend/internal/domain"
	"podcast-subscription-backend/internal/domain/model"
	"podcast-subscription-backend/internal/domain/ports/adapter"
	"podcast-subscription-backend/internal/domain/ports/repository"
)

func NewTestLogger() *zerolog.Logger {
	l := zerolog.Nop()
	return &l
}

// MockUserRepo is a small in-memory implementation used by unit tests.
type MockUserRepo struct {
	mu    sync.RWMutex
	store map[string]*model.User

	FindByIDFunc func(ctx context.Context, id string) (*model.User, error)
}

func NewMockUserRepo() *MockUserRepo {
	return &MockUserRepo{store: make(map[string]*model.User)}
}

func (m *MockUserRepo) Put(u *model.User) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *u
	m.store[u.ID] = &cp
}

func (m *MockUserRepo) FindByID(ctx context.Context, id string) (*model.User, error) {
	if m.FindByIDFunc != nil {
		return m.FindByIDFunc(ctx, id)
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.store[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

// MockSubscriptionRepo keeps documents in memory and rotates etags on every
// write, like the real store.
type MockSubscriptionRepo struct {
	mu    sync.RWMutex
	store map[string]*model.Subscription
	etags map[string]string
	seq   int

	InsertFunc func(ctx context.Context, sub *model.Subscription) error
	UpsertFunc func(ctx context.Context, sub *model.Subscription, etag string) error
}

func NewMockSubscriptionRepo() *MockSubscriptionRepo {
	return &MockSubscriptionRepo{
		store: make(map[string]*model.Subscription),
		etags: make(map[string]string),
	}
}

// cloneSub deep-copies through the document codec, exactly like a store
// round-trip would.
func cloneSub(s *model.Subscription) *model.Subscription {
	b, err := json.Marshal(s)
	if err != nil {
		panic(err)
	}
	var out model.Subscription
	if err := json.Unmarshal(b, &out); err != nil {
		panic(err)
	}
	return &out
}

func (m *MockSubscriptionRepo) nextEtag() string {
	m.seq++
	return "etag-" + strconv.Itoa(m.seq)
}

func (m *MockSubscriptionRepo) Etag(id string) string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.etags[id]
}

func (m *MockSubscriptionRepo) Get(ctx context.Context, userID, id string) (*model.Subscription, string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.store[id]
	if !ok || s.UserID != userID {
		return nil, "", domain.ErrNotFound
	}
	return cloneSub(s), m.etags[id], nil
}

func (m *MockSubscriptionRepo) Insert(ctx context.Context, sub *model.Subscription) error {
	if m.InsertFunc != nil {
		return m.InsertFunc(ctx, sub)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.store[sub.ID]; ok {
		return domain.ErrAlreadyExists
	}
	m.store[sub.ID] = cloneSub(sub)
	m.etags[sub.ID] = m.nextEtag()
	return nil
}

func (m *MockSubscriptionRepo) Upsert(ctx context.Context, sub *model.Subscription, etag string) error {
	if m.UpsertFunc != nil {
		return m.UpsertFunc(ctx, sub, etag)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if etag != "" {
		if current, ok := m.etags[sub.ID]; ok && current != etag {
			return domain.ErrPreconditionFailed
		}
	}
	m.store[sub.ID] = cloneSub(sub)
	m.etags[sub.ID] = m.nextEtag()
	return nil
}

func (m *MockSubscriptionRepo) ListByUser(ctx context.Context, userID string) ([]*model.Subscription, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*model.Subscription
	for _, s := range m.store {
		if s.UserID == userID {
			out = append(out, cloneSub(s))
		}
	}
	return out, nil
}

func (m *MockSubscriptionRepo) ListUnterminated(ctx context.Context, now time.Time) ([]repository.VersionedSubscription, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []repository.VersionedSubscription
	for id, s := range m.store {
		if s.End == nil || !s.End.Before(now) {
			out = append(out, repository.VersionedSubscription{Subscription: cloneSub(s), Etag: m.etags[id]})
		}
	}
	return out, nil
}

func (m *MockSubscriptionRepo) FindByAppleOriginalTransactionID(ctx context.Context, originalTransactionID string) ([]repository.VersionedSubscription, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []repository.VersionedSubscription
	for id, s := range m.store {
		for _, p := range s.Payments {
			ap, ok := p.(*model.ApplePayment)
			if ok && ap.OriginalTransactionID == originalTransactionID {
				out = append(out, repository.VersionedSubscription{Subscription: cloneSub(s), Etag: m.etags[id]})
				break
			}
		}
	}
	return out, nil
}

// MockPurchaseGateway is a func-field gateway stub.
type MockPurchaseGateway struct {
	GetPurchaseFunc                func(ctx context.Context, receipt, productID, packageName string, typ model.ProductType, sandbox bool, platform model.Platform) (model.Purchase, error)
	GetAppleSubscriptionStatusFunc func(ctx context.Context, originalTransactionID string, sandbox bool) (adapter.AppleSubscriptionStatus, error)
	GetGoogleSubscriptionFunc      func(ctx context.Context, token, subscriptionID, packageName string, sandbox bool) (*adapter.GoogleSubscription, error)
}

func (m *MockPurchaseGateway) GetPurchase(ctx context.Context, receipt, productID, packageName string, typ model.ProductType, sandbox bool, platform model.Platform) (model.Purchase, error) {
	return m.GetPurchaseFunc(ctx, receipt, productID, packageName, typ, sandbox, platform)
}

func (m *MockPurchaseGateway) GetAppleSubscriptionStatus(ctx context.Context, originalTransactionID string, sandbox bool) (adapter.AppleSubscriptionStatus, error) {
	return m.GetAppleSubscriptionStatusFunc(ctx, originalTransactionID, sandbox)
}

func (m *MockPurchaseGateway) GetGoogleSubscription(ctx context.Context, token, subscriptionID, packageName string, sandbox bool) (*adapter.GoogleSubscription, error) {
	return m.GetGoogleSubscriptionFunc(ctx, token, subscriptionID, packageName, sandbox)
}

// MockLocker grants every lock unless told otherwise.
type MockLocker struct {
	mu   sync.Mutex
	held map[string]string

	TryLockFunc func(ctx context.Context, key string, ttl time.Duration) (string, error)
}

func NewMockLocker() *MockLocker {
	return &MockLocker{held: make(map[string]string)}
}

func (m *MockLocker) TryLock(ctx context.Context, key string, ttl time.Duration) (string, error) {
	if m.TryLockFunc != nil {
		return m.TryLockFunc(ctx, key, ttl)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.held[key]; ok {
		return "", domain.ErrDuplicatePurchase
	}
	token := "token-" + key
	m.held[key] = token
	return token, nil
}

func (m *MockLocker) Unlock(ctx context.Context, key, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.held[key] == token {
		delete(m.held, key)
	}
	return nil
}

// MockForwarder records forwarded payloads.
type MockForwarder struct {
	mu       sync.Mutex
	Payloads [][]byte

	ForwardFunc func(ctx context.Context, payload []byte) error
}

func (m *MockForwarder) Forward(ctx context.Context, payload []byte) error {
	m.mu.Lock()
	m.Payloads = append(m.Payloads, payload)
	m.mu.Unlock()
	if m.ForwardFunc != nil {
		return m.ForwardFunc(ctx, payload)
	}
	return nil
}
