package service

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/prn-tf/keygate/internal/domain"
	"github.com/prn-tf/keygate/internal/lock"
	"github.com/prn-tf/keygate/internal/repository"
)

var errInsert = errors.New("insert failed")

// MockKeyRepository is a mock implementation of repository.KeyRepository.
type MockKeyRepository struct {
	mu        sync.Mutex
	keys      map[string]*domain.Key
	nextID    int64
	createErr error
	existsErr error
	bindErr   error
	countErr  error

	// createFailures makes the next N Create calls fail.
	createFailures int
	// collide makes ExistsByValue report true this many times.
	collide int
}

func NewMockKeyRepository() *MockKeyRepository {
	return &MockKeyRepository{
		keys:   make(map[string]*domain.Key),
		nextID: 1,
	}
}

func (m *MockKeyRepository) Create(ctx context.Context, key *domain.Key) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createErr != nil {
		return m.createErr
	}
	if m.createFailures > 0 {
		m.createFailures--
		return errInsert
	}
	if _, exists := m.keys[key.Value]; exists {
		return domain.ErrKeyAlreadyExists
	}
	key.ID = m.nextID
	m.nextID++
	m.keys[key.Value] = key
	return nil
}

func (m *MockKeyRepository) GetByValue(ctx context.Context, value string) (*domain.Key, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if k, exists := m.keys[value]; exists {
		return k, nil
	}
	return nil, domain.ErrKeyNotFound
}

func (m *MockKeyRepository) ExistsByValue(ctx context.Context, value string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.existsErr != nil {
		return false, m.existsErr
	}
	if m.collide > 0 {
		m.collide--
		return true, nil
	}
	_, exists := m.keys[value]
	return exists, nil
}

func (m *MockKeyRepository) Bind(ctx context.Context, value, hwid string, usedAt time.Time) (domain.BindingState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	k := m.keys[value]
	state := domain.ClassifyBinding(k, hwid)
	if state != domain.BindingAvailable {
		return state, nil
	}
	if m.bindErr != nil {
		return domain.BindingNotFound, domain.NewDomainError(domain.ErrKeyMarkFailed, m.bindErr.Error(), value)
	}

	k.Status = domain.KeyStatusUsed
	k.HWID = &hwid
	k.UsedAt = &usedAt
	return domain.BindingBound, nil
}

func (m *MockKeyRepository) List(ctx context.Context, opts repository.KeyListOptions) (*repository.ListResult[domain.Key], error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var items []*domain.Key
	for _, k := range m.keys {
		if opts.Status == "" || k.Status == opts.Status {
			items = append(items, k)
		}
	}
	sort.Slice(items, func(i, j int) bool { return items[i].ID > items[j].ID })
	return &repository.ListResult[domain.Key]{Items: items, Total: int64(len(items)), Limit: opts.Limit}, nil
}

func (m *MockKeyRepository) CountAll(ctx context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.countErr != nil {
		return 0, m.countErr
	}
	return int64(len(m.keys)), nil
}

func (m *MockKeyRepository) CountByStatus(ctx context.Context, status domain.KeyStatus) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.countErr != nil {
		return 0, m.countErr
	}
	var n int64
	for _, k := range m.keys {
		if k.Status == status {
			n++
		}
	}
	return n, nil
}

// MockAccountRepository is a mock implementation of repository.AccountRepository.
type MockAccountRepository struct {
	mu        sync.Mutex
	accounts  map[string]*domain.Account
	nextID    int64
	createErr error
	existsErr error
	getErr    error
}

func NewMockAccountRepository() *MockAccountRepository {
	return &MockAccountRepository{
		accounts: make(map[string]*domain.Account),
		nextID:   1,
	}
}

func (m *MockAccountRepository) Create(ctx context.Context, account *domain.Account) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createErr != nil {
		return m.createErr
	}
	if _, exists := m.accounts[account.Username]; exists {
		return domain.ErrAccountAlreadyExists
	}
	account.ID = m.nextID
	m.nextID++
	m.accounts[account.Username] = account
	return nil
}

func (m *MockAccountRepository) GetByUsername(ctx context.Context, username string) (*domain.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getErr != nil {
		return nil, m.getErr
	}
	if a, exists := m.accounts[username]; exists {
		return a, nil
	}
	return nil, domain.ErrAccountNotFound
}

func (m *MockAccountRepository) ExistsByUsername(ctx context.Context, username string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.existsErr != nil {
		return false, m.existsErr
	}
	_, exists := m.accounts[username]
	return exists, nil
}

func (m *MockAccountRepository) Count(ctx context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return int64(len(m.accounts)), nil
}

// MockAccessLogRepository is a mock implementation of repository.AccessLogRepository.
type MockAccessLogRepository struct {
	mu        sync.Mutex
	entries   []*domain.AccessLog
	appendErr error
}

func NewMockAccessLogRepository() *MockAccessLogRepository {
	return &MockAccessLogRepository{}
}

func (m *MockAccessLogRepository) Append(ctx context.Context, entry *domain.AccessLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.appendErr != nil {
		return m.appendErr
	}
	entry.ID = int64(len(m.entries) + 1)
	m.entries = append(m.entries, entry)
	return nil
}

func (m *MockAccessLogRepository) List(ctx context.Context, opts repository.ListOptions) (*repository.ListResult[domain.AccessLog], error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	items := make([]*domain.AccessLog, 0, len(m.entries))
	for i := len(m.entries) - 1; i >= 0; i-- {
		items = append(items, m.entries[i])
	}
	if opts.Limit < len(items) {
		items = items[:opts.Limit]
	}
	return &repository.ListResult[domain.AccessLog]{Items: items, Total: int64(len(m.entries)), Limit: opts.Limit}, nil
}

// actions returns the recorded action tags in order.
func (m *MockAccessLogRepository) actions() []domain.AccessAction {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.AccessAction, len(m.entries))
	for i, e := range m.entries {
		out[i] = e.Action
	}
	return out
}

func (m *MockAccessLogRepository) last() *domain.AccessLog {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.entries) == 0 {
		return nil
	}
	return m.entries[len(m.entries)-1]
}

// testEnv bundles mocks and services for a test.
type testEnv struct {
	keys     *MockKeyRepository
	accounts *MockAccountRepository
	logs     *MockAccessLogRepository

	audit   *AuditService
	key     *KeyService
	account *AccountService
	stats   *StatsService
}

func newTestEnv(strict bool) *testEnv {
	logger := zerolog.Nop()
	env := &testEnv{
		keys:     NewMockKeyRepository(),
		accounts: NewMockAccountRepository(),
		logs:     NewMockAccessLogRepository(),
	}

	locker := lock.NewMemoryLocker()

	env.audit = NewAuditService(env.logs, logger)
	env.key = NewKeyService(env.keys, env.audit, locker, KeyServiceConfig{DefaultPrefix: domain.DefaultKeyPrefix, LockTTL: time.Minute}, logger)
	env.account = NewAccountService(env.accounts, env.keys, env.audit, AccountServiceConfig{BcryptCost: 4, StrictBinding: strict}, logger)
	env.stats = NewStatsService(env.keys, env.accounts, logger)
	return env
}

// seedKey stores an unused key and returns its value.
func (e *testEnv) seedKey(value string) string {
	_ = e.keys.Create(context.Background(), domain.NewKey(value))
	return value
}
