package account

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// mockRepository is an in-memory credential store used by tests.
type mockRepository struct {
	mu       sync.RWMutex
	accounts map[uuid.UUID]*Account
	profiles map[uuid.UUID]*Profile
}

func newMockRepository() *mockRepository {
	return &mockRepository{
		accounts: make(map[uuid.UUID]*Account),
		profiles: make(map[uuid.UUID]*Profile),
	}
}

func cloneAccount(a *Account) *Account {
	c := *a
	if a.VerifyTokenExpiry != nil {
		t := *a.VerifyTokenExpiry
		c.VerifyTokenExpiry = &t
	}
	if a.ForgotPasswordExpiry != nil {
		t := *a.ForgotPasswordExpiry
		c.ForgotPasswordExpiry = &t
	}
	if a.DeactivatedAt != nil {
		t := *a.DeactivatedAt
		c.DeactivatedAt = &t
	}
	if a.RestorationDeadline != nil {
		t := *a.RestorationDeadline
		c.RestorationDeadline = &t
	}
	return &c
}

func (r *mockRepository) Create(account *Account, profile *Profile) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.accounts {
		if existing.Username == account.Username || existing.Email == account.Email {
			return ErrAccountExists
		}
	}

	r.accounts[account.ID] = cloneAccount(account)
	p := *profile
	r.profiles[profile.AccountID] = &p
	return nil
}

func (r *mockRepository) FindByID(id uuid.UUID) (*Account, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	account, exists := r.accounts[id]
	if !exists {
		return nil, ErrNotFound
	}
	return cloneAccount(account), nil
}

func (r *mockRepository) FindByUsernameOrEmail(identifier string) (*Account, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, account := range r.accounts {
		if account.Username == identifier || account.Email == identifier {
			return cloneAccount(account), nil
		}
	}
	return nil, ErrNotFound
}

func (r *mockRepository) FindReapable(now time.Time) ([]Account, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var reapable []Account
	for _, account := range r.accounts {
		if account.IsDeactivated && account.RestorationDeadline != nil && account.RestorationDeadline.Before(now) {
			reapable = append(reapable, *cloneAccount(account))
		}
	}
	return reapable, nil
}

func (r *mockRepository) Save(account *Account) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.accounts[account.ID]; !exists {
		return ErrNotFound
	}
	r.accounts[account.ID] = cloneAccount(account)
	return nil
}

func (r *mockRepository) Delete(id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.accounts, id)
	return nil
}

func (r *mockRepository) DeleteProfileByAccountID(accountID uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.profiles, accountID)
	return nil
}

func (r *mockRepository) profileExists(accountID uuid.UUID) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, exists := r.profiles[accountID]
	return exists
}
