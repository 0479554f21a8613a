package account

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Repository is the credential store. It is the only shared mutable resource;
// every invariant is scoped to a single account record, so no transaction API
// beyond Create's account+profile pair is needed.
type Repository interface {
	Create(account *Account, profile *Profile) error
	FindByID(id uuid.UUID) (*Account, error)
	FindByUsernameOrEmail(identifier string) (*Account, error)

	// FindReapable returns every deactivated account whose restoration
	// deadline is before now.
	FindReapable(now time.Time) ([]Account, error)

	Save(account *Account) error
	Delete(id uuid.UUID) error
	DeleteProfileByAccountID(accountID uuid.UUID) error
}

type repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) Create(account *Account, profile *Profile) error {
	err := r.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(account).Error; err != nil {
			return err
		}
		return tx.Create(profile).Error
	})
	if err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return ErrAccountExists
		}
		return err
	}
	return nil
}

func (r *repository) FindByID(id uuid.UUID) (*Account, error) {
	var account Account
	if err := r.db.Where("id = ?", id).First(&account).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &account, nil
}

func (r *repository) FindByUsernameOrEmail(identifier string) (*Account, error) {
	var account Account
	err := r.db.Where("username = ? OR email = ?", identifier, identifier).First(&account).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &account, nil
}

func (r *repository) FindReapable(now time.Time) ([]Account, error) {
	var accounts []Account
	err := r.db.
		Where("is_deactivated = ? AND restoration_deadline < ?", true, now).
		Find(&accounts).Error
	if err != nil {
		return nil, err
	}
	return accounts, nil
}

func (r *repository) Save(account *Account) error {
	return r.db.Save(account).Error
}

func (r *repository) Delete(id uuid.UUID) error {
	return r.db.Where("id = ?", id).Delete(&Account{}).Error
}

func (r *repository) DeleteProfileByAccountID(accountID uuid.UUID) error {
	return r.db.Where("account_id = ?", accountID).Delete(&Profile{}).Error
}
