package account

import (
	"time"

	"github.com/google/uuid"
)

// Account is the credential record. Lifecycle flags and token columns are only
// ever mutated through Service and VerificationIssuer.
type Account struct {
	ID           uuid.UUID `gorm:"type:uuid;primaryKey"`
	Username     string    `gorm:"uniqueIndex;not null"`
	Email        string    `gorm:"uniqueIndex;not null"`
	PasswordHash string    `gorm:"not null"`

	IsVerified bool `gorm:"not null;default:false"`

	// Outstanding single-use tokens. A column is non-empty only while an
	// unconsumed token exists; the consuming transition clears it.
	VerifyToken          string `gorm:"index"`
	VerifyTokenExpiry    *time.Time
	ForgotPasswordToken  string `gorm:"index"`
	ForgotPasswordExpiry *time.Time

	// The single refresh token currently valid for this account. Rotation
	// overwrites it, which is what invalidates the previous one.
	RefreshToken string

	IsDeactivated       bool `gorm:"not null;default:false"`
	DeactivatedAt       *time.Time
	RestorationDeadline *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

func (Account) TableName() string {
	return "accounts"
}

// RestorableAt reports whether the account can still be restored at t.
func (a *Account) RestorableAt(t time.Time) bool {
	return a.IsDeactivated && a.RestorationDeadline != nil && t.Before(*a.RestorationDeadline)
}

// GoneAt reports whether the restoration deadline has passed at t. An account
// for which this is true is logically gone even before the reaper physically
// deletes it.
func (a *Account) GoneAt(t time.Time) bool {
	return a.IsDeactivated && a.RestorationDeadline != nil && !t.Before(*a.RestorationDeadline)
}

// Profile is the dependent entity created alongside every account. The
// identity core only owns it for deletion purposes; its content is managed
// elsewhere.
type Profile struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey"`
	AccountID uuid.UUID `gorm:"type:uuid;uniqueIndex;not null"`
	Username  string    `gorm:"not null"`
	Fullname  string
	Bio       string
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (Profile) TableName() string {
	return "profiles"
}
