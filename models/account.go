package models

import (
	"time"

	"github.com/fedipub/fedipub/internal/snowflake"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// An Account holds the login credentials of a local actor.
type Account struct {
	ID                snowflake.ID `gorm:"primarykey;autoIncrement:false"`
	CreatedAt         time.Time
	UpdatedAt         time.Time
	LocalActorID      snowflake.ID `gorm:"uniqueIndex;not null"`
	LocalActor        *LocalActor  `gorm:"constraint:OnDelete:CASCADE;<-:false;"`
	Email             string       `gorm:"size:64;uniqueIndex;not null"`
	EncryptedPassword []byte       `gorm:"size:60;not null"`
}

// ComparePassword reports whether the given password matches the account.
func (a *Account) ComparePassword(password string) error {
	return bcrypt.CompareHashAndPassword(a.EncryptedPassword, []byte(password))
}

type Accounts struct {
	db *gorm.DB
}

func NewAccounts(db *gorm.DB) *Accounts {
	return &Accounts{db: db}
}

// Create creates an account for the given actor with a bcrypt hashed
// password.
func (a *Accounts) Create(actor *LocalActor, email, password string) (*Account, error) {
	passwd, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}
	account := &Account{
		ID:                snowflake.Now(),
		LocalActorID:      actor.ID,
		Email:             email,
		EncryptedPassword: passwd,
	}
	return account, a.db.Create(account).Error
}

// Find finds an account by email address.
func (a *Accounts) Find(email string) (*Account, error) {
	var account Account
	return &account, a.db.Joins("LocalActor").Where("email = ?", email).Take(&account).Error
}
