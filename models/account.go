package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Account is the billing tenant. Clients, recurring definitions and invoices
// all carry an AccountId.
type Account struct {
	Id          string    `json:"id" gorm:"primaryKey;type:varchar(36)"`
	CompanyName string    `json:"company_name" gorm:"not null"`
	Address     string    `json:"address" gorm:"not null"`
	City        string    `json:"city" gorm:"not null"`
	Country     string    `json:"country" gorm:"not null"`
	Zip         string    `json:"zip" gorm:"not null"`
	Homepage    string    `json:"homepage" gorm:"null"`
	UID         string    `json:"uid" gorm:"null"`
	CreatedAt   time.Time `json:"created_at"`
}

func (account *Account) BeforeCreate(tx *gorm.DB) (err error) {
	if account.Id == "" {
		account.Id = uuid.NewString()
	}
	return
}
