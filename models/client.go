package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Client is the customer an invoice is addressed to.
type Client struct {
	Id          string    `json:"id" gorm:"primaryKey;type:varchar(36)"`
	AccountId   string    `json:"-" gorm:"type:varchar(36);not null;index"`
	CompanyName string    `json:"company_name" gorm:"not null"`
	Address     string    `json:"address"`
	City        string    `json:"city"`
	Country     string    `json:"country"`
	Zip         string    `json:"zip"`
	UID         string    `json:"uid"`
	Email       string    `json:"email" gorm:"not null"`
	FirstName   string    `json:"first_name"`
	LastName    string    `json:"last_name"`
	PhoneNumber string    `json:"phone_number"`
	Active      bool      `json:"active" gorm:"not null;default:true"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func (client *Client) BeforeCreate(tx *gorm.DB) (err error) {
	if client.Id == "" {
		client.Id = uuid.NewString()
	}
	return
}
