package models

import (
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

type User struct {
	Id        string  `json:"id" gorm:"primaryKey;type:varchar(36)"`
	FirstName string  `json:"first_name" gorm:"not null"`
	LastName  string  `json:"last_name" gorm:"not null"`
	Password  []byte  `json:"-" gorm:"not null"`
	Email     string  `json:"email" gorm:"unique;not null"`
	AccountId string  `json:"account_id" gorm:"type:varchar(36);not null;index"`
	Account   Account `json:"-" gorm:"foreignKey:AccountId;references:Id"`
}

func (user *User) BeforeCreate(tx *gorm.DB) (err error) {
	if user.Id == "" {
		user.Id = uuid.NewString()
	}
	return
}

func (user *User) SetPassword(password string) error {
	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(password), 12)
	if err != nil {
		return err
	}
	user.Password = hashedPassword
	return nil
}

func (user *User) ComparePassword(password string) error {
	return bcrypt.CompareHashAndPassword(user.Password, []byte(password))
}
