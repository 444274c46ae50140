package controllers

import (
	"errors"
	"strings"
	"time"

	"fakturierung-recurring/database"
	"fakturierung-recurring/middlewares"
	"fakturierung-recurring/models"
	"fakturierung-recurring/utils"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

type RegisterDTO struct {
	FirstName       string `json:"first_name" validate:"required,max=100"`
	LastName        string `json:"last_name" validate:"required,max=100"`
	Email           string `json:"email" validate:"required,email,max=255"`
	Password        string `json:"password" validate:"required,min=8,max=72"`
	PasswordConfirm string `json:"password_confirm" validate:"required,eqfield=Password"`
	CompanyName     string `json:"company_name" validate:"required,max=255"`
	Address         string `json:"address" validate:"max=255"`
	City            string `json:"city" validate:"max=100"`
	Country         string `json:"country" validate:"max=100"`
	Zip             string `json:"zip" validate:"max=20"`
	Homepage        string `json:"homepage" validate:"omitempty,url,max=255"`
	UID             string `json:"uid" validate:"max=50"`
}

type LoginDTO struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// Register creates the account and its first user.
func Register(c *fiber.Ctx) error {
	var dto RegisterDTO
	if err := middlewares.BindAndValidate(c, &dto); err != nil {
		return err
	}
	utils.NormalizeDTO(&dto)
	dto.Email = strings.ToLower(dto.Email)

	var user models.User
	account := models.Account{
		CompanyName: dto.CompanyName,
		Address:     dto.Address,
		City:        dto.City,
		Country:     dto.Country,
		Zip:         dto.Zip,
		Homepage:    dto.Homepage,
		UID:         dto.UID,
	}

	err := database.DB.WithContext(c.UserContext()).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&models.User{}).Where("email = ?", dto.Email).Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return fiber.NewError(fiber.StatusBadRequest, "email already exists")
		}

		if err := tx.Create(&account).Error; err != nil {
			return err
		}
		user = models.User{
			FirstName: dto.FirstName,
			LastName:  dto.LastName,
			Email:     dto.Email,
			AccountId: account.Id,
		}
		if err := user.SetPassword(dto.Password); err != nil {
			return err
		}
		return tx.Create(&user).Error
	})
	if err != nil {
		return err
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"account": account,
		"user":    user,
	})
}

func Login(c *fiber.Ctx) error {
	var dto LoginDTO
	if err := middlewares.BindAndValidate(c, &dto); err != nil {
		return err
	}

	var user models.User
	err := database.DB.WithContext(c.UserContext()).
		Where("email = ?", strings.ToLower(strings.TrimSpace(dto.Email))).
		First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fiber.NewError(fiber.StatusBadRequest, "invalid credentials")
	}
	if err != nil {
		return err
	}
	if err := user.ComparePassword(dto.Password); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid credentials")
	}

	token, err := middlewares.GenerateJWT(user.Id, user.AccountId)
	if err != nil {
		return err
	}

	return c.JSON(fiber.Map{
		"token":      token,
		"account_id": user.AccountId,
		"user": fiber.Map{
			"id":    user.Id,
			"name":  user.FirstName + " " + user.LastName,
			"email": user.Email,
		},
	})
}

func Logout(c *fiber.Ctx) error {
	cookie := fiber.Cookie{
		Name:     "jwt",
		Value:    "",
		Expires:  time.Now().Add(-time.Hour),
		HTTPOnly: true,
	}
	c.Cookie(&cookie)
	return c.JSON(fiber.Map{
		"message": "success",
	})
}
