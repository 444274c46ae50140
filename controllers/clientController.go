package controllers

import (
	"errors"

	"fakturierung-recurring/database"
	"fakturierung-recurring/middlewares"
	"fakturierung-recurring/models"
	"fakturierung-recurring/utils"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

type ClientCreateDTO struct {
	CompanyName string `json:"company_name" validate:"required,max=255"`
	Email       string `json:"email" validate:"required,email,max=255"`
	Address     string `json:"address" validate:"max=255"`
	City        string `json:"city" validate:"max=100"`
	Country     string `json:"country" validate:"max=100"`
	Zip         string `json:"zip" validate:"max=20"`
	UID         string `json:"uid" validate:"max=50"`
	FirstName   string `json:"first_name" validate:"max=100"`
	LastName    string `json:"last_name" validate:"max=100"`
	PhoneNumber string `json:"phone_number" validate:"max=50"`
}

type ClientUpdateDTO struct {
	CompanyName *string `json:"company_name" validate:"omitempty,min=1,max=255"`
	Email       *string `json:"email" validate:"omitempty,email,max=255"`
	Address     *string `json:"address" validate:"omitempty,max=255"`
	City        *string `json:"city" validate:"omitempty,max=100"`
	Country     *string `json:"country" validate:"omitempty,max=100"`
	Zip         *string `json:"zip" validate:"omitempty,max=20"`
	UID         *string `json:"uid" validate:"omitempty,max=50"`
	FirstName   *string `json:"first_name" validate:"omitempty,max=100"`
	LastName    *string `json:"last_name" validate:"omitempty,max=100"`
	PhoneNumber *string `json:"phone_number" validate:"omitempty,max=50"`
	Active      *bool   `json:"active"`
}

func CreateClient(c *fiber.Ctx) error {
	var dto ClientCreateDTO
	if err := middlewares.BindAndValidate(c, &dto); err != nil {
		return err
	}
	utils.NormalizeDTO(&dto)

	accountID, err := middlewares.AccountID(c)
	if err != nil {
		return err
	}
	db, err := database.GetDB(c)
	if err != nil {
		return err
	}

	client := models.Client{
		AccountId:   accountID,
		CompanyName: dto.CompanyName,
		Email:       dto.Email,
		Address:     dto.Address,
		City:        dto.City,
		Country:     dto.Country,
		Zip:         dto.Zip,
		UID:         dto.UID,
		FirstName:   dto.FirstName,
		LastName:    dto.LastName,
		PhoneNumber: dto.PhoneNumber,
		Active:      true,
	}
	if err := db.Create(&client).Error; err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(client)
}

func UpdateClient(c *fiber.Ctx) error {
	var dto ClientUpdateDTO
	if err := middlewares.BindAndValidate(c, &dto); err != nil {
		return err
	}
	utils.NormalizePtrDTO(&dto)

	accountID, err := middlewares.AccountID(c)
	if err != nil {
		return err
	}
	db, err := database.GetDB(c)
	if err != nil {
		return err
	}

	updates := utils.PatchColumns(&dto)
	if len(updates) > 0 {
		res := db.Model(&models.Client{}).
			Where("id = ? AND account_id = ?", c.Params("id"), accountID).
			Updates(updates)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return fiber.NewError(fiber.StatusNotFound, "client not found")
		}
	}
	return findClient(c, db, accountID)
}

func GetClients(c *fiber.Ctx) error {
	accountID, err := middlewares.AccountID(c)
	if err != nil {
		return err
	}
	db, err := database.GetDB(c)
	if err != nil {
		return err
	}

	var clients []models.Client
	if err := db.Where("account_id = ?", accountID).Order("company_name").Find(&clients).Error; err != nil {
		return err
	}
	return c.JSON(fiber.Map{
		"clients": clients,
		"message": "success",
	})
}

func GetClient(c *fiber.Ctx) error {
	accountID, err := middlewares.AccountID(c)
	if err != nil {
		return err
	}
	db, err := database.GetDB(c)
	if err != nil {
		return err
	}
	return findClient(c, db, accountID)
}

func findClient(c *fiber.Ctx, db *gorm.DB, accountID string) error {
	var client models.Client
	err := db.Where("id = ? AND account_id = ?", c.Params("id"), accountID).First(&client).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fiber.NewError(fiber.StatusNotFound, "client not found")
	}
	if err != nil {
		return err
	}
	return c.JSON(client)
}
