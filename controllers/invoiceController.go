package controllers

import (
	"errors"
	"strings"

	"fakturierung-recurring/database"
	"fakturierung-recurring/middlewares"
	"fakturierung-recurring/models"
	"fakturierung-recurring/utils"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

// GetInvoices lists the account's invoices, newest first.
// Query: page, limit, status (DRAFT|SENT), client_id.
func GetInvoices(c *fiber.Ctx) error {
	accountID, err := middlewares.AccountID(c)
	if err != nil {
		return err
	}
	db, err := database.GetDB(c)
	if err != nil {
		return err
	}

	page := utils.ParsePage(c)

	q := db.Model(&models.Invoice{}).Where("account_id = ?", accountID)
	if status := strings.ToUpper(strings.TrimSpace(c.Query("status"))); status != "" {
		if status != string(models.InvoiceDraft) && status != string(models.InvoiceSent) {
			return fiber.NewError(fiber.StatusBadRequest, "status must be DRAFT or SENT")
		}
		q = q.Where("status = ?", status)
	}
	if clientID := strings.TrimSpace(c.Query("client_id")); clientID != "" {
		q = q.Where("client_id = ?", clientID)
	}
	q = q.Session(&gorm.Session{})

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return err
	}
	var invoices []models.Invoice
	if err := q.Order("issue_date DESC, invoice_number DESC").
		Offset(page.Offset()).
		Limit(page.Limit).
		Find(&invoices).Error; err != nil {
		return err
	}

	return c.JSON(fiber.Map{
		"invoices": invoices,
		"page":     page.Page,
		"limit":    page.Limit,
		"total":    total,
	})
}

func GetInvoice(c *fiber.Ctx) error {
	accountID, err := middlewares.AccountID(c)
	if err != nil {
		return err
	}
	db, err := database.GetDB(c)
	if err != nil {
		return err
	}

	var invoice models.Invoice
	err = db.
		Preload("Items", func(db *gorm.DB) *gorm.DB { return db.Order("position") }).
		Preload("Events", func(db *gorm.DB) *gorm.DB { return db.Order("created_at") }).
		Where("id = ? AND account_id = ?", c.Params("id"), accountID).
		First(&invoice).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fiber.NewError(fiber.StatusNotFound, "invoice not found")
	}
	if err != nil {
		return err
	}
	return c.JSON(invoice)
}
