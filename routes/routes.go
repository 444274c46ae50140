package routes

import (
	"github.com/gofiber/fiber/v2"

	"fakturierung-recurring/controllers"
	"fakturierung-recurring/middlewares"
)

// Register wires all HTTP routes.
func Register(app *fiber.App, recurring *controllers.RecurringHandler, cronSecret string) {
	api := app.Group("/api")

	// Public auth endpoints
	api.Post("/registration", controllers.Register)
	api.Post("/login", controllers.Login)
	api.Post("/logout", controllers.Logout)

	// Batch trigger for external schedulers. Spans all accounts, so it is
	// guarded by the shared cron secret and runs outside the request TX;
	// every definition commits on its own.
	api.Post("/recurring/run-due", middlewares.CronSecret(cronSecret), recurring.RunDue)

	// Protected endpoints (JWT auth)
	protected := api.Group("")
	protected.Use(middlewares.IsAuthenticatedHeader())

	// Idempotency guard FIRST (not tied to request TX)
	protected.Use(middlewares.Idempotency())

	// Then per-request transaction (commits on success, rolls back on error)
	protected.Use(middlewares.RequestTx())

	// Clients
	protected.Post("/clients", controllers.CreateClient)
	protected.Get("/clients", controllers.GetClients)
	protected.Get("/clients/:id", controllers.GetClient)
	protected.Put("/clients/:id", controllers.UpdateClient)

	// Recurring invoice definitions
	protected.Post("/recurring", recurring.Create)
	protected.Get("/recurring", recurring.List)
	protected.Get("/recurring/:id", recurring.Get)
	protected.Put("/recurring/:id", recurring.Update)
	protected.Delete("/recurring/:id", recurring.Delete)
	protected.Post("/recurring/:id/pause", recurring.Pause)
	protected.Post("/recurring/:id/resume", recurring.Resume)
	protected.Post("/recurring/:id/cancel", recurring.Cancel)
	protected.Post("/recurring/:id/generate", recurring.Generate)
	protected.Get("/recurring/:id/preview", recurring.Preview)

	// Invoices (read side; writes come from recurring generation)
	protected.Get("/invoices", controllers.GetInvoices)
	protected.Get("/invoices/:id", controllers.GetInvoice)
}
