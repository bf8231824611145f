package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/helpdesk-service/internal/api/http/handlers"
	"github.com/spec-kit/helpdesk-service/internal/auth"
	"github.com/spec-kit/helpdesk-service/internal/domain"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health         *handlers.HealthHandler
	Users          *handlers.UsersHandler
	Tickets        *handlers.TicketsHandler
	StaffTickets   *handlers.StaffTicketsHandler
	AuthMiddleware *auth.AuthMiddleware
}

// RegisterRoutes wires HTTP routes.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)

	api := app.Group("/api/v1", cfg.AuthMiddleware.Handle, auth.RequireAnyRole())
	api.Get("/me", cfg.Users.Me)

	tickets := api.Group("/tickets")
	tickets.Post("/", cfg.Tickets.CreateTicket)
	tickets.Get("/", cfg.Tickets.ListTickets)
	tickets.Get("/:id", cfg.Tickets.GetTicket)
	tickets.Get("/:id/sla", cfg.Tickets.GetSLA)
	tickets.Post("/:id/status", cfg.Tickets.ChangeStatus)
	tickets.Post("/:id/resolve", cfg.Tickets.Resolve)
	tickets.Post("/:id/close", cfg.Tickets.Close)
	tickets.Post("/:id/cancel", cfg.Tickets.Cancel)
	tickets.Post("/:id/reopen", cfg.Tickets.Reopen)
	tickets.Post("/:id/comments", cfg.Tickets.AddComment)
	tickets.Post("/:id/attachments", cfg.Tickets.AddAttachment)
	tickets.Post("/:id/rating", cfg.Tickets.AddRating)

	staff := auth.RequireSupportStaff()
	tickets.Post("/:id/assign", staff, cfg.StaffTickets.Assign)
	tickets.Post("/:id/escalate", staff, cfg.StaffTickets.Escalate)
	tickets.Get("/:id/audit", staff, cfg.StaffTickets.ListAudit)
	tickets.Get("/:id/audit/verify", staff, cfg.StaffTickets.VerifyAudit)
	tickets.Get("/:id/audit/as-of", staff, cfg.StaffTickets.AuditAsOf)

	adminOnly := auth.RequireRole(domain.RoleAdmin)
	tickets.Delete("/:id", adminOnly, cfg.StaffTickets.Delete)
	api.Post("/escalations/sweep", adminOnly, cfg.StaffTickets.Sweep)
}
