package http

import (
	"bytes"
	"encoding/json"
	"io"
	nethttp "net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/spec-kit/helpdesk-service/internal/api/http/handlers"
	"github.com/spec-kit/helpdesk-service/internal/auth"
	"github.com/spec-kit/helpdesk-service/internal/config"
	"github.com/spec-kit/helpdesk-service/internal/domain"
	"github.com/spec-kit/helpdesk-service/internal/locks"
	"github.com/spec-kit/helpdesk-service/internal/observability"
	"github.com/spec-kit/helpdesk-service/internal/repository"
	"github.com/spec-kit/helpdesk-service/internal/service"
)

type testServer struct {
	app     *fiber.App
	tokens  *auth.TokenManager
	metrics *observability.Metrics
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	logger := zaptest.NewLogger(t)
	tickets := repository.NewMemoryTicketStore()
	users := repository.NewMemoryUserStore(
		domain.User{ID: "stu-1", Name: "Sam", Role: domain.RoleStudent, Availability: domain.AvailabilityAvailable, Active: true},
		domain.User{ID: "stu-2", Name: "Alex", Role: domain.RoleStudent, Availability: domain.AvailabilityAvailable, Active: true},
		domain.User{ID: "tech-1", Name: "Tess", Role: domain.RoleTechnician, SupportAreas: []domain.TicketCategory{domain.CategoryNetwork},
			Availability: domain.AvailabilityAvailable, Active: true},
		domain.User{ID: "admin-1", Name: "Ada", Role: domain.RoleAdmin, Availability: domain.AvailabilityAvailable, Active: true},
		domain.User{ID: "gone", Name: "Gone", Role: domain.RoleStaff, Active: false},
	)
	metrics := observability.NewMetrics()
	registry := locks.NewRegistry()
	t.Cleanup(registry.Close)
	directory := service.NewDirectory(users, config.DirectoryConfig{RetryAttempts: 1, BreakerFailures: 5}, logger)
	ticketSvc, err := service.NewTicketService(service.TicketDependencies{
		TicketRepo:         tickets,
		AuditRepo:          tickets,
		SequenceRepo:       repository.NewMemorySequenceStore(),
		Directory:          directory,
		Logger:             logger,
		Metrics:            metrics,
		Locks:              registry,
		RecomputeDeadlines: true,
	})
	require.NoError(t, err)
	sweeper, err := service.NewEscalationService(service.EscalationDependencies{
		TicketRepo:    tickets,
		TicketService: ticketSvc,
		Logger:        logger,
		Metrics:       metrics,
		Locks:         registry,
	})
	require.NoError(t, err)
	tokens := auth.NewTokenManager("test-secret", "helpdesk", time.Hour)

	app := fiber.New()
	RegisterMiddlewares(app, logger, metrics, 5*time.Second)
	RegisterRoutes(app, RouteConfig{
		Health:         handlers.NewHealthHandler("helpdesk-service", "test", nil, directory),
		Users:          handlers.NewUsersHandler(),
		Tickets:        handlers.NewTicketsHandler(ticketSvc),
		StaffTickets:   handlers.NewStaffTicketsHandler(ticketSvc, sweeper),
		AuthMiddleware: auth.NewAuthMiddleware(tokens, directory),
	})
	return &testServer{app: app, tokens: tokens, metrics: metrics}
}

var testRoles = map[string]domain.Role{
	"stu-1":   domain.RoleStudent,
	"stu-2":   domain.RoleStudent,
	"tech-1":  domain.RoleTechnician,
	"admin-1": domain.RoleAdmin,
}

type envelope struct {
	Data  json.RawMessage `json:"data"`
	Error *struct {
		Code          string `json:"code"`
		Message       string `json:"message"`
		Fields        []any  `json:"fields"`
		CorrelationID string `json:"correlation_id"`
	} `json:"error"`
}

func (s *testServer) do(t *testing.T, method, path, userID string, body any) (int, envelope) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	}
	if userID != "" {
		token, _, err := s.tokens.GenerateToken(userID, testRoles[userID], time.Now())
		require.NoError(t, err)
		req.Header.Set(fiber.HeaderAuthorization, "Bearer "+token)
	}
	resp, err := s.app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()
	var env envelope
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	if len(raw) > 0 {
		require.NoError(t, json.Unmarshal(raw, &env), string(raw))
	}
	return resp.StatusCode, env
}

func decode[T any](t *testing.T, raw json.RawMessage) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(raw, &out))
	return out
}

type ticketBody struct {
	ID           string `json:"id"`
	TicketNumber string `json:"ticket_number"`
	Status       string `json:"status"`
	Priority     string `json:"priority"`
	Comments     []struct {
		Content  string `json:"content"`
		Internal bool   `json:"internal"`
	} `json:"comments"`
	Escalation struct {
		Level int `json:"level"`
	} `json:"escalation"`
}

func createBody() map[string]any {
	return map[string]any{
		"title":       "Wi-Fi drops in library",
		"description": "Connection drops every ten minutes on the second floor.",
		"category":    "NETWORK",
		"priority":    "HIGH",
	}
}

func TestHealth(t *testing.T) {
	s := newTestServer(t)

	status, _ := s.do(t, nethttp.MethodGet, "/health/live", "", nil)
	assert.Equal(t, nethttp.StatusOK, status)

	req := httptest.NewRequest(nethttp.MethodGet, "/health/ready", nil)
	resp, err := s.app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, nethttp.StatusOK, resp.StatusCode)
	raw, _ := io.ReadAll(resp.Body)
	assert.Contains(t, string(raw), `"staff_directory":"closed"`)
}

func TestAuthentication(t *testing.T) {
	s := newTestServer(t)

	status, env := s.do(t, nethttp.MethodGet, "/api/v1/me", "", nil)
	assert.Equal(t, nethttp.StatusUnauthorized, status)
	require.NotNil(t, env.Error)
	assert.Equal(t, "UNAUTHORIZED", env.Error.Code)

	req := httptest.NewRequest(nethttp.MethodGet, "/api/v1/me", nil)
	req.Header.Set(fiber.HeaderAuthorization, "Bearer not-a-token")
	resp, err := s.app.Test(req, -1)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, nethttp.StatusUnauthorized, resp.StatusCode)

	token, _, err := s.tokens.GenerateToken("gone", domain.RoleStaff, time.Now())
	require.NoError(t, err)
	req = httptest.NewRequest(nethttp.MethodGet, "/api/v1/me", nil)
	req.Header.Set(fiber.HeaderAuthorization, "Bearer "+token)
	resp, err = s.app.Test(req, -1)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, nethttp.StatusForbidden, resp.StatusCode)

	status, env = s.do(t, nethttp.MethodGet, "/api/v1/me", "tech-1", nil)
	require.Equal(t, nethttp.StatusOK, status)
	me := decode[map[string]any](t, env.Data)
	assert.Equal(t, "TECHNICIAN", me["role"])
}

func TestTicketFlow(t *testing.T) {
	s := newTestServer(t)

	status, env := s.do(t, nethttp.MethodPost, "/api/v1/tickets", "stu-1", createBody())
	require.Equal(t, nethttp.StatusCreated, status)
	created := decode[ticketBody](t, env.Data)
	assert.True(t, strings.HasPrefix(created.TicketNumber, "TKT-"))
	assert.Equal(t, "ASSIGNED", created.Status)

	status, _ = s.do(t, nethttp.MethodPost, "/api/v1/tickets/"+created.ID+"/comments", "tech-1",
		map[string]any{"content": "Checking the access point logs", "internal": true})
	require.Equal(t, nethttp.StatusCreated, status)
	status, _ = s.do(t, nethttp.MethodPost, "/api/v1/tickets/"+created.ID+"/comments", "tech-1",
		map[string]any{"content": "Heading over now"})
	require.Equal(t, nethttp.StatusCreated, status)

	status, env = s.do(t, nethttp.MethodGet, "/api/v1/tickets/"+created.ID, "stu-1", nil)
	require.Equal(t, nethttp.StatusOK, status)
	view := decode[ticketBody](t, env.Data)
	require.Len(t, view.Comments, 1)
	assert.Equal(t, "Heading over now", view.Comments[0].Content)

	status, _ = s.do(t, nethttp.MethodGet, "/api/v1/tickets/"+created.ID, "stu-2", nil)
	assert.Equal(t, nethttp.StatusForbidden, status)

	status, env = s.do(t, nethttp.MethodPost, "/api/v1/tickets/"+created.ID+"/status", "tech-1",
		map[string]any{"status": "RESOLVED"})
	assert.Equal(t, nethttp.StatusBadRequest, status)
	require.NotNil(t, env.Error)
	assert.Equal(t, "VALIDATION_FAILED", env.Error.Code)

	status, _ = s.do(t, nethttp.MethodPost, "/api/v1/tickets/"+created.ID+"/status", "tech-1",
		map[string]any{"status": "IN_PROGRESS"})
	require.Equal(t, nethttp.StatusOK, status)
	status, env = s.do(t, nethttp.MethodPost, "/api/v1/tickets/"+created.ID+"/resolve", "tech-1",
		map[string]any{"resolution": "Replaced the access point"})
	require.Equal(t, nethttp.StatusOK, status)
	assert.Equal(t, "RESOLVED", decode[ticketBody](t, env.Data).Status)

	status, _ = s.do(t, nethttp.MethodPost, "/api/v1/tickets/"+created.ID+"/rating", "stu-1",
		map[string]any{"rating": 5})
	require.Equal(t, nethttp.StatusOK, status)
	status, env = s.do(t, nethttp.MethodPost, "/api/v1/tickets/"+created.ID+"/close", "stu-1", nil)
	require.Equal(t, nethttp.StatusOK, status)
	assert.Equal(t, "CLOSED", decode[ticketBody](t, env.Data).Status)

	status, env = s.do(t, nethttp.MethodGet, "/api/v1/tickets/"+created.ID+"/audit", "tech-1", nil)
	require.Equal(t, nethttp.StatusOK, status)
	entries := decode[[]map[string]any](t, env.Data)
	assert.Len(t, entries, 7)

	status, env = s.do(t, nethttp.MethodGet, "/api/v1/tickets/"+created.ID+"/audit/verify", "admin-1", nil)
	require.Equal(t, nethttp.StatusOK, status)
	assert.Equal(t, true, decode[map[string]any](t, env.Data)["valid"])
}

func TestCreateTicketValidation(t *testing.T) {
	s := newTestServer(t)

	status, env := s.do(t, nethttp.MethodPost, "/api/v1/tickets", "stu-1", map[string]any{
		"title":    "no",
		"category": "TOASTER",
	})

	assert.Equal(t, nethttp.StatusBadRequest, status)
	require.NotNil(t, env.Error)
	assert.Equal(t, "VALIDATION_FAILED", env.Error.Code)
	assert.Len(t, env.Error.Fields, 3)
}

func TestStaffRoutesRequireRole(t *testing.T) {
	s := newTestServer(t)
	status, env := s.do(t, nethttp.MethodPost, "/api/v1/tickets", "stu-1", createBody())
	require.Equal(t, nethttp.StatusCreated, status)
	created := decode[ticketBody](t, env.Data)

	status, _ = s.do(t, nethttp.MethodPost, "/api/v1/tickets/"+created.ID+"/escalate", "stu-1", nil)
	assert.Equal(t, nethttp.StatusForbidden, status)
	status, _ = s.do(t, nethttp.MethodGet, "/api/v1/tickets/"+created.ID+"/audit", "stu-1", nil)
	assert.Equal(t, nethttp.StatusForbidden, status)
	status, _ = s.do(t, nethttp.MethodPost, "/api/v1/escalations/sweep", "tech-1", nil)
	assert.Equal(t, nethttp.StatusForbidden, status)
	status, _ = s.do(t, nethttp.MethodDelete, "/api/v1/tickets/"+created.ID, "tech-1", nil)
	assert.Equal(t, nethttp.StatusForbidden, status)

	status, env = s.do(t, nethttp.MethodPost, "/api/v1/tickets/"+created.ID+"/escalate", "tech-1",
		map[string]any{"reason": "department head"})
	require.Equal(t, nethttp.StatusOK, status)
	escalated := decode[ticketBody](t, env.Data)
	assert.Equal(t, 1, escalated.Escalation.Level)
	assert.Equal(t, "CRITICAL", escalated.Priority)

	status, env = s.do(t, nethttp.MethodPost, "/api/v1/escalations/sweep", "admin-1", nil)
	require.Equal(t, nethttp.StatusOK, status)
	result := decode[map[string]any](t, env.Data)
	assert.Equal(t, float64(0), result["escalated"])

	status, _ = s.do(t, nethttp.MethodDelete, "/api/v1/tickets/"+created.ID, "admin-1", nil)
	assert.Equal(t, nethttp.StatusNoContent, status)
	status, env = s.do(t, nethttp.MethodGet, "/api/v1/tickets/"+created.ID, "admin-1", nil)
	assert.Equal(t, nethttp.StatusNotFound, status)
	require.NotNil(t, env.Error)
	assert.Equal(t, "NOT_FOUND", env.Error.Code)
}

func TestUnknownRouteKeepsStatus(t *testing.T) {
	s := newTestServer(t)

	status, env := s.do(t, nethttp.MethodGet, "/nowhere", "", nil)

	assert.Equal(t, nethttp.StatusNotFound, status)
	require.NotNil(t, env.Error)
	assert.Equal(t, "NOT_FOUND", env.Error.Code)
}

func TestWriteResponsesHideInternalComments(t *testing.T) {
	s := newTestServer(t)
	status, env := s.do(t, nethttp.MethodPost, "/api/v1/tickets", "stu-1", createBody())
	require.Equal(t, nethttp.StatusCreated, status)
	created := decode[ticketBody](t, env.Data)

	status, _ = s.do(t, nethttp.MethodPost, "/api/v1/tickets/"+created.ID+"/comments", "tech-1",
		map[string]any{"content": "Requester is on the VIP list", "internal": true})
	require.Equal(t, nethttp.StatusCreated, status)

	status, env = s.do(t, nethttp.MethodPost, "/api/v1/tickets/"+created.ID+"/status", "tech-1",
		map[string]any{"status": "IN_PROGRESS"})
	require.Equal(t, nethttp.StatusOK, status)
	require.Len(t, decode[ticketBody](t, env.Data).Comments, 1)

	status, env = s.do(t, nethttp.MethodPost, "/api/v1/tickets/"+created.ID+"/cancel", "stu-1",
		map[string]any{"reason": "fixed itself"})
	require.Equal(t, nethttp.StatusOK, status)
	cancelled := decode[ticketBody](t, env.Data)
	assert.Equal(t, "CANCELLED", cancelled.Status)
	for _, c := range cancelled.Comments {
		assert.False(t, c.Internal)
		assert.NotContains(t, c.Content, "VIP")
	}
}
