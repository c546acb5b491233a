package http_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	nethttp "net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/m-mizutani/gt"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	httptransport "github.com/spec-kit/ticket-lifecycle/internal/api/http"
	"github.com/spec-kit/ticket-lifecycle/internal/api/http/handlers"
	"github.com/spec-kit/ticket-lifecycle/internal/auth"
	"github.com/spec-kit/ticket-lifecycle/internal/config"
	"github.com/spec-kit/ticket-lifecycle/internal/domain"
	"github.com/spec-kit/ticket-lifecycle/internal/observability"
	"github.com/spec-kit/ticket-lifecycle/internal/repository/memory"
	"github.com/spec-kit/ticket-lifecycle/internal/service"
)

type testServer struct {
	app      *fiber.App
	store    *memory.Store
	customer *domain.Customer
	area     *domain.Area
	tokens   map[string]string
	ids      map[string]int64
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	ctx := context.Background()
	store := memory.New()
	metrics := observability.NewMetrics()

	authService := service.NewAuthService(config.AuthConfig{
		JWTSecret:             "test-secret",
		AccessTokenTTLMinutes: 5,
		BcryptCost:            bcrypt.MinCost,
	}, service.AuthDependencies{EmployeeRepo: store.Employees(), AreaRepo: store.Areas()})

	srv := &testServer{store: store, tokens: map[string]string{}, ids: map[string]int64{}}
	srv.area = &domain.Area{Name: "billing"}
	gt.NoError(t, store.Areas().Create(ctx, srv.area)).Required()
	srv.customer = &domain.Customer{Name: "Ana", Email: "ana@example.com"}
	gt.NoError(t, store.Customers().Create(ctx, srv.customer)).Required()

	phone := domain.ChannelPhone
	for name, input := range map[string]service.RegisterEmployeeInput{
		"front":     {Role: domain.RoleFrontline, Channel: &phone},
		"back":      {Role: domain.RoleBackoffice, AreaIDs: []int64{srv.area.ID}},
		"oversight": {Role: domain.RoleOversight},
	} {
		input.Name = name
		input.Email = name + "@example.com"
		input.Password = "password-" + name
		employee, err := authService.RegisterEmployee(ctx, input)
		gt.NoError(t, err).Required()
		srv.ids[name] = employee.ID
	}

	lifecycle := service.NewLifecycleService(service.LifecycleDependencies{Store: store, Metrics: metrics})

	srv.app = fiber.New()
	httptransport.RegisterMiddlewares(srv.app, zap.NewNop(), metrics, 0)
	httptransport.RegisterRoutes(srv.app, httptransport.RouteConfig{
		Health:         handlers.NewHealthHandler("ticket-lifecycle", "test", map[string]handlers.Pinger{"redis": nil}, metrics),
		Auth:           handlers.NewAuthHandler(authService),
		Tickets:        handlers.NewTicketsHandler(lifecycle),
		AuthMiddleware: auth.NewAuthMiddleware(authService.TokenManager(), store.Employees()),
	})

	for name := range srv.ids {
		status, body := srv.do(t, "", nethttp.MethodPost, "/auth/login", map[string]string{
			"email": name + "@example.com", "password": "password-" + name,
		})
		gt.Value(t, status).Equal(nethttp.StatusOK).Required()
		var resp struct {
			Data struct {
				Auth struct {
					Token string `json:"token"`
				} `json:"auth"`
			} `json:"data"`
		}
		gt.NoError(t, json.Unmarshal(body, &resp)).Required()
		srv.tokens[name] = resp.Data.Auth.Token
	}
	return srv
}

func (s *testServer) do(t *testing.T, as, method, path string, payload any) (int, []byte) {
	t.Helper()
	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		gt.NoError(t, err).Required()
		body = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, body)
	req.Header.Set("Content-Type", "application/json")
	if as != "" {
		req.Header.Set("Authorization", "Bearer "+s.tokens[as])
	}
	resp, err := s.app.Test(req, -1)
	gt.NoError(t, err).Required()
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	gt.NoError(t, err).Required()
	return resp.StatusCode, raw
}

type errorBody struct {
	Error struct {
		Code string `json:"code"`
	} `json:"error"`
}

func errorCode(t *testing.T, body []byte) string {
	t.Helper()
	var resp errorBody
	gt.NoError(t, json.Unmarshal(body, &resp)).Required()
	return resp.Error.Code
}

func TestTicketLifecycleOverHTTP(t *testing.T) {
	srv := newTestServer(t)

	status, body := srv.do(t, "front", nethttp.MethodPost, "/tickets", map[string]any{
		"type": "REQUEST", "channel": "PHONE", "subject": "no signal", "customer_id": srv.customer.ID,
	})
	gt.Value(t, status).Equal(nethttp.StatusCreated).Required()
	var created struct {
		Data service.CreateResult `json:"data"`
	}
	gt.NoError(t, json.Unmarshal(body, &created)).Required()
	gt.Value(t, created.Data.State).Equal(domain.TicketStateOpen)
	ticketPath := "/tickets/" + strconv.FormatInt(created.Data.TicketID, 10)

	status, body = srv.do(t, "front", nethttp.MethodPost, "/tickets", map[string]any{
		"type": "REQUEST", "channel": "IN_PERSON", "subject": "walk-in", "customer_id": srv.customer.ID,
	})
	gt.Value(t, status).Equal(nethttp.StatusUnprocessableEntity)
	gt.Value(t, errorCode(t, body)).Equal("CHANNEL_MISMATCH")

	status, _ = srv.do(t, "front", nethttp.MethodPost, ticketPath+"/escalate", map[string]any{"area_id": srv.area.ID})
	gt.Value(t, status).Equal(nethttp.StatusOK).Required()

	status, body = srv.do(t, "oversight", nethttp.MethodGet, ticketPath+"/assignments", nil)
	gt.Value(t, status).Equal(nethttp.StatusOK).Required()
	var chain struct {
		Data struct {
			Verified    bool `json:"verified"`
			Assignments []struct {
				HolderID *int64 `json:"holder_id"`
				ParentID *int64 `json:"parent_id"`
			} `json:"assignments"`
		} `json:"data"`
	}
	gt.NoError(t, json.Unmarshal(body, &chain)).Required()
	gt.Bool(t, chain.Data.Verified).True()
	gt.Array(t, chain.Data.Assignments).Length(2).Required()
	gt.Value(t, *chain.Data.Assignments[0].HolderID).Equal(srv.ids["back"])

	t.Run("oversight may not mutate", func(t *testing.T) {
		status, body := srv.do(t, "oversight", nethttp.MethodPost, ticketPath+"/close", nil)
		gt.Value(t, status).Equal(nethttp.StatusForbidden)
		gt.Value(t, errorCode(t, body)).Equal("FORBIDDEN")
	})

	status, _ = srv.do(t, "back", nethttp.MethodPost, ticketPath+"/close", nil)
	gt.Value(t, status).Equal(nethttp.StatusOK).Required()

	status, body = srv.do(t, "back", nethttp.MethodPost, ticketPath+"/close", nil)
	gt.Value(t, status).Equal(nethttp.StatusConflict)
	gt.Value(t, errorCode(t, body)).Equal("INVALID_TRANSITION")

	status, body = srv.do(t, "oversight", nethttp.MethodGet, ticketPath, nil)
	gt.Value(t, status).Equal(nethttp.StatusOK).Required()
	var ticket struct {
		Data struct {
			State    domain.TicketState `json:"state"`
			ClosedBy *int64             `json:"closed_by"`
		} `json:"data"`
	}
	gt.NoError(t, json.Unmarshal(body, &ticket)).Required()
	gt.Value(t, ticket.Data.State).Equal(domain.TicketStateClosed)
	gt.Value(t, *ticket.Data.ClosedBy).Equal(srv.ids["back"])
}

func TestAuthAndProbes(t *testing.T) {
	srv := newTestServer(t)

	status, body := srv.do(t, "", nethttp.MethodGet, "/tickets", nil)
	gt.Value(t, status).Equal(nethttp.StatusUnauthorized)
	gt.Value(t, errorCode(t, body)).Equal("UNAUTHORIZED")

	status, _ = srv.do(t, "", nethttp.MethodPost, "/auth/login", map[string]string{
		"email": "front@example.com", "password": "nope",
	})
	gt.Value(t, status).Equal(nethttp.StatusUnauthorized)

	status, _ = srv.do(t, "", nethttp.MethodGet, "/health/ready", nil)
	gt.Value(t, status).Equal(nethttp.StatusOK)

	status, body = srv.do(t, "front", nethttp.MethodGet, "/nowhere", nil)
	gt.Value(t, status).Equal(nethttp.StatusNotFound)
	gt.Value(t, errorCode(t, body)).Equal("NOT_FOUND")

	status, body = srv.do(t, "front", nethttp.MethodGet, "/tickets/abc", nil)
	gt.Value(t, status).Equal(nethttp.StatusBadRequest)
	gt.Value(t, errorCode(t, body)).Equal("VALIDATION_FAILED")

	status, body = srv.do(t, "", nethttp.MethodGet, "/metrics", nil)
	gt.Value(t, status).Equal(nethttp.StatusOK).Required()
	var snap observability.Snapshot
	gt.NoError(t, json.Unmarshal(body, &snap)).Required()
	gt.Value(t, snap.Errors["/tickets|GET|UNAUTHORIZED"]).Equal(int64(1))
}
