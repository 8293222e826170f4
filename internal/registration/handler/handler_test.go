package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/suite"

	"gatehouse/internal/platform/config"
	"gatehouse/internal/registration"
	"gatehouse/internal/registration/models"
	"gatehouse/internal/user"
	"gatehouse/pkg/domain"
)

type stubDispatcher struct {
	confirmations int
}

func (d *stubDispatcher) TriggerEmailConfirmation(context.Context, *models.PersistedUser) error {
	d.confirmations++
	return nil
}

func (d *stubDispatcher) TriggerCompletionActions(context.Context, *models.PersistedUser) (string, error) {
	return "", nil
}

type HandlerSuite struct {
	suite.Suite

	users      *user.MemoryStore
	dispatcher *stubDispatcher
	router     chi.Router
}

func (s *HandlerSuite) SetupTest() {
	s.users = user.NewMemoryStore()
	s.dispatcher = &stubDispatcher{}

	cfg := config.Registration{
		EmailConfirmation: true,
		UsernameMinLength: 3,
		UsernameMaxLength: 50,
	}
	deps := registration.Deps{
		Users:      s.users,
		Dispatcher: s.dispatcher,
	}
	h := New(deps, cfg, newTestLogger(),
		WithEmailConfirmation(s.users, func(token string, _ time.Time) (string, error) {
			if token == "valid-token" {
				return "1", nil
			}
			return "", fmt.Errorf("bad token")
		}),
	)

	s.router = chi.NewRouter()
	h.Register(s.router)
}

func (s *HandlerSuite) register(body any) *httptest.ResponseRecorder {
	payload, err := json.Marshal(body)
	s.Require().NoError(err)

	req := httptest.NewRequest(http.MethodPost, "/register", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func (s *HandlerSuite) validBody() map[string]any {
	return map[string]any{
		"username":         "newmember",
		"email":            "new@example.com",
		"password":         "hunter2hunter2",
		"password_confirm": "hunter2hunter2",
		"timezone":         "America/New_York",
	}
}

func (s *HandlerSuite) TestRegisterCreated() {
	rec := s.register(s.validBody())
	s.Require().Equal(http.StatusCreated, rec.Code, rec.Body.String())

	var resp RegisterResponse
	s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), &resp))
	s.Equal("newmember", resp.Username)
	s.Equal(domain.UserStateEmailConfirm, resp.State)
	s.True(resp.ConfirmationRequired)
	s.Equal(1, s.dispatcher.confirmations)
	s.NotNil(s.users.Get(resp.UserID))
}

func (s *HandlerSuite) TestRegisterValidationErrors() {
	body := s.validBody()
	body["username"] = "ab"
	body["email"] = "nope"

	rec := s.register(body)
	s.Require().Equal(http.StatusUnprocessableEntity, rec.Code)

	var resp struct {
		Errors []struct {
			Field   string `json:"field"`
			Message string `json:"message"`
		} `json:"errors"`
	}
	s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), &resp))

	fields := map[string]bool{}
	for _, e := range resp.Errors {
		fields[e.Field] = true
	}
	s.True(fields["username"])
	s.True(fields["email"])
	s.Equal(0, s.users.Count(), "nothing persisted on validation failure")
}

func (s *HandlerSuite) TestRegisterConflict() {
	s.Require().Equal(http.StatusCreated, s.register(s.validBody()).Code)

	rec := s.register(s.validBody())
	s.Equal(http.StatusConflict, rec.Code)
}

func (s *HandlerSuite) TestRegisterMalformedBody() {
	req := httptest.NewRequest(http.MethodPost, "/register", bytes.NewReader([]byte("{not json")))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	s.Equal(http.StatusBadRequest, rec.Code)
}

func (s *HandlerSuite) TestRegisterRejectsNonJSONContentType() {
	req := httptest.NewRequest(http.MethodPost, "/register", bytes.NewReader([]byte("a=b")))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	s.Equal(http.StatusUnsupportedMediaType, rec.Code)
}

func (s *HandlerSuite) TestConfirmEmail() {
	s.Require().Equal(http.StatusCreated, s.register(s.validBody()).Code)

	confirm := func(token string) *httptest.ResponseRecorder {
		target := "/confirm-email"
		if token != "" {
			target += "?token=" + token
		}
		req := httptest.NewRequest(http.MethodGet, target, nil)
		rec := httptest.NewRecorder()
		s.router.ServeHTTP(rec, req)
		return rec
	}

	s.Run("valid token promotes the account", func() {
		rec := confirm("valid-token")
		s.Equal(http.StatusNoContent, rec.Code, rec.Body.String())
		s.Equal(domain.UserStateValid, s.users.Get(1).State)
	})

	s.Run("repeat confirmation conflicts", func() {
		s.Equal(http.StatusConflict, confirm("valid-token").Code)
	})

	s.Run("invalid token", func() {
		s.Equal(http.StatusBadRequest, confirm("garbage").Code)
	})

	s.Run("missing token", func() {
		s.Equal(http.StatusBadRequest, confirm("").Code)
	})
}

func (s *HandlerSuite) TestRequestIDHeader() {
	rec := s.register(s.validBody())
	s.NotEmpty(rec.Header().Get("X-Request-ID"))
}

func TestHandlerSuite(t *testing.T) {
	suite.Run(t, new(HandlerSuite))
}

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
