package authhandler

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/zanzhit/securecam/internal/domain/errs"
	"github.com/zanzhit/securecam/internal/domain/models"
	"github.com/zanzhit/securecam/internal/domain/policy"
	authmiddleware "github.com/zanzhit/securecam/internal/http-server/middleware/auth"
	"github.com/zanzhit/securecam/internal/lib/validate"
)

type fakeSessions struct {
	email, password string
	device          *string
	loggedOut       string
	revoked         string
	lifetime        *int
}

func (f *fakeSessions) Login(_ context.Context, email, password string, device *string) (models.TokenPair, error) {
	f.email, f.password, f.device = email, password, device
	if password != "Secret1!" {
		return models.TokenPair{}, errs.ErrInvalidCredentials
	}

	return models.TokenPair{AccessToken: "access", RefreshToken: "refresh", TokenType: "bearer"}, nil
}

func (f *fakeSessions) Refresh(_ context.Context, token string) (models.TokenPair, error) {
	if token != "refresh" {
		return models.TokenPair{}, errs.ErrRefreshTokenInvalid
	}

	return models.TokenPair{AccessToken: "access2", RefreshToken: "refresh2", TokenType: "bearer"}, nil
}

func (f *fakeSessions) IssuePAT(_ context.Context, userID int64, name string, minutes *int) (models.TokenPair, models.PersonalAccessToken, error) {
	f.lifetime = minutes

	return models.TokenPair{AccessToken: "pat", TokenType: "bearer"},
		models.PersonalAccessToken{ID: "id", UserID: userID, Name: name},
		nil
}

func (f *fakeSessions) PATs(context.Context, int64) ([]models.PersonalAccessToken, error) {
	return nil, nil
}

func (f *fakeSessions) RevokePAT(_ context.Context, _ policy.Caller, id string) error {
	if id != "id" {
		return errs.ErrTokenNotFound
	}
	f.revoked = id

	return nil
}

func (f *fakeSessions) Logout(_ context.Context, token string, userID int64) error {
	if userID != 7 {
		return errs.ErrRefreshTokenInvalid
	}
	f.loggedOut = token

	return nil
}

func (f *fakeSessions) LogoutAll(context.Context, int64) (int64, error) {
	return 2, nil
}

func newHandler(s *fakeSessions) *AuthHandler {
	return New(slog.New(slog.NewTextHandler(io.Discard, nil)), s, validate.New())
}

func withUser(r *http.Request, id int64) *http.Request {
	ctx := authmiddleware.WithPrincipal(r.Context(), models.Principal{User: models.User{ID: id}})
	return r.WithContext(ctx)
}

func TestLoginForm(t *testing.T) {
	s := &fakeSessions{}
	h := newHandler(s)

	form := url.Values{"username": {"a@b.io"}, "password": {"Secret1!"}}
	req := httptest.NewRequest(http.MethodPost, "/auth/token", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("User-Agent", "phone")
	rec := httptest.NewRecorder()

	h.Login(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body)
	}

	var pair models.TokenPair
	if err := json.NewDecoder(rec.Body).Decode(&pair); err != nil {
		t.Fatal(err)
	}
	if pair.AccessToken != "access" || pair.RefreshToken != "refresh" || pair.TokenType != "bearer" {
		t.Fatalf("pair = %+v", pair)
	}
	if s.email != "a@b.io" || s.device == nil || *s.device != "phone" {
		t.Fatalf("login got %q device %v", s.email, s.device)
	}
}

func TestLoginJSON(t *testing.T) {
	h := newHandler(&fakeSessions{})

	req := httptest.NewRequest(http.MethodPost, "/auth/token", strings.NewReader(`{"username":"a@b.io","password":"nope"}`))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()

	h.Login(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d", rec.Code)
	}
	if rec.Header().Get("WWW-Authenticate") != "Bearer" {
		t.Fatal("missing WWW-Authenticate header")
	}
	if !strings.Contains(rec.Body.String(), errs.ErrInvalidCredentials.Error()) {
		t.Fatalf("body = %s", rec.Body)
	}
}

func TestLoginMissingFields(t *testing.T) {
	h := newHandler(&fakeSessions{})

	req := httptest.NewRequest(http.MethodPost, "/auth/token", strings.NewReader("username=a@b.io"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()

	h.Login(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "password") {
		t.Fatalf("body = %s", rec.Body)
	}
}

func TestRefresh(t *testing.T) {
	h := newHandler(&fakeSessions{})

	tests := []struct {
		name string
		body string
		want int
	}{
		{"valid", "refresh_token=refresh", http.StatusOK},
		{"unknown", "refresh_token=other", http.StatusUnauthorized},
		{"missing", "", http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/auth/refresh", strings.NewReader(tt.body))
			req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
			rec := httptest.NewRecorder()

			h.Refresh(rec, req)

			if rec.Code != tt.want {
				t.Fatalf("status = %d, want %d", rec.Code, tt.want)
			}
		})
	}
}

func TestLogout(t *testing.T) {
	s := &fakeSessions{}
	h := newHandler(s)

	req := httptest.NewRequest(http.MethodPost, "/auth/logout", strings.NewReader(`{"refresh_token":"refresh"}`))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()

	h.Logout(rec, withUser(req, 7))

	if rec.Code != http.StatusNoContent {
		t.Fatalf("status = %d", rec.Code)
	}
	if s.loggedOut != "refresh" {
		t.Fatalf("logged out %q", s.loggedOut)
	}

	req = httptest.NewRequest(http.MethodPost, "/auth/logout", strings.NewReader(`{"refresh_token":"refresh"}`))
	req.Header.Set("Content-Type", "application/json")
	rec = httptest.NewRecorder()

	h.Logout(rec, withUser(req, 8))

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("foreign token status = %d", rec.Code)
	}
}

func TestLogoutAll(t *testing.T) {
	h := newHandler(&fakeSessions{})

	rec := httptest.NewRecorder()
	h.LogoutAll(rec, withUser(httptest.NewRequest(http.MethodPost, "/auth/logout/all", nil), 7))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if strings.TrimSpace(rec.Body.String()) != `{"revoked":2}` {
		t.Fatalf("body = %s", rec.Body)
	}
}

func TestPATs(t *testing.T) {
	s := &fakeSessions{}
	h := newHandler(s)

	req := httptest.NewRequest(http.MethodPost, "/auth/pat", strings.NewReader(`{"name":"agent","lifetime_minutes":0}`))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()

	h.IssuePAT(rec, withUser(req, 7))

	if rec.Code != http.StatusCreated {
		t.Fatalf("issue status = %d, body %s", rec.Code, rec.Body)
	}
	if s.lifetime == nil || *s.lifetime != 0 {
		t.Fatalf("lifetime = %v", s.lifetime)
	}

	var resp PATResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	if resp.AccessToken != "pat" || resp.Token.Name != "agent" || resp.Token.UserID != 7 {
		t.Fatalf("resp = %+v", resp)
	}

	rec = httptest.NewRecorder()
	h.PATs(rec, withUser(httptest.NewRequest(http.MethodGet, "/auth/pat", nil), 7))

	if strings.TrimSpace(rec.Body.String()) != "[]" {
		t.Fatalf("list body = %s", rec.Body)
	}

	r := chi.NewRouter()
	r.Delete("/auth/pat/{id}", h.RevokePAT)

	for id, want := range map[string]int{"id": http.StatusNoContent, "other": http.StatusNotFound} {
		rec = httptest.NewRecorder()
		r.ServeHTTP(rec, withUser(httptest.NewRequest(http.MethodDelete, "/auth/pat/"+id, nil), 7))

		if rec.Code != want {
			t.Fatalf("revoke %s status = %d, want %d", id, rec.Code, want)
		}
	}
}
