package platform

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/minato/clinicport/internal/logger"
	"github.com/minato/clinicport/internal/model"
)

// newTestAuthClient はhttptestサーバーに向けたAuthClientを生成する。
func newTestAuthClient(t *testing.T, handler http.HandlerFunc) *AuthClient {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	log := logger.Setup(io.Discard)
	client := NewClient(server.URL, "test-anon-key", server.Client(), log, nil)
	return NewAuthClient(client, log)
}

func TestAuthClient_SignInWithPassword_Success(t *testing.T) {
	auth := newTestAuthClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/auth/v1/token" || r.URL.Query().Get("grant_type") != "password" {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL)
		}
		if r.Header.Get("apikey") != "test-anon-key" {
			t.Error("apikey header missing")
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"access_token": "at-1",
			"refresh_token": "rt-1",
			"expires_in": 3600,
			"user": {"id": "user-1", "email": "a@b.com"}
		}`))
	})

	session, err := auth.SignInWithPassword(context.Background(), "a@b.com", "secret")
	if err != nil {
		t.Fatalf("SignInWithPassword returned error: %v", err)
	}
	if session.AccessToken != "at-1" || session.RefreshToken != "rt-1" {
		t.Errorf("unexpected tokens: %+v", session)
	}
	if session.Identity.ID != "user-1" || session.Identity.Email != "a@b.com" {
		t.Errorf("unexpected identity: %+v", session.Identity)
	}
	if session.ExpiresAt.IsZero() {
		t.Error("expected non-zero expiry")
	}
}

func TestAuthClient_SignInWithPassword_InvalidCredentials(t *testing.T) {
	auth := newTestAuthClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error_description": "Invalid login credentials"}`))
	})

	_, err := auth.SignInWithPassword(context.Background(), "a@b.com", "wrong")
	var apiErr *model.APIError
	if !errors.As(err, &apiErr) || apiErr.Code != model.ErrCodeInvalidCredentials {
		t.Errorf("expected INVALID_CREDENTIALS, got %v", err)
	}
}

func TestAuthClient_SignInWithPassword_ServerDown_NetworkError(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	server.Close()

	log := logger.Setup(io.Discard)
	client := NewClient(server.URL, "key", &http.Client{}, log, nil)
	auth := NewAuthClient(client, log)

	_, err := auth.SignInWithPassword(context.Background(), "a@b.com", "secret")
	var apiErr *model.APIError
	if !errors.As(err, &apiErr) || apiErr.Code != model.ErrCodeNetworkError {
		t.Errorf("expected NETWORK_ERROR, got %v", err)
	}
}

func TestAuthClient_SignUp_EmailTaken(t *testing.T) {
	auth := newTestAuthClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		w.Write([]byte(`{"error_code": "user_already_exists", "msg": "User already registered"}`))
	})

	_, err := auth.SignUp(context.Background(), "taken@b.com", "pw")
	var apiErr *model.APIError
	if !errors.As(err, &apiErr) || apiErr.Code != model.ErrCodeEmailAlreadyRegistered {
		t.Errorf("expected EMAIL_ALREADY_REGISTERED, got %v", err)
	}
}

func TestAuthClient_SignUp_Success(t *testing.T) {
	auth := newTestAuthClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/auth/v1/signup" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		w.Write([]byte(`{
			"access_token": "at-new",
			"refresh_token": "rt-new",
			"expires_in": 3600,
			"user": {"id": "user-new", "email": "new@b.com"}
		}`))
	})

	session, err := auth.SignUp(context.Background(), "new@b.com", "pw")
	if err != nil {
		t.Fatalf("SignUp returned error: %v", err)
	}
	if session.Identity.ID != "user-new" {
		t.Errorf("unexpected identity: %+v", session.Identity)
	}
}

func TestAuthClient_Refresh_ExpiredToken_NotAuthenticated(t *testing.T) {
	auth := newTestAuthClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error_description": "Invalid Refresh Token"}`))
	})

	_, err := auth.Refresh(context.Background(), "stale-token")
	var apiErr *model.APIError
	if !errors.As(err, &apiErr) || apiErr.Code != model.ErrCodeNotAuthenticated {
		t.Errorf("expected NOT_AUTHENTICATED, got %v", err)
	}
}

func TestAuthClient_Refresh_RotatesTokens(t *testing.T) {
	auth := newTestAuthClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("grant_type") != "refresh_token" {
			t.Errorf("unexpected grant_type: %s", r.URL.Query().Get("grant_type"))
		}
		w.Write([]byte(`{
			"access_token": "at-2",
			"refresh_token": "rt-2",
			"expires_in": 3600,
			"user": {"id": "user-1", "email": "a@b.com"}
		}`))
	})

	session, err := auth.Refresh(context.Background(), "rt-1")
	if err != nil {
		t.Fatalf("Refresh returned error: %v", err)
	}
	if session.RefreshToken != "rt-2" {
		t.Errorf("expected rotated refresh token rt-2, got %s", session.RefreshToken)
	}
}

func TestAuthClient_ParseTokenResponse_MissingTokens(t *testing.T) {
	auth := newTestAuthClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"access_token": ""}`))
	})

	_, err := auth.SignInWithPassword(context.Background(), "a@b.com", "secret")
	var apiErr *model.APIError
	if !errors.As(err, &apiErr) || apiErr.Code != model.ErrCodeNetworkError {
		t.Errorf("expected NETWORK_ERROR for incomplete response, got %v", err)
	}
}
