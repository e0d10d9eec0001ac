package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"

	"github.com/atria-app/backend/internal/auth"
)

type mockAuthService struct {
	identities map[string]*auth.Identity
}

func (m *mockAuthService) Register(context.Context, string, string, string, string, *uuid.UUID) (*auth.Account, error) {
	return nil, errors.New("not implemented")
}

func (m *mockAuthService) Login(context.Context, string, string) (string, error) {
	return "", errors.New("not implemented")
}

func (m *mockAuthService) ValidateToken(_ context.Context, token string) (*auth.Identity, error) {
	id, ok := m.identities[token]
	if !ok {
		return nil, errors.New("invalid token")
	}
	return id, nil
}

func okHandler(captured **auth.Identity) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if captured != nil {
			*captured = IdentityFromCtx(r.Context())
		}
		w.WriteHeader(http.StatusOK)
	})
}

func TestRequireAuthSetsIdentity(t *testing.T) {
	want := &auth.Identity{AccountID: uuid.New(), Role: auth.RoleOperator}
	svc := &mockAuthService{identities: map[string]*auth.Identity{"good-token": want}}

	var got *auth.Identity
	handler := RequireAuth(svc)(okHandler(&got))

	req := httptest.NewRequest(http.MethodGet, "/v1/jobs", nil)
	req.Header.Set("Authorization", "Bearer good-token")
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rr.Code)
	}
	if got == nil || got.AccountID != want.AccountID {
		t.Fatalf("identity in context = %+v, want %+v", got, want)
	}
}

func TestRequireAuthRejectsMissingOrBadToken(t *testing.T) {
	svc := &mockAuthService{identities: map[string]*auth.Identity{}}
	handler := RequireAuth(svc)(okHandler(nil))

	for _, header := range []string{"", "Bearer nope", "Basic abc"} {
		req := httptest.NewRequest(http.MethodGet, "/v1/jobs", nil)
		if header != "" {
			req.Header.Set("Authorization", header)
		}
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)
		if rr.Code != http.StatusUnauthorized {
			t.Errorf("header %q: status = %d, want 401", header, rr.Code)
		}
	}
}

func TestRequireRole(t *testing.T) {
	providerID := uuid.New()
	handler := RequireRole(auth.RoleProvider)(okHandler(nil))

	req := httptest.NewRequest(http.MethodGet, "/v1/wallet", nil)
	req = req.WithContext(WithIdentity(req.Context(), &auth.Identity{
		AccountID: uuid.New(), Role: auth.RoleProvider, ProviderID: &providerID,
	}))
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Errorf("provider: status = %d, want 200", rr.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/v1/wallet", nil)
	req = req.WithContext(WithIdentity(req.Context(), &auth.Identity{
		AccountID: uuid.New(), Role: auth.RoleOperator,
	}))
	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	if rr.Code != http.StatusForbidden {
		t.Errorf("operator: status = %d, want 403", rr.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/v1/wallet", nil)
	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	if rr.Code != http.StatusForbidden {
		t.Errorf("anonymous: status = %d, want 403", rr.Code)
	}
}
