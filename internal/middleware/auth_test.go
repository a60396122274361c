package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestTokensRoundTrip(t *testing.T) {
	tokens := NewTokens("test-secret")

	raw, err := tokens.Generate("u1", "ama@knust.edu.gh")
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	claims, err := tokens.Validate(raw)
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if claims.UserID != "u1" || claims.Email != "ama@knust.edu.gh" {
		t.Fatalf("claims = %+v", claims)
	}
	if claims.ExpiresAt == nil || !claims.ExpiresAt.After(claims.IssuedAt.Time) {
		t.Fatalf("expiry not set: %+v", claims.RegisteredClaims)
	}
}

func TestTokensRejectBadInput(t *testing.T) {
	tokens := NewTokens("test-secret")
	raw, err := tokens.Generate("u1", "ama@knust.edu.gh")
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}

	t.Run("tampered token", func(t *testing.T) {
		if _, err := tokens.Validate(raw + "x"); err == nil {
			t.Fatal("tampered token accepted")
		}
	})

	t.Run("garbage", func(t *testing.T) {
		if _, err := tokens.Validate("not-a-token"); err == nil {
			t.Fatal("garbage accepted")
		}
	})

	t.Run("different secret", func(t *testing.T) {
		other := NewTokens("other-secret")
		if _, err := other.Validate(raw); err == nil {
			t.Fatal("token signed with another secret accepted")
		}
	})
}

func TestJWTAuth(t *testing.T) {
	tokens := NewTokens("test-secret")
	raw, err := tokens.Generate("u1", "ama@knust.edu.gh")
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}

	var sawUserID string
	h := JWTAuth(tokens)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sawUserID = GetUserID(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	t.Run("missing token", func(t *testing.T) {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/users/me", nil))
		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("status = %d, want 401", rec.Code)
		}
	})

	t.Run("invalid token", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/users/me", nil)
		req.Header.Set("Authorization", "Bearer nope")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("status = %d, want 401", rec.Code)
		}
	})

	t.Run("authorization header", func(t *testing.T) {
		sawUserID = ""
		req := httptest.NewRequest(http.MethodGet, "/api/users/me", nil)
		req.Header.Set("Authorization", "Bearer "+raw)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d, want 200", rec.Code)
		}
		if sawUserID != "u1" {
			t.Fatalf("user id in context = %q, want u1", sawUserID)
		}
	})

	t.Run("token query parameter", func(t *testing.T) {
		sawUserID = ""
		req := httptest.NewRequest(http.MethodGet, "/ws?token="+raw, nil)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d, want 200", rec.Code)
		}
		if sawUserID != "u1" {
			t.Fatalf("user id in context = %q, want u1", sawUserID)
		}
	})
}
