package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const testSecret = "test-secret"

func authRequest(t *testing.T, header string) *httptest.ResponseRecorder {
	t.Helper()
	called := false
	handler := Auth(testSecret)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	req := httptest.NewRequest(http.MethodGet, "/v1/generations", nil)
	if header != "" {
		req.Header.Set("Authorization", header)
	}
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	if rr.Code == http.StatusOK && !called {
		t.Fatalf("handler not called despite 200")
	}
	return rr
}

func TestAuthRejectsMissingHeader(t *testing.T) {
	if rr := authRequest(t, ""); rr.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want %d", rr.Code, http.StatusUnauthorized)
	}
}

func TestAuthRejectsWrongScheme(t *testing.T) {
	if rr := authRequest(t, "Basic dXNlcjpwYXNz"); rr.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want %d", rr.Code, http.StatusUnauthorized)
	}
}

func TestAuthRejectsBadSignature(t *testing.T) {
	token, err := SignToken("some-other-secret", "user-1", "", time.Hour)
	if err != nil {
		t.Fatalf("SignToken: %v", err)
	}
	if rr := authRequest(t, "Bearer "+token); rr.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want %d", rr.Code, http.StatusUnauthorized)
	}
}

func TestAuthRejectsExpiredToken(t *testing.T) {
	token, err := SignToken(testSecret, "user-1", "", -time.Minute)
	if err != nil {
		t.Fatalf("SignToken: %v", err)
	}
	if rr := authRequest(t, "Bearer "+token); rr.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want %d", rr.Code, http.StatusUnauthorized)
	}
}

func TestVerifyTokenRejectsForeignSigningMethod(t *testing.T) {
	claims := Claims{RegisteredClaims: jwt.RegisteredClaims{
		Subject:   "user-1",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS384, claims).SignedString([]byte(testSecret))
	if err != nil {
		t.Fatalf("sign HS384: %v", err)
	}
	if _, err := VerifyToken(testSecret, token); err == nil {
		t.Fatalf("expected rejection of non-HS256 token")
	}
}

func TestVerifyTokenRejectsMissingSubject(t *testing.T) {
	token, err := SignToken(testSecret, "", "", time.Hour)
	if err != nil {
		t.Fatalf("SignToken: %v", err)
	}
	if _, err := VerifyToken(testSecret, token); err == nil {
		t.Fatalf("expected rejection of subject-less token")
	}
}

func TestAuthStoresIdentityAndLocale(t *testing.T) {
	token, err := SignToken(testSecret, "user-42", "id", time.Hour)
	if err != nil {
		t.Fatalf("SignToken: %v", err)
	}

	var gotUser, gotLocale string
	handler := Auth(testSecret)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUser = UserIDFromContext(r.Context())
		gotLocale = LocaleFromContext(r.Context())
	}))
	req := httptest.NewRequest(http.MethodGet, "/v1/generations", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rr.Code, http.StatusOK)
	}
	if gotUser != "user-42" {
		t.Fatalf("user id in context = %q, want %q", gotUser, "user-42")
	}
	if gotLocale != "id" {
		t.Fatalf("locale in context = %q, want %q", gotLocale, "id")
	}
}

func TestTokenLocaleOverridesDetected(t *testing.T) {
	token, err := SignToken(testSecret, "user-42", "id", time.Hour)
	if err != nil {
		t.Fatalf("SignToken: %v", err)
	}

	var gotLocale string
	chain := Locale("en", nil)(Auth(testSecret)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotLocale = LocaleFromContext(r.Context())
	})))
	req := httptest.NewRequest(http.MethodGet, "/v1/generations", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept-Language", "de-DE,de;q=0.9")
	chain.ServeHTTP(httptest.NewRecorder(), req)

	if gotLocale != "id" {
		t.Fatalf("locale = %q, want token claim %q to win over Accept-Language", gotLocale, "id")
	}
}
