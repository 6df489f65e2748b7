package auth

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	testSecret = "unit-test-secret"
	testIssuer = "greenmiles.identity"
)

func signToken(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(testSecret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return signed
}

func baseClaims() jwt.MapClaims {
	return jwt.MapClaims{
		"sub":    "user-1",
		"iss":    testIssuer,
		"exp":    time.Now().Add(time.Hour).Unix(),
		"scopes": []string{ScopeActivitiesWrite, ScopeProfileRead},
	}
}

func TestParseValidToken(t *testing.T) {
	token := signToken(t, baseClaims())

	claims, err := Parse(token, Config{Secret: testSecret, Issuer: testIssuer})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if claims.Subject != "user-1" {
		t.Fatalf("expected subject user-1, got %q", claims.Subject)
	}
	if !claims.HasScope(ScopeActivitiesWrite) {
		t.Fatal("expected activities:write scope")
	}
	if claims.HasScope(ScopeProfileWrite) {
		t.Fatal("profile:write must not be granted")
	}
}

func TestParseScopesFromSpaceSeparatedString(t *testing.T) {
	mapClaims := baseClaims()
	mapClaims["scopes"] = "activities:read  profile:read"
	token := signToken(t, mapClaims)

	claims, err := Parse(token, Config{Secret: testSecret, Issuer: testIssuer})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !claims.HasScope(ScopeActivitiesRead) || !claims.HasScope(ScopeProfileRead) {
		t.Fatalf("scopes not normalized: %v", claims.Scopes)
	}
}

func TestParseRejectsWrongSecret(t *testing.T) {
	token := signToken(t, baseClaims())

	_, err := Parse(token, Config{Secret: "other-secret", Issuer: testIssuer})
	if !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
}

func TestParseRejectsWrongIssuer(t *testing.T) {
	mapClaims := baseClaims()
	mapClaims["iss"] = "someone-else"
	token := signToken(t, mapClaims)

	_, err := Parse(token, Config{Secret: testSecret, Issuer: testIssuer})
	if !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
}

func TestParseRejectsExpiredToken(t *testing.T) {
	mapClaims := baseClaims()
	mapClaims["exp"] = time.Now().Add(-time.Minute).Unix()
	token := signToken(t, mapClaims)

	_, err := Parse(token, Config{Secret: testSecret, Issuer: testIssuer})
	if !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
}

func TestParseRejectsMissingSubject(t *testing.T) {
	mapClaims := baseClaims()
	delete(mapClaims, "sub")
	token := signToken(t, mapClaims)

	_, err := Parse(token, Config{Secret: testSecret, Issuer: testIssuer})
	if !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
}

func TestParseEmptyToken(t *testing.T) {
	_, err := Parse("  ", Config{Secret: testSecret, Issuer: testIssuer})
	if !errors.Is(err, ErrMissingToken) {
		t.Fatalf("expected ErrMissingToken, got %v", err)
	}
}

func TestMiddlewareInjectsClaims(t *testing.T) {
	token := signToken(t, baseClaims())
	middleware := NewMiddleware(Config{Secret: testSecret, Issuer: testIssuer}, nil)

	var gotSubject string
	handler := middleware.Wrap(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, ok := FromContext(r.Context())
		if !ok {
			t.Fatal("claims missing from context")
		}
		gotSubject = claims.Subject
	}))

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/v1/activities", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if gotSubject != "user-1" {
		t.Fatalf("expected subject user-1, got %q", gotSubject)
	}
}

func TestMiddlewareRejectsMissingHeader(t *testing.T) {
	middleware := NewMiddleware(Config{Secret: testSecret, Issuer: testIssuer}, nil)
	handler := middleware.Wrap(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler must not run without a token")
	}))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/v1/activities", nil))

	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rr.Code)
	}
}

func TestMiddlewareSkipperBypassesAuth(t *testing.T) {
	middleware := NewMiddleware(Config{Secret: testSecret, Issuer: testIssuer}, func(r *http.Request) bool {
		return r.URL.Path == "/healthz"
	})

	called := false
	handler := middleware.Wrap(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	if !called {
		t.Fatal("skipper route must bypass authentication")
	}
}
