package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap/zaptest"

	"github.com/tdnguyen-dev/healthvoice/internal/auth"
)

func TestIssueProfileToken(t *testing.T) {
	t.Setenv("JWT_SECRET", "test-secret")
	t.Setenv("GATEWAY_ACCESS_KEY", "gateway-key")

	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/token",
		strings.NewReader(`{"profile_id":"profile-1","access_key":"gateway-key"}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()

	if err := issueProfileToken(e.NewContext(req, rec), zaptest.NewLogger(t)); err != nil {
		t.Fatalf("issueProfileToken failed: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp TokenResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Decoding response failed: %v", err)
	}

	claims, err := auth.ValidateToken(resp.Token)
	if err != nil {
		t.Fatalf("Issued token does not validate: %v", err)
	}
	if claims.ProfileID != "profile-1" || claims.Role != "profile" {
		t.Errorf("Unexpected claims: %+v", claims)
	}
}

func TestIssueProfileTokenRejectsBadKey(t *testing.T) {
	t.Setenv("JWT_SECRET", "test-secret")
	t.Setenv("GATEWAY_ACCESS_KEY", "gateway-key")

	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/token",
		strings.NewReader(`{"profile_id":"profile-1","access_key":"wrong"}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()

	if err := issueProfileToken(e.NewContext(req, rec), zaptest.NewLogger(t)); err != nil {
		t.Fatalf("issueProfileToken failed: %v", err)
	}
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("Expected 401, got %d", rec.Code)
	}
}

func TestIssueProfileTokenRequiresFields(t *testing.T) {
	t.Setenv("JWT_SECRET", "test-secret")
	t.Setenv("GATEWAY_ACCESS_KEY", "gateway-key")

	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/token",
		strings.NewReader(`{"profile_id":"profile-1"}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()

	if err := issueProfileToken(e.NewContext(req, rec), zaptest.NewLogger(t)); err != nil {
		t.Fatalf("issueProfileToken failed: %v", err)
	}
	if rec.Code != http.StatusBadRequest {
		t.Errorf("Expected 400, got %d", rec.Code)
	}
}

func TestWebsocketRejectsMissingToken(t *testing.T) {
	t.Setenv("JWT_SECRET", "test-secret")

	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/ws", nil)
	rec := httptest.NewRecorder()

	if err := websocketWithAuth(nil, e.NewContext(req, rec), zaptest.NewLogger(t)); err != nil {
		t.Fatalf("websocketWithAuth failed: %v", err)
	}
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("Expected 401, got %d", rec.Code)
	}
}

func TestWebsocketRejectsUserToken(t *testing.T) {
	t.Setenv("JWT_SECRET", "test-secret")

	token, err := auth.GenerateUserToken("user-1")
	if err != nil {
		t.Fatalf("GenerateUserToken failed: %v", err)
	}

	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/ws", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()

	if err := websocketWithAuth(nil, e.NewContext(req, rec), zaptest.NewLogger(t)); err != nil {
		t.Fatalf("websocketWithAuth failed: %v", err)
	}
	if rec.Code != http.StatusForbidden {
		t.Errorf("Expected 403, got %d", rec.Code)
	}
}
