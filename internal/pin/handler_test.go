package pin

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/famquest/backend/internal/middleware"
	"github.com/famquest/backend/internal/session"
)

type stubTokens struct {
	parentID uuid.UUID
}

func (s stubTokens) ValidateToken(_ context.Context, _ string) (uuid.UUID, error) {
	return s.parentID, nil
}

func newVerifyServer(t *testing.T, parent uuid.UUID) (http.Handler, *session.Manager) {
	t.Helper()
	svc := NewService(newMockCredStore(), testPolicy(), nil)
	if err := svc.SetupPin(context.Background(), parent, "1234"); err != nil {
		t.Fatalf("SetupPin: %v", err)
	}
	sessions := session.NewManager(5*time.Minute, 30*time.Second, nil)
	handler := NewHandler(svc, sessions, nil)

	mux := http.NewServeMux()
	auth := middleware.ParentAuth(stubTokens{parentID: parent})
	mux.Handle("POST /pin/verify", auth(http.HandlerFunc(handler.Verify)))
	return mux, sessions
}

func postVerify(t *testing.T, mux http.Handler, pin string) (*httptest.ResponseRecorder, VerifyResponse) {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/pin/verify", strings.NewReader(`{"pin":"`+pin+`"}`))
	req.Header.Set("Authorization", "Bearer token")
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	var resp VerifyResponse
	_ = json.Unmarshal(rec.Body.Bytes(), &resp)
	return rec, resp
}

func TestVerifyEndpoint_BeginsGraceSession(t *testing.T) {
	parent := uuid.New()
	mux, sessions := newVerifyServer(t, parent)

	rec, resp := postVerify(t, mux, "1234")
	if rec.Code != http.StatusOK {
		t.Fatalf("status: got %d, want 200", rec.Code)
	}
	if !resp.Granted || resp.SessionExpiresAt == nil {
		t.Errorf("response: got %+v", resp)
	}
	if !sessions.HasActive(parent) {
		t.Error("a granted verification must begin a grace session")
	}
}

func TestVerifyEndpoint_FailureReportsRemainingAttempts(t *testing.T) {
	parent := uuid.New()
	mux, sessions := newVerifyServer(t, parent)

	rec, resp := postVerify(t, mux, "0000")
	if rec.Code != http.StatusForbidden {
		t.Fatalf("status: got %d, want 403", rec.Code)
	}
	if resp.Granted || resp.RemainingAttempts == nil || *resp.RemainingAttempts != 2 {
		t.Errorf("response: got %+v", resp)
	}
	if sessions.HasActive(parent) {
		t.Error("a denied verification must not begin a session")
	}
}

func TestVerifyEndpoint_LockoutReportsLockedUntil(t *testing.T) {
	parent := uuid.New()
	mux, sessions := newVerifyServer(t, parent)

	postVerify(t, mux, "0000")
	postVerify(t, mux, "0000")
	rec, resp := postVerify(t, mux, "0000")
	if rec.Code != http.StatusForbidden {
		t.Fatalf("status: got %d, want 403", rec.Code)
	}
	if resp.LockedUntil == nil {
		t.Fatalf("response should carry locked_until: %+v", resp)
	}

	// The correct PIN is refused while locked.
	rec, resp = postVerify(t, mux, "1234")
	if rec.Code != http.StatusForbidden || resp.LockedUntil == nil {
		t.Errorf("locked verify: status %d, resp %+v", rec.Code, resp)
	}
	if sessions.HasActive(parent) {
		t.Error("no session may begin during a lockout")
	}
}
