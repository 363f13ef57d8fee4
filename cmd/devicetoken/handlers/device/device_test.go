package device

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/go-cmp/cmp"
	clocktesting "k8s.io/utils/clock/testing"

	"github.com/wrale/devicetoken/cmd/devicetoken/handlers/common"
	"github.com/wrale/devicetoken/internal/deviceflow"
	"github.com/wrale/devicetoken/internal/deviceflow/deviceflowtest"
	"github.com/wrale/devicetoken/internal/session"
)

const (
	teamsClientID = "1fec8e78-bce4-4aaf-ab1b-5451cc387264"
	unknownID     = "9b2f6c1e-3d4a-4f5b-8c6d-7e8f9a0b1c2d"
)

type fixture struct {
	router   http.Handler
	registry *session.Registry
	clock    *clocktesting.FakeClock
}

func newFixture(t *testing.T, p *deviceflowtest.Provider, opts ...session.Option) *fixture {
	t.Helper()
	clk := clocktesting.NewFakeClock(time.Date(2026, 10, 17, 9, 0, 0, 0, time.UTC))
	reg := session.NewRegistry(func() *deviceflow.Engine {
		return deviceflow.NewEngine(p, deviceflow.WithClock(clk))
	}, append([]session.Option{session.WithClock(clk)}, opts...)...)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = reg.Shutdown(ctx)
	})

	h := New(Config{
		Registry:      reg,
		DefaultTenant: "contoso.onmicrosoft.com",
		DefaultScope:  "https://management.azure.com/.default",
	})
	r := chi.NewRouter()
	r.Post("/api/device-code", h.Create)
	r.Get("/api/sessions/{id}", h.Status)
	r.Delete("/api/sessions/{id}", h.Cancel)

	return &fixture{router: r, registry: reg, clock: clk}
}

func (f *fixture) do(t *testing.T, req *http.Request, v any) int {
	t.Helper()
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	if got := w.Header().Get("Cache-Control"); got != "no-store" {
		t.Errorf("%s %s Cache-Control = %q, want no-store", req.Method, req.URL.Path, got)
	}
	if v != nil {
		if err := json.NewDecoder(w.Body).Decode(v); err != nil {
			t.Fatalf("decoding response: %v", err)
		}
	}
	return w.Code
}

func jsonRequest(body string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/api/device-code", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func (f *fixture) start(t *testing.T) string {
	t.Helper()
	var resp CodeResponse
	if code := f.do(t, jsonRequest(`{"client_id":"`+teamsClientID+`"}`), &resp); code != http.StatusOK {
		t.Fatalf("create status = %d, want 200", code)
	}
	return resp.SessionID
}

func TestCreate(t *testing.T) {
	p := deviceflowtest.New()
	f := newFixture(t, p)

	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, jsonRequest(`{"client_id":"`+teamsClientID+`","scope":"openid  profile"}`))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", w.Code, w.Body)
	}
	if strings.Contains(w.Body.String(), "device-code-secret") {
		t.Error("response leaks the device code")
	}

	var got CodeResponse
	if err := json.Unmarshal(w.Body.Bytes(), &got); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if got.SessionID == "" {
		t.Error("session_id is empty")
	}
	got.SessionID = ""
	want := CodeResponse{
		UserCode:        "ABCD-EFGH",
		VerificationURI: "https://microsoft.com/devicelogin",
		ExpiresIn:       900,
		Interval:        5,
		Message:         "To sign in, use a web browser to open the page https://microsoft.com/devicelogin and enter the code ABCD-EFGH to authenticate.",
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("response mismatch (-want +got):\n%s", diff)
	}

	wantReq := deviceflow.DeviceCodeRequest{ClientID: teamsClientID, Scope: "openid profile", Tenant: "contoso.onmicrosoft.com"}
	if diff := cmp.Diff([]deviceflow.DeviceCodeRequest{wantReq}, p.Received()); diff != "" {
		t.Errorf("provider requests mismatch (-want +got):\n%s", diff)
	}
}

func TestCreateForm(t *testing.T) {
	p := deviceflowtest.New()
	f := newFixture(t, p)

	form := url.Values{"client_id": {teamsClientID}, "tenant": {"organizations"}}
	req := httptest.NewRequest(http.MethodPost, "/api/device-code", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	var resp CodeResponse
	if code := f.do(t, req, &resp); code != http.StatusOK {
		t.Fatalf("status = %d, want 200", code)
	}
	wantReq := deviceflow.DeviceCodeRequest{
		ClientID: teamsClientID,
		Scope:    "https://management.azure.com/.default",
		Tenant:   "organizations",
	}
	if diff := cmp.Diff([]deviceflow.DeviceCodeRequest{wantReq}, p.Received()); diff != "" {
		t.Errorf("provider requests mismatch (-want +got):\n%s", diff)
	}
}

func TestCreateErrors(t *testing.T) {
	duplicate := httptest.NewRequest(http.MethodPost, "/api/device-code",
		strings.NewReader("client_id=a&client_id=b"))
	duplicate.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	tests := []struct {
		name       string
		req        *http.Request
		grantErr   error
		opts       []session.Option
		preCreate  bool
		wantStatus int
		wantCode   string
	}{
		{
			name:       "malformed json",
			req:        jsonRequest(`{"client_id":`),
			wantStatus: http.StatusBadRequest,
			wantCode:   deviceflow.ErrorCodeInvalidRequest,
		},
		{
			name:       "unknown field",
			req:        jsonRequest(`{"client_id":"x","device_code":"y"}`),
			wantStatus: http.StatusBadRequest,
			wantCode:   deviceflow.ErrorCodeInvalidRequest,
		},
		{
			name:       "missing client id",
			req:        jsonRequest(`{"scope":"openid"}`),
			wantStatus: http.StatusBadRequest,
			wantCode:   deviceflow.ErrorCodeInvalidRequest,
		},
		{
			name:       "invalid tenant",
			req:        jsonRequest(`{"client_id":"x","tenant":"../evil"}`),
			wantStatus: http.StatusBadRequest,
			wantCode:   deviceflow.ErrorCodeInvalidRequest,
		},
		{
			name:       "duplicate form parameter",
			req:        duplicate,
			wantStatus: http.StatusBadRequest,
			wantCode:   deviceflow.ErrorCodeInvalidRequest,
		},
		{
			name:       "provider rejects client",
			req:        jsonRequest(`{"client_id":"x"}`),
			grantErr:   &deviceflow.DeviceFlowError{Code: deviceflow.ErrorCodeInvalidClient, Description: "AADSTS700016", StatusCode: 400},
			wantStatus: http.StatusBadRequest,
			wantCode:   deviceflow.ErrorCodeInvalidClient,
		},
		{
			name:       "provider unavailable",
			req:        jsonRequest(`{"client_id":"x"}`),
			grantErr:   &deviceflow.DeviceFlowError{Code: deviceflow.ErrorCodeServerError, StatusCode: 503},
			wantStatus: http.StatusBadGateway,
			wantCode:   deviceflow.ErrorCodeServerError,
		},
		{
			name:       "network failure",
			req:        jsonRequest(`{"client_id":"x"}`),
			grantErr:   errors.New("dial tcp: connection refused"),
			wantStatus: http.StatusBadGateway,
			wantCode:   deviceflow.ErrorCodeServerError,
		},
		{
			name:       "at capacity",
			req:        jsonRequest(`{"client_id":"x"}`),
			opts:       []session.Option{session.WithMaxSessions(1)},
			preCreate:  true,
			wantStatus: http.StatusServiceUnavailable,
			wantCode:   common.ErrorCodeUnavailable,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := deviceflowtest.New()
			f := newFixture(t, p, tt.opts...)
			if tt.preCreate {
				f.start(t)
			}
			p.GrantErr = tt.grantErr

			var resp common.ErrorResponse
			if code := f.do(t, tt.req, &resp); code != tt.wantStatus {
				t.Errorf("status = %d, want %d", code, tt.wantStatus)
			}
			if resp.Error != tt.wantCode {
				t.Errorf("error = %q, want %q", resp.Error, tt.wantCode)
			}
		})
	}
}

func TestStatus(t *testing.T) {
	p := deviceflowtest.New(deviceflowtest.Pending(), deviceflowtest.Reply{Token: &deviceflow.TokenResponse{
		AccessToken:  "at",
		TokenType:    "Bearer",
		ExpiresIn:    3600,
		Scope:        "openid",
		RefreshToken: "rt",
		IDToken:      "it",
	}})
	f := newFixture(t, p)
	id := f.start(t)

	var got StatusResponse
	f.do(t, httptest.NewRequest(http.MethodGet, "/api/sessions/"+id, nil), &got)
	if diff := cmp.Diff(StatusResponse{Status: "pending"}, got); diff != "" {
		t.Errorf("initial status mismatch (-want +got):\n%s", diff)
	}

	deadline := time.Now().Add(5 * time.Second)
	for got.Status == "pending" {
		if time.Now().After(deadline) {
			t.Fatal("session never finished")
		}
		if f.clock.HasWaiters() {
			f.clock.Step(5 * time.Second)
		}
		time.Sleep(time.Millisecond)
		got = StatusResponse{}
		if code := f.do(t, httptest.NewRequest(http.MethodGet, "/api/sessions/"+id, nil), &got); code != http.StatusOK {
			t.Fatalf("status code = %d, want 200", code)
		}
	}

	want := StatusResponse{
		Status:       "success",
		AccessToken:  "at",
		TokenType:    "Bearer",
		ExpiresIn:    3600,
		Scope:        "openid",
		RefreshToken: "rt",
		IDToken:      "it",
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("final status mismatch (-want +got):\n%s", diff)
	}
}

func TestStatusNotFound(t *testing.T) {
	f := newFixture(t, deviceflowtest.New(), session.WithIdleTimeout(time.Minute))
	idle := f.start(t)
	f.clock.Step(time.Minute)

	for _, id := range []string{"not-a-uuid", unknownID, idle} {
		var resp common.ErrorResponse
		code := f.do(t, httptest.NewRequest(http.MethodGet, "/api/sessions/"+id, nil), &resp)
		if code != http.StatusNotFound || resp.Error != common.ErrorCodeSessionNotFound {
			t.Errorf("GET %s = %d %q, want 404 session_not_found", id, code, resp.Error)
		}
	}
}

func TestCancel(t *testing.T) {
	p := deviceflowtest.New()
	f := newFixture(t, p)
	id := f.start(t)

	var got StatusResponse
	if code := f.do(t, httptest.NewRequest(http.MethodDelete, "/api/sessions/"+id, nil), &got); code != http.StatusOK {
		t.Fatalf("cancel status = %d, want 200", code)
	}
	if got.Status != "cancelled" {
		t.Errorf("cancel status = %q, want cancelled", got.Status)
	}

	got = StatusResponse{}
	f.do(t, httptest.NewRequest(http.MethodGet, "/api/sessions/"+id, nil), &got)
	if got.Status != "cancelled" {
		t.Errorf("status after cancel = %q, want cancelled", got.Status)
	}
	if p.Calls() != 0 {
		t.Errorf("provider polls = %d, want 0", p.Calls())
	}

	var resp common.ErrorResponse
	if code := f.do(t, httptest.NewRequest(http.MethodDelete, "/api/sessions/"+unknownID, nil), &resp); code != http.StatusNotFound {
		t.Errorf("cancel unknown = %d, want 404", code)
	}
}
