package templates

import (
	"errors"
	"html/template"
	"net/http"
	"strings"
	"testing"
)

func TestRenderIndex(t *testing.T) {
	tests := []struct {
		name         string
		data         IndexData
		wantContains []string
		wantMissing  []string
	}{
		{
			name: "renders top apps and token",
			data: IndexData{
				CSRFToken:    "token123",
				DefaultScope: "https://graph.microsoft.com/.default offline_access openid",
				Tenant:       "common",
				TopApps: []AppOption{
					{Name: "Microsoft Azure CLI", ClientID: "04b07795-8ddb-461a-bbee-02f9e1bf7b46", Scope: "openid"},
					{Name: "Microsoft Teams", ClientID: "1fec8e78-bce4-4aaf-ab1b-5451cc387264", Scope: "openid"},
				},
			},
			wantContains: []string{
				`data-csrf-token="token123"`,
				"Microsoft Azure CLI",
				`data-client-id="1fec8e78-bce4-4aaf-ab1b-5451cc387264"`,
				`value="https://graph.microsoft.com/.default offline_access openid"`,
				`value="common"`,
				"/api/device-code",
			},
		},
		{
			name: "escapes application names",
			data: IndexData{
				TopApps: []AppOption{{Name: "<script>alert(1)</script>", ClientID: "x"}},
			},
			wantContains: []string{"&lt;script&gt;alert(1)&lt;/script&gt;"},
			wantMissing:  []string{"<script>alert(1)</script>"},
		},
	}

	templates := setupTemplates(t)

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock := newMockResponseWriter()
			if err := templates.RenderIndex(mock, tt.data); err != nil {
				t.Fatalf("RenderIndex() error = %v", err)
			}

			if mock.statusCode != http.StatusOK {
				t.Errorf("status = %v, want %v", mock.statusCode, http.StatusOK)
			}
			if !mock.Contains(tt.wantContains...) {
				t.Errorf("response missing required content.\ngot: %s", mock.Written())
			}
			for _, s := range tt.wantMissing {
				if strings.Contains(mock.Written(), s) {
					t.Errorf("response contains %q", s)
				}
			}
		})
	}
}

func TestRenderError(t *testing.T) {
	tests := []struct {
		name         string
		data         ErrorData
		wantContains []string
		wantStatus   int
	}{
		{
			name: "renders error page",
			data: ErrorData{
				Status:  http.StatusBadRequest,
				Title:   "Test Error",
				Message: "Something went wrong",
			},
			wantContains: []string{
				"Test Error",
				"Something went wrong",
				"Try Again",
			},
			wantStatus: http.StatusBadRequest,
		},
		{
			name:         "defaults to internal error",
			data:         ErrorData{Title: "Oops"},
			wantContains: []string{"Oops"},
			wantStatus:   http.StatusInternalServerError,
		},
	}

	templates := setupTemplates(t)

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock := newMockResponseWriter()
			if err := templates.RenderError(mock, tt.data); err != nil {
				t.Fatalf("RenderError() error = %v", err)
			}

			if mock.statusCode != tt.wantStatus {
				t.Errorf("status = %v, want %v", mock.statusCode, tt.wantStatus)
			}
			if !mock.Contains(tt.wantContains...) {
				t.Errorf("response missing required content.\ngot: %s", mock.Written())
			}
		})
	}
}

func TestRenderToString(t *testing.T) {
	templates := setupTemplates(t)

	got, err := templates.RenderToString(templates.error, ErrorData{Title: "Error Title", Message: "Error Message"})
	if err != nil {
		t.Fatalf("RenderToString() error = %v", err)
	}
	for _, want := range []string{"Error Title", "Error Message", "Try Again"} {
		if !strings.Contains(got, want) {
			t.Errorf("RenderToString() missing %q in output:\n%s", want, got)
		}
	}
}

func TestTemplateErrorHandling(t *testing.T) {
	layoutTmpl, err := template.New("layout").Parse(`{{define "layout"}}{{template "content" .}}{{end}}`)
	if err != nil {
		t.Fatalf("Failed to create layout template: %v", err)
	}
	if _, err := layoutTmpl.New("content").Parse(`{{.NonExistentField.SubField}}`); err != nil {
		t.Fatalf("Failed to create content template: %v", err)
	}

	templates := &Templates{index: layoutTmpl}
	mock := newMockResponseWriter()

	err = templates.RenderIndex(mock, IndexData{CSRFToken: "test-token"})
	if err == nil {
		t.Fatal("RenderIndex() with error-producing template did not return error")
	}

	var templateErr *TemplateError
	if !errors.As(err, &templateErr) {
		t.Fatalf("error was not *TemplateError, got %T", err)
	}
	if !strings.Contains(templateErr.Error(), "failed to render template") {
		t.Errorf("unexpected error message: %v", templateErr.Error())
	}
	if !strings.Contains(templateErr.Cause.Error(), "NonExistentField") {
		t.Errorf("cause does not mention missing field: %v", templateErr.Cause)
	}

	// Nothing reaches the client when rendering fails
	if mock.headersSent || mock.writeCount != 0 {
		t.Errorf("partial response written: status %d, %d writes", mock.statusCode, mock.writeCount)
	}
}
