package catalog

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/wrale/devicetoken/internal/deviceflow"
)

const appsCSV = "\ufeffAppId,AppDisplayName,AppOwnerOrganizationId\n" +
	"00000003-0000-0000-c000-000000000000,Microsoft Graph,f8cdef31-a31e-4b4a-93e4-5f571e91255a\n" +
	"d3590ed6-52b3-4102-aeff-aad2292ab01c,Microsoft Office,f8cdef31-a31e-4b4a-93e4-5f571e91255a\n" +
	",Missing Id,x\n" +
	"ab9b8c07-8f02-4f72-87fa-80105867a763,,x\n" +
	"04b07795-8ddb-461a-bbee-02f9e1bf7b46,Microsoft Azure CLI,f8cdef31-a31e-4b4a-93e4-5f571e91255a\n" +
	"27922004-5251-4030-b22d-91ecd9a37ea4,Outlook Mobile,f8cdef31-a31e-4b4a-93e4-5f571e91255a\n"

func TestReadCSV(t *testing.T) {
	apps, err := ReadCSV(strings.NewReader(appsCSV))
	if err != nil {
		t.Fatalf("ReadCSV() error = %v", err)
	}

	want := []App{
		{Name: "Microsoft Graph", ClientID: "00000003-0000-0000-c000-000000000000", Scope: deviceflow.DefaultScope},
		{Name: "Microsoft Office", ClientID: "d3590ed6-52b3-4102-aeff-aad2292ab01c", Scope: deviceflow.DefaultScope},
		{Name: "Microsoft Azure CLI", ClientID: "04b07795-8ddb-461a-bbee-02f9e1bf7b46", Scope: deviceflow.DefaultScope},
		{Name: "Outlook Mobile", ClientID: "27922004-5251-4030-b22d-91ecd9a37ea4", Scope: deviceflow.DefaultScope},
	}
	if diff := cmp.Diff(want, apps); diff != "" {
		t.Errorf("apps mismatch (-want +got):\n%s", diff)
	}
}

func TestReadCSVErrors(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{name: "empty", input: ""},
		{name: "no id column", input: "AppDisplayName\nGraph\n"},
		{name: "no name column", input: "AppId\n123\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ReadCSV(strings.NewReader(tt.input)); err == nil {
				t.Error("ReadCSV() expected error")
			}
		})
	}

	_, err := ReadCSV(strings.NewReader("AppId\n1\n"))
	if !errors.Is(err, ErrMissingColumn) {
		t.Errorf("ReadCSV() error = %v, want ErrMissingColumn", err)
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "MicrosoftApps.csv")
	if err := os.WriteFile(path, []byte(appsCSV), 0o600); err != nil {
		t.Fatal(err)
	}

	apps, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile() error = %v", err)
	}
	if len(apps) != 4 {
		t.Errorf("LoadFile() returned %d apps, want 4", len(apps))
	}

	if _, err := LoadFile(filepath.Join(t.TempDir(), "missing.csv")); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("LoadFile(missing) error = %v, want os.ErrNotExist", err)
	}
}

func TestNewDeduplicatesTopApps(t *testing.T) {
	apps, err := ReadCSV(strings.NewReader(appsCSV))
	if err != nil {
		t.Fatal(err)
	}
	c := New(apps)

	// Four top apps plus three CSV apps; the Azure CLI row is a duplicate
	if c.Len() != 7 {
		t.Errorf("Len() = %d, want 7", c.Len())
	}
	if got := c.All()[0].Name; got != "Microsoft Azure CLI" {
		t.Errorf("first app = %q, want top apps first", got)
	}
	if New(nil).Len() != len(TopApps()) {
		t.Errorf("empty catalog should hold the top apps")
	}
}

func TestSearch(t *testing.T) {
	apps, err := ReadCSV(strings.NewReader(appsCSV))
	if err != nil {
		t.Fatal(err)
	}
	c := New(apps)

	names := func(apps []App) []string {
		out := []string{}
		for _, a := range apps {
			out = append(out, a.Name)
		}
		return out
	}

	tests := []struct {
		name  string
		query string
		limit int
		want  []string
	}{
		{name: "case insensitive", query: "OUTLOOK", want: []string{"Microsoft Outlook", "Outlook Mobile"}},
		{name: "trimmed", query: "  graph ", want: []string{"Microsoft Graph"}},
		{name: "limit", query: "microsoft", limit: 2, want: []string{"Microsoft Azure CLI", "Microsoft Teams"}},
		{name: "no match", query: "sharepoint", want: []string{}},
		{name: "empty query", query: " ", want: []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if diff := cmp.Diff(tt.want, names(c.Search(tt.query, tt.limit))); diff != "" {
				t.Errorf("Search() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestLookup(t *testing.T) {
	c := New(nil)
	app, ok := c.Lookup("1FEC8E78-BCE4-4AAF-AB1B-5451CC387264")
	if !ok || app.Name != "Microsoft Teams" {
		t.Errorf("Lookup() = %+v, %v", app, ok)
	}
	if _, ok := c.Lookup("unknown"); ok {
		t.Error("Lookup(unknown) should fail")
	}

	req := app.Request()
	if req.ClientID != app.ClientID || req.Scope != deviceflow.DefaultScope {
		t.Errorf("Request() = %+v", req)
	}
}
