package main

import (
	"bufio"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/wrale/devicetoken/internal/catalog"
	"github.com/wrale/devicetoken/internal/deviceflow"
)

func contosoCatalog(n int) *catalog.Catalog {
	var apps []catalog.App
	for i := 1; i <= n; i++ {
		apps = append(apps, catalog.App{
			Name:     fmt.Sprintf("Contoso Tool %02d", i),
			ClientID: fmt.Sprintf("00000000-0000-0000-0000-%012d", i),
		})
	}
	return catalog.New(apps)
}

func runMenu(input string, c *catalog.Catalog) (catalog.App, string, error) {
	var out strings.Builder
	app, err := newMenu(bufio.NewReader(strings.NewReader(input)), &out, c).choose()
	return app, out.String(), err
}

func TestMenuChoose(t *testing.T) {
	top := catalog.TopApps()
	c := contosoCatalog(25)

	tests := []struct {
		name    string
		input   string
		want    catalog.App
		wantErr error
		wantOut []string
	}{
		{
			name:  "top app",
			input: "1\n2\n",
			want:  top[1],
		},
		{
			name:    "top app out of range then valid",
			input:   "1\n7\nabc\n4\n",
			want:    top[3],
			wantOut: []string{"Please enter a number between 1 and 4.", "Please enter a valid number."},
		},
		{
			name:    "invalid choice then quit",
			input:   "9\nq\n",
			wantErr: errQuit,
			wantOut: []string{"Invalid choice"},
		},
		{
			name:    "back from top apps then quit",
			input:   "1\nb\nQ\n",
			wantErr: errQuit,
		},
		{
			name:    "end of input",
			input:   "",
			wantErr: errQuit,
		},
		{
			name:  "custom client with default scope",
			input: "3\nmy-custom-client\n\n",
			want:  catalog.App{Name: "Custom App (my-custo...)", ClientID: "my-custom-client", Scope: deviceflow.DefaultScope},
		},
		{
			name:  "custom client found in catalog",
			input: "3\n1FEC8E78-BCE4-4AAF-AB1B-5451CC387264\nopenid\n",
			want:  catalog.App{Name: "Microsoft Teams", ClientID: "1fec8e78-bce4-4aaf-ab1b-5451cc387264", Scope: "openid"},
		},
		{
			name:    "empty custom client goes back",
			input:   "3\n\nq\n",
			wantErr: errQuit,
			wantOut: []string{"Client ID cannot be empty."},
		},
		{
			name:  "search first page",
			input: "2\ncontoso\n3\n",
			want:  c.Search("contoso", 0)[2],
			wantOut: []string{
				"SEARCH RESULTS (1-10 of 25)",
				"Use 'n' for next page",
			},
		},
		{
			name:  "search pages forward and picks by overall number",
			input: "2\ncontoso\nn\nn\nn\np\nn\n23\n",
			want:  c.Search("contoso", 0)[22],
			wantOut: []string{
				"SEARCH RESULTS (11-20 of 25)",
				"SEARCH RESULTS (21-25 of 25)",
				"Already on last page.",
			},
		},
		{
			name:    "search previous on first page",
			input:   "2\ntool\np\n99\n1\n",
			want:    c.Search("tool", 0)[0],
			wantOut: []string{"Already on first page.", "Please enter a valid number."},
		},
		{
			name:    "search without results then back",
			input:   "2\n\nnothing\nb\nq\n",
			wantErr: errQuit,
			wantOut: []string{"Please enter a search term.", `No applications found matching "nothing"`},
		},
		{
			name:    "back from results returns to search",
			input:   "2\ncontoso\nb\nteams\n1\n",
			want:    top[1],
			wantOut: []string{"SEARCH RESULTS (1-1 of 1)"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, out, err := runMenu(tt.input, c)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("choose() error = %v, want %v", err, tt.wantErr)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("choose() mismatch (-want +got):\n%s", diff)
			}
			for _, s := range tt.wantOut {
				if !strings.Contains(out, s) {
					t.Errorf("output missing %q", s)
				}
			}
		})
	}
}
