// Package catalog lists the Microsoft first party applications a device flow
// can be started for and the scopes known to work with each of them
package catalog

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/wrale/devicetoken/internal/deviceflow"
)

// CSV column headers of the application list
const (
	columnAppID = "AppId"
	columnName  = "AppDisplayName"
)

// ErrMissingColumn indicates the CSV header lacks a required column
var ErrMissingColumn = errors.New("missing required column")

// App is one client application
type App struct {
	Name     string `json:"name"`
	ClientID string `json:"client_id"`
	Scope    string `json:"scope"`
}

// Request builds a device code request for the app
func (a App) Request() deviceflow.DeviceCodeRequest {
	return deviceflow.DeviceCodeRequest{ClientID: a.ClientID, Scope: a.Scope}
}

// TopApps returns the well known applications offered first
func TopApps() []App {
	return []App{
		{Name: "Microsoft Azure CLI", ClientID: "04b07795-8ddb-461a-bbee-02f9e1bf7b46", Scope: deviceflow.DefaultScope},
		{Name: "Microsoft Teams", ClientID: "1fec8e78-bce4-4aaf-ab1b-5451cc387264", Scope: deviceflow.DefaultScope},
		{Name: "Microsoft Outlook", ClientID: "5d661950-3475-41cd-a2c3-d671a3162bc1", Scope: deviceflow.DefaultScope},
		{Name: "Azure Active Directory PowerShell", ClientID: "1b730954-1685-4b74-9bfd-dac224a7b894", Scope: deviceflow.DefaultScope},
	}
}

// Catalog is an immutable, searchable application list
type Catalog struct {
	apps []App
}

// New creates a catalog holding the top apps followed by apps, skipping
// client IDs already present
func New(apps []App) *Catalog {
	c := &Catalog{}
	seen := make(map[string]struct{})
	for _, a := range append(TopApps(), apps...) {
		key := strings.ToLower(a.ClientID)
		if key == "" || a.Name == "" {
			continue
		}
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		if a.Scope == "" {
			a.Scope = deviceflow.DefaultScope
		}
		c.apps = append(c.apps, a)
	}
	return c
}

// ReadCSV parses an application list with AppId and AppDisplayName columns.
// Rows missing either value are skipped.
func ReadCSV(r io.Reader) ([]App, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("reading header: %w", err)
	}
	idCol, nameCol := -1, -1
	for i, h := range header {
		switch strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")) {
		case columnAppID:
			idCol = i
		case columnName:
			nameCol = i
		}
	}
	if idCol < 0 {
		return nil, fmt.Errorf("%w %s", ErrMissingColumn, columnAppID)
	}
	if nameCol < 0 {
		return nil, fmt.Errorf("%w %s", ErrMissingColumn, columnName)
	}

	var apps []App
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("reading row: %w", err)
		}
		if idCol >= len(record) || nameCol >= len(record) {
			continue
		}
		id, name := strings.TrimSpace(record[idCol]), strings.TrimSpace(record[nameCol])
		if id == "" || name == "" {
			continue
		}
		apps = append(apps, App{Name: name, ClientID: id, Scope: deviceflow.DefaultScope})
	}
	return apps, nil
}

// LoadFile reads an application list from disk
func LoadFile(path string) ([]App, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening app list: %w", err)
	}
	defer f.Close()

	apps, err := ReadCSV(f)
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	return apps, nil
}

// All returns every app in catalog order
func (c *Catalog) All() []App {
	return append([]App(nil), c.apps...)
}

// Len returns the number of apps
func (c *Catalog) Len() int {
	return len(c.apps)
}

// Search returns apps whose name contains query, case insensitively, in
// catalog order. A limit of zero or less returns every match. An empty
// query matches nothing.
func (c *Catalog) Search(query string, limit int) []App {
	query = strings.ToLower(strings.TrimSpace(query))
	if query == "" {
		return nil
	}

	var out []App
	for _, a := range c.apps {
		if !strings.Contains(strings.ToLower(a.Name), query) {
			continue
		}
		out = append(out, a)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out
}

// Lookup finds an app by client ID
func (c *Catalog) Lookup(clientID string) (App, bool) {
	for _, a := range c.apps {
		if strings.EqualFold(a.ClientID, clientID) {
			return a, true
		}
	}
	return App{}, false
}
