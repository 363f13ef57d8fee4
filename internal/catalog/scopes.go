package catalog

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
)

// ScopeMap lists the scopes known to be grantable per client ID
type ScopeMap struct {
	byClient map[string]map[string]struct{}
}

// ReadScopeMap parses whitespace separated "scope resource client" lines.
// Scopes that are URLs or start with a dot are kept as is, anything else is
// replaced by its resource. Short lines are ignored.
func ReadScopeMap(r io.Reader) (*ScopeMap, error) {
	m := &ScopeMap{byClient: make(map[string]map[string]struct{})}

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) < 3 {
			continue
		}
		scope, resource, client := fields[0], fields[1], strings.ToLower(fields[2])

		value := resource
		if strings.HasPrefix(scope, "http") || strings.HasPrefix(scope, ".") {
			value = scope
		}

		set, ok := m.byClient[client]
		if !ok {
			set = make(map[string]struct{})
			m.byClient[client] = set
		}
		set[value] = struct{}{}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading scope map: %w", err)
	}
	return m, nil
}

// LoadScopeMap reads a scope map from disk
func LoadScopeMap(path string) (*ScopeMap, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening scope map: %w", err)
	}
	defer f.Close()
	return ReadScopeMap(f)
}

// Scopes returns the sorted scopes for a client ID, matched case insensitively.
// A nil map has no scopes.
func (m *ScopeMap) Scopes(clientID string) []string {
	out := []string{}
	if m == nil {
		return out
	}
	for s := range m.byClient[strings.ToLower(clientID)] {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}
