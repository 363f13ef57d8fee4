package catalog

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

const scopeMap = `https://graph.microsoft.com/.default 00000003-0000-0000-c000-000000000000 04b07795-8ddb-461a-bbee-02f9e1bf7b46
user_impersonation https://management.azure.com 04b07795-8ddb-461a-bbee-02f9e1bf7b46
.default https://vault.azure.net 04b07795-8ddb-461a-bbee-02f9e1bf7b46
user_impersonation https://management.azure.com 04B07795-8DDB-461A-BBEE-02F9E1BF7B46
incomplete line

Mail.Read https://outlook.office.com 5d661950-3475-41cd-a2c3-d671a3162bc1
`

func TestScopeMap(t *testing.T) {
	m, err := ReadScopeMap(strings.NewReader(scopeMap))
	if err != nil {
		t.Fatalf("ReadScopeMap() error = %v", err)
	}

	tests := []struct {
		clientID string
		want     []string
	}{
		{
			clientID: "04b07795-8ddb-461a-bbee-02f9e1bf7b46",
			want: []string{
				".default",
				"https://graph.microsoft.com/.default",
				"https://management.azure.com",
			},
		},
		{
			clientID: "5D661950-3475-41CD-A2C3-D671A3162BC1",
			want:     []string{"https://outlook.office.com"},
		},
		{
			clientID: "unknown",
			want:     []string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.clientID, func(t *testing.T) {
			if diff := cmp.Diff(tt.want, m.Scopes(tt.clientID)); diff != "" {
				t.Errorf("Scopes() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestNilScopeMap(t *testing.T) {
	var m *ScopeMap
	if got := m.Scopes("anything"); len(got) != 0 {
		t.Errorf("Scopes() = %v, want empty", got)
	}
}
