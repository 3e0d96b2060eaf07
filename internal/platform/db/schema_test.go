package db

import (
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var referencesRe = regexp.MustCompile(`(?s)FOREIGN KEY \(([^)]*)\)\s+REFERENCES (\w+) \(([^)]*)\)|REFERENCES (\w+) \(([^)]*)\)`)

// Every reference between ledger tables must carry client_id so no row can
// point into another tenant's data.
func TestMigrationReferencesAreTenantScoped(t *testing.T) {
	path := filepath.Join("..", "..", "..", "db", "migrations", "000001_gl_core.up.sql")
	data, err := os.ReadFile(path)
	require.NoError(t, err)

	matches := referencesRe.FindAllStringSubmatch(string(data), -1)
	require.NotEmpty(t, matches)
	targets := map[string]bool{}
	for _, m := range matches {
		if m[2] == "" {
			t.Errorf("single-column reference to %s (%s)", m[4], m[5])
			continue
		}
		from := strings.Split(m[1], ",")
		to := strings.Split(m[3], ",")
		assert.Equal(t, "client_id", strings.TrimSpace(from[0]), "reference to %s", m[2])
		assert.Equal(t, "client_id", strings.TrimSpace(to[0]), "reference to %s", m[2])
		targets[m[2]+"("+strings.TrimSpace(from[1])+")"] = true
	}
	for _, want := range []string{
		"accounts(parent_id)",
		"accounts(account_id)",
		"journal_entries(reversal_of)",
		"journal_entries(entry_id)",
	} {
		assert.True(t, targets[want], "missing tenant-scoped reference %s", want)
	}
}
