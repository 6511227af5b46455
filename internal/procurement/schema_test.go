package procurement

import (
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

var statusCheck = regexp.MustCompile(`(?s)CREATE TABLE IF NOT EXISTS purchase_orders \(.*?status\s+TEXT[^,]*?CHECK \(status IN \(([^)]*)\)\)`)

func TestSchemaStatusesMatchVocabulary(t *testing.T) {
	schema, err := os.ReadFile(filepath.Join("..", "..", "migrations", "0001_init.sql"))
	require.NoError(t, err)

	m := statusCheck.FindSubmatch(schema)
	require.NotNil(t, m, "purchase_orders.status CHECK not found")

	var allowed []Status
	for _, v := range strings.Split(string(m[1]), ",") {
		allowed = append(allowed, Status(strings.Trim(strings.TrimSpace(v), "'")))
	}
	require.ElementsMatch(t, []Status{StatusPending, StatusPartiallyReceived, StatusFullyReceived}, allowed)
	for _, s := range allowed {
		require.True(t, s.Valid(), s)
	}
}
