package db

import (
	"regexp"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSchema_FingerprintUniqueAmongLiveRows(t *testing.T) {
	assert.Contains(t, schema, "CREATE UNIQUE INDEX IF NOT EXISTS transactions_user_fingerprint_live_idx")
	assert.Contains(t, schema, "ON transactions (user_id, fingerprint) WHERE deleted_at IS NULL;")
	assert.Contains(t, schema, "DROP CONSTRAINT IF EXISTS transactions_user_id_fingerprint_key")

	tableLevel := regexp.MustCompile(`UNIQUE\s*\(\s*user_id\s*,\s*fingerprint\s*\)`)
	assert.False(t, tableLevel.MatchString(schema), "fingerprint must not be unique across deleted rows")
}

func TestSchema_StatementsAreIdempotent(t *testing.T) {
	for _, stmt := range strings.Split(schema, ";") {
		stmt = strings.TrimSpace(stmt)
		if stmt == "" {
			continue
		}
		assert.Regexp(t, `IF (NOT )?EXISTS`, stmt)
	}
}
