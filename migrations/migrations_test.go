package migrations

import (
	"io/fs"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEveryUpHasDown(t *testing.T) {
	ups, err := fs.Glob(FS, "*.up.sql")
	require.NoError(t, err)
	require.NotEmpty(t, ups)
	for _, up := range ups {
		down := strings.TrimSuffix(up, ".up.sql") + ".down.sql"
		_, err := fs.Stat(FS, down)
		require.NoError(t, err, "missing %s", down)
	}
}

func TestInitCreatesLedgerTables(t *testing.T) {
	body, err := fs.ReadFile(FS, "0001_init.up.sql")
	require.NoError(t, err)
	for _, table := range []string{"accounts", "balance_holds", "ledger_entries", "processed_payments", "payment_logs"} {
		require.Contains(t, string(body), "create table if not exists "+table)
	}
}

func TestReferralsMigration(t *testing.T) {
	up, err := fs.ReadFile(FS, "0002_referrals.up.sql")
	require.NoError(t, err)
	require.Contains(t, string(up), "create table if not exists referrals")
	require.Contains(t, string(up), "referrer_id <> user_id")

	down, err := fs.ReadFile(FS, "0002_referrals.down.sql")
	require.NoError(t, err)
	require.Contains(t, string(down), "drop table if exists referrals")
}
