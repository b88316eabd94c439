package migrate

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"testing/fstest"

	"github.com/pressly/goose/v3"
	"github.com/stretchr/testify/require"
)

func readMigration(t *testing.T, suffix string) string {
	t.Helper()
	matches, err := filepath.Glob(filepath.Join("migrations", "*_"+suffix+".sql"))
	require.NoError(t, err)
	require.Len(t, matches, 1, "expected exactly one %s migration", suffix)

	data, err := os.ReadFile(matches[0])
	require.NoError(t, err)
	return string(data)
}

func TestEmbeddedMigrationsAreValid(t *testing.T) {
	require.NoError(t, Validate(Embedded()))
	require.NoError(t, ValidateDir("migrations"))
}

func TestValidateRejectsBadFiles(t *testing.T) {
	cases := map[string]fstest.MapFS{
		"bad name":       {"add_index.sql": {Data: []byte("-- +goose Up\n-- +goose Down\n")}},
		"duplicate":      {"20260101000000_a.sql": {Data: []byte("-- +goose Up\n-- +goose Down\n")}, "20260101000000_b.sql": {Data: []byte("-- +goose Up\n-- +goose Down\n")}},
		"missing down":   {"20260101000000_a.sql": {Data: []byte("-- +goose Up\n")}},
		"sections order": {"20260101000000_a.sql": {Data: []byte("-- +goose Down\n-- +goose Up\n")}},
	}
	for name, fsys := range cases {
		t.Run(name, func(t *testing.T) {
			require.Error(t, Validate(fsys))
		})
	}
	require.NoError(t, Validate(fstest.MapFS{"README.md": {Data: []byte("notes")}}))
}

func TestEscrowMigrationGuardsLedger(t *testing.T) {
	content := readMigration(t, "create_escrow")

	for _, sub := range []string{
		"CONSTRAINT ux_escrow_accounts_order_id UNIQUE (order_id)",
		"version integer NOT NULL DEFAULT 1",
		"BEFORE UPDATE OR DELETE ON escrow_transactions",
		"ux_disputes_open_account ON disputes (account_id) WHERE status = 'open'",
		"DROP TABLE IF EXISTS escrow_accounts",
	} {
		require.True(t, strings.Contains(content, sub), "missing expected statement %q", sub)
	}
}

func TestWalletMigrationKeepsBalancesNonNegative(t *testing.T) {
	content := readMigration(t, "create_wallets_and_payouts")

	for _, sub := range []string{
		"CHECK (available_balance >= 0)",
		"CHECK (pending_balance >= 0)",
		"CHECK (available_balance + pending_balance <= total_earned)",
		"CONSTRAINT ux_payouts_payout_reference UNIQUE (payout_reference)",
		"ux_wallet_transactions_order_credit",
	} {
		require.True(t, strings.Contains(content, sub), "missing expected statement %q", sub)
	}
}

func TestDialect(t *testing.T) {
	d, err := Dialect("")
	require.NoError(t, err)
	require.Equal(t, goose.DialectPostgres, d)

	d, err = Dialect("SQLite")
	require.NoError(t, err)
	require.Equal(t, goose.DialectSQLite3, d)

	_, err = Dialect("oracle")
	require.Error(t, err)
}

func TestCreateSQLMigrationSanitizesName(t *testing.T) {
	dir := t.TempDir()
	path, err := CreateSQLMigration(dir, "Add Payout Method Index!")
	require.NoError(t, err)
	require.True(t, strings.HasSuffix(path, "_add_payout_method_index.sql"))
	require.NoError(t, ValidateDir(dir))

	_, err = CreateSQLMigration(dir, "!!!")
	require.Error(t, err)
}
