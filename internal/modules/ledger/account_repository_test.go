package ledger

import (
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clearledger/reconciler/internal/database"
)

func setupRepo(t *testing.T) (*AccountRepository, *database.DB) {
	t.Helper()

	db, err := database.New(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	require.NoError(t, InitSchema(db.Conn()))
	t.Cleanup(func() { db.Close() })

	return NewAccountRepository(db.Conn(), zerolog.Nop()), db
}

func TestAccountEnsureCreates(t *testing.T) {
	repo, db := setupRepo(t)
	custodian := "CUSTODIAN_A"

	created, err := repo.Ensure(db.Conn(), "ACC001", &custodian)
	require.NoError(t, err)
	assert.True(t, created)

	created, err = repo.Ensure(db.Conn(), "ACC001", &custodian)
	require.NoError(t, err)
	assert.False(t, created)

	accounts, err := repo.GetAll()
	require.NoError(t, err)
	require.Len(t, accounts, 1)
	require.NotNil(t, accounts[0].CustodianName)
	assert.Equal(t, "CUSTODIAN_A", *accounts[0].CustodianName)
}

func TestAccountEnsureBackfillsCustodian(t *testing.T) {
	repo, db := setupRepo(t)

	created, err := repo.Ensure(db.Conn(), "ACC002", nil)
	require.NoError(t, err)
	assert.True(t, created)

	accounts, err := repo.GetAll()
	require.NoError(t, err)
	require.Len(t, accounts, 1)
	assert.Nil(t, accounts[0].CustodianName)

	custodian := "CUSTODIAN_B"
	created, err = repo.Ensure(db.Conn(), "ACC002", &custodian)
	require.NoError(t, err)
	assert.False(t, created)

	accounts, err = repo.GetAll()
	require.NoError(t, err)
	require.NotNil(t, accounts[0].CustodianName)
	assert.Equal(t, "CUSTODIAN_B", *accounts[0].CustodianName)
}

func TestAccountEnsureNeverOverwrites(t *testing.T) {
	repo, db := setupRepo(t)

	first := "CUSTODIAN_A"
	_, err := repo.Ensure(db.Conn(), "ACC003", &first)
	require.NoError(t, err)

	second := "CUSTODIAN_B"
	_, err = repo.Ensure(db.Conn(), "ACC003", &second)
	require.NoError(t, err)

	accounts, err := repo.GetAll()
	require.NoError(t, err)
	require.Len(t, accounts, 1)
	require.NotNil(t, accounts[0].CustodianName)
	assert.Equal(t, "CUSTODIAN_A", *accounts[0].CustodianName)
}

func TestAccountCount(t *testing.T) {
	repo, db := setupRepo(t)

	count, err := repo.Count()
	require.NoError(t, err)
	assert.Equal(t, 0, count)

	_, err = repo.Ensure(db.Conn(), "ACC001", nil)
	require.NoError(t, err)
	_, err = repo.Ensure(db.Conn(), "ACC002", nil)
	require.NoError(t, err)

	count, err = repo.Count()
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}
