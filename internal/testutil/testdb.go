// Package testutil provides shared fixtures for package tests.
package testutil

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"actpath-backend/internal/config"
	"actpath-backend/internal/db"
	"actpath-backend/internal/model"
)

// NewDB opens a migrated SQLite database in the test's temp dir.
// The connection is closed when the test finishes.
func NewDB(t *testing.T) *gorm.DB {
	t.Helper()

	c := config.Default().DB
	c.Driver = db.DriverSQLite
	c.Path = filepath.Join(t.TempDir(), "actpath_test.db")

	gdb, err := db.Open(c, logger.Silent)
	require.NoError(t, err)
	require.NoError(t, db.Migrate(gdb))

	t.Cleanup(func() { _ = db.Close(gdb) })
	return gdb
}

// CreateClient inserts a CLIENT user starting at session 1.
func CreateClient(t *testing.T, gdb *gorm.DB, email string) *model.User {
	t.Helper()

	u := &model.User{
		Name:           "Test Client",
		Email:          email,
		Password:       "not-a-real-hash",
		Role:           model.RoleClient,
		CurrentSession: 1,
	}
	require.NoError(t, gdb.Create(u).Error)
	return u
}

// CreateUser inserts a user with the given role.
func CreateUser(t *testing.T, gdb *gorm.DB, email string, role model.Role) *model.User {
	t.Helper()

	u := &model.User{
		Name:           string(role) + " user",
		Email:          email,
		Password:       "not-a-real-hash",
		Role:           role,
		CurrentSession: 1,
	}
	require.NoError(t, gdb.Create(u).Error)
	return u
}
