package config

import (
	"testing"

	"github.com/go-sql-driver/mysql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRawDSN_MySQLForcesClientFoundRows(t *testing.T) {
	c := Config{DB: DBConfig{Driver: "mysql", DatabaseURL: "app:pw@tcp(db:3306)/leads?charset=utf8mb4"}}

	dsn, err := c.rawDSN()
	require.NoError(t, err)

	mc, err := mysql.ParseDSN(dsn)
	require.NoError(t, err)
	assert.True(t, mc.ClientFoundRows)
	assert.True(t, mc.ParseTime)
	assert.Equal(t, "app", mc.User)
	assert.Equal(t, "db:3306", mc.Addr)
	assert.Equal(t, "leads", mc.DBName)
	assert.Contains(t, dsn, "charset=utf8mb4")
}

func TestRawDSN_MySQLInvalid(t *testing.T) {
	c := Config{DB: DBConfig{Driver: "mysql", DatabaseURL: "app:pw@tcp(db:3306"}}

	_, err := c.rawDSN()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "config: LEADMANAGER_DATABASE_URL")
}

func TestRawDSN_OtherDriversVerbatim(t *testing.T) {
	for _, drv := range []string{"sqlite3", "postgres"} {
		c := Config{DB: DBConfig{Driver: drv, DatabaseURL: "whatever?x=1"}}
		dsn, err := c.rawDSN()
		require.NoError(t, err)
		assert.Equal(t, "whatever?x=1", dsn, drv)
	}
}
