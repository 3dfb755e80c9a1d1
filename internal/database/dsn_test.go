package database

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBuildPostgresDSNDefaults(t *testing.T) {
	dsn, err := buildPostgresDSN(Config{User: "reviewhub", Name: "reviewhub"})
	require.NoError(t, err)
	require.Equal(t,
		"host=localhost port=5432 user=reviewhub dbname=reviewhub TimeZone=UTC application_name=reviewhub sslmode=disable",
		dsn,
	)
}

func TestBuildPostgresDSNWithOptions(t *testing.T) {
	dsn, err := buildPostgresDSN(Config{
		User:     "user",
		Name:     "db",
		Host:     "db.example.com",
		Port:     6543,
		Password: "pass",
		Options: map[string]string{
			"sslmode":     "require",
			"search_path": "public",
		},
	})
	require.NoError(t, err)

	for _, part := range []string{
		"host=db.example.com", "port=6543", "user=user", "dbname=db",
		"password=pass", "sslmode=require", "search_path=public",
	} {
		require.Contains(t, dsn, part)
	}
}

func TestBuildPostgresDSNRequiresUserAndName(t *testing.T) {
	_, err := buildPostgresDSN(Config{})
	require.Error(t, err)
}

func TestBuildMySQLDSNDefaults(t *testing.T) {
	dsn, err := buildMySQLDSN(Config{User: "reviewhub", Name: "reviewhub"})
	require.NoError(t, err)
	require.Equal(t, "reviewhub@tcp(127.0.0.1:3306)/reviewhub?charset=utf8mb4&loc=UTC&parseTime=True", dsn)
}

func TestBuildMySQLDSNWithOptions(t *testing.T) {
	dsn, err := buildMySQLDSN(Config{
		User:     "user",
		Password: "secret",
		Name:     "db",
		Host:     "db.example.com",
		Port:     3307,
		Options:  map[string]string{"tls": "skip-verify"},
	})
	require.NoError(t, err)
	require.Contains(t, dsn, "user:secret@tcp(db.example.com:3307)/db?")
	require.Contains(t, dsn, "tls=skip-verify")
}

func TestBuildMySQLDSNRequiresUserAndName(t *testing.T) {
	_, err := buildMySQLDSN(Config{Host: "localhost"})
	require.Error(t, err)
}

func TestSQLiteFileDSNTakesWriteLockUpFront(t *testing.T) {
	dsn := sqliteFileDSN("data/reviewhub.sqlite")
	require.True(t, strings.HasPrefix(dsn, "file:data/reviewhub.sqlite?"))
	for _, part := range []string{"_foreign_keys=1", "_journal_mode=WAL", "_busy_timeout=5000", "_txlock=immediate"} {
		require.Contains(t, dsn, part)
	}
}
