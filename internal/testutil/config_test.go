package testutil

import (
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultTestDBConfig(t *testing.T) {
	for _, key := range []string{"TEST_DB_HOST", "TEST_DB_PORT", "TEST_DB_USER", "TEST_DB_PASSWORD", "TEST_DB_NAME", "TEST_DB_SSL_MODE"} {
		t.Setenv(key, "")
	}

	cfg := DefaultTestDBConfig()
	assert.Equal(t, TestDBConfig{
		Host:     "localhost",
		Port:     "55432",
		User:     "webfront",
		Password: "webfront",
		DBName:   "webfront",
		SSLMode:  "disable",
	}, cfg)

	t.Setenv("TEST_DB_PORT", "5432")
	assert.Equal(t, "5432", DefaultTestDBConfig().Port)
}

func TestTestDBConfig_DSN(t *testing.T) {
	cfg := TestDBConfig{Host: "db", Port: "5432", User: "u", Password: "p@ss/word", DBName: "webfront", SSLMode: "disable"}

	u, err := url.Parse(cfg.DSN("t_abc"))
	require.NoError(t, err)
	assert.Equal(t, "db:5432", u.Host)
	pw, _ := u.User.Password()
	assert.Equal(t, "p@ss/word", pw)
	assert.Equal(t, "t_abc", u.Query().Get("search_path"))

	u, err = url.Parse(cfg.DSN(""))
	require.NoError(t, err)
	assert.False(t, u.Query().Has("search_path"))
}

func TestEnvBool(t *testing.T) {
	for _, v := range []string{"1", "true", "YES", "y"} {
		t.Setenv("WEBFRONT_TEST_FLAG", v)
		assert.True(t, envBool("WEBFRONT_TEST_FLAG"), v)
	}
	t.Setenv("WEBFRONT_TEST_FLAG", "off")
	assert.False(t, envBool("WEBFRONT_TEST_FLAG"))
}
