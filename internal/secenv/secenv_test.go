package secenv

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func withSetid(t *testing.T, v bool) {
	t.Helper()
	prev := setid
	setid = func() bool { return v }
	t.Cleanup(func() { setid = prev })
}

func TestGetenv(t *testing.T) {
	t.Setenv("KCMCACHE_SECENV_TEST", "/home/mallory/krb5.conf")

	t.Run("SameIDs", func(t *testing.T) {
		withSetid(t, false)
		assert.False(t, Setid())
		assert.Equal(t, "/home/mallory/krb5.conf", Getenv("KCMCACHE_SECENV_TEST"))

		v, ok := LookupEnv("KCMCACHE_SECENV_TEST")
		assert.True(t, ok)
		assert.Equal(t, "/home/mallory/krb5.conf", v)
	})

	t.Run("SetidIgnoresEnvironment", func(t *testing.T) {
		withSetid(t, true)
		assert.True(t, Setid())
		assert.Empty(t, Getenv("KCMCACHE_SECENV_TEST"))

		_, ok := LookupEnv("KCMCACHE_SECENV_TEST")
		assert.False(t, ok)
	})
}

func TestProcessSetid(t *testing.T) {
	// go test is never installed set-id.
	assert.False(t, processSetid())
}
