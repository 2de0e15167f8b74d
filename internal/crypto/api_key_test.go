package crypto

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateAPIKey_Format(t *testing.T) {
	key, err := GenerateAPIKey("prod", "public")
	require.NoError(t, err)
	assert.Regexp(t, `^nm_prod_pk_[a-zA-Z0-9]{40}$`, key)

	key, err = GenerateAPIKey("dev", "secret")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(key, "nm_dev_sk_"))

	key, err = GenerateAPIKey("staging", "service_role")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(key, "nm_staging_sr_"))
}

func TestGenerateAPIKey_UnknownType(t *testing.T) {
	_, err := GenerateAPIKey("prod", "master")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown api key type")
}

func TestGenerateAPIKey_Unique(t *testing.T) {
	a, err := GenerateAPIKey("prod", "public")
	require.NoError(t, err)
	b, err := GenerateAPIKey("prod", "public")
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestHashAPIKey_SaltedAndVerifiable(t *testing.T) {
	key, err := GenerateAPIKey("prod", "secret")
	require.NoError(t, err)

	h1, err := HashAPIKey(key)
	require.NoError(t, err)
	h2, err := HashAPIKey(key)
	require.NoError(t, err)

	// Different salts produce different hashes for the same key.
	assert.NotEqual(t, h1, h2)

	ok, err := VerifyAPIKey(key, h1)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = VerifyAPIKey("nm_prod_sk_wrong", h1)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestVerifyAPIKey_MalformedStored(t *testing.T) {
	_, err := VerifyAPIKey("whatever", "not-a-salted-hash")
	require.Error(t, err)
}

func TestKeyPreview_Truncates(t *testing.T) {
	key, err := GenerateAPIKey("prod", "public")
	require.NoError(t, err)

	preview := KeyPreview(key)
	assert.Len(t, preview, 23) // 20 chars + "..."
	assert.True(t, strings.HasPrefix(key, preview[:20]))
}

func TestKeyPreview_ShortValueUnchanged(t *testing.T) {
	assert.Equal(t, "short", KeyPreview("short"))
}
