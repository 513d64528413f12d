package crypto

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHMACHeadersDeterministic(t *testing.T) {
	auth := &HMACAuth{Key: "test-key", Secret: "test-secret"}

	h1 := auth.HeadersAt("symbol=BTCUSDT&category=linear", 1700000000000)
	h2 := auth.HeadersAt("symbol=BTCUSDT&category=linear", 1700000000000)

	assert.Equal(t, "test-key", h1["X-BAPI-API-KEY"])
	assert.Equal(t, "1700000000000", h1["X-BAPI-TIMESTAMP"])
	assert.Equal(t, "5000", h1["X-BAPI-RECV-WINDOW"])
	assert.Equal(t, h1["X-BAPI-SIGN"], h2["X-BAPI-SIGN"])
	assert.Len(t, h1["X-BAPI-SIGN"], 64) // hex SHA-256
}

func TestHMACSignatureVariesWithPayload(t *testing.T) {
	auth := &HMACAuth{Key: "k", Secret: "s"}
	a := auth.HeadersAt("payload-a", 1700000000000)
	b := auth.HeadersAt("payload-b", 1700000000000)
	assert.NotEqual(t, a["X-BAPI-SIGN"], b["X-BAPI-SIGN"])
}

func TestHMACStringRedacts(t *testing.T) {
	auth := &HMACAuth{Key: "abcdef123456", Secret: "supersecret"}
	s := auth.String()
	assert.NotContains(t, s, "abcdef123456")
	assert.NotContains(t, s, "supersecret")
	assert.Contains(t, s, "abcd****")
}

func TestCredentialsRoundTrip(t *testing.T) {
	creds := Credentials{APIKey: "my-key", APISecret: "my-secret"}

	blob, err := EncryptCredentials(creds, "hunter2")
	require.NoError(t, err)
	assert.NotContains(t, string(blob), "my-secret")

	got, err := DecryptCredentials(blob, "hunter2")
	require.NoError(t, err)
	assert.Equal(t, creds, got)
}

func TestCredentialsWrongPassword(t *testing.T) {
	blob, err := EncryptCredentials(Credentials{APIKey: "k", APISecret: "s"}, "right")
	require.NoError(t, err)

	_, err = DecryptCredentials(blob, "wrong")
	assert.Error(t, err)
}

func TestLoadCredentialsDirect(t *testing.T) {
	got, err := LoadCredentials(CredentialsConfig{APIKey: "k", APISecret: "s"})
	require.NoError(t, err)
	assert.Equal(t, "k", got.APIKey)

	_, err = LoadCredentials(CredentialsConfig{})
	assert.Error(t, err)
}
