package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncryptDecryptRoundTrip(t *testing.T) {
	encrypted, err := EncryptValue("sk-very-secret", "correct horse")
	require.NoError(t, err)
	assert.NotContains(t, encrypted, "sk-very-secret")

	plain, err := DecryptValue(encrypted, "correct horse")
	require.NoError(t, err)
	assert.Equal(t, "sk-very-secret", plain)
}

func TestDecryptWrongPassphrase(t *testing.T) {
	encrypted, err := EncryptValue("sk-very-secret", "correct horse")
	require.NoError(t, err)

	_, err = DecryptValue(encrypted, "wrong horse")
	assert.Error(t, err)
}

func TestDecryptMalformedInput(t *testing.T) {
	for _, input := range []string{"", "no-separator", "zz:zz", "abcd:12"} {
		_, err := DecryptValue(input, "pass")
		assert.Error(t, err, "input %q", input)
	}
}

func TestEncryptValuesDiffer(t *testing.T) {
	a, err := EncryptValue("same", "pass")
	require.NoError(t, err)
	b, err := EncryptValue("same", "pass")
	require.NoError(t, err)
	assert.NotEqual(t, a, b, "random salt and nonce must differ per call")
}
