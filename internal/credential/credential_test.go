package credential

import (
	"context"
	"encoding/base64"
	"path/filepath"
	"testing"

	"github.com/koustreak/qgenie/internal/errs"
	"github.com/koustreak/qgenie/internal/logger"
	"github.com/koustreak/qgenie/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testCipher(t *testing.T) *Cipher {
	t.Helper()
	key, err := GenerateKey()
	require.NoError(t, err)
	c, err := NewCipher(key)
	require.NoError(t, err)
	return c
}

func TestCipher_RoundTrip(t *testing.T) {
	c := testCipher(t)

	a, err := c.Encrypt("s3cret")
	require.NoError(t, err)
	b, err := c.Encrypt("s3cret")
	require.NoError(t, err)
	assert.NotEqual(t, a, b, "nonce must differ per call")

	plain, err := c.Decrypt(a)
	require.NoError(t, err)
	assert.Equal(t, "s3cret", plain)
}

func TestCipher_RejectsTampering(t *testing.T) {
	c := testCipher(t)
	ct, err := c.Encrypt("value")
	require.NoError(t, err)

	raw, _ := base64.StdEncoding.DecodeString(ct)
	raw[len(raw)-1] ^= 0xff
	_, err = c.Decrypt(base64.StdEncoding.EncodeToString(raw))
	require.Error(t, err)
	assert.Equal(t, errs.CodeFailDecrypt, errs.CodeOf(err))

	_, err = testCipher(t).Decrypt(ct)
	assert.Error(t, err, "foreign key must not decrypt")

	_, err = c.Decrypt("AAAA")
	assert.Error(t, err)
}

func TestNewCipher_InvalidKeys(t *testing.T) {
	tests := []struct {
		name string
		key  string
	}{
		{"empty", ""},
		{"not base64", "!!!"},
		{"short", base64.StdEncoding.EncodeToString([]byte("short"))},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewCipher(tt.key)
			require.Error(t, err)
			assert.True(t, errs.IsInvalidInput(err))
		})
	}
}

func TestParseProvider(t *testing.T) {
	p, err := ParseProvider(" openai ")
	require.NoError(t, err)
	assert.Equal(t, ProviderOpenAI, p)

	_, err = ParseProvider("skynet")
	assert.True(t, errs.IsInvalidInput(err))
}

func newVault(t *testing.T) *Vault {
	t.Helper()
	s, err := store.Open(context.Background(), store.Options{Path: filepath.Join(t.TempDir(), "s.sqlite")}, logger.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return NewVault(s.DB(), testCipher(t), logger.Nop())
}

func TestVault_Lifecycle(t *testing.T) {
	ctx := context.Background()
	v := newVault(t)

	c, err := v.Save(ctx, ProviderOpenAI, "sk-one")
	require.NoError(t, err)
	assert.Regexp(t, `^API-KEY-[0-9A-F]{32}$`, c.ID)
	assert.Empty(t, c.Key)

	_, err = v.Save(ctx, ProviderOpenAI, "sk-two")
	require.Error(t, err)
	assert.Equal(t, errs.CodeDuplication, errs.CodeOf(err))

	key, err := v.Key(ctx, ProviderOpenAI)
	require.NoError(t, err)
	assert.Equal(t, "sk-one", key)

	_, err = v.Update(ctx, ProviderOpenAI, "sk-three")
	require.NoError(t, err)
	key, err = v.Key(ctx, ProviderOpenAI)
	require.NoError(t, err)
	assert.Equal(t, "sk-three", key)

	list, err := v.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, ProviderOpenAI, list[0].Service)

	require.NoError(t, v.Delete(ctx, ProviderOpenAI))
	_, err = v.Key(ctx, ProviderOpenAI)
	assert.True(t, errs.IsNotFound(err))
	assert.True(t, errs.IsNotFound(v.Delete(ctx, ProviderOpenAI)))
}

func TestVault_UpdateMissing(t *testing.T) {
	_, err := newVault(t).Update(context.Background(), ProviderGemini, "k")
	assert.True(t, errs.IsNotFound(err))
}
