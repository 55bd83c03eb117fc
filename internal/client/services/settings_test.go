package services

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/dmitrijs2005/storekeeper/internal/client/models"
	"github.com/dmitrijs2005/storekeeper/internal/cryptox"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSettingsService_EncryptsSensitiveKeys(t *testing.T) {
	st, _ := setupStore(t)
	mirror := filepath.Join(t.TempDir(), MirrorFileName)
	svc := NewSettingsService(st.Settings(), testCodec(t), mirror, nil)
	ctx := context.Background()

	require.NoError(t, svc.Set(ctx, models.SettingRemoteEndpointURL, "https://api.example.com"))
	require.NoError(t, svc.Set(ctx, models.SettingActiveWorkspace, ws))

	raw, ok, err := st.Settings().Get(ctx, models.SettingRemoteEndpointURL)
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, strings.HasPrefix(raw, cryptox.CipherPrefix))

	raw, _, err = st.Settings().Get(ctx, models.SettingActiveWorkspace)
	require.NoError(t, err)
	assert.Equal(t, ws, raw)

	v, ok, err := svc.Get(ctx, models.SettingRemoteEndpointURL)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "https://api.example.com", v)

	v, ok = svc.GetSync(models.SettingRemoteEndpointURL)
	require.True(t, ok)
	assert.Equal(t, "https://api.example.com", v)

	file, err := os.ReadFile(mirror)
	require.NoError(t, err)
	assert.NotContains(t, string(file), "example.com")
	assert.Contains(t, string(file), ws)
}

func TestSettingsService_PrefixLookalikeValueRoundTrips(t *testing.T) {
	st, _ := setupStore(t)
	svc := NewSettingsService(st.Settings(), testCodec(t), filepath.Join(t.TempDir(), MirrorFileName), nil)
	ctx := context.Background()
	value := cryptox.CipherPrefix + "hello"

	require.NoError(t, svc.Set(ctx, models.SettingRemoteEndpointURL, value))

	raw, _, err := st.Settings().Get(ctx, models.SettingRemoteEndpointURL)
	require.NoError(t, err)
	assert.NotEqual(t, value, raw)

	v, ok, err := svc.Get(ctx, models.SettingRemoteEndpointURL)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, value, v)

	v, ok = svc.GetSync(models.SettingRemoteEndpointURL)
	require.True(t, ok)
	assert.Equal(t, value, v)
}

func TestSettingsService_MirrorSurvivesRestart(t *testing.T) {
	st, _ := setupStore(t)
	mirror := filepath.Join(t.TempDir(), MirrorFileName)
	codec := testCodec(t)
	ctx := context.Background()

	first := NewSettingsService(st.Settings(), codec, mirror, nil)
	require.NoError(t, first.Set(ctx, models.SettingRemoteAccessToken, "tok"))
	require.NoError(t, first.Set(ctx, models.SettingActiveUser, "u1"))

	second := NewSettingsService(st.Settings(), codec, mirror, nil)
	v, ok := second.GetSync(models.SettingRemoteAccessToken)
	require.True(t, ok)
	assert.Equal(t, "tok", v)

	v, ok = second.GetSync(models.SettingActiveUser)
	require.True(t, ok)
	assert.Equal(t, "u1", v)

	require.NoError(t, second.Delete(ctx, models.SettingActiveUser))
	_, ok = second.GetSync(models.SettingActiveUser)
	assert.False(t, ok)
	_, ok, err := second.Get(ctx, models.SettingActiveUser)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSettingsService_LegacyPlaintext(t *testing.T) {
	st, _ := setupStore(t)
	svc := NewSettingsService(st.Settings(), testCodec(t), "", nil)
	ctx := context.Background()

	require.NoError(t, st.Settings().Set(ctx, models.SettingRemoteRefreshToken, "plain-refresh"))

	v, ok, err := svc.Get(ctx, models.SettingRemoteRefreshToken)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "plain-refresh", v)

	require.NoError(t, svc.Load(ctx))
	v, ok = svc.GetSync(models.SettingRemoteRefreshToken)
	require.True(t, ok)
	assert.Equal(t, "plain-refresh", v)
}

func TestSettingsService_WrongKey(t *testing.T) {
	st, _ := setupStore(t)
	ctx := context.Background()

	require.NoError(t, NewSettingsService(st.Settings(), testCodec(t), "", nil).
		Set(ctx, models.SettingRemoteAccessToken, "tok"))

	other, err := cryptox.NewPassphraseCodec("different", "storekeeper-test")
	require.NoError(t, err)
	svc := NewSettingsService(st.Settings(), other, "", nil)

	_, _, err = svc.Get(ctx, models.SettingRemoteAccessToken)
	require.ErrorIs(t, err, cryptox.ErrDecrypt)

	require.NoError(t, svc.Load(ctx))
	_, ok := svc.GetSync(models.SettingRemoteAccessToken)
	assert.False(t, ok)
}

func TestSettingsService_CorruptMirrorIgnored(t *testing.T) {
	st, _ := setupStore(t)
	mirror := filepath.Join(t.TempDir(), MirrorFileName)
	require.NoError(t, os.WriteFile(mirror, []byte("{not json"), 0o600))

	svc := NewSettingsService(st.Settings(), nil, mirror, nil)
	_, ok := svc.GetSync(models.SettingActiveWorkspace)
	assert.False(t, ok)

	require.NoError(t, svc.Set(context.Background(), models.SettingActiveWorkspace, ws))
	v, ok := NewSettingsService(st.Settings(), nil, mirror, nil).GetSync(models.SettingActiveWorkspace)
	require.True(t, ok)
	assert.Equal(t, ws, v)
}
