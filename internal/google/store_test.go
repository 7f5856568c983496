package google

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/99designs/keyring"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleCredential() *Credential {
	return &Credential{
		AccessToken:  "ya29.access",
		RefreshToken: "1//refresh",
		TokenType:    "Bearer",
		Expiry:       time.Date(2030, 1, 2, 3, 4, 5, 0, time.UTC),
		Scopes:       ScopesFor(ModeSend),
		ClientID:     "client-id.apps.googleusercontent.com",
		ClientSecret: "client-secret",
		TokenURI:     "https://oauth2.googleapis.com/token",
	}
}

func TestFileTokenStore_LoadMissing(t *testing.T) {
	store := NewFileTokenStore(filepath.Join(t.TempDir(), "nope", "token.json"))

	cred, err := store.Load()
	require.NoError(t, err)
	assert.Nil(t, cred)
}

func TestFileTokenStore_SaveLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "dir", "token.json")
	store := NewFileTokenStore(path)
	assert.Equal(t, path, store.Path())

	want := sampleCredential()
	require.NoError(t, store.Save(want))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	dirInfo, err := os.Stat(filepath.Dir(path))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0700), dirInfo.Mode().Perm())

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	require.Len(t, entries, 1, "no temporary files are left behind")
	assert.Equal(t, "token.json", entries[0].Name())

	got, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, want.AccessToken, got.AccessToken)
	assert.Equal(t, want.RefreshToken, got.RefreshToken)
	assert.Equal(t, want.TokenType, got.TokenType)
	assert.True(t, want.Expiry.Equal(got.Expiry))
	assert.Equal(t, want.Scopes.Slice(), got.Scopes.Slice())
	assert.Equal(t, want.ClientID, got.ClientID)
	assert.Equal(t, want.ClientSecret, got.ClientSecret)
	assert.Equal(t, want.TokenURI, got.TokenURI)
}

func TestFileTokenStore_SaveOverwrites(t *testing.T) {
	path := filepath.Join(t.TempDir(), "token.json")
	store := NewFileTokenStore(path)

	first := sampleCredential()
	require.NoError(t, store.Save(first))

	second := sampleCredential()
	second.AccessToken = "ya29.second"
	require.NoError(t, store.Save(second))

	got, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, "ya29.second", got.AccessToken)
}

func TestFileTokenStore_Corrupt(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{name: "not json", content: "{not json"},
		{name: "truncated", content: `{"token": "abc", "scopes": [`},
		{name: "no tokens", content: `{"scopes": ["https://www.googleapis.com/auth/gmail.readonly"]}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "token.json")
			require.NoError(t, os.WriteFile(path, []byte(tt.content), 0600))

			cred, err := NewFileTokenStore(path).Load()
			assert.Nil(t, cred)
			require.ErrorIs(t, err, ErrCorruptRecord)
		})
	}
}

func TestFileTokenStore_AuthorizedUserFormat(t *testing.T) {
	// Layout written by Google's Python auth library.
	content := `{
  "token": "ya29.py",
  "refresh_token": "1//py",
  "token_uri": "https://oauth2.googleapis.com/token",
  "client_id": "cid",
  "client_secret": "csecret",
  "scopes": ["https://www.googleapis.com/auth/gmail.readonly"],
  "universe_domain": "googleapis.com",
  "account": "",
  "expiry": "2024-05-01T12:00:00.123456Z"
}`
	path := filepath.Join(t.TempDir(), "token.json")
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))

	got, err := NewFileTokenStore(path).Load()
	require.NoError(t, err)
	assert.Equal(t, "ya29.py", got.AccessToken)
	assert.Equal(t, "1//py", got.RefreshToken)
	assert.Equal(t, "cid", got.ClientID)
	assert.True(t, got.Scopes.Contains("https://www.googleapis.com/auth/gmail.readonly"))
	assert.Equal(t, 2024, got.Expiry.Year())
	assert.Equal(t, "Bearer", got.Token().TokenType)
}

func TestFileTokenStore_SaveNil(t *testing.T) {
	require.Error(t, NewFileTokenStore(filepath.Join(t.TempDir(), "t.json")).Save(nil))
}

func TestKeyringTokenStore(t *testing.T) {
	ring := keyring.NewArrayKeyring(nil)
	store := NewKeyringTokenStore(ring)

	cred, err := store.Load()
	require.NoError(t, err)
	assert.Nil(t, cred, "empty keyring means no credential")

	want := sampleCredential()
	require.NoError(t, store.Save(want))

	item, err := ring.Get(KeyringItemKey)
	require.NoError(t, err)
	assert.Contains(t, string(item.Data), `"refresh_token": "1//refresh"`)

	got, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, want.AccessToken, got.AccessToken)
	assert.Equal(t, want.Scopes.Slice(), got.Scopes.Slice())
}

func TestKeyringTokenStore_Corrupt(t *testing.T) {
	ring := keyring.NewArrayKeyring([]keyring.Item{{Key: KeyringItemKey, Data: []byte("garbage")}})

	_, err := NewKeyringTokenStore(ring).Load()
	require.ErrorIs(t, err, ErrCorruptRecord)
}

func TestCredential_Expired(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name   string
		expiry time.Time
		leeway time.Duration
		want   bool
	}{
		{name: "zero expiry never expires", expiry: time.Time{}, leeway: time.Minute, want: false},
		{name: "well in the future", expiry: now.Add(time.Hour), leeway: time.Minute, want: false},
		{name: "inside leeway", expiry: now.Add(30 * time.Second), leeway: time.Minute, want: true},
		{name: "exactly at leeway", expiry: now.Add(time.Minute), leeway: time.Minute, want: true},
		{name: "past", expiry: now.Add(-time.Second), leeway: 0, want: true},
		{name: "no leeway future", expiry: now.Add(time.Second), leeway: 0, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := &Credential{AccessToken: "a", Expiry: tt.expiry}
			assert.Equal(t, tt.want, c.Expired(now, tt.leeway))
		})
	}
}
