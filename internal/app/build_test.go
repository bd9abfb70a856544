package app

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Newrona-pi/textgame-chatapp/internal/config"
	"github.com/Newrona-pi/textgame-chatapp/internal/geocode"
	"github.com/Newrona-pi/textgame-chatapp/internal/protocol"
	"github.com/Newrona-pi/textgame-chatapp/internal/records"
)

func testConfig(t *testing.T) config.Config {
	t.Helper()
	dir := t.TempDir()
	csvPath := filepath.Join(dir, "characters.csv")
	require.NoError(t, os.WriteFile(csvPath, []byte(
		"character_id,name,age,personality,tone,setting,background,gender\n"+
			"mano,真乃,16,おっとりした,敬語,アイドル,鳩が好き,女性\n",
	), 0o600))

	return config.Config{
		BindAddr:           ":0",
		MetricsNamespace:   "app_test",
		Timezone:           "Asia/Tokyo",
		AllowedOrigins:     []string{"*"},
		CompletionMode:     config.CompletionModeMock,
		CharactersFile:     csvPath,
		DefaultCharacterID: "mano",
		DefaultAffection:   50,
		GeocoderMode:       config.GeocoderModeOff,
		GeocodeCacheSize:   10,
		GeocodeCacheTTL:    1,
		DatabaseURL:        "sqlite://" + filepath.Join(dir, "records.db"),
		RedactLogPII:       true,
	}
}

func TestBuildWiresDialogue(t *testing.T) {
	res, err := Build(context.Background(), testConfig(t), zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = res.Cleanup() })

	assert.Equal(t, 1, res.Roster.Len())
	assert.IsType(t, &records.SQLiteStore{}, res.Records)

	out := res.Dialogue.Start(context.Background(), protocol.DialogueRequest{})
	assert.Equal(t, "ok", out.Response().Outcome)
	assert.Len(t, out.Options, 4)

	ts := httptest.NewServer(res.API.Router())
	defer ts.Close()
	resp, err := http.Get(ts.URL + "/readyz")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestBuildRejectsBadSchema(t *testing.T) {
	cfg := testConfig(t)
	cfg.CharacterColumns = "nickname=x"
	_, err := Build(context.Background(), cfg, zerolog.Nop())
	require.Error(t, err)
}

func TestBuildRejectsBadDatabaseURL(t *testing.T) {
	cfg := testConfig(t)
	cfg.DatabaseURL = "mysql://nope"
	_, err := Build(context.Background(), cfg, zerolog.Nop())
	require.Error(t, err)
}

func TestNewResolverHonoursMode(t *testing.T) {
	cfg := testConfig(t)
	assert.IsType(t, geocode.Disabled{}, NewResolver(cfg, zerolog.Nop(), nil))

	cfg.GeocoderMode = config.GeocoderModeNominatim
	assert.IsType(t, &geocode.CachedResolver{}, NewResolver(cfg, zerolog.Nop(), nil))
}
