package character

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const englishCSV = `character_id,name,age,personality,tone,setting,background,gender,first_person,fan_nickname,character_image_url
mano,真乃,16,おっとりした,やわらかい敬語,高校2年生のアイドル,鳥が好き,女性,わたし,プロデューサーさん,https://example.test/mano.png
hiori,灯織,16,真面目な,丁寧な口調,高校2年生のアイドル,占いが好き,女性,私,プロデューサー,
`

func TestLoadEnglishHeader(t *testing.T) {
	r, err := Load(strings.NewReader(englishCSV), DefaultSchema(), zerolog.Nop())
	require.NoError(t, err)
	require.Equal(t, 2, r.Len())

	mano, err := r.Get("mano")
	require.NoError(t, err)
	assert.Equal(t, "真乃", mano.Name)
	assert.Equal(t, "16", mano.Age)
	assert.Equal(t, "女性", mano.Gender)
	assert.Equal(t, "わたし", mano.FirstPerson)
	assert.Equal(t, "https://example.test/mano.png", mano.CharacterImageURL)

	assert.Equal(t, []string{"hiori", "mano"}, r.IDs())
}

func TestLoadJapaneseHeaderRevision(t *testing.T) {
	csv := "\ufeffキャラクターID,名前,年齢,性格,口調\nmeguru,めぐる,16,元気な,明るいタメ口\n"
	r, err := Load(strings.NewReader(csv), DefaultSchema(), zerolog.Nop())
	require.NoError(t, err)

	c, err := r.Get("meguru")
	require.NoError(t, err)
	assert.Equal(t, "めぐる", c.Name)
	assert.Equal(t, "明るいタメ口", c.Tone)
}

func TestLoadSkipsRowsMissingRequiredFields(t *testing.T) {
	csv := "character_id,name,age\n,名無し,10\nkogane,恋鐘,17\nnoname,,20\n"
	var buf bytes.Buffer
	r, err := Load(strings.NewReader(csv), DefaultSchema(), zerolog.New(&buf))
	require.NoError(t, err)

	assert.Equal(t, []string{"kogane"}, r.IDs())
	assert.Equal(t, 2, strings.Count(buf.String(), "skipping character row missing required field"))
}

func TestLoadLogsHeaderWithoutIdentifierColumn(t *testing.T) {
	csv := "chara,name\nx,X\n"
	var buf bytes.Buffer
	r, err := Load(strings.NewReader(csv), DefaultSchema(), zerolog.New(&buf))
	require.NoError(t, err)
	assert.Zero(t, r.Len())
	assert.Contains(t, buf.String(), "no column for a required field")
}

func TestLoadWithSchemaOverride(t *testing.T) {
	schema, err := ParseSchema("id=chara, name=display_name|name")
	require.NoError(t, err)

	csv := "chara,display_name\nx,エックス\n"
	r, err := Load(strings.NewReader(csv), schema, zerolog.Nop())
	require.NoError(t, err)
	c, err := r.Get("x")
	require.NoError(t, err)
	assert.Equal(t, "エックス", c.Name)
}

func TestLoadDuplicateIDLaterRowWins(t *testing.T) {
	csv := "id,name\na,first\na,second\n"
	r, err := Load(strings.NewReader(csv), DefaultSchema(), zerolog.Nop())
	require.NoError(t, err)
	c, err := r.Get("a")
	require.NoError(t, err)
	assert.Equal(t, "second", c.Name)
	assert.Equal(t, 1, r.Len())
}

func TestLoadShortRowsAreTolerated(t *testing.T) {
	csv := "character_id,name,age,personality\nshort,ショート\n"
	r, err := Load(strings.NewReader(csv), DefaultSchema(), zerolog.Nop())
	require.NoError(t, err)
	c, err := r.Get("short")
	require.NoError(t, err)
	assert.Empty(t, c.Personality)
}

func TestParseSchemaRejectsBadSpecs(t *testing.T) {
	for _, overrides := range []string{"nonsense", "height=cm", "name="} {
		_, err := ParseSchema(overrides)
		assert.Error(t, err, overrides)
	}
}

func TestLoadFileMissingIsEmptyRoster(t *testing.T) {
	r, err := LoadFile(filepath.Join(t.TempDir(), "none.csv"), DefaultSchema(), zerolog.Nop())
	require.NoError(t, err)
	assert.Zero(t, r.Len())
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "characters.csv")
	require.NoError(t, os.WriteFile(path, []byte(englishCSV), 0o600))

	r, err := LoadFile(path, DefaultSchema(), zerolog.Nop())
	require.NoError(t, err)
	assert.Equal(t, 2, r.Len())

	_, err = r.Get("unknown_x")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestProfile(t *testing.T) {
	c := Character{ID: "mano", Name: "真乃", Age: "16", Personality: "おっとり", Tone: "敬語"}
	p := c.Profile()
	assert.Equal(t, Profile{ID: "mano", Name: "真乃", Age: "16", Personality: "おっとり"}, p)
}
