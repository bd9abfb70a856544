package main

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Newrona-pi/textgame-chatapp/internal/character"
	"github.com/Newrona-pi/textgame-chatapp/internal/geocode"
	"github.com/Newrona-pi/textgame-chatapp/internal/prompt"
	"github.com/Newrona-pi/textgame-chatapp/internal/situation"
)

func TestRootCommandRegistersSubcommands(t *testing.T) {
	root := newRootCmd()
	for _, name := range []string{"serve", "roster", "prompt"} {
		cmd, _, err := root.Find([]string{name})
		require.NoError(t, err)
		assert.Equal(t, name, cmd.Name())
	}
	assert.NotNil(t, root.PersistentFlags().Lookup("env-file"))
}

func TestPrintRoster(t *testing.T) {
	roster := character.NewRoster(
		character.Character{ID: "mano", Name: "真乃", Age: "16", Personality: "穏やか"},
		character.Character{ID: "akari", Name: "あかり", Age: "17", Personality: "元気"},
	)
	var buf bytes.Buffer
	require.NoError(t, printRoster(&buf, roster))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 3)
	assert.True(t, strings.HasPrefix(lines[0], "ID"))
	assert.Contains(t, lines[1], "akari")
	assert.Contains(t, lines[2], "真乃")
}

func TestRenderPromptKinds(t *testing.T) {
	builder, err := situation.NewBuilder("Asia/Tokyo", geocode.Disabled{})
	require.NoError(t, err)
	in := prompt.Input{
		Character: character.Character{ID: "mano", Name: "真乃", Gender: "female"},
		Situation: builder.At(context.Background(), time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC), nil),
		Affection: 50,
	}
	c := prompt.MustComposer()

	text, err := renderPrompt(c, "character", in)
	require.NoError(t, err)
	assert.Contains(t, text, "真乃")

	_, err = renderPrompt(c, "options", in)
	require.Error(t, err)

	in.CharacterMessage = "おはよう！"
	text, err = renderPrompt(c, "options", in)
	require.NoError(t, err)
	assert.Contains(t, text, "おはよう！")

	_, err = renderPrompt(c, "dialogue", in)
	require.NoError(t, err)

	_, err = renderPrompt(c, "poem", in)
	require.Error(t, err)
}
