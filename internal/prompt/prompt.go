// Package prompt renders model input from character traits, situation,
// affection and conversation history. Rendering performs no I/O and uses no
// randomness, so identical inputs give identical text.
package prompt

import (
	"embed"
	"fmt"
	"strings"
	"text/template"

	"github.com/Newrona-pi/textgame-chatapp/internal/affection"
	"github.com/Newrona-pi/textgame-chatapp/internal/character"
	"github.com/Newrona-pi/textgame-chatapp/internal/protocol"
	"github.com/Newrona-pi/textgame-chatapp/internal/situation"
)

//go:embed templates/*.tmpl
var templateFS embed.FS

const (
	characterTemplate = "character.tmpl"
	optionsTemplate   = "options.tmpl"
	dialogueTemplate  = "dialogue.tmpl"

	// DefaultMaxChars is the length ceiling given for a single character line.
	DefaultMaxChars = 80
)

// Input carries everything a prompt may draw on. Affection is clamped before use.
type Input struct {
	Character        character.Character
	Situation        situation.Situation
	Affection        int
	History          []protocol.Turn
	UserChoice       string
	CharacterMessage string
}

type Composer struct {
	tmpl     *template.Template
	maxChars int
}

func NewComposer() (*Composer, error) {
	tmpl, err := template.New("prompt").Option("missingkey=error").ParseFS(templateFS, "templates/*.tmpl")
	if err != nil {
		return nil, fmt.Errorf("parse prompt templates: %w", err)
	}
	return &Composer{tmpl: tmpl, maxChars: DefaultMaxChars}, nil
}

// MustComposer is NewComposer for package-level use; the templates are compiled in.
func MustComposer() *Composer {
	c, err := NewComposer()
	if err != nil {
		panic(err)
	}
	return c
}

// CharacterMessage renders the prompt for a single in-character line.
func (c *Composer) CharacterMessage(in Input) (string, error) {
	return c.render(characterTemplate, in)
}

// Options renders the prompt for four tagged reply candidates to in.CharacterMessage.
func (c *Composer) Options(in Input) (string, error) {
	return c.render(optionsTemplate, in)
}

// Dialogue renders the combined message-plus-options prompt.
func (c *Composer) Dialogue(in Input) (string, error) {
	return c.render(dialogueTemplate, in)
}

type view struct {
	Character        character.Character
	Date             string
	Weekday          string
	Season           situation.Band
	TimeOfDay        situation.Band
	Location         string
	LocationKnown    bool
	Affection        int
	Band             affection.Band
	History          []protocol.Turn
	UserChoice       string
	CharacterMessage string
	AsksQuestion     bool
	Classmate        string
	MaxChars         int
}

func (c *Composer) render(name string, in Input) (string, error) {
	level := affection.Clamp(in.Affection)
	v := view{
		Character:        in.Character,
		Date:             in.Situation.Date,
		Weekday:          in.Situation.Weekday,
		Season:           in.Situation.Season,
		TimeOfDay:        in.Situation.TimeOfDay,
		Location:         in.Situation.Location.Label(),
		LocationKnown:    in.Situation.Location.Known(),
		Affection:        level,
		Band:             affection.BandFor(level),
		History:          in.History,
		UserChoice:       strings.TrimSpace(in.UserChoice),
		CharacterMessage: strings.TrimSpace(in.CharacterMessage),
		AsksQuestion:     ContainsQuestion(in.CharacterMessage),
		Classmate:        Classmate(in.Character),
		MaxChars:         c.maxChars,
	}

	var b strings.Builder
	if err := c.tmpl.ExecuteTemplate(&b, name, v); err != nil {
		return "", fmt.Errorf("render %s: %w", name, err)
	}
	return strings.TrimSpace(b.String()) + "\n", nil
}

// ContainsQuestion reports whether s has an ASCII or full-width question mark.
func ContainsQuestion(s string) bool {
	return strings.ContainsAny(s, "?？")
}

// Classmate describes the reply persona: a classmate of the opposite gender.
func Classmate(c character.Character) string {
	g := strings.ToLower(strings.TrimSpace(c.Gender))
	switch {
	case g == "":
		return c.Name + "のクラスメイト"
	case strings.Contains(g, "female"), strings.Contains(g, "女"), g == "f":
		return c.Name + "のクラスメイトの男子"
	case strings.Contains(g, "male"), strings.Contains(g, "男"), g == "m":
		return c.Name + "のクラスメイトの女子"
	default:
		return c.Name + "のクラスメイト"
	}
}
