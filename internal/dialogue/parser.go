package dialogue

import (
	"regexp"
	"strings"

	"github.com/Newrona-pi/textgame-chatapp/internal/protocol"
)

// MaxOptions is the most options a single reply can carry.
const MaxOptions = 4

var optionStart = regexp.MustCompile(`^[1-4]\.`)

var messageLabels = []string{"メッセージ:", "メッセージ："}

const optionTextCutset = " \t　「」『』\"“”"

// ParseFull splits a combined reply into the message and its options. The
// options block starts at the first line shaped like "N. ... #tag"; when there
// is none, the whole text is the message. Malformed option lines are dropped.
func ParseFull(text string) (string, []protocol.Option) {
	lines := nonEmptyLines(text)

	start := -1
	for i, line := range lines {
		if optionStart.MatchString(line) && strings.Contains(line, "#") {
			start = i
			break
		}
	}
	if start < 0 {
		return strings.TrimSpace(text), []protocol.Option{}
	}

	return stripMessageLabel(strings.Join(lines[:start], " ")), parseOptionLines(lines[start:])
}

// ParseOptions parses every non-empty line as an option, with no message extraction.
func ParseOptions(text string) []protocol.Option {
	return parseOptionLines(nonEmptyLines(text))
}

// CleanMessage trims a character-only reply and removes a leading message label.
func CleanMessage(text string) string {
	return stripMessageLabel(strings.Join(nonEmptyLines(text), " "))
}

func parseOptionLines(lines []string) []protocol.Option {
	out := make([]protocol.Option, 0, MaxOptions)
	for _, line := range lines {
		if len(out) == MaxOptions {
			break
		}
		if opt, ok := parseOptionLine(line); ok {
			out = append(out, opt)
		}
	}
	return out
}

// parseOptionLine reads `N. 「text」 #tag`: split once on the first ".", then
// on the last "#".
func parseOptionLine(line string) (protocol.Option, bool) {
	_, rest, ok := strings.Cut(line, ".")
	if !ok {
		return protocol.Option{}, false
	}
	i := strings.LastIndex(rest, "#")
	if i < 0 {
		return protocol.Option{}, false
	}
	tag, ok := protocol.ParseTag(rest[i+1:])
	if !ok {
		return protocol.Option{}, false
	}
	text := strings.Trim(rest[:i], optionTextCutset)
	if text == "" {
		return protocol.Option{}, false
	}
	return protocol.Option{Text: text, Type: tag}, true
}

func nonEmptyLines(text string) []string {
	raw := strings.Split(text, "\n")
	out := make([]string, 0, len(raw))
	for _, line := range raw {
		if line = strings.TrimSpace(line); line != "" {
			out = append(out, line)
		}
	}
	return out
}

func stripMessageLabel(s string) string {
	s = strings.TrimSpace(s)
	for _, label := range messageLabels {
		if strings.HasPrefix(s, label) {
			return strings.TrimSpace(strings.TrimPrefix(s, label))
		}
	}
	return s
}
