// Package affection maps the 0-100 affection score to tone bands and applies
// the score changes caused by choosing a reply option.
package affection

import "github.com/Newrona-pi/textgame-chatapp/internal/protocol"

const (
	Min     = 0
	Max     = 100
	Default = 50
)

// Band is one inclusive affection range and the tone the character takes in it.
type Band struct {
	Min   int
	Max   int
	Label string
	Tone  string
}

var bands = []Band{
	{Min: 0, Max: 20, Label: "hostile", Tone: "冷たく突き放すような態度。言葉は短く素っ気なく、苛立ちや敵意を隠さない"},
	{Min: 21, Max: 40, Label: "curt", Tone: "そっけない態度。必要最低限の言葉だけで、あまり会話を広げようとしない"},
	{Min: 41, Max: 60, Label: "neutral-polite", Tone: "礼儀正しいが少し距離のある普通の態度。丁寧に受け答えする"},
	{Min: 61, Max: 80, Label: "friendly-casual", Tone: "打ち解けたフレンドリーな態度。くだけた口調で、冗談も交える"},
	{Min: 81, Max: 100, Label: "warm-affectionate", Tone: "とても親しげで好意がにじむ態度。甘えるような温かい口調で話す"},
}

// Bands returns the canonical partition in ascending order.
func Bands() []Band {
	out := make([]Band, len(bands))
	copy(out, bands)
	return out
}

// Clamp limits level to [Min, Max].
func Clamp(level int) int {
	if level < Min {
		return Min
	}
	if level > Max {
		return Max
	}
	return level
}

// BandFor returns the band containing the clamped level.
func BandFor(level int) Band {
	level = Clamp(level)
	for _, b := range bands {
		if level <= b.Max {
			return b
		}
	}
	return bands[len(bands)-1]
}

// Delta is the score change for choosing an option with the given tag.
func Delta(tag protocol.Tag) int {
	switch tag {
	case protocol.TagVeryGood:
		return 10
	case protocol.TagGood:
		return 5
	case protocol.TagBad:
		return -5
	case protocol.TagVeryBad:
		return -10
	default:
		return 0
	}
}

// Apply returns level adjusted for the chosen tag, clamped to [Min, Max].
func Apply(level int, tag protocol.Tag) int {
	return Clamp(level + Delta(tag))
}
