package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Tag encodes the sentiment of a reply option.
type Tag string

const (
	TagVeryGood Tag = "v-good"
	TagGood     Tag = "good"
	TagBad      Tag = "bad"
	TagVeryBad  Tag = "v-bad"
)

// Tags lists every option tag in prompt order.
var Tags = []Tag{TagVeryGood, TagGood, TagBad, TagVeryBad}

// ParseTag trims s and reports whether it names one of the four option tags.
func ParseTag(s string) (Tag, bool) {
	t := Tag(strings.TrimSpace(s))
	switch t {
	case TagVeryGood, TagGood, TagBad, TagVeryBad:
		return t, true
	default:
		return "", false
	}
}

// Option is a reply candidate offered to the user.
type Option struct {
	Text string `json:"text"`
	Type Tag    `json:"type"`
}

// Turn is one exchange of a caller-supplied conversation history.
type Turn struct {
	User      string `json:"user"`
	Character string `json:"character"`
}

type Coordinates struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// DialogueRequest is the body shared by every dialogue endpoint.
type DialogueRequest struct {
	CharacterID         string   `json:"character_id"`
	UserChoice          *string  `json:"user_choice,omitempty"`
	CharacterMessage    string   `json:"character_message,omitempty"`
	ConversationHistory []Turn   `json:"conversation_history,omitempty"`
	Lat                 *float64 `json:"lat,omitempty"`
	Lon                 *float64 `json:"lon,omitempty"`
	AffectionLevel      *int     `json:"affection_level,omitempty"`
}

// Coordinates returns nil unless both latitude and longitude were supplied.
func (r DialogueRequest) Coordinates() *Coordinates {
	if r.Lat == nil || r.Lon == nil {
		return nil
	}
	return &Coordinates{Lat: *r.Lat, Lon: *r.Lon}
}

func (r DialogueRequest) Choice() string {
	if r.UserChoice == nil {
		return ""
	}
	return *r.UserChoice
}

// DialogueResponse is returned by the dialogue endpoints.
type DialogueResponse struct {
	Success bool     `json:"success"`
	Message string   `json:"message"`
	Options []Option `json:"options"`
	Outcome string   `json:"outcome"`
}

// MessageType identifies websocket payload variants.
type MessageType string

const (
	TypeDialogueRequest  MessageType = "dialogue_request"
	TypeCharacterMessage MessageType = "character_message"
	TypeDialogueOptions  MessageType = "dialogue_options"
	TypeErrorEvent       MessageType = "error_event"
)

const (
	ModeStart = "start"
	ModeNext  = "next"
)

var ErrUnsupportedType = errors.New("unsupported message type")

type Envelope struct {
	Type MessageType `json:"type"`
}

// ClientDialogueRequest asks the server to push a character line followed by options.
type ClientDialogueRequest struct {
	Type      MessageType `json:"type"`
	RequestID string      `json:"request_id,omitempty"`
	Mode      string      `json:"mode"`
	DialogueRequest
}

type CharacterMessageEvent struct {
	Type      MessageType `json:"type"`
	RequestID string      `json:"request_id,omitempty"`
	Message   string      `json:"message"`
	Outcome   string      `json:"outcome"`
}

type DialogueOptionsEvent struct {
	Type      MessageType `json:"type"`
	RequestID string      `json:"request_id,omitempty"`
	Options   []Option    `json:"options"`
	Outcome   string      `json:"outcome"`
}

type ErrorEvent struct {
	Type      MessageType `json:"type"`
	RequestID string      `json:"request_id,omitempty"`
	Code      string      `json:"code"`
	Detail    string      `json:"detail"`
}

func ParseClientMessage(raw []byte) (any, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("invalid envelope: %w", err)
	}

	switch env.Type {
	case TypeDialogueRequest:
		var msg ClientDialogueRequest
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, err
		}
		msg.Mode = strings.ToLower(strings.TrimSpace(msg.Mode))
		if msg.Mode == "" {
			msg.Mode = ModeStart
		}
		switch msg.Mode {
		case ModeStart:
		case ModeNext:
			if msg.UserChoice == nil {
				return nil, errors.New("invalid dialogue_request: user_choice is required for next")
			}
		default:
			return nil, fmt.Errorf("invalid dialogue_request: unknown mode %q", msg.Mode)
		}
		return msg, nil
	default:
		return nil, ErrUnsupportedType
	}
}
