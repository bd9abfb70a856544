// Package records persists per-tag conversation logs: one record per
// (character, physical tag) pair holding last location and affection, plus
// an ordered log of messages.
package records

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Newrona-pi/textgame-chatapp/internal/affection"
	"github.com/Newrona-pi/textgame-chatapp/internal/policy"
	"github.com/Newrona-pi/textgame-chatapp/internal/protocol"
)

var (
	ErrNotFound       = errors.New("record not found")
	ErrInvalidRequest = errors.New("invalid record request")
)

type Sender string

const (
	SenderUser      Sender = "user"
	SenderCharacter Sender = "character"
)

func (s Sender) Valid() bool {
	return s == SenderUser || s == SenderCharacter
}

// Record is updated in place; scalar fields keep no history.
type Record struct {
	ID             string     `json:"id"`
	CharacterID    string     `json:"character_id"`
	TagID          string     `json:"tag_id"`
	LastLat        *float64   `json:"last_location_lat,omitempty"`
	LastLon        *float64   `json:"last_location_lon,omitempty"`
	LastLocationAt *time.Time `json:"last_location_time,omitempty"`
	Affection      int        `json:"affection_level"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

type LogEntry struct {
	ID          string    `json:"id"`
	Message     string    `json:"message"`
	Sender      Sender    `json:"sender"`
	PIIRedacted bool      `json:"pii_redacted"`
	Timestamp   time.Time `json:"timestamp"`
}

// History is a record and its full log in insertion order.
type History struct {
	Record  Record     `json:"record"`
	Entries []LogEntry `json:"conversations"`
}

type NewEntry struct {
	Message string `json:"message"`
	Sender  Sender `json:"sender"`
}

// AppendRequest creates the record on first use, then applies the optional
// location and affection updates and appends Entries in order.
type AppendRequest struct {
	CharacterID string       `json:"-"`
	TagID       string       `json:"-"`
	Lat         *float64     `json:"lat,omitempty"`
	Lon         *float64     `json:"lon,omitempty"`
	Affection   *int         `json:"affection_level,omitempty"`
	ChosenTag   protocol.Tag `json:"chosen_type,omitempty"`
	Entries     []NewEntry   `json:"conversations"`
	At          time.Time    `json:"-"`
}

type Store interface {
	Append(ctx context.Context, req AppendRequest) (History, error)
	History(ctx context.Context, characterID, tagID string) (History, error)
	Close() error
}

func (r AppendRequest) validate() error {
	if strings.TrimSpace(r.CharacterID) == "" || strings.TrimSpace(r.TagID) == "" {
		return fmt.Errorf("%w: character_id and tag_id are required", ErrInvalidRequest)
	}
	if r.ChosenTag != "" {
		if _, ok := protocol.ParseTag(string(r.ChosenTag)); !ok {
			return fmt.Errorf("%w: unknown chosen_type %q", ErrInvalidRequest, r.ChosenTag)
		}
	}
	for i, e := range r.Entries {
		if !e.Sender.Valid() {
			return fmt.Errorf("%w: entry %d has sender %q", ErrInvalidRequest, i, e.Sender)
		}
	}
	return nil
}

// prepare validates req, stamps it and masks entry text.
func prepare(req AppendRequest, redactor policy.Redactor) (AppendRequest, []LogEntry, error) {
	if err := req.validate(); err != nil {
		return req, nil, err
	}
	req.CharacterID = strings.TrimSpace(req.CharacterID)
	req.TagID = strings.TrimSpace(req.TagID)
	if req.At.IsZero() {
		req.At = time.Now().UTC()
	}

	entries := make([]LogEntry, 0, len(req.Entries))
	for _, e := range req.Entries {
		msg, redacted := redactor.Redact(e.Message)
		entries = append(entries, LogEntry{
			Message:     msg,
			Sender:      e.Sender,
			PIIRedacted: redacted,
			Timestamp:   req.At,
		})
	}
	return req, entries, nil
}

// apply mutates rec with the scalar updates in req. An explicit affection
// level is set first and a chosen option's delta is applied on top of it.
func apply(rec *Record, req AppendRequest) {
	if req.Lat != nil && req.Lon != nil {
		lat, lon, at := *req.Lat, *req.Lon, req.At
		rec.LastLat, rec.LastLon, rec.LastLocationAt = &lat, &lon, &at
	}
	if req.Affection != nil {
		rec.Affection = affection.Clamp(*req.Affection)
	}
	if req.ChosenTag != "" {
		rec.Affection = affection.Apply(rec.Affection, req.ChosenTag)
	}
	rec.UpdatedAt = req.At
}
