package character

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strings"

	"github.com/rs/zerolog"
)

// LoadFile reads the character table at path. A missing file yields an empty
// roster and a warning, matching a fresh checkout without character data.
func LoadFile(path string, schema Schema, log zerolog.Logger) (*Roster, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			log.Warn().Str("path", path).Msg("character file not found, roster is empty")
			return NewRoster(), nil
		}
		return nil, fmt.Errorf("open character file: %w", err)
	}
	defer f.Close()

	roster, err := Load(f, schema, log)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", path, err)
	}
	log.Info().Str("path", path).Int("characters", roster.Len()).Msg("character roster loaded")
	return roster, nil
}

// Load parses CSV rows with a header line. Rows missing a required field are
// skipped with a warning rather than aborting the load.
func Load(r io.Reader, schema Schema, log zerolog.Logger) (*Roster, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return NewRoster(), nil
		}
		return nil, fmt.Errorf("read header: %w", err)
	}
	if len(header) > 0 {
		header[0] = strings.TrimPrefix(header[0], "\ufeff")
	}

	cols := schema.resolve(header)
	for _, field := range schema.Required {
		if _, ok := cols[field]; !ok {
			log.Error().
				Str("field", string(field)).
				Strs("accepted_columns", schema.Columns[field]).
				Strs("header", header).
				Msg("character file header has no column for a required field, every row will be skipped")
		}
	}

	var chars []Character
	seen := make(map[string]bool)
	line := 1
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		line++
		if err != nil {
			log.Warn().Err(err).Int("line", line).Msg("skipping unreadable character row")
			continue
		}

		get := func(f Field) string {
			i, ok := cols[f]
			if !ok || i >= len(record) {
				return ""
			}
			return strings.TrimSpace(record[i])
		}

		missing := ""
		for _, f := range schema.Required {
			if get(f) == "" {
				missing = string(f)
				break
			}
		}
		if missing != "" {
			log.Warn().Int("line", line).Str("field", missing).Msg("skipping character row missing required field")
			continue
		}

		c := Character{
			ID:                 get(FieldID),
			Name:               get(FieldName),
			Age:                get(FieldAge),
			Personality:        get(FieldPersonality),
			Tone:               get(FieldTone),
			Setting:            get(FieldSetting),
			Background:         get(FieldBackground),
			Gender:             get(FieldGender),
			FirstPerson:        get(FieldFirstPerson),
			FanNickname:        get(FieldFanNickname),
			CharacterImageURL:  get(FieldCharacterImageURL),
			BackgroundImageURL: get(FieldBackgroundImageURL),
		}
		if seen[c.ID] {
			log.Warn().Int("line", line).Str("character_id", c.ID).Msg("duplicate character id, later row wins")
			for i := range chars {
				if chars[i].ID == c.ID {
					chars[i] = c
				}
			}
			continue
		}
		seen[c.ID] = true
		chars = append(chars, c)
	}
	return NewRoster(chars...), nil
}
