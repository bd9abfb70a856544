package character

import (
	"fmt"
	"strings"
)

// Field names a character trait independent of the column header used in the file.
type Field string

const (
	FieldID                 Field = "id"
	FieldName               Field = "name"
	FieldAge                Field = "age"
	FieldPersonality        Field = "personality"
	FieldTone               Field = "tone"
	FieldSetting            Field = "setting"
	FieldBackground         Field = "background"
	FieldGender             Field = "gender"
	FieldFirstPerson        Field = "first_person"
	FieldFanNickname        Field = "fan_nickname"
	FieldCharacterImageURL  Field = "character_image_url"
	FieldBackgroundImageURL Field = "background_image_url"
)

var allFields = []Field{
	FieldID, FieldName, FieldAge, FieldPersonality, FieldTone, FieldSetting, FieldBackground,
	FieldGender, FieldFirstPerson, FieldFanNickname, FieldCharacterImageURL, FieldBackgroundImageURL,
}

// Schema maps each field to the column headers accepted for it, in priority order.
type Schema struct {
	Columns  map[Field][]string
	Required []Field
}

// DefaultSchema accepts both the English and the Japanese header revisions.
func DefaultSchema() Schema {
	return Schema{
		Columns: map[Field][]string{
			FieldID:                 {"character_id", "id", "キャラクターID"},
			FieldName:               {"name", "名前"},
			FieldAge:                {"age", "年齢"},
			FieldPersonality:        {"personality", "性格"},
			FieldTone:               {"tone", "口調"},
			FieldSetting:            {"setting", "設定"},
			FieldBackground:         {"background", "背景"},
			FieldGender:             {"gender", "性別"},
			FieldFirstPerson:        {"first_person", "一人称"},
			FieldFanNickname:        {"fan_nickname", "ファンの呼び方"},
			FieldCharacterImageURL:  {"character_image_url"},
			FieldBackgroundImageURL: {"background_image_url"},
		},
		Required: []Field{FieldID, FieldName},
	}
}

// ParseSchema applies overrides of the form "name=名前|display_name,id=char_id"
// on top of DefaultSchema. An empty string returns the default.
func ParseSchema(overrides string) (Schema, error) {
	s := DefaultSchema()
	overrides = strings.TrimSpace(overrides)
	if overrides == "" {
		return s, nil
	}
	known := make(map[Field]bool, len(allFields))
	for _, f := range allFields {
		known[f] = true
	}
	for _, part := range strings.Split(overrides, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		key, value, ok := strings.Cut(part, "=")
		if !ok {
			return Schema{}, fmt.Errorf("character columns: %q is not field=column", part)
		}
		field := Field(strings.TrimSpace(key))
		if !known[field] {
			return Schema{}, fmt.Errorf("character columns: unknown field %q", field)
		}
		var cols []string
		for _, c := range strings.Split(value, "|") {
			if c = strings.TrimSpace(c); c != "" {
				cols = append(cols, c)
			}
		}
		if len(cols) == 0 {
			return Schema{}, fmt.Errorf("character columns: field %q has no columns", field)
		}
		s.Columns[field] = cols
	}
	return s, nil
}

// resolve picks, for each field, the index of the first accepted header present.
func (s Schema) resolve(header []string) map[Field]int {
	pos := make(map[string]int, len(header))
	for i, h := range header {
		h = strings.TrimSpace(h)
		if _, dup := pos[h]; !dup {
			pos[h] = i
		}
	}
	out := make(map[Field]int, len(s.Columns))
	for field, cols := range s.Columns {
		for _, c := range cols {
			if i, ok := pos[c]; ok {
				out[field] = i
				break
			}
		}
	}
	return out
}
