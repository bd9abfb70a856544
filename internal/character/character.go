package character

import (
	"errors"
	"sort"
)

var ErrNotFound = errors.New("character not found")

// Character is one row of the character table. It is immutable after load.
type Character struct {
	ID                 string `json:"id"`
	Name               string `json:"name"`
	Age                string `json:"age"`
	Personality        string `json:"personality"`
	Tone               string `json:"tone"`
	Setting            string `json:"setting"`
	Background         string `json:"background"`
	Gender             string `json:"gender"`
	FirstPerson        string `json:"first_person"`
	FanNickname        string `json:"fan_nickname"`
	CharacterImageURL  string `json:"character_image_url,omitempty"`
	BackgroundImageURL string `json:"background_image_url,omitempty"`
}

// Profile is the public subset served by the roster endpoints.
type Profile struct {
	ID                 string `json:"id"`
	Name               string `json:"name"`
	Age                string `json:"age"`
	Personality        string `json:"personality"`
	CharacterImageURL  string `json:"character_image_url,omitempty"`
	BackgroundImageURL string `json:"background_image_url,omitempty"`
}

func (c Character) Profile() Profile {
	return Profile{
		ID:                 c.ID,
		Name:               c.Name,
		Age:                c.Age,
		Personality:        c.Personality,
		CharacterImageURL:  c.CharacterImageURL,
		BackgroundImageURL: c.BackgroundImageURL,
	}
}

// Roster is a lookup of characters by identifier. It is never mutated after
// construction, so concurrent readers need no locking.
type Roster struct {
	byID   map[string]Character
	sorted []string
}

func NewRoster(chars ...Character) *Roster {
	r := &Roster{byID: make(map[string]Character, len(chars))}
	for _, c := range chars {
		r.byID[c.ID] = c
	}
	r.sorted = make([]string, 0, len(r.byID))
	for id := range r.byID {
		r.sorted = append(r.sorted, id)
	}
	sort.Strings(r.sorted)
	return r
}

func (r *Roster) Get(id string) (Character, error) {
	c, ok := r.byID[id]
	if !ok {
		return Character{}, ErrNotFound
	}
	return c, nil
}

// List returns every character ordered by identifier.
func (r *Roster) List() []Character {
	out := make([]Character, 0, len(r.sorted))
	for _, id := range r.sorted {
		out = append(out, r.byID[id])
	}
	return out
}

func (r *Roster) IDs() []string {
	return append([]string(nil), r.sorted...)
}

func (r *Roster) Len() int {
	return len(r.byID)
}
