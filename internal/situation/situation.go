// Package situation derives the date, season, time-of-day and place facts
// injected into generation prompts.
package situation

import (
	"context"
	"fmt"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/Newrona-pi/textgame-chatapp/internal/geocode"
	"github.com/Newrona-pi/textgame-chatapp/internal/protocol"
)

// UnknownLocation is rendered when no place could be resolved.
const UnknownLocation = "場所不明"

type Band struct {
	Label  string
	Detail string
}

var (
	Winter = Band{Label: "冬", Detail: "寒い季節で、雪が降ったり、暖かい飲み物が恋しくなる時期"}
	Spring = Band{Label: "春", Detail: "桜が咲き、新学期が始まる暖かくなってきた時期"}
	Summer = Band{Label: "夏", Detail: "暑い季節で、夏休みや海、祭りなどが楽しい時期"}
	Autumn = Band{Label: "秋", Detail: "涼しくなり、紅葉が美しく、文化祭などがある時期"}

	Morning   = Band{Label: "朝", Detail: "朝の爽やかな時間帯"}
	Daytime   = Band{Label: "昼", Detail: "昼間の明るい時間帯"}
	Evening   = Band{Label: "夕方", Detail: "夕方の落ち着いた時間帯"}
	Nighttime = Band{Label: "夜", Detail: "夜の静かな時間帯"}
)

// seasons is indexed by month-1.
var seasons = [12]Band{
	Winter, Winter,
	Spring, Spring, Spring,
	Summer, Summer, Summer,
	Autumn, Autumn, Autumn,
	Winter,
}

// weekdays is Monday-first.
var weekdays = [7]string{"月曜日", "火曜日", "水曜日", "木曜日", "金曜日", "土曜日", "日曜日"}

// SeasonFor maps a month to its season. Months outside 1..12 wrap.
func SeasonFor(month time.Month) Band {
	i := (int(month) - 1) % 12
	if i < 0 {
		i += 12
	}
	return seasons[i]
}

// TimeOfDayFor maps an hour to 05-11 morning, 12-16 daytime, 17-20 evening, 21-04 night.
func TimeOfDayFor(hour int) Band {
	switch {
	case hour >= 5 && hour < 12:
		return Morning
	case hour >= 12 && hour < 17:
		return Daytime
	case hour >= 17 && hour < 21:
		return Evening
	default:
		return Nighttime
	}
}

// WeekdayName indexes the Monday-first table with a Go weekday.
func WeekdayName(d time.Weekday) string {
	return weekdays[(int(d)+6)%7]
}

type Location struct {
	Prefecture string
	City       string
	Detailed   string
}

func (l Location) Known() bool {
	return l.Prefecture != "" || l.City != ""
}

// Label prefers the detailed address, then "prefecture city", then the sentinel.
func (l Location) Label() string {
	if l.Detailed != "" {
		return l.Detailed
	}
	parts := make([]string, 0, 2)
	if l.Prefecture != "" {
		parts = append(parts, l.Prefecture)
	}
	if l.City != "" {
		parts = append(parts, l.City)
	}
	if len(parts) == 0 {
		return UnknownLocation
	}
	return strings.Join(parts, " ")
}

// Situation is never persisted.
type Situation struct {
	Now       time.Time
	Date      string
	Season    Band
	TimeOfDay Band
	Weekday   string
	Hour      int
	Location  Location
}

type Builder struct {
	loc      *time.Location
	resolver geocode.Resolver
	now      func() time.Time
}

// NewBuilder fixes the clock to the named IANA timezone.
func NewBuilder(timezone string, resolver geocode.Resolver) (*Builder, error) {
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		return nil, fmt.Errorf("load timezone %q: %w", timezone, err)
	}
	if resolver == nil {
		resolver = geocode.Disabled{}
	}
	return &Builder{loc: loc, resolver: resolver, now: time.Now}, nil
}

// WithClock returns a copy of the builder reading time from now.
func (b *Builder) WithClock(now func() time.Time) *Builder {
	cp := *b
	cp.now = now
	return &cp
}

// Build never fails: absent coordinates or a failed lookup give UnknownLocation.
func (b *Builder) Build(ctx context.Context, coords *protocol.Coordinates) Situation {
	return b.At(ctx, b.now(), coords)
}

func (b *Builder) At(ctx context.Context, instant time.Time, coords *protocol.Coordinates) Situation {
	t := instant.In(b.loc)
	s := Situation{
		Now:       t,
		Date:      t.Format("2006年01月02日"),
		Season:    SeasonFor(t.Month()),
		TimeOfDay: TimeOfDayFor(t.Hour()),
		Weekday:   WeekdayName(t.Weekday()),
		Hour:      t.Hour(),
	}
	if coords != nil {
		addr := b.resolver.Resolve(ctx, coords.Lat, coords.Lon)
		s.Location = Location{Prefecture: addr.Prefecture, City: addr.City, Detailed: addr.Detailed}
	}
	return s
}
