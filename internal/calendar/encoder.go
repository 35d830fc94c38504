package calendar

import (
	"fmt"
	"strings"
	"time"

	ics "github.com/arran4/golang-ical"
	"github.com/jonboulle/clockwork"

	"github.com/bbernstein/maree/internal/models"
)

const (
	ContentType     = "text/calendar; charset=utf-8"
	DefaultDuration = 30 * time.Minute
	productID       = "-//maree//Calendrier des marées//FR"
	uidDomain       = "maree"
)

type Encoder struct {
	duration time.Duration
	stamp    clockwork.Clock
	name     string
}

type Option func(*Encoder)

// WithDuration sets the length of every tide event.
func WithDuration(d time.Duration) Option {
	return func(e *Encoder) {
		if d > 0 {
			e.duration = d
		}
	}
}

// WithStamp takes every DTSTAMP from clock instead of the event instant.
// Output then changes between runs.
func WithStamp(clock clockwork.Clock) Option {
	return func(e *Encoder) {
		e.stamp = clock
	}
}

// WithCalendarName overrides the X-WR-CALNAME, "Marées <location>" by default.
func WithCalendarName(name string) Option {
	return func(e *Encoder) {
		e.name = name
	}
}

func NewEncoder(opts ...Option) *Encoder {
	e := &Encoder{duration: DefaultDuration}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Encode renders one VEVENT per tide, in input order. Events must already
// carry their civil instant; zone only feeds the X-WR-TIMEZONE hint.
func (e *Encoder) Encode(events []models.TideEvent, locationLabel string, zone *time.Location) ([]byte, error) {
	cal := ics.NewCalendarFor(uidDomain)
	cal.SetProductId(productID)
	cal.SetMethod(ics.MethodPublish)
	name := e.name
	if name == "" {
		name = "Marées " + locationLabel
	}
	cal.SetXWRCalName(name)
	if zone != nil {
		cal.SetXWRTimezone(zone.String())
	}

	seen := make(map[string]int, len(events))
	for i, ev := range events {
		if !ev.Type.Valid() {
			return nil, fmt.Errorf("event %d: invalid tide type %q", i, ev.Type)
		}
		start := ev.Instant()
		if start.IsZero() {
			return nil, fmt.Errorf("event %d: missing instant", i)
		}

		uid := UID(ev, locationLabel)
		if n := seen[uid]; n > 0 {
			uid = fmt.Sprintf("%s-%d", uid, n)
		}
		seen[UID(ev, locationLabel)]++

		vevent := cal.AddEvent(uid)
		vevent.SetStartAt(start)
		vevent.SetEndAt(start.Add(e.duration))
		vevent.SetSummary(Summary(ev))
		vevent.SetLocation(locationLabel)
		vevent.SetDescription(Description(ev))
		// DTSTAMP is required; the event instant keeps output reproducible
		stamp := start
		if e.stamp != nil {
			stamp = e.stamp.Now()
		}
		vevent.SetDtStampTime(stamp)
	}

	return []byte(cal.Serialize()), nil
}

// Filename is marees_<location>_<start>_<end>.ics.
func (e *Encoder) Filename(locationLabel string, r models.DateRange) string {
	slug := models.Slug(locationLabel)
	if slug == "" {
		slug = "lieu"
	}
	return fmt.Sprintf("marees_%s_%s.ics", slug, r.String())
}

func (e *Encoder) ContentType() string {
	return ContentType
}

// UID is stable for a given source, location, instant and tide type.
func UID(ev models.TideEvent, locationLabel string) string {
	return fmt.Sprintf("%s-%s-%s-%s@%s",
		ev.Source,
		models.Slug(locationLabel),
		ev.Instant().UTC().Format("20060102T150405Z"),
		strings.ToLower(string(ev.Type)),
		uidDomain)
}

// Summary is "<label>[ - Coeff: <c>] - <height>".
func Summary(ev models.TideEvent) string {
	if ev.Coefficient.Valid {
		return fmt.Sprintf("%s - Coeff: %s - %s", ev.Type.Label(), ev.Coefficient, ev.FormattedHeight())
	}
	return fmt.Sprintf("%s - %s", ev.Type.Label(), ev.FormattedHeight())
}

func Description(ev models.TideEvent) string {
	typeLine := ev.Type.Label()
	if ev.Classification.Estimated() {
		typeLine += " (estimé)"
	}
	lines := []string{
		"Heure : " + ev.Instant().Format("15:04"),
		"Hauteur : " + ev.FormattedHeight(),
		"Coefficient : " + ev.Coefficient.String(),
		"Type : " + typeLine,
		"Source : " + ev.Source.Attribution(),
	}
	return strings.Join(lines, "\n")
}
