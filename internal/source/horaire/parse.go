package horaire

import (
	"bytes"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/bbernstein/maree/internal/models"
)

var months = map[string]time.Month{
	"janvier":   time.January,
	"fevrier":   time.February,
	"mars":      time.March,
	"avril":     time.April,
	"mai":       time.May,
	"juin":      time.June,
	"juillet":   time.July,
	"aout":      time.August,
	"septembre": time.September,
	"octobre":   time.October,
	"novembre":  time.November,
	"decembre":  time.December,
}

// Patterns run on folded (lowercase, unaccented) text.
var (
	datePattern = regexp.MustCompile(
		`\b(?:lundi|mardi|mercredi|jeudi|vendredi|samedi|dimanche)\s+(\d{1,2})(?:er)?\s+` +
			`(janvier|fevrier|mars|avril|mai|juin|juillet|aout|septembre|octobre|novembre|decembre)\s+(\d{4})\b`)
	timePattern   = regexp.MustCompile(`\b(\d{1,2})[:h](\d{2})\b`)
	numberPattern = regexp.MustCompile(`(\d+(?:[.,]\d+)?)`)
	bareInteger   = regexp.MustCompile(`^\d{1,3}$`)
)

const (
	SkipTime   = "time"
	SkipHeight = "height"
)

type Record struct {
	Date        time.Time
	Hour        int
	Minute      int
	Type        models.TideType
	Height      float64
	HeightText  string
	Coefficient models.Coefficient
}

type Skipped struct {
	Date   time.Time
	Reason string
	Text   string
}

// Page is everything the parser found, before range filtering.
type Page struct {
	Records []Record
	Skipped []Skipped
	// Boundaries counts date lines; Markers counts dated rows naming a tide type.
	Boundaries int
	Markers    int
}

// ParsePage scans headings, captions and table rows in document order. A
// date line sets the current date for the rows that follow it.
func ParsePage(body []byte) (Page, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return Page{}, fmt.Errorf("parsing html: %w", err)
	}

	var (
		page    Page
		current time.Time
	)
	doc.Find("h1, h2, h3, h4, caption, tr").Each(func(_ int, node *goquery.Selection) {
		text := models.Fold(nodeText(node))

		if d, ok := parseDate(text); ok {
			current = d
			page.Boundaries++
		}
		if current.IsZero() || goquery.NodeName(node) != "tr" {
			return
		}

		tideType, ok := tideMarker(text)
		if !ok {
			return
		}
		page.Markers++

		rec, reason, raw := parseRow(node, current, tideType)
		if reason != "" {
			page.Skipped = append(page.Skipped, Skipped{Date: current, Reason: reason, Text: raw})
			return
		}
		page.Records = append(page.Records, rec)
	})

	return page, nil
}

// nodeText joins cell texts with spaces so adjacent cells never run together.
func nodeText(node *goquery.Selection) string {
	cells := node.Find("td, th")
	if cells.Length() == 0 {
		return strings.Join(strings.Fields(node.Text()), " ")
	}
	parts := cells.Map(func(_ int, cell *goquery.Selection) string {
		return strings.Join(strings.Fields(cell.Text()), " ")
	})
	return strings.Join(strings.Fields(strings.Join(parts, " ")), " ")
}

func parseDate(text string) (time.Time, bool) {
	m := datePattern.FindStringSubmatch(text)
	if m == nil {
		return time.Time{}, false
	}
	dayNum, _ := strconv.Atoi(m[1])
	year, _ := strconv.Atoi(m[3])
	month := months[m[2]]

	d := time.Date(year, month, dayNum, 0, 0, 0, 0, time.UTC)
	// reject 31 juin and friends instead of rolling over
	if d.Day() != dayNum || d.Month() != month {
		return time.Time{}, false
	}
	return d, true
}

func tideMarker(text string) (models.TideType, bool) {
	switch {
	case strings.Contains(text, "pleine mer"), strings.Contains(text, "haute mer"):
		return models.TideTypeHigh, true
	case strings.Contains(text, "basse mer"):
		return models.TideTypeLow, true
	default:
		return "", false
	}
}

// parseRow reads time, height and coefficient from independent cells. A
// non-empty reason means the row was rejected.
func parseRow(row *goquery.Selection, date time.Time, tideType models.TideType) (rec Record, reason, raw string) {
	rec = Record{Date: date, Type: tideType, Coefficient: models.NoCoefficient}
	foundTime, foundHeight, foundCoeff := false, false, false

	row.Find("td, th").Each(func(_ int, cell *goquery.Selection) {
		text := strings.TrimSpace(cell.Text())
		folded := models.Fold(text)
		// a rowspan date cell sharing the row with the first tide
		if datePattern.MatchString(folded) {
			return
		}

		if !foundTime {
			if m := timePattern.FindStringSubmatch(folded); m != nil {
				h, _ := strconv.Atoi(m[1])
				mi, _ := strconv.Atoi(m[2])
				if h < 24 && mi < 60 {
					rec.Hour, rec.Minute = h, mi
					foundTime = true
					return
				}
			}
		}
		if !foundHeight && strings.ContainsAny(folded, "0123456789") && strings.Contains(folded, "m") &&
			timePattern.FindString(folded) == "" {
			if m := numberPattern.FindString(folded); m != "" {
				if v, err := strconv.ParseFloat(strings.Replace(m, ",", ".", 1), 64); err == nil && !strings.Contains(folded, "-"+m) {
					rec.Height = v
					rec.HeightText = text
					foundHeight = true
					return
				}
			}
		}
		if !foundCoeff && bareInteger.MatchString(folded) {
			// bare integers strictly inside (20,130) are coefficients
			if n, err := strconv.Atoi(folded); err == nil && n > models.MinCoefficient && n < models.MaxCoefficient {
				rec.Coefficient = models.Coefficient{Value: n, Valid: true}
				foundCoeff = true
			}
		}
	})

	rowText := nodeText(row)
	if !foundTime {
		return Record{}, SkipTime, rowText
	}
	if !foundHeight {
		return Record{}, SkipHeight, rowText
	}
	return rec, "", ""
}
