package mareeinfo

import (
	"bytes"
	"errors"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/bbernstein/maree/internal/models"
)

// ErrNoTable means the page has no MareeJours table.
var ErrNoTable = errors.New("table#MareeJours not found")

// Skip reasons reported by ParseDay.
const (
	SkipTime   = "time"
	SkipHeight = "height"
)

var (
	timePattern   = regexp.MustCompile(`^(\d{1,2})\s*[h:]\s*(\d{2})$`)
	heightPattern = regexp.MustCompile(`^(\d+(?:[.,]\d+)?)\s*m?$`)
)

// Record is one table row as read from the page, before any date is attached.
type Record struct {
	Hour            int
	Minute          int
	TimeText        string
	Height          float64
	HeightText      string
	Coefficient     models.Coefficient
	CoefficientText string
	Bold            bool
}

type Skipped struct {
	Row    int
	Reason string
	Text   string
}

// ParseDay extracts tide rows from one day page. Rows whose time or height
// cannot be read are reported in skipped and left out of records.
func ParseDay(body []byte) (records []Record, skipped []Skipped, err error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, nil, fmt.Errorf("parsing html: %w", err)
	}

	table := doc.Find("table#MareeJours").First()
	if table.Length() == 0 {
		return nil, nil, ErrNoTable
	}

	table.Find("tr").Each(func(i int, row *goquery.Selection) {
		cells := row.Find("td")
		if cells.Length() < 2 {
			return
		}

		timeText := strings.TrimSpace(cells.Eq(0).Text())
		hour, minute, ok := parseClock(timeText)
		if !ok {
			skipped = append(skipped, Skipped{Row: i, Reason: SkipTime, Text: timeText})
			return
		}

		heightText := strings.TrimSpace(cells.Eq(1).Text())
		height, ok := parseHeight(heightText)
		if !ok {
			skipped = append(skipped, Skipped{Row: i, Reason: SkipHeight, Text: heightText})
			return
		}

		rec := Record{
			Hour:       hour,
			Minute:     minute,
			TimeText:   fmt.Sprintf("%02d:%02d", hour, minute),
			Height:     height,
			HeightText: heightText,
			Bold:       row.Find("b, strong").Length() > 0,
		}
		if cells.Length() > 2 {
			rec.CoefficientText = strings.TrimSpace(cells.Eq(2).Text())
			rec.Coefficient = parseCoefficient(rec.CoefficientText)
		}
		records = append(records, rec)
	})

	return records, skipped, nil
}

// parseClock reads "06h12", "6h12" or "06:12".
func parseClock(s string) (hour, minute int, ok bool) {
	m := timePattern.FindStringSubmatch(s)
	if m == nil {
		return 0, 0, false
	}
	hour, _ = strconv.Atoi(m[1])
	minute, _ = strconv.Atoi(m[2])
	if hour > 23 || minute > 59 {
		return 0, 0, false
	}
	return hour, minute, true
}

// parseHeight reads "4,50m", "4.50 m" or "4.5". Negative values never match.
func parseHeight(s string) (float64, bool) {
	m := heightPattern.FindStringSubmatch(strings.TrimSpace(s))
	if m == nil {
		return 0, false
	}
	v, err := strconv.ParseFloat(strings.Replace(m[1], ",", ".", 1), 64)
	if err != nil || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}

func parseCoefficient(s string) models.Coefficient {
	n, err := strconv.Atoi(s)
	if err != nil {
		return models.NoCoefficient
	}
	c, err := models.NewCoefficient(float64(n))
	if err != nil {
		return models.NoCoefficient
	}
	return c
}
