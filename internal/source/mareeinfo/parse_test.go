package mareeinfo

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bbernstein/maree/internal/models"
)

const dayPage = `<html><body>
<div id="Marees">
<table id="MareeJours">
  <tr><th>Heure</th><th>Hauteur</th><th>Coef.</th></tr>
  <tr><td><b>06h12</b></td><td><b>4,50m</b></td><td><b>95</b></td></tr>
  <tr><td>12h30</td><td>1,20m</td><td></td></tr>
  <tr><td><strong>18h41</strong></td><td><strong>4.62 m</strong></td><td>98</td></tr>
  <tr><td>--h--</td><td>0,95m</td></tr>
  <tr><td>23h58</td><td>n/a</td></tr>
  <tr><td>21h05</td><td>-0,10m</td></tr>
  <tr><td>7h05</td><td>0,80</td><td>12</td></tr>
</table>
</div>
<table id="Other"><tr><td>01h00</td><td>9,99m</td></tr></table>
</body></html>`

func TestParseDay(t *testing.T) {
	records, skipped, err := ParseDay([]byte(dayPage))
	require.NoError(t, err)

	want := []Record{
		{Hour: 6, Minute: 12, TimeText: "06:12", Height: 4.5, HeightText: "4,50m", Coefficient: models.Coefficient{Value: 95, Valid: true}, CoefficientText: "95", Bold: true},
		{Hour: 12, Minute: 30, TimeText: "12:30", Height: 1.2, HeightText: "1,20m"},
		{Hour: 18, Minute: 41, TimeText: "18:41", Height: 4.62, HeightText: "4.62 m", Coefficient: models.Coefficient{Value: 98, Valid: true}, CoefficientText: "98", Bold: true},
		{Hour: 7, Minute: 5, TimeText: "07:05", Height: 0.8, HeightText: "0,80", CoefficientText: "12"},
	}
	if diff := cmp.Diff(want, records); diff != "" {
		t.Errorf("records mismatch (-want +got):\n%s", diff)
	}

	reasons := make([]string, 0, len(skipped))
	for _, s := range skipped {
		reasons = append(reasons, s.Reason)
	}
	assert.Equal(t, []string{SkipTime, SkipHeight, SkipHeight}, reasons)
}

func TestParseDayMissingTable(t *testing.T) {
	_, _, err := ParseDay([]byte(`<html><body><p>Maintenance</p></body></html>`))
	assert.ErrorIs(t, err, ErrNoTable)
}

func TestParseDayEmptyTable(t *testing.T) {
	records, skipped, err := ParseDay([]byte(`<table id="MareeJours"><tr><th>Heure</th></tr></table>`))
	require.NoError(t, err)
	assert.Empty(t, records)
	assert.Empty(t, skipped)
}

func TestParseClock(t *testing.T) {
	tests := []struct {
		in         string
		wantHour   int
		wantMinute int
		wantOK     bool
	}{
		{in: "06h12", wantHour: 6, wantMinute: 12, wantOK: true},
		{in: "6h05", wantHour: 6, wantMinute: 5, wantOK: true},
		{in: "23:59", wantHour: 23, wantMinute: 59, wantOK: true},
		{in: "24h00"},
		{in: "12h60"},
		{in: "midi"},
		{in: ""},
	}
	for _, tt := range tests {
		h, m, ok := parseClock(tt.in)
		assert.Equal(t, tt.wantOK, ok, tt.in)
		assert.Equal(t, tt.wantHour, h, tt.in)
		assert.Equal(t, tt.wantMinute, m, tt.in)
	}
}
