package ui

import (
	"errors"
	"fmt"

	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/bbernstein/maree/internal/models"
)

// ErrCancelled is returned by Pick when the user leaves without choosing.
var ErrCancelled = errors.New("selection cancelled")

const headerRefusal = "veuillez sélectionner une ville dans la liste (pas une région)"

// locationItem wraps a Location for use in a list
type locationItem struct {
	location models.Location
}

// FilterValue implements list.Item
func (i locationItem) FilterValue() string {
	if i.location.IsPlaceholder() {
		return ""
	}
	return models.Fold(i.location.Name)
}

// Title implements list.DefaultItem
func (i locationItem) Title() string {
	if i.location.IsPlaceholder() {
		return sectionStyle.Render(i.location.Name)
	}
	return i.location.Name
}

// Description implements list.DefaultItem
func (i locationItem) Description() string {
	if i.location.IsPlaceholder() {
		return ""
	}
	desc := i.location.Region
	if c := i.location.Coordinates; c != nil {
		desc += fmt.Sprintf(" • %.4f, %.4f", c.Latitude, c.Longitude)
	}
	return desc
}

// Picker is a bubbletea model listing locations. Section headers are shown
// but cannot be chosen.
type Picker struct {
	list      list.Model
	selected  *models.Location
	cancelled bool
	status    string
}

func NewPicker(locations []models.Location, width, height int) Picker {
	items := make([]list.Item, len(locations))
	first := -1
	for i, loc := range locations {
		items[i] = locationItem{location: loc}
		if first < 0 && !loc.IsPlaceholder() {
			first = i
		}
	}

	l := list.New(items, list.NewDefaultDelegate(), width, height)
	l.Title = "Choisir un port"
	l.SetShowHelp(true)
	l.SetFilteringEnabled(true)
	if first >= 0 {
		l.Select(first)
	}
	return Picker{list: l}
}

func (m Picker) Init() tea.Cmd {
	return nil
}

func (m Picker) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.list.SetSize(msg.Width, msg.Height-2)
		return m, nil

	case tea.KeyMsg:
		if m.list.FilterState() == list.Filtering {
			break
		}
		switch msg.String() {
		case "ctrl+c", "esc", "q":
			m.cancelled = true
			return m, tea.Quit
		case "enter":
			item, ok := m.list.SelectedItem().(locationItem)
			if !ok {
				return m, nil
			}
			if item.location.IsPlaceholder() {
				m.status = headerRefusal
				return m, nil
			}
			loc := item.location
			m.selected = &loc
			return m, tea.Quit
		}
	}

	m.status = ""
	var cmd tea.Cmd
	m.list, cmd = m.list.Update(msg)
	return m, cmd
}

func (m Picker) View() string {
	view := m.list.View()
	if m.status != "" {
		view += "\n" + warningStyle.Render(m.status)
	}
	return view
}

// Selected reports the chosen location, if any.
func (m Picker) Selected() (models.Location, bool) {
	if m.selected == nil {
		return models.Location{}, false
	}
	return *m.selected, true
}

// Pick runs the picker full screen and returns the chosen location.
func Pick(locations []models.Location, opts ...tea.ProgramOption) (models.Location, error) {
	p := tea.NewProgram(NewPicker(locations, 60, 20), append([]tea.ProgramOption{tea.WithAltScreen()}, opts...)...)
	final, err := p.Run()
	if err != nil {
		return models.Location{}, fmt.Errorf("running location picker: %w", err)
	}
	loc, ok := final.(Picker).Selected()
	if !ok {
		return models.Location{}, ErrCancelled
	}
	return loc, nil
}
