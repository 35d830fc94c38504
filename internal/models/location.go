package models

import "fmt"

type SourceKind string

const (
	SourceMareeInfo  SourceKind = "mareeinfo"
	SourceHoraire    SourceKind = "horaire"
	SourceWorldTides SourceKind = "worldtides"
)

// Attribution is the credit line written into calendar descriptions.
func (k SourceKind) Attribution() string {
	switch k {
	case SourceMareeInfo:
		return "maree.info"
	case SourceHoraire:
		return "horaire-maree.fr"
	case SourceWorldTides:
		return "worldtides.info"
	default:
		return string(k)
	}
}

func ParseSourceKind(s string) (SourceKind, error) {
	switch k := SourceKind(s); k {
	case SourceMareeInfo, SourceHoraire, SourceWorldTides:
		return k, nil
	default:
		return "", fmt.Errorf("unknown source %q", s)
	}
}

type Coordinates struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// SourceKey is what an upstream needs to find a place: a site id, a URL slug
// or coordinates, depending on Kind.
type SourceKey struct {
	Kind        SourceKind   `json:"source"`
	SiteID      string       `json:"siteId,omitempty"`
	Slug        string       `json:"slug,omitempty"`
	Coordinates *Coordinates `json:"coordinates,omitempty"`
}

func (k SourceKey) String() string {
	switch {
	case k.SiteID != "":
		return string(k.Kind) + ":" + k.SiteID
	case k.Slug != "":
		return string(k.Kind) + ":" + k.Slug
	case k.Coordinates != nil:
		return fmt.Sprintf("%s:%.4f,%.4f", k.Kind, k.Coordinates.Latitude, k.Coordinates.Longitude)
	default:
		return string(k.Kind)
	}
}

// Location is an entry of a selection list. A nil Key marks a section header.
type Location struct {
	Name        string       `json:"name"`
	Region      string       `json:"region,omitempty"`
	Key         *SourceKey   `json:"key,omitempty"`
	Coordinates *Coordinates `json:"coordinates,omitempty"`
	Distance    float64      `json:"distance,omitempty"`
}

func (l Location) IsPlaceholder() bool {
	return l.Key == nil
}
