package worldtides

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

type Extreme struct {
	Dt     int64   `json:"dt"`
	Date   string  `json:"date,omitempty"`
	Height float64 `json:"height"`
	Type   string  `json:"type"`
}

type Prediction struct {
	Dt    int64   `json:"dt"`
	Value float64 `json:"value"`
}

type response struct {
	Status      int             `json:"status"`
	Error       string          `json:"error"`
	Extremes    json.RawMessage `json:"extremes"`
	Predictions []Prediction    `json:"predictions"`
}

// APIError is the {"error": "..."} body the API returns on refusal.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("worldtides error (status %d): %s", e.Status, e.Message)
	}
	return "worldtides error: " + e.Message
}

// Quota reports whether the message is about exhausted credits or rate limits.
func (e *APIError) Quota() bool {
	m := strings.ToLower(e.Message)
	return strings.Contains(m, "credit") || strings.Contains(m, "quota") || strings.Contains(m, "limit")
}

// InvalidKey reports whether the API refused the key itself.
func (e *APIError) InvalidKey() bool {
	m := strings.ToLower(e.Message)
	return strings.Contains(m, "key")
}

func decode(body []byte) (*response, error) {
	var resp response
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}
	if resp.Error != "" {
		return nil, &APIError{Status: resp.Status, Message: resp.Error}
	}
	return &resp, nil
}

// ParseExtremes accepts both {"extremes": [...]} and {"extremes": {"heights": [...]}}.
// A body with neither yields no extremes and no error.
func ParseExtremes(body []byte) ([]Extreme, error) {
	resp, err := decode(body)
	if err != nil {
		return nil, err
	}
	raw := resp.Extremes
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}

	var list []Extreme
	if err := json.Unmarshal(raw, &list); err == nil {
		return list, nil
	}

	var nested struct {
		Heights []Extreme `json:"heights"`
	}
	if err := json.Unmarshal(raw, &nested); err != nil {
		return nil, errors.New("extremes is neither a list nor an object with heights")
	}
	return nested.Heights, nil
}

// ParseCoefficients maps epoch seconds to raw coefficient values.
func ParseCoefficients(body []byte) (map[int64]float64, error) {
	resp, err := decode(body)
	if err != nil {
		return nil, err
	}
	out := make(map[int64]float64, len(resp.Predictions))
	for _, p := range resp.Predictions {
		out[p.Dt] = p.Value
	}
	return out, nil
}
