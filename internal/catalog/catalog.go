// Package catalog holds the reference data a shift report points into:
// workers, roster segments (tramos) and activities.
package catalog

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// ID is the canonical catalog key. The API sends numeric ids while form
// selections arrive as strings, so both decode into the same string form.
type ID string

// ParseID trims s and returns it as an ID. Integral numbers are reformatted
// so "01", "1.0" and 1 all name the same entry; anything else is kept as
// text.
func ParseID(s string) ID {
	s = strings.TrimSpace(s)
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return FromInt(n)
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil && f == math.Trunc(f) && math.Abs(f) < 1<<63 {
		return FromInt(int64(f))
	}
	return ID(s)
}

// FromInt formats a numeric server id.
func FromInt(n int64) ID {
	return ID(strconv.FormatInt(n, 10))
}

func (id ID) String() string { return string(id) }

// IsZero reports whether no catalog entry is referenced.
func (id ID) IsZero() bool { return id == "" }

// UnmarshalJSON accepts a JSON string, number or null.
func (id *ID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*id = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = ParseID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("catalog id: %w", err)
	}
	*id = ParseID(n.String())
	return nil
}

// Worker is a person that can be placed on a team roster.
type Worker struct {
	ID     ID     `json:"id" yaml:"id"`
	RUT    string `json:"rut" yaml:"rut"`
	Nombre string `json:"nombre" yaml:"nombre"`
	Cargo  string `json:"cargo" yaml:"cargo"`
}

// Segment is a roster segment (tramo).
type Segment struct {
	ID     ID     `json:"id" yaml:"id"`
	Nombre string `json:"nombre" yaml:"nombre"`
}

// Activity is a kind of work a team member performs during the shift.
type Activity struct {
	ID     ID     `json:"id" yaml:"id"`
	Nombre string `json:"nombre" yaml:"nombre"`
}

// Kind names one of the three catalogs as it appears in API paths.
type Kind string

const (
	KindWorkers    Kind = "workers"
	KindSegments   Kind = "tramos"
	KindActivities Kind = "activities"
)

// ParseKind validates a catalog name.
func ParseKind(s string) (Kind, error) {
	switch k := Kind(strings.ToLower(strings.TrimSpace(s))); k {
	case KindWorkers, KindSegments, KindActivities:
		return k, nil
	}
	return "", fmt.Errorf("unknown catalog %q (want workers, tramos or activities)", s)
}
