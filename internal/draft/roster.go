package draft

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"shift_report/internal/catalog"
	"shift_report/internal/report"
)

var (
	// ErrIndexOutOfRange is returned when a row index does not exist.
	ErrIndexOutOfRange = errors.New("team row index out of range")
	// ErrUnknownField is returned for a Field outside the defined set.
	ErrUnknownField = errors.New("unknown team row field")
)

// WorkerLookup resolves a worker id. *catalog.Cache satisfies it.
type WorkerLookup interface {
	Worker(id catalog.ID) (catalog.Worker, bool)
}

// Field names an editable column of a team row.
type Field int

const (
	FieldWorker Field = iota
	FieldRUT
	FieldNombre
	FieldCargo
	FieldTramo
	FieldActivity
	FieldHoraInicio
	FieldHoraFin
	FieldTipoAsist
)

var fieldNames = map[Field]string{
	FieldWorker:     "workerId",
	FieldRUT:        "rut",
	FieldNombre:     "nombre",
	FieldCargo:      "cargo",
	FieldTramo:      "tramoId",
	FieldActivity:   "activityId",
	FieldHoraInicio: "horaInicio",
	FieldHoraFin:    "horaFin",
	FieldTipoAsist:  "tipoAsist",
}

func (f Field) String() string {
	if name, ok := fieldNames[f]; ok {
		return name
	}
	return fmt.Sprintf("Field(%d)", int(f))
}

// ParseField maps a column name to a Field.
func ParseField(name string) (Field, error) {
	for f, n := range fieldNames {
		if strings.EqualFold(n, name) {
			return f, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownField, name)
}

// TeamRow is one worker's entry for the shift.
type TeamRow struct {
	WorkerID   catalog.ID
	RUT        string
	Nombre     string
	Cargo      Cargo
	TramoID    catalog.ID
	ActivityID catalog.ID
	HoraInicio string
	HoraFin    string
	TipoAsist  Attendance
}

// IsEmpty reports whether no field of the row holds a value.
func (r TeamRow) IsEmpty() bool {
	return r.WorkerID.IsZero() &&
		r.RUT == "" &&
		r.Nombre == "" &&
		r.Cargo.String() == "" &&
		r.TramoID.IsZero() &&
		r.ActivityID.IsZero() &&
		r.HoraInicio == "" &&
		r.HoraFin == "" &&
		r.TipoAsist == ""
}

// Hours is the elapsed time between HoraInicio and HoraFin.
func (r TeamRow) Hours() string {
	return Elapsed(r.HoraInicio, r.HoraFin)
}

// Member converts the row into its persisted form.
func (r TeamRow) Member() report.Member {
	return report.Member{
		WorkerID:   r.WorkerID.String(),
		RUT:        r.RUT,
		Nombre:     r.Nombre,
		Cargo:      r.Cargo.String(),
		TramoID:    r.TramoID.String(),
		ActivityID: r.ActivityID.String(),
		HoraInicio: r.HoraInicio,
		HoraFin:    r.HoraFin,
		TipoAsist:  string(r.TipoAsist),
	}
}

// Roster is the ordered list of team rows being edited. It always holds at
// least one row. Roster is a value: every operation returns a new Roster
// and leaves the receiver untouched.
type Roster struct {
	rows    []TeamRow
	workers WorkerLookup
}

// NewRoster returns a roster with a single empty row. workers may be nil,
// in which case selecting a worker clears the copied worker fields.
func NewRoster(workers WorkerLookup) Roster {
	return Roster{rows: []TeamRow{{}}, workers: workers}
}

// Len is the number of rows.
func (r Roster) Len() int { return len(r.rows) }

// Rows returns a copy of the rows.
func (r Roster) Rows() []TeamRow { return slices.Clone(r.rows) }

// Row returns the row at index.
func (r Roster) Row(index int) (TeamRow, error) {
	if index < 0 || index >= len(r.rows) {
		return TeamRow{}, fmt.Errorf("%w: %d", ErrIndexOutOfRange, index)
	}
	return r.rows[index], nil
}

// AddRow appends an empty row.
func (r Roster) AddRow() Roster {
	r.rows = append(slices.Clone(r.rows), TeamRow{})
	return r
}

// RemoveRow drops the row at index. Removing from a single-row roster, or
// an index that does not exist, returns the roster unchanged.
func (r Roster) RemoveRow(index int) Roster {
	if len(r.rows) <= 1 || index < 0 || index >= len(r.rows) {
		return r
	}
	r.rows = slices.Delete(slices.Clone(r.rows), index, index+1)
	return r
}

// UpdateField sets one column of the row at index. Setting FieldWorker also
// copies rut, nombre and cargo from the worker catalog, or clears them when
// the id is unknown. Setting FieldCargo to CustomCargoSentinel switches the
// row to free-text cargo (see CommitCustomCargo).
func (r Roster) UpdateField(index int, field Field, value string) (Roster, error) {
	row, err := r.Row(index)
	if err != nil {
		return r, err
	}

	switch field {
	case FieldWorker:
		row = r.selectWorker(row, catalog.ParseID(value))
	case FieldRUT:
		row.RUT = value
	case FieldNombre:
		row.Nombre = value
	case FieldCargo:
		if value == CustomCargoSentinel {
			row.Cargo = CustomCargo("")
		} else {
			row.Cargo = KnownCargo(value)
		}
	case FieldTramo:
		row.TramoID = catalog.ParseID(value)
	case FieldActivity:
		row.ActivityID = catalog.ParseID(value)
	case FieldHoraInicio:
		row.HoraInicio = strings.TrimSpace(value)
	case FieldHoraFin:
		row.HoraFin = strings.TrimSpace(value)
	case FieldTipoAsist:
		code, err := ParseAttendance(value)
		if err != nil {
			return r, err
		}
		row.TipoAsist = code
	default:
		return r, fmt.Errorf("%w: %v", ErrUnknownField, field)
	}

	return r.replace(index, row), nil
}

// CommitCustomCargo stores the free text typed for a row's cargo once the
// input loses focus.
func (r Roster) CommitCustomCargo(index int, text string) (Roster, error) {
	row, err := r.Row(index)
	if err != nil {
		return r, err
	}
	row.Cargo = CustomCargo(strings.TrimSpace(text))
	return r.replace(index, row), nil
}

// NonEmpty returns the rows that hold at least one value.
func (r Roster) NonEmpty() []TeamRow {
	var out []TeamRow
	for _, row := range r.rows {
		if !row.IsEmpty() {
			out = append(out, row)
		}
	}
	return out
}

// Reset returns a single empty row roster with the same worker lookup.
func (r Roster) Reset() Roster {
	return NewRoster(r.workers)
}

func (r Roster) selectWorker(row TeamRow, id catalog.ID) TeamRow {
	row.WorkerID = id
	row.RUT, row.Nombre, row.Cargo = "", "", Cargo{}
	if id.IsZero() || r.workers == nil {
		return row
	}
	if w, ok := r.workers.Worker(id); ok {
		row.RUT = w.RUT
		row.Nombre = w.Nombre
		row.Cargo = KnownCargo(w.Cargo)
	}
	return row
}

func (r Roster) replace(index int, row TeamRow) Roster {
	rows := slices.Clone(r.rows)
	rows[index] = row
	r.rows = rows
	return r
}
