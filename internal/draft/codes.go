package draft

import (
	"fmt"
	"strings"
)

// Shift is the jornada of a report.
type Shift string

const (
	ShiftDay   Shift = "Día"
	ShiftNight Shift = "Noche"
)

// ParseShift accepts "Día"/"Noche" and the unaccented or English spellings.
func ParseShift(s string) (Shift, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "":
		return "", nil
	case "día", "dia", "day":
		return ShiftDay, nil
	case "noche", "night":
		return ShiftNight, nil
	}
	return "", fmt.Errorf("unknown jornada %q", s)
}

// Attendance is the tipo de asistencia code recorded for a team member.
type Attendance string

const (
	AttendanceOnSite      Attendance = "EO"
	AttendanceRest        Attendance = "D"
	AttendanceAbsent      Attendance = "A"
	AttendanceLeave       Attendance = "P"
	AttendancePaidLeave   Attendance = "PP"
	AttendanceSick        Attendance = "E"
	AttendanceMedical     Attendance = "LM"
	AttendanceTraining    Attendance = "C"
	AttendanceTerminated  Attendance = "F"
	AttendanceRejected    Attendance = "R"
	AttendanceTransferred Attendance = "T"
)

var attendanceLabels = map[Attendance]string{
	AttendanceOnSite:      "En obra",
	AttendanceRest:        "Descanso",
	AttendanceAbsent:      "Ausente",
	AttendanceLeave:       "Permiso",
	AttendancePaidLeave:   "Permiso pagado",
	AttendanceSick:        "Enfermo",
	AttendanceMedical:     "Licencia médica",
	AttendanceTraining:    "Capacitación",
	AttendanceTerminated:  "Finiquitado",
	AttendanceRejected:    "Rechazado",
	AttendanceTransferred: "Trasladado",
}

// ParseAttendance normalizes a code. Empty input means "not set".
func ParseAttendance(s string) (Attendance, error) {
	a := Attendance(strings.ToUpper(strings.TrimSpace(s)))
	if a == "" {
		return "", nil
	}
	if _, ok := attendanceLabels[a]; !ok {
		return "", fmt.Errorf("unknown attendance code %q", s)
	}
	return a, nil
}

// Label is the human readable name of the code.
func (a Attendance) Label() string {
	return attendanceLabels[a]
}

// CustomCargoSentinel is the select value that switches a row's cargo to
// free-text entry.
const CustomCargoSentinel = "__custom"

// Cargo is either a known position taken from the worker catalog or text
// typed by the supervisor.
type Cargo struct {
	text   string
	custom bool
}

// KnownCargo wraps a catalog position.
func KnownCargo(name string) Cargo {
	return Cargo{text: name}
}

// CustomCargo wraps free text entered by the user.
func CustomCargo(text string) Cargo {
	return Cargo{text: text, custom: true}
}

// String is the persisted value.
func (c Cargo) String() string { return c.text }

// IsCustom reports whether the cargo is in free-text mode.
func (c Cargo) IsCustom() bool { return c.custom }

// IsZero reports whether no cargo text is set.
func (c Cargo) IsZero() bool { return strings.TrimSpace(c.text) == "" }
