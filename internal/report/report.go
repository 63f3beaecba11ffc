// Package report defines the shift report shapes exchanged between the
// form client and the API server.
package report

import "time"

// Entry is one free-text item of a report section.
type Entry struct {
	Descripcion string `json:"descripcion"`
}

// Member is a team row as persisted on a report. Catalog references are
// kept as plain strings so a report stays readable after catalogs change.
type Member struct {
	WorkerID   string `json:"workerId,omitempty"`
	RUT        string `json:"rut"`
	Nombre     string `json:"nombre"`
	Cargo      string `json:"cargo"`
	TramoID    string `json:"tramoId,omitempty"`
	ActivityID string `json:"activityId,omitempty"`
	HoraInicio string `json:"horaInicio"`
	HoraFin    string `json:"horaFin"`
	TipoAsist  string `json:"tipoAsist"`
}

// Submission is the body of a create-report request.
type Submission struct {
	Area           string   `json:"area"`
	Jornada        string   `json:"jornada"`
	Supervisor     string   `json:"supervisor"`
	Team           []Member `json:"team"`
	Avances        []Entry  `json:"avances"`
	Interferencias []Entry  `json:"interferencias"`
	Detenciones    []Entry  `json:"detenciones"`
	Comentarios    []Entry  `json:"comentarios"`
}

// Report is a stored submission.
type Report struct {
	ID             int64     `json:"id"`
	UserID         int64     `json:"userId"`
	Username       string    `json:"username"`
	Area           string    `json:"area"`
	Jornada        string    `json:"jornada"`
	Supervisor     string    `json:"supervisor"`
	Team           []Member  `json:"team"`
	Avances        []Entry   `json:"avances"`
	Interferencias []Entry   `json:"interferencias"`
	Detenciones    []Entry   `json:"detenciones"`
	Comentarios    []Entry   `json:"comentarios"`
	DateSubmitted  time.Time `json:"dateSubmitted"`
}

// Section identifies one of the four free-text lists of a report.
type Section string

const (
	SectionProgress     Section = "avances"
	SectionInterference Section = "interferencias"
	SectionStoppage     Section = "detenciones"
	SectionComments     Section = "comentarios"
)

// Sections lists the free-text sections in display order.
var Sections = []Section{SectionProgress, SectionInterference, SectionStoppage, SectionComments}

// Entries returns the list a submission holds for sec.
func (s *Submission) Entries(sec Section) []Entry {
	switch sec {
	case SectionProgress:
		return s.Avances
	case SectionInterference:
		return s.Interferencias
	case SectionStoppage:
		return s.Detenciones
	case SectionComments:
		return s.Comentarios
	}
	return nil
}

// Entries returns the list a stored report holds for sec.
func (r *Report) Entries(sec Section) []Entry {
	switch sec {
	case SectionProgress:
		return r.Avances
	case SectionInterference:
		return r.Interferencias
	case SectionStoppage:
		return r.Detenciones
	case SectionComments:
		return r.Comentarios
	}
	return nil
}

// SetEntries replaces the list for sec on a stored report.
func (r *Report) SetEntries(sec Section, entries []Entry) {
	switch sec {
	case SectionProgress:
		r.Avances = entries
	case SectionInterference:
		r.Interferencias = entries
	case SectionStoppage:
		r.Detenciones = entries
	case SectionComments:
		r.Comentarios = entries
	}
}
