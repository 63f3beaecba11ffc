// Package draft models the in-progress shift report a supervisor fills in:
// header fields, the team roster and the four free-text sections. Drafts
// are values; every edit returns a new Draft.
package draft

import (
	"fmt"
	"strings"

	"shift_report/internal/report"
)

// Draft is the report being edited.
type Draft struct {
	area       string
	jornada    Shift
	supervisor string
	team       Roster
	notes      map[report.Section]string
}

// New returns an empty draft with one empty team row.
func New(workers WorkerLookup) Draft {
	return Draft{team: NewRoster(workers)}
}

func (d Draft) Area() string       { return d.area }
func (d Draft) Jornada() Shift     { return d.jornada }
func (d Draft) Supervisor() string { return d.supervisor }
func (d Draft) Team() Roster       { return d.team }

// Note returns the text of a free-text section.
func (d Draft) Note(sec report.Section) string { return d.notes[sec] }

func (d Draft) WithArea(v string) Draft {
	d.area = v
	return d
}

func (d Draft) WithJornada(v Shift) Draft {
	d.jornada = v
	return d
}

func (d Draft) WithSupervisor(v string) Draft {
	d.supervisor = v
	return d
}

// WithNote sets the text of a free-text section.
func (d Draft) WithNote(sec report.Section, text string) (Draft, error) {
	switch sec {
	case report.SectionProgress, report.SectionInterference, report.SectionStoppage, report.SectionComments:
	default:
		return d, fmt.Errorf("unknown section %q", sec)
	}
	notes := make(map[report.Section]string, len(d.notes)+1)
	for k, v := range d.notes {
		notes[k] = v
	}
	if text == "" {
		delete(notes, sec)
	} else {
		notes[sec] = text
	}
	if len(notes) == 0 {
		notes = nil
	}
	d.notes = notes
	return d, nil
}

func (d Draft) AddRow() Draft {
	d.team = d.team.AddRow()
	return d
}

func (d Draft) RemoveRow(index int) Draft {
	d.team = d.team.RemoveRow(index)
	return d
}

func (d Draft) UpdateField(index int, field Field, value string) (Draft, error) {
	team, err := d.team.UpdateField(index, field, value)
	if err != nil {
		return d, err
	}
	d.team = team
	return d, nil
}

func (d Draft) CommitCustomCargo(index int, text string) (Draft, error) {
	team, err := d.team.CommitCustomCargo(index, text)
	if err != nil {
		return d, err
	}
	d.team = team
	return d, nil
}

// Reset returns the initial draft: empty header, one empty row, no notes.
func (d Draft) Reset() Draft {
	return Draft{team: d.team.Reset()}
}

// Submission serializes the draft for the gateway: empty team rows are
// dropped and each note becomes a one-entry list, or an empty list when
// blank after trimming.
func (d Draft) Submission() report.Submission {
	rows := d.team.NonEmpty()
	team := make([]report.Member, 0, len(rows))
	for _, row := range rows {
		team = append(team, row.Member())
	}
	return report.Submission{
		Area:           d.area,
		Jornada:        string(d.jornada),
		Supervisor:     d.supervisor,
		Team:           team,
		Avances:        noteEntries(d.notes[report.SectionProgress]),
		Interferencias: noteEntries(d.notes[report.SectionInterference]),
		Detenciones:    noteEntries(d.notes[report.SectionStoppage]),
		Comentarios:    noteEntries(d.notes[report.SectionComments]),
	}
}

func noteEntries(text string) []report.Entry {
	text = strings.TrimSpace(text)
	if text == "" {
		return []report.Entry{}
	}
	return []report.Entry{{Descripcion: text}}
}
