package main

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"shift_report/internal/draft"
	"shift_report/internal/report"
)

// draftFile is the YAML form of a report accepted by "submit -f".
type draftFile struct {
	Area       string            `yaml:"area"`
	Jornada    string            `yaml:"jornada"`
	Supervisor string            `yaml:"supervisor"`
	Team       []draftFileRow    `yaml:"team"`
	Notes      map[string]string `yaml:"notes"`
}

// draftFileRow is one team row. Worker fields are filled from the catalog
// when workerId is set; explicit rut, nombre and cargo override them.
type draftFileRow struct {
	WorkerID    string `yaml:"workerId"`
	RUT         string `yaml:"rut"`
	Nombre      string `yaml:"nombre"`
	Cargo       string `yaml:"cargo"`
	CustomCargo string `yaml:"customCargo"`
	TramoID     string `yaml:"tramoId"`
	ActivityID  string `yaml:"activityId"`
	HoraInicio  string `yaml:"horaInicio"`
	HoraFin     string `yaml:"horaFin"`
	TipoAsist   string `yaml:"tipoAsist"`
}

func readDraftFile(path string) (draftFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return draftFile{}, fmt.Errorf("read draft file: %w", err)
	}
	var f draftFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return draftFile{}, fmt.Errorf("parse draft file: %w", err)
	}
	return f, nil
}

// apply replays the file onto d through the regular draft operations, so
// the result is the same as entering it in the form.
func (f draftFile) apply(d draft.Draft) (draft.Draft, error) {
	jornada, err := draft.ParseShift(f.Jornada)
	if err != nil {
		return d, err
	}
	d = d.WithArea(f.Area).WithJornada(jornada).WithSupervisor(f.Supervisor)

	for i, row := range f.Team {
		if i > 0 {
			d = d.AddRow()
		}
		if d, err = row.apply(d, i); err != nil {
			return d, fmt.Errorf("team row %d: %w", i+1, err)
		}
	}

	for name, text := range f.Notes {
		if d, err = d.WithNote(report.Section(name), text); err != nil {
			return d, err
		}
	}
	return d, nil
}

func (r draftFileRow) apply(d draft.Draft, index int) (draft.Draft, error) {
	steps := []struct {
		field draft.Field
		value string
	}{
		{draft.FieldWorker, r.WorkerID},
		{draft.FieldRUT, r.RUT},
		{draft.FieldNombre, r.Nombre},
		{draft.FieldCargo, r.Cargo},
		{draft.FieldTramo, r.TramoID},
		{draft.FieldActivity, r.ActivityID},
		{draft.FieldHoraInicio, r.HoraInicio},
		{draft.FieldHoraFin, r.HoraFin},
		{draft.FieldTipoAsist, r.TipoAsist},
	}

	var err error
	for _, s := range steps {
		if s.value == "" {
			continue
		}
		if d, err = d.UpdateField(index, s.field, s.value); err != nil {
			return d, err
		}
	}

	if r.CustomCargo != "" {
		if d, err = d.UpdateField(index, draft.FieldCargo, draft.CustomCargoSentinel); err != nil {
			return d, err
		}
		if d, err = d.CommitCustomCargo(index, r.CustomCargo); err != nil {
			return d, err
		}
	}
	return d, nil
}
