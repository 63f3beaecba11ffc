package draft

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shift_report/internal/catalog"
)

func testWorkers() *catalog.Cache {
	c := catalog.NewCache()
	c.Load([]catalog.Worker{
		{ID: "1", RUT: "11.111.111-1", Nombre: "Ana Rojas", Cargo: "Capataz"},
		{ID: "2", RUT: "22.222.222-2", Nombre: "Luis Soto", Cargo: "Soldador"},
	}, nil, nil)
	return c
}

func TestRemoveRowKeepsLastRow(t *testing.T) {
	r := NewRoster(nil)
	require.Equal(t, 1, r.Len())

	after := r.RemoveRow(0)
	assert.Equal(t, 1, after.Len())
	assert.Equal(t, r, after)
}

func TestAddThenRemoveRestoresLength(t *testing.T) {
	r := NewRoster(nil).AddRow().AddRow()
	before := r.Len()

	grown := r.AddRow()
	assert.Equal(t, before+1, grown.Len())

	shrunk := grown.RemoveRow(grown.Len() - 1)
	assert.Equal(t, before, shrunk.Len())
}

func TestRemoveRowOutOfRangeIsNoop(t *testing.T) {
	r := NewRoster(nil).AddRow()
	assert.Equal(t, r, r.RemoveRow(5))
	assert.Equal(t, r, r.RemoveRow(-1))
}

func TestRosterOperationsDoNotMutateReceiver(t *testing.T) {
	r := NewRoster(nil)
	updated, err := r.UpdateField(0, FieldRUT, "12.345.678-9")
	require.NoError(t, err)

	orig, _ := r.Row(0)
	assert.Empty(t, orig.RUT)
	row, _ := updated.Row(0)
	assert.Equal(t, "12.345.678-9", row.RUT)
}

func TestRemoveRowKeepsOrder(t *testing.T) {
	r := NewRoster(nil).AddRow().AddRow()
	var err error
	for i, name := range []string{"a", "b", "c"} {
		r, err = r.UpdateField(i, FieldNombre, name)
		require.NoError(t, err)
	}

	r = r.RemoveRow(1)
	rows := r.Rows()
	require.Len(t, rows, 2)
	assert.Equal(t, "a", rows[0].Nombre)
	assert.Equal(t, "c", rows[1].Nombre)
}

func TestUpdateFieldOutOfRange(t *testing.T) {
	r := NewRoster(nil)
	got, err := r.UpdateField(3, FieldRUT, "x")
	assert.ErrorIs(t, err, ErrIndexOutOfRange)
	assert.Equal(t, r, got)
}

func TestUpdateFieldUnknownField(t *testing.T) {
	_, err := NewRoster(nil).UpdateField(0, Field(99), "x")
	assert.ErrorIs(t, err, ErrUnknownField)
}

func TestSelectWorkerFillsFromCatalog(t *testing.T) {
	r, err := NewRoster(testWorkers()).UpdateField(0, FieldWorker, "2")
	require.NoError(t, err)

	row, _ := r.Row(0)
	assert.Equal(t, catalog.ID("2"), row.WorkerID)
	assert.Equal(t, "22.222.222-2", row.RUT)
	assert.Equal(t, "Luis Soto", row.Nombre)
	assert.Equal(t, "Soldador", row.Cargo.String())
	assert.False(t, row.Cargo.IsCustom())
}

func TestSelectUnknownWorkerClearsCopiedFields(t *testing.T) {
	r, err := NewRoster(testWorkers()).UpdateField(0, FieldWorker, "1")
	require.NoError(t, err)

	r, err = r.UpdateField(0, FieldWorker, "404")
	require.NoError(t, err)

	row, _ := r.Row(0)
	assert.Equal(t, catalog.ID("404"), row.WorkerID)
	assert.Empty(t, row.RUT)
	assert.Empty(t, row.Nombre)
	assert.True(t, row.Cargo.IsZero())
}

func TestCustomCargo(t *testing.T) {
	r, err := NewRoster(testWorkers()).UpdateField(0, FieldWorker, "1")
	require.NoError(t, err)

	r, err = r.UpdateField(0, FieldCargo, CustomCargoSentinel)
	require.NoError(t, err)
	row, _ := r.Row(0)
	assert.True(t, row.Cargo.IsCustom())
	assert.Empty(t, row.Cargo.String())

	r, err = r.CommitCustomCargo(0, "  Rigger  ")
	require.NoError(t, err)
	row, _ = r.Row(0)
	assert.True(t, row.Cargo.IsCustom())
	assert.Equal(t, "Rigger", row.Cargo.String())
	assert.Equal(t, "Rigger", row.Member().Cargo)

	r, err = r.UpdateField(0, FieldCargo, "Capataz")
	require.NoError(t, err)
	row, _ = r.Row(0)
	assert.False(t, row.Cargo.IsCustom())
}

func TestTipoAsistValidated(t *testing.T) {
	r, err := NewRoster(nil).UpdateField(0, FieldTipoAsist, "lm")
	require.NoError(t, err)
	row, _ := r.Row(0)
	assert.Equal(t, AttendanceMedical, row.TipoAsist)
	assert.Equal(t, "Licencia médica", row.TipoAsist.Label())

	_, err = r.UpdateField(0, FieldTipoAsist, "ZZ")
	assert.Error(t, err)
}

func TestRowHours(t *testing.T) {
	r, err := NewRoster(nil).UpdateField(0, FieldHoraInicio, "20:00")
	require.NoError(t, err)
	r, err = r.UpdateField(0, FieldHoraFin, "08:30")
	require.NoError(t, err)
	row, _ := r.Row(0)
	assert.Equal(t, "12:30", row.Hours())
}

func TestParseField(t *testing.T) {
	f, err := ParseField("horaInicio")
	require.NoError(t, err)
	assert.Equal(t, FieldHoraInicio, f)
	assert.Equal(t, "horaInicio", f.String())

	_, err = ParseField("salary")
	assert.ErrorIs(t, err, ErrUnknownField)
}

func TestNonEmpty(t *testing.T) {
	r := NewRoster(nil).AddRow().AddRow()
	r, err := r.UpdateField(1, FieldTramo, "10")
	require.NoError(t, err)

	rows := r.NonEmpty()
	require.Len(t, rows, 1)
	assert.Equal(t, catalog.ID("10"), rows[0].TramoID)
}
