package calcservice

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/liamcoop/calcengine/calculations"
	"github.com/liamcoop/calcengine/calculations/catalog"
)

func electricalParams() map[string]any {
	return map[string]any{
		"areaVivienda":             150,
		"circuitosIluminacion":     4,
		"puntosIluminacion":        6,
		"circuitosTomacorrientes":  3,
		"puntosTomacorriente":      4,
		"cantidadCargasEspeciales": 2,
		"sumaCargasEspeciales":     5000,
		"voltajeNominal":           "240",
	}
}

func newTestService(t *testing.T) (*Service, *calculations.InMemoryTemplateStore, *calculations.InMemoryResultStore) {
	t.Helper()

	templates := calculations.NewInMemoryTemplateStore()
	results := calculations.NewInMemoryResultStore()

	svc, err := New(templates, results, Options{Logger: zaptest.NewLogger(t)})
	require.NoError(t, err)

	clock := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)
	svc.now = func() time.Time {
		clock = clock.Add(time.Second)
		return clock
	}
	seq := 0
	svc.newID = func() string {
		seq++
		return fmt.Sprintf("00000000-0000-0000-0000-%012d", seq)
	}

	builtin, err := catalog.Load()
	require.NoError(t, err)
	n, err := svc.SeedCatalog(context.Background(), builtin)
	require.NoError(t, err)
	require.Equal(t, len(builtin), n)
	require.NoError(t, svc.LoadTemplates(context.Background()))

	return svc, templates, results
}

func TestExecute(t *testing.T) {
	ctx := context.Background()
	svc, templates, _ := newTestService(t)

	r, err := svc.Execute(ctx, ExecuteRequest{
		TemplateID: "electrical-residential-demand",
		Parameters: electricalParams(),
		ProjectID:  "p-1",
	})
	require.NoError(t, err)

	assert.Equal(t, "00000000-0000-0000-0000-000000000001", r.ID)
	assert.Equal(t, "1.2.0", r.TemplateVersion)
	assert.Equal(t, "p-1", r.ProjectID)
	assert.False(t, r.Saved)
	assert.Equal(t, "Demanda Total", r.Primary.Label)
	total, _ := r.Primary.Value.Float()
	assert.Equal(t, 6880.0, total)
	assert.True(t, r.Compliance.IsCompliant, r.Compliance.Notes)

	// inputs are the validated values, not the raw strings
	assert.Equal(t, calculations.KindNumber, r.Inputs["areaVivienda"].Kind())

	tmpl, err := templates.Get(ctx, "electrical-residential-demand")
	require.NoError(t, err)
	assert.Equal(t, 1, tmpl.UsageCount)
}

func TestExecuteValidationError(t *testing.T) {
	svc, _, results := newTestService(t)

	params := electricalParams()
	params["areaVivienda"] = "10"

	_, err := svc.Execute(context.Background(), ExecuteRequest{
		TemplateID: "electrical-residential-demand",
		Parameters: params,
	})

	var verr *calculations.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Fields["areaVivienda"], "mínimo")
	assert.Len(t, verr.Fields, 1)

	saved, err := results.ListSaved(context.Background())
	require.NoError(t, err)
	assert.Empty(t, saved)
}

func TestExecuteComputationError(t *testing.T) {
	ctx := context.Background()
	svc, templates, _ := newTestService(t)

	// a voltage of 0 can only get past validation through a template that allows it
	tmpl, err := templates.Get(ctx, "electrical-residential-demand")
	require.NoError(t, err)
	for i, p := range tmpl.Parameters {
		if p.Name == "voltajeNominal" {
			tmpl.Parameters[i].Options = append(tmpl.Parameters[i].Options, "0")
		}
	}
	tmpl.Version = "1.3.0"
	_, err = svc.PublishTemplate(ctx, tmpl)
	require.NoError(t, err)

	params := electricalParams()
	params["voltajeNominal"] = "0"
	_, err = svc.Execute(ctx, ExecuteRequest{TemplateID: tmpl.ID, Parameters: params})

	var cerr *calculations.ComputationError
	require.ErrorAs(t, err, &cerr)
}

func TestExecuteComplianceRule(t *testing.T) {
	svc, _, _ := newTestService(t)

	r, err := svc.Execute(context.Background(), ExecuteRequest{
		TemplateID: "rc-beam-design",
		Parameters: map[string]any{
			"length":           13,
			"load":             15000,
			"concreteStrength": "21",
			"steelStrength":    "420",
			"beamHeight":       1.3,
			"beamWidth":        0.5,
			"barDiameter":      "16",
		},
	})
	require.NoError(t, err)
	assert.False(t, r.Compliance.IsCompliant)
	assert.Contains(t, r.Compliance.Notes, "Luces mayores a 12 m requieren análisis como viga continua o pretensada.")
}

func TestExecuteUnknownTemplate(t *testing.T) {
	svc, _, _ := newTestService(t)

	_, err := svc.Execute(context.Background(), ExecuteRequest{TemplateID: "missing"})
	assert.ErrorIs(t, err, calculations.ErrTemplateNotFound)

	_, err = svc.Execute(context.Background(), ExecuteRequest{})
	var verr *calculations.ValidationError
	assert.ErrorAs(t, err, &verr)
}

func TestSaveResult(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newTestService(t)

	r, err := svc.Execute(ctx, ExecuteRequest{TemplateID: "electrical-residential-demand", Parameters: electricalParams()})
	require.NoError(t, err)

	saved, err := svc.SaveResult(ctx, calculations.SaveRequest{
		ID:            r.ID,
		Name:          "Casa Pérez",
		Notes:         "planta baja",
		UsedInProject: true,
		ProjectID:     "p-9",
	})
	require.NoError(t, err)

	assert.Equal(t, r.ID, saved.ID)
	assert.True(t, saved.Saved)
	assert.NotNil(t, saved.SavedAt)
	assert.Equal(t, "Casa Pérez", saved.Name)
	assert.Equal(t, "p-9", saved.ProjectID)
	assert.Equal(t, r.Primary, saved.Primary)
	assert.Equal(t, r.Secondary, saved.Secondary)

	// the originally returned result is untouched
	assert.False(t, r.Saved)

	list, err := svc.Saved(ctx, "")
	require.NoError(t, err)
	require.Len(t, list, 1)

	byProject, err := svc.Saved(ctx, "p-9")
	require.NoError(t, err)
	assert.Len(t, byProject, 1)

	_, err = svc.SaveResult(ctx, calculations.SaveRequest{ID: r.ID})
	var verr *calculations.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Fields, "name")

	_, err = svc.SaveResult(ctx, calculations.SaveRequest{ID: "nope", Name: "x"})
	assert.ErrorIs(t, err, calculations.ErrResultNotFound)
}

func TestTemplatesFilterAndCache(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newTestService(t)

	all, err := svc.Templates(ctx, calculations.TemplateFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 2)

	electrical, err := svc.Templates(ctx, calculations.TemplateFilter{Types: []calculations.Category{calculations.CategoryElectrical}})
	require.NoError(t, err)
	require.Len(t, electrical, 1)
	assert.Equal(t, "electrical-residential-demand", electrical[0].ID)

	search, err := svc.Templates(ctx, calculations.TemplateFilter{SearchTerm: "VIGA"})
	require.NoError(t, err)
	require.Len(t, search, 1)
	assert.Equal(t, "rc-beam-design", search[0].ID)

	assert.True(t, svc.cache.IsValid())
}

func TestPublishTemplate(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newTestService(t)

	tmpl, err := svc.Template(ctx, "rc-beam-design")
	require.NoError(t, err)

	_, err = svc.PublishTemplate(ctx, tmpl)
	assert.ErrorIs(t, err, calculations.ErrTemplateConflict, "same version must be rejected")

	tmpl.Version = "2.0.0"
	tmpl.ComplianceRules = append(tmpl.ComplianceRules, calculations.ComplianceRule{
		Name: "carga", Expression: `inputs.load < 10000.0`, Message: "Carga alta.",
	})
	published, err := svc.PublishTemplate(ctx, tmpl)
	require.NoError(t, err)
	assert.Equal(t, "2.0.0", published.Version)
	assert.False(t, svc.cache.IsValid(), "publishing invalidates the listing cache")

	broken := *published
	broken.Version = "3.0.0"
	broken.ComplianceRules = []calculations.ComplianceRule{{Name: "x", Expression: "inputs.load +"}}
	_, err = svc.PublishTemplate(ctx, &broken)
	assert.ErrorIs(t, err, calculations.ErrInvalidTemplateDef)

	orphan := *published
	orphan.ID = "hydraulic-pipe"
	orphan.Category = calculations.CategoryHydraulic
	orphan.Formula = "hydraulic.pipe-sizing"
	_, err = svc.PublishTemplate(ctx, &orphan)
	assert.ErrorIs(t, err, calculations.ErrInvalidTemplateDef)
}

func TestRecommendations(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newTestService(t)

	recs, err := svc.Recommendations(ctx, RecommendationRequest{TemplateID: "rc-beam-design"})
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "electrical-residential-demand", recs[0].ID)

	recs, err = svc.Recommendations(ctx, RecommendationRequest{Limit: 1})
	require.NoError(t, err)
	assert.Len(t, recs, 1)

	recs, err = svc.Recommendations(ctx, RecommendationRequest{Limit: 500})
	require.NoError(t, err)
	assert.Len(t, recs, 2)
}

func TestCompare(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newTestService(t)

	var ids []string
	for _, area := range []int{100, 250, 400} {
		params := electricalParams()
		params["areaVivienda"] = area
		r, err := svc.Execute(ctx, ExecuteRequest{TemplateID: "electrical-residential-demand", Parameters: params})
		require.NoError(t, err)
		ids = append(ids, r.ID)
	}

	table, err := svc.Compare(ctx, ids)
	require.NoError(t, err)
	require.Len(t, table.Columns, 3)
	for i, id := range ids {
		assert.Equal(t, id, table.Columns[i].ResultID)
	}

	require.NotEmpty(t, table.Parameters)
	row := table.Parameters[0]
	assert.Equal(t, "areaVivienda", row.Name)
	assert.Equal(t, "Área de la vivienda", row.Label)
	assert.Equal(t, calculations.TagLowest, row.Cells[0].Tag)
	assert.Equal(t, calculations.TagEqual, row.Cells[1].Tag)
	assert.Equal(t, calculations.TagHighest, row.Cells[2].Tag)
	assert.Equal(t, "voltajeNominal", table.Parameters[len(table.Parameters)-1].Name)

	_, err = svc.Compare(ctx, ids[:1])
	assert.ErrorIs(t, err, calculations.ErrInvalidComparison)

	_, err = svc.Compare(ctx, []string{ids[0], "missing"})
	assert.True(t, errors.Is(err, calculations.ErrResultNotFound))
}

func TestSeedCatalogIsIdempotent(t *testing.T) {
	svc, _, _ := newTestService(t)

	builtin, err := catalog.Load()
	require.NoError(t, err)

	n, err := svc.SeedCatalog(context.Background(), builtin)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}
