package workflow

import (
	"context"
	"testing"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/lrs-events/internal/geoerr"
	"github.com/sells-group/lrs-events/internal/model"
)

func seg(route string, seq int, from, to float64, cat string) model.Segment {
	s := model.Segment{RouteID: route, Seq: seq, FromM: from, ToM: to}
	if cat != "" {
		s.Category = model.StringPtr(cat)
	}
	return s
}

func TestBoundaryCorrector_RouteScope(t *testing.T) {
	segs := []model.Segment{
		seg("R1", 1, 20, 60, "Poor"),
		seg("R1", 0, 0, 20, "Poor"),
		seg("R2", 0, 0, 50, ""),
		seg("R2", 1, 50, 100, "Fair"),
	}

	out, changed := BoundaryCorrector{Default: "Excellent", Scope: ScopeRoute}.Correct(segs)
	assert.Equal(t, 2, changed)
	assert.Equal(t, "Poor", *out[0].Category)
	assert.Equal(t, "Excellent", *out[1].Category)
	assert.Equal(t, "Excellent", *out[2].Category)
	assert.Equal(t, "Fair", *out[3].Category)

	// Input is not modified.
	assert.Equal(t, "Poor", *segs[1].Category)
	assert.Nil(t, segs[2].Category)
}

func TestBoundaryCorrector_RunScope(t *testing.T) {
	tests := []struct {
		name string
		segs []model.Segment
		want []string
	}{
		{
			name: "equal layouts",
			segs: []model.Segment{
				seg("R1", 0, 0, 20, "Poor"),
				seg("R2", 0, 0, 50, "Fair"),
			},
			want: []string{"Excellent", "Fair"},
		},
		{
			name: "second route starts shorter",
			segs: []model.Segment{
				seg("R1", 0, 0, 60, "Poor"),
				seg("R1", 1, 60, 100, "Poor"),
				seg("R2", 0, 0, 40, "Fair"),
				seg("R2", 1, 40, 100, "Fair"),
			},
			want: []string{"Excellent", "Poor", "Fair", "Fair"},
		},
		{
			name: "second route starts at a lower measure",
			segs: []model.Segment{
				seg("R1", 0, 500, 560, "Poor"),
				seg("R2", 0, 0, 40, "Fair"),
			},
			want: []string{"Excellent", "Fair"},
		},
		{
			name: "first route listed out of measure order",
			segs: []model.Segment{
				seg("R1", 1, 60, 100, "Poor"),
				seg("R2", 0, 0, 10, "Fair"),
				seg("R1", 0, 0, 60, "Poor"),
			},
			want: []string{"Poor", "Fair", "Excellent"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, changed := BoundaryCorrector{Default: "Excellent", Scope: ScopeRun}.Correct(tt.segs)
			assert.Equal(t, 1, changed)
			got := make([]string, len(out))
			for i, s := range out {
				got[i] = *s.Category
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestBoundaryCorrector_DefaultScopeIsRun(t *testing.T) {
	segs := []model.Segment{
		seg("R1", 0, 0, 50, "Poor"),
		seg("R1", 1, 50, 100, "Poor"),
		seg("R2", 0, 0, 50, "Fair"),
		seg("R2", 1, 50, 100, "Fair"),
	}
	out, changed := BoundaryCorrector{Default: "Excellent"}.Correct(segs)
	assert.Equal(t, 1, changed)
	assert.Equal(t, "Excellent", *out[0].Category)
	assert.Equal(t, "Fair", *out[2].Category)

	c := NewCondition(nil, ConditionOptions{}, nil)
	assert.Equal(t, ScopeRun, c.corrector.Scope)
}

func TestBoundaryCorrector_ZeroLengthFirst(t *testing.T) {
	// A node snapped to the route start leaves a zero-length first segment;
	// it is the one that gets the default.
	segs := []model.Segment{
		seg("R1", 0, 0, 0, "Poor"),
		seg("R1", 1, 0, 100, "Poor"),
	}
	out, _ := BoundaryCorrector{Default: "Excellent", Scope: ScopeRoute}.Correct(segs)
	assert.Equal(t, "Excellent", *out[0].Category)
	assert.Equal(t, "Poor", *out[1].Category)
}

func TestBoundaryCorrector_Empty(t *testing.T) {
	out, changed := BoundaryCorrector{Default: "Excellent"}.Correct(nil)
	assert.Empty(t, out)
	assert.Zero(t, changed)
}

func TestRouteSelector_Empty(t *testing.T) {
	eng := new(mockEngine)
	eng.On("SelectByLocation", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return([]model.Route{}, nil)

	tol, err := model.NewTolerance(5)
	require.NoError(t, err)
	_, err = RouteSelector{Engine: eng}.Select(context.Background(),
		[]model.Route{{ID: "R1", Line: orb.LineString{{0, 0}, {1, 0}}}}, nil, tol)
	require.Error(t, err)
	assert.Equal(t, geoerr.EmptySelection, geoerr.KindOf(err))
}

func TestEngineErr_KeepsClassification(t *testing.T) {
	classified := geoerr.Errorf(geoerr.InvalidField, "engine", "no field")
	assert.Equal(t, geoerr.InvalidField, geoerr.KindOf(engineErr("op", classified)))

	err := engineErr("op", assert.AnError)
	assert.Equal(t, geoerr.EngineCallFailed, geoerr.KindOf(err))
	assert.ErrorIs(t, err, assert.AnError)
}

func TestCountLocErrors(t *testing.T) {
	events := []model.Event{
		{LocError: model.LocErrorRouteNotFound},
		{LocError: model.LocErrorRouteNotFound},
		{LocError: model.LocErrorPartialMatch},
		{},
	}
	counts := countLocErrors(events)
	assert.Equal(t, map[string]int{
		model.LocErrorRouteNotFound: 2,
		model.LocErrorPartialMatch:  1,
	}, counts)
	assert.Equal(t, []string{model.LocErrorPartialMatch, model.LocErrorRouteNotFound}, sortedKeys(counts))
}

func TestRunReportYAML(t *testing.T) {
	r := &RunReport{RunID: "abc", Workflow: "condition", Steps: []StepResult{{Name: "select", Count: 2}}}
	data, err := r.YAML()
	require.NoError(t, err)
	assert.Contains(t, string(data), "run_id: abc")
	assert.Contains(t, string(data), "name: select")
	assert.Nil(t, r.Step("missing"))
	assert.Equal(t, 2, r.Step("select").Count)
}
