package workflow

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/sells-group/lrs-events/internal/dataset/datasettest"
	"github.com/sells-group/lrs-events/internal/model"
	"github.com/sells-group/lrs-events/internal/workspace"
)

var testNow = time.Date(2024, 5, 2, 9, 30, 0, 0, time.UTC)

func testClock() time.Time { return testNow }

// conditionInputs writes the reference scenario: R1 is 100 m long with nodes
// at 20 m (Poor) and 60 m (Fair); R2 has no nodes near it.
func conditionInputs(t *testing.T) (nodesPath, routesPath string) {
	t.Helper()
	dir := t.TempDir()
	nodesPath = datasettest.WritePoints(t, dir, "nodes", []string{"COND"}, []datasettest.Point{
		{X: 20, Y: 1, Attrs: []string{"Poor"}},
		{X: 60, Y: -2, Attrs: []string{"Fair"}},
	})
	routesPath = datasettest.WriteLines(t, dir, "routes", []string{"ROUTE_ID"}, []datasettest.Line{
		{Parts: [][][2]float64{{{0, 0}, {100, 0}}}, Attrs: []string{"R1"}},
		{Parts: [][][2]float64{{{0, 500}, {100, 500}}}, Attrs: []string{"R2"}},
	})
	return nodesPath, routesPath
}

func conditionParams(t *testing.T, nodesPath, routesPath string) ConditionParams {
	t.Helper()
	return ConditionParams{
		Root:          t.TempDir(),
		NodesPath:     nodesPath,
		CategoryField: "COND",
		RoutesPath:    routesPath,
		RouteIDField:  "ROUTE_ID",
		Tolerance:     5,
	}
}

func conditionOptions() ConditionOptions {
	return ConditionOptions{
		Label:           "longcracking",
		DefaultCategory: "Excellent",
		OutputTemplate:  "out_{label}_events",
		BoundaryScope:   ScopeRun,
		ContainerPrefix: "work",
		Now:             testClock,
	}
}

// openContainer reopens the container a run left under root.
func openContainer(t *testing.T, root string) *workspace.Workspace {
	t.Helper()
	list, err := workspace.List(root, "work")
	require.NoError(t, err)
	require.Len(t, list, 1)
	ws, err := workspace.Open(context.Background(), list[0].Path)
	require.NoError(t, err)
	t.Cleanup(func() { ws.Close() }) //nolint:errcheck
	return ws
}

func datasetNames(t *testing.T, ws *workspace.Workspace) []string {
	t.Helper()
	ds, err := ws.Datasets(context.Background())
	require.NoError(t, err)
	names := make([]string, len(ds))
	for i, d := range ds {
		names[i] = d.Name
	}
	return names
}

func categories(events []model.Event) []string {
	out := make([]string, len(events))
	for i, ev := range events {
		if ev.Category != nil {
			out[i] = *ev.Category
		}
	}
	return out
}
