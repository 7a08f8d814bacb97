package resolver

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"modhost/internal/logging"
)

func observeWarnings(t *testing.T) *observer.ObservedLogs {
	t.Helper()
	core, logs := observer.New(zapcore.WarnLevel)
	logging.UseLogger(zap.New(core))
	t.Cleanup(func() { logging.UseLogger(nil) })
	return logs
}

func TestResolve_OptionalMissingWarnsOnce(t *testing.T) {
	logs := observeWarnings(t)

	res, err := Resolve([]Node{
		{Name: "C", Requires: []string{"B"}, Optional: []string{"D"}},
		{Name: "B", Requires: []string{"A"}},
		{Name: "A"},
	})
	require.NoError(t, err)

	if diff := cmp.Diff([]string{"A", "B", "C"}, res.Order); diff != "" {
		t.Errorf("order mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, []Warning{{Module: "C", Dependency: "D"}}, res.Warnings)
	require.Equal(t, 1, logs.Len())
	assert.Equal(t, "resolver", logs.All()[0].LoggerName)
	assert.Contains(t, logs.All()[0].Message, "optional dependency D")
}

func TestResolve_Cycle(t *testing.T) {
	_, err := Resolve([]Node{
		{Name: "X", Requires: []string{"Y"}},
		{Name: "Y", Requires: []string{"X"}},
	})
	require.Error(t, err)

	var cycle *CycleError
	require.True(t, errors.As(err, &cycle))
	assert.Equal(t, []string{"X", "Y", "X"}, cycle.Path)
	assert.Equal(t, "dependency cycle: X -> Y -> X", err.Error())
}

func TestResolve_CycleThroughOptionalEdge(t *testing.T) {
	_, err := Resolve([]Node{
		{Name: "X", Optional: []string{"Y"}},
		{Name: "Y", Requires: []string{"X"}},
	})
	var cycle *CycleError
	assert.ErrorAs(t, err, &cycle)
}

func TestResolve_MissingRequired(t *testing.T) {
	res, err := Resolve([]Node{
		{Name: "A"},
		{Name: "B", Requires: []string{"A", "Z"}},
	})
	var missing *MissingDependencyError
	require.ErrorAs(t, err, &missing)
	assert.Equal(t, "B", missing.Module)
	assert.Equal(t, "Z", missing.Dependency)
	assert.Empty(t, res.Order, "no partial order on failure")
}

func TestResolve_Duplicate(t *testing.T) {
	_, err := Resolve([]Node{{Name: "A"}, {Name: "A"}})
	assert.ErrorIs(t, err, ErrDuplicateModule)
}

func TestResolve_Ordering(t *testing.T) {
	tests := []struct {
		name  string
		nodes []Node
		want  []string
	}{
		{
			name:  "empty",
			nodes: nil,
			want:  []string{},
		},
		{
			name:  "independent nodes keep discovery order",
			nodes: []Node{{Name: "zeta"}, {Name: "alpha"}, {Name: "mid"}},
			want:  []string{"zeta", "alpha", "mid"},
		},
		{
			name: "required before optional",
			nodes: []Node{
				{Name: "App", Requires: []string{"Signals"}, Optional: []string{"Audio"}},
				{Name: "Audio"},
				{Name: "Signals"},
			},
			want: []string{"Signals", "Audio", "App"},
		},
		{
			name: "shared dependency visited once",
			nodes: []Node{
				{Name: "A", Requires: []string{"Core"}},
				{Name: "B", Requires: []string{"Core"}},
				{Name: "Core"},
			},
			want: []string{"Core", "A", "B"},
		},
		{
			name: "diamond",
			nodes: []Node{
				{Name: "Top", Requires: []string{"Left", "Right"}},
				{Name: "Right", Requires: []string{"Base"}},
				{Name: "Left", Requires: []string{"Base"}},
				{Name: "Base"},
			},
			want: []string{"Base", "Left", "Right", "Top"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := Resolve(tt.nodes)
			require.NoError(t, err)
			if diff := cmp.Diff(tt.want, res.Order); diff != "" {
				t.Errorf("order mismatch (-want +got):\n%s", diff)
			}
		})
	}
}
