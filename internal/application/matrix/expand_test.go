package matrix

import (
	"errors"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aescanero/dagrun/pkg/domain"
)

func osCfg() *domain.Matrix {
	return &domain.Matrix{Axes: []domain.Axis{
		{Name: "os", Values: []string{"a", "b"}},
		{Name: "cfg", Values: []string{"x", "y"}},
	}}
}

func TestExpand_NoMatrix(t *testing.T) {
	got, err := Expand("build", nil)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Empty(t, got[0])

	got, err = Expand("build", &domain.Matrix{})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Empty(t, got[0])
}

func TestExpand_CartesianProductInAxisOrder(t *testing.T) {
	got, err := Expand("build", osCfg())
	require.NoError(t, err)
	assert.Equal(t, []domain.MatrixValues{
		{"os": "a", "cfg": "x"},
		{"os": "a", "cfg": "y"},
		{"os": "b", "cfg": "x"},
		{"os": "b", "cfg": "y"},
	}, got)
}

func TestExpand_Exclude(t *testing.T) {
	m := osCfg()
	m.Exclude = []domain.MatrixValues{{"os": "a", "cfg": "x"}}

	got, err := Expand("build", m)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.NotContains(t, got, domain.MatrixValues{"os": "a", "cfg": "x"})

	// A partial exclude drops every matching combination.
	m.Exclude = []domain.MatrixValues{{"os": "b"}}
	got, err = Expand("build", m)
	require.NoError(t, err)
	assert.Equal(t, []domain.MatrixValues{
		{"os": "a", "cfg": "x"},
		{"os": "a", "cfg": "y"},
	}, got)
}

func TestExpand_IncludeMergesIntoMatchingCombinations(t *testing.T) {
	m := osCfg()
	m.Include = []domain.MatrixValues{{"os": "a", "experimental": "true"}}

	got, err := Expand("build", m)
	require.NoError(t, err)
	require.Len(t, got, 4)
	assert.Equal(t, "true", got[0]["experimental"])
	assert.Equal(t, "true", got[1]["experimental"])
	assert.NotContains(t, got[2], "experimental")
	assert.NotContains(t, got[3], "experimental")
}

func TestExpand_IncludeAppendsWhenNothingMatches(t *testing.T) {
	m := osCfg()
	m.Include = []domain.MatrixValues{{"os": "c", "cfg": "z"}}

	got, err := Expand("build", m)
	require.NoError(t, err)
	require.Len(t, got, 5)
	assert.Equal(t, domain.MatrixValues{"os": "c", "cfg": "z"}, got[4])
}

func TestExpand_IncludeIsNotExcluded(t *testing.T) {
	m := osCfg()
	m.Exclude = []domain.MatrixValues{{"os": "a"}}
	m.Include = []domain.MatrixValues{{"os": "a", "cfg": "x"}}

	got, err := Expand("build", m)
	require.NoError(t, err)
	assert.Contains(t, got, domain.MatrixValues{"os": "a", "cfg": "x"})
	assert.Len(t, got, 3)
}

func TestExpand_IncludeOnly(t *testing.T) {
	m := &domain.Matrix{Include: []domain.MatrixValues{
		{"target": "arm"},
		{"target": "amd64"},
	}}

	got, err := Expand("build", m)
	require.NoError(t, err)
	assert.Equal(t, []domain.MatrixValues{{"target": "arm"}, {"target": "amd64"}}, got)
}

func TestExpand_ValuesContainingSeparators(t *testing.T) {
	m := &domain.Matrix{Axes: []domain.Axis{
		{Name: "a", Values: []string{"x, y", "x"}},
		{Name: "b", Values: []string{"z", "y, z"}},
	}}

	got, err := Expand("j", m)
	require.NoError(t, err)
	require.Len(t, got, 4)

	ids := make(map[domain.InstanceID]bool, len(got))
	for _, c := range got {
		ids[domain.FormatInstanceID("j", m.AxisNames(), c)] = true
	}
	assert.Len(t, ids, 4)
}

func TestExpand_IncludeOnlyDifferentKeys(t *testing.T) {
	m := &domain.Matrix{Include: []domain.MatrixValues{{"a": "x"}, {"b": "x"}}}

	got, err := Expand("j", m)
	require.NoError(t, err)
	assert.Equal(t, []domain.MatrixValues{{"a": "x"}, {"b": "x"}}, got)
}

func TestExpand_ConfigurationErrors(t *testing.T) {
	tests := []struct {
		name   string
		matrix *domain.Matrix
	}{
		{
			name: "exclude references undeclared axis",
			matrix: &domain.Matrix{
				Axes:    []domain.Axis{{Name: "os", Values: []string{"a"}}},
				Exclude: []domain.MatrixValues{{"arch": "arm"}},
			},
		},
		{
			name: "empty include entry",
			matrix: &domain.Matrix{
				Axes:    []domain.Axis{{Name: "os", Values: []string{"a"}}},
				Include: []domain.MatrixValues{{}},
			},
		},
		{
			name:   "axis without values",
			matrix: &domain.Matrix{Axes: []domain.Axis{{Name: "os"}}},
		},
		{
			name: "duplicate axis",
			matrix: &domain.Matrix{Axes: []domain.Axis{
				{Name: "os", Values: []string{"a"}},
				{Name: "os", Values: []string{"b"}},
			}},
		},
		{
			name: "everything excluded",
			matrix: &domain.Matrix{
				Axes:    []domain.Axis{{Name: "os", Values: []string{"a"}}},
				Exclude: []domain.MatrixValues{{"os": "a"}},
			},
		},
		{
			name:   "repeated axis value",
			matrix: &domain.Matrix{Axes: []domain.Axis{{Name: "os", Values: []string{"a", "a"}}}},
		},
		{
			name:   "exclude without axes",
			matrix: &domain.Matrix{Exclude: []domain.MatrixValues{{"os": "a"}}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Expand("build", tt.matrix)
			require.Error(t, err)
			assert.True(t, errors.Is(err, domain.ErrMatrixConfiguration))

			var ge *domain.GraphError
			require.True(t, errors.As(err, &ge))
			assert.Equal(t, "build", ge.Job)
		})
	}
}

func TestProperty_ProductCardinality(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("expansion covers the full product and is idempotent", prop.ForAll(
		func(a, b, c int) bool {
			m := &domain.Matrix{Axes: []domain.Axis{
				{Name: "a", Values: values("a", a)},
				{Name: "b", Values: values("b", b)},
				{Name: "c", Values: values("c", c)},
			}}
			first, err := Expand("job", m)
			if err != nil || len(first) != a*b*c {
				return false
			}
			second, err := Expand("job", m)
			if err != nil {
				return false
			}
			assert.Equal(t, first, second)
			return true
		},
		gen.IntRange(1, 4),
		gen.IntRange(1, 4),
		gen.IntRange(1, 4),
	))

	properties.Property("a full exclude removes exactly one combination", prop.ForAll(
		func(a, b int) bool {
			m := &domain.Matrix{
				Axes: []domain.Axis{
					{Name: "a", Values: values("a", a)},
					{Name: "b", Values: values("b", b)},
				},
				Exclude: []domain.MatrixValues{{"a": "a0", "b": "b0"}},
			}
			got, err := Expand("job", m)
			if a*b == 1 {
				return err != nil
			}
			return err == nil && len(got) == a*b-1
		},
		gen.IntRange(1, 5),
		gen.IntRange(1, 5),
	))

	properties.TestingRun(t)
}

func values(prefix string, n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = prefix + string(rune('0'+i))
	}
	return out
}
