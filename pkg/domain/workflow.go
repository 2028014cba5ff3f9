package domain

import (
	"sort"
	"strconv"
	"strings"
)

// Workflow is a typed, validated-on-load set of job definitions.
type Workflow struct {
	Name        string            `json:"name"`
	Env         map[string]string `json:"env,omitempty"`
	Concurrency *ConcurrencySpec  `json:"concurrency,omitempty"`
	Jobs        []JobDefinition   `json:"jobs"`
}

// Job returns the job definition with the given name.
func (w *Workflow) Job(name string) (*JobDefinition, bool) {
	for i := range w.Jobs {
		if w.Jobs[i].Name == name {
			return &w.Jobs[i], true
		}
	}
	return nil, false
}

// JobDefinition is a declared unit of work, possibly matrix-expandable.
type JobDefinition struct {
	Name           string            `json:"name"`
	Needs          []string          `json:"needs,omitempty"`
	Matrix         *Matrix           `json:"matrix,omitempty"`
	FailFast       *bool             `json:"failFast,omitempty"`
	MaxParallel    int               `json:"maxParallel,omitempty"`
	Condition      string            `json:"condition,omitempty"`
	Concurrency    *ConcurrencySpec  `json:"concurrency,omitempty"`
	Steps          []Step            `json:"steps"`
	Outputs        map[string]string `json:"outputs,omitempty"`
	Env            map[string]string `json:"env,omitempty"`
	TimeoutMinutes int               `json:"timeoutMinutes,omitempty"`
}

// FailFastEnabled reports the effective fail-fast policy. It defaults to true.
func (j *JobDefinition) FailFastEnabled() bool {
	if j.FailFast == nil {
		return true
	}
	return *j.FailFast
}

// Matrix is a set of ordered named axes plus include/exclude rules.
type Matrix struct {
	Axes    []Axis         `json:"axes,omitempty"`
	Include []MatrixValues `json:"include,omitempty"`
	Exclude []MatrixValues `json:"exclude,omitempty"`
}

// AxisNames returns the declared axis names in declaration order.
func (m *Matrix) AxisNames() []string {
	if m == nil {
		return nil
	}
	names := make([]string, 0, len(m.Axes))
	for _, a := range m.Axes {
		names = append(names, a.Name)
	}
	return names
}

// Axis is one named matrix dimension.
type Axis struct {
	Name   string   `json:"name"`
	Values []string `json:"values"`
}

// MatrixValues is a (possibly partial) assignment of matrix keys to values.
type MatrixValues map[string]string

// Clone returns a copy of the assignment.
func (m MatrixValues) Clone() MatrixValues {
	out := make(MatrixValues, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// Key returns a canonical encoding of the assignment: quoted key=value pairs
// sorted by key. Equal assignments have equal keys.
func (m MatrixValues) Key() string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var sb strings.Builder
	for i, k := range keys {
		if i > 0 {
			sb.WriteByte(',')
		}
		sb.WriteString(strconv.Quote(k))
		sb.WriteByte('=')
		sb.WriteString(strconv.Quote(m[k]))
	}
	return sb.String()
}

// ConcurrencySpec names a contention domain. Group may contain ${{ }} templates.
type ConcurrencySpec struct {
	Group            string `json:"group"`
	CancelInProgress bool   `json:"cancelInProgress,omitempty"`
}

// Step is one command spec. Steps are opaque to the scheduler and interpreted
// by the step executor.
type Step struct {
	ID       string            `json:"id,omitempty"`
	Name     string            `json:"name,omitempty"`
	Run      string            `json:"run,omitempty"`
	Env      map[string]string `json:"env,omitempty"`
	Upload   *ArtifactRef      `json:"upload,omitempty"`
	Download *ArtifactRef      `json:"download,omitempty"`
}

// ArtifactRef points a named artifact at a local path.
type ArtifactRef struct {
	Name string `json:"name"`
	Path string `json:"path"`
}
