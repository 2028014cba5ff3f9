package domain

import (
	"sort"
	"strconv"
	"strings"
	"time"
)

// InstanceID identifies one matrix-resolved job instance within a run.
type InstanceID string

func (id InstanceID) String() string { return string(id) }

// FormatInstanceID renders the identity of (job, assignment). A complete
// axis assignment lists its values in axis order; keys beyond the axes, and
// every key of an assignment that lacks an axis, render as key=value with the
// extra keys sorted. Values that contain separators are quoted, so distinct
// assignments never share an ID.
func FormatInstanceID(job string, axes []string, values MatrixValues) InstanceID {
	if len(values) == 0 {
		return InstanceID(job)
	}

	positional := true
	for _, a := range axes {
		if _, ok := values[a]; !ok {
			positional = false
			break
		}
	}

	parts := make([]string, 0, len(values))
	seen := make(map[string]bool, len(axes))
	for _, a := range axes {
		v, ok := values[a]
		if !ok {
			continue
		}
		seen[a] = true
		if positional {
			parts = append(parts, quoteIDPart(v))
		} else {
			parts = append(parts, quoteIDPart(a)+"="+quoteIDPart(v))
		}
	}
	extra := make([]string, 0, len(values))
	for k := range values {
		if !seen[k] {
			extra = append(extra, k)
		}
	}
	sort.Strings(extra)
	for _, k := range extra {
		parts = append(parts, quoteIDPart(k)+"="+quoteIDPart(values[k]))
	}
	return InstanceID(job + " (" + strings.Join(parts, ", ") + ")")
}

func quoteIDPart(s string) string {
	if s == "" || s != strings.TrimSpace(s) || strings.ContainsAny(s, `,()="\`) {
		return strconv.Quote(s)
	}
	return s
}

// InstanceState is a point-in-time copy of one instance's runtime state.
type InstanceState struct {
	ID          InstanceID        `json:"id"`
	Job         string            `json:"job"`
	Matrix      MatrixValues      `json:"matrix,omitempty"`
	Status      JobStatus         `json:"status"`
	Reason      CancelReason      `json:"reason,omitempty"`
	Error       string            `json:"error,omitempty"`
	Outputs     map[string]string `json:"outputs,omitempty"`
	StartedAt   *time.Time        `json:"startedAt,omitempty"`
	CompletedAt *time.Time        `json:"completedAt,omitempty"`
}

// NeedContext is what a dependent sees of one needed job.
type NeedContext struct {
	Result  string            `json:"result"`
	Outputs map[string]string `json:"outputs"`
}

// ExecutionContext is the resolved context handed to the step executor and
// used to evaluate conditions and templates.
type ExecutionContext struct {
	RunID      string                 `json:"runId"`
	Workflow   string                 `json:"workflow"`
	Job        string                 `json:"job"`
	InstanceID InstanceID             `json:"instanceId"`
	Matrix     MatrixValues           `json:"matrix,omitempty"`
	Env        map[string]string      `json:"env,omitempty"`
	Vars       map[string]string      `json:"vars,omitempty"`
	Needs      map[string]NeedContext `json:"needs,omitempty"`
}

// Lookup resolves a dotted context reference such as matrix.os or
// needs.build.outputs.id. Unknown references report false.
func (c *ExecutionContext) Lookup(path []string) (string, bool) {
	if c == nil || len(path) < 2 {
		return "", false
	}
	switch path[0] {
	case "matrix":
		return lookupMap(c.Matrix, path[1:])
	case "env":
		return lookupMap(c.Env, path[1:])
	case "vars":
		return lookupMap(c.Vars, path[1:])
	case "run":
		switch {
		case len(path) == 2 && path[1] == "id":
			return c.RunID, true
		case len(path) == 2 && path[1] == "workflow":
			return c.Workflow, true
		}
	case "job":
		if len(path) == 2 && path[1] == "name" {
			return c.Job, true
		}
	case "needs":
		need, ok := c.Needs[path[1]]
		if !ok {
			return "", false
		}
		switch {
		case len(path) == 3 && path[2] == "result":
			return need.Result, true
		case len(path) == 4 && path[2] == "outputs":
			v, ok := need.Outputs[path[3]]
			return v, ok
		}
	}
	return "", false
}

func lookupMap(m map[string]string, rest []string) (string, bool) {
	if len(rest) != 1 {
		return "", false
	}
	v, ok := m[rest[0]]
	return v, ok
}
