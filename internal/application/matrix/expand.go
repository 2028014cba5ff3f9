// Package matrix expands a job's matrix axes and include/exclude rules into
// concrete value assignments, one per job instance.
package matrix

import (
	"github.com/aescanero/dagrun/pkg/domain"
)

// Expand returns the ordered assignments for job's matrix.
//
// The Cartesian product is built in axis declaration order (the first axis
// varies slowest). Combinations matching every key of an exclude entry are
// dropped. Each include entry then merges its non-axis keys into every
// remaining product combination whose axis values it matches; an entry that
// matches none is appended as a new combination. A nil or empty matrix yields
// exactly one empty assignment.
func Expand(job string, m *domain.Matrix) ([]domain.MatrixValues, error) {
	if m == nil || (len(m.Axes) == 0 && len(m.Include) == 0) {
		if m != nil && len(m.Exclude) > 0 {
			return nil, domain.NewGraphError(domain.ErrMatrixConfiguration, job, "exclude without axes")
		}
		return []domain.MatrixValues{{}}, nil
	}

	if err := validate(job, m); err != nil {
		return nil, err
	}

	axes := make(map[string]bool, len(m.Axes))
	for _, a := range m.Axes {
		axes[a.Name] = true
	}

	var combos []domain.MatrixValues
	if len(m.Axes) > 0 {
		for _, c := range product(m.Axes) {
			if !excluded(c, m.Exclude) {
				combos = append(combos, c)
			}
		}
	}
	base := len(combos)

	for _, inc := range m.Include {
		matched := false
		for i := 0; i < base; i++ {
			if !matchesAxes(combos[i], inc, axes) {
				continue
			}
			matched = true
			for k, v := range inc {
				if !axes[k] {
					combos[i][k] = v
				}
			}
		}
		if !matched {
			combos = append(combos, inc.Clone())
		}
	}

	if len(combos) == 0 {
		return nil, domain.NewGraphError(domain.ErrMatrixConfiguration, job, "matrix produces no combinations")
	}

	names := m.AxisNames()
	seen := make(map[string]bool, len(combos))
	for _, c := range combos {
		key := c.Key()
		if seen[key] {
			return nil, domain.NewGraphError(domain.ErrMatrixConfiguration, job, "duplicate combination %s", domain.FormatInstanceID(job, names, c))
		}
		seen[key] = true
	}

	return combos, nil
}

func validate(job string, m *domain.Matrix) error {
	declared := make(map[string]bool, len(m.Axes))
	for _, a := range m.Axes {
		if a.Name == "" {
			return domain.NewGraphError(domain.ErrMatrixConfiguration, job, "axis name is required")
		}
		if declared[a.Name] {
			return domain.NewGraphError(domain.ErrMatrixConfiguration, job, "duplicate axis %q", a.Name)
		}
		if len(a.Values) == 0 {
			return domain.NewGraphError(domain.ErrMatrixConfiguration, job, "axis %q has no values", a.Name)
		}
		declared[a.Name] = true
	}

	for i, ex := range m.Exclude {
		if len(ex) == 0 {
			return domain.NewGraphError(domain.ErrMatrixConfiguration, job, "exclude entry %d is empty", i)
		}
		for k := range ex {
			if !declared[k] {
				return domain.NewGraphError(domain.ErrMatrixConfiguration, job, "exclude entry %d references undeclared axis %q", i, k)
			}
		}
	}

	for i, inc := range m.Include {
		if len(inc) == 0 {
			return domain.NewGraphError(domain.ErrMatrixConfiguration, job, "include entry %d is empty", i)
		}
	}
	return nil
}

func product(axes []domain.Axis) []domain.MatrixValues {
	combos := []domain.MatrixValues{{}}
	for _, axis := range axes {
		next := make([]domain.MatrixValues, 0, len(combos)*len(axis.Values))
		for _, c := range combos {
			for _, v := range axis.Values {
				nc := c.Clone()
				nc[axis.Name] = v
				next = append(next, nc)
			}
		}
		combos = next
	}
	return combos
}

func excluded(c domain.MatrixValues, excludes []domain.MatrixValues) bool {
	for _, ex := range excludes {
		match := true
		for k, v := range ex {
			if c[k] != v {
				match = false
				break
			}
		}
		if match {
			return true
		}
	}
	return false
}

// matchesAxes reports whether every axis key of inc agrees with c.
func matchesAxes(c, inc domain.MatrixValues, axes map[string]bool) bool {
	for k, v := range inc {
		if axes[k] && c[k] != v {
			return false
		}
	}
	return true
}
