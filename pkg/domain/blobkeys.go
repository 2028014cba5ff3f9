package domain

import (
	"fmt"
	"hash/fnv"
	"strings"
)

// LogKey is the blob key of an instance's combined step log. IDs that are
// not already safe path elements get a hash suffix, since sanitizing can map
// distinct IDs to the same element.
func LogKey(runID string, id InstanceID) string {
	name := PathElement(string(id))
	if name != string(id) {
		h := fnv.New32a()
		_, _ = h.Write([]byte(id))
		name = fmt.Sprintf("%s-%08x", name, h.Sum32())
	}
	return fmt.Sprintf("runs/%s/logs/%s.log", runID, name)
}

// ArtifactKey is the blob key of a named artifact of a run.
func ArtifactKey(runID, name string) string {
	return fmt.Sprintf("runs/%s/artifacts/%s", runID, PathElement(name))
}

// PathElement reduces name to a single safe path element: letters, digits,
// '-', '_' and '.', with separators collapsed to '_'.
func PathElement(name string) string {
	var b strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_', r == '.':
			b.WriteRune(r)
		case r == ' ' || r == ',' || r == '(' || r == ')':
			if s := b.String(); s != "" && !strings.HasSuffix(s, "_") {
				b.WriteByte('_')
			}
		}
	}
	clean := strings.Trim(b.String(), "_.")
	if clean == "" {
		return "unnamed"
	}
	return clean
}
