package shell

import (
	"bufio"
	"bytes"
	"fmt"
	"strings"
)

// parseOutputs reads the name=value and name<<DELIM forms written to
// $DAGRUN_OUTPUT. Later assignments of a name win.
func parseOutputs(data []byte) (map[string]string, error) {
	out := make(map[string]string)
	sc := bufio.NewScanner(bytes.NewReader(data))
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	line := 0
	for sc.Scan() {
		line++
		text := strings.TrimRight(sc.Text(), "\r")
		if strings.TrimSpace(text) == "" {
			continue
		}

		if name, delim, ok := strings.Cut(text, "<<"); ok && !strings.Contains(name, "=") {
			name = strings.TrimSpace(name)
			delim = strings.TrimSpace(delim)
			if name == "" || delim == "" {
				return out, fmt.Errorf("output file line %d: malformed heredoc", line)
			}
			start := line
			var lines []string
			closed := false
			for sc.Scan() {
				line++
				l := strings.TrimRight(sc.Text(), "\r")
				if l == delim {
					closed = true
					break
				}
				lines = append(lines, l)
			}
			if !closed {
				return out, fmt.Errorf("output file line %d: missing delimiter %q", start, delim)
			}
			out[name] = strings.Join(lines, "\n")
			continue
		}

		name, value, ok := strings.Cut(text, "=")
		name = strings.TrimSpace(name)
		if !ok || name == "" {
			return out, fmt.Errorf("output file line %d: expected name=value", line)
		}
		out[name] = value
	}
	if err := sc.Err(); err != nil {
		return out, fmt.Errorf("failed to read output file: %w", err)
	}
	return out, nil
}
