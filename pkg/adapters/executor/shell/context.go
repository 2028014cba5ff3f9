package shell

import "github.com/aescanero/dagrun/pkg/domain"

// stepContext adds steps.<id>.outputs.<name> to the execution context.
type stepContext struct {
	*domain.ExecutionContext
	steps map[string]map[string]string
}

func (c *stepContext) Lookup(path []string) (string, bool) {
	if len(path) == 4 && path[0] == "steps" && path[2] == "outputs" {
		v, ok := c.steps[path[1]][path[3]]
		return v, ok
	}
	return c.ExecutionContext.Lookup(path)
}
