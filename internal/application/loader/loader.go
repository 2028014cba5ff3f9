// Package loader turns workflow documents into typed workflows. Documents
// are YAML; JSON is accepted as the YAML subset it is.
//
//	name: ci
//	concurrency: deploy-${{ vars.branch }}
//	jobs:
//	  build:
//	    strategy:
//	      matrix:
//	        os: [linux, mac]
//	    outputs:
//	      artifact: ${{ steps.pack.outputs.file }}
//	    steps:
//	      - id: pack
//	        run: make dist && echo "file=dist.tgz" >> "$DAGRUN_OUTPUT"
//	  deploy:
//	    needs: build
//	    if: ${{ vars.branch == 'main' }}
//	    steps:
//	      - run: ./deploy.sh ${{ needs.build.outputs.artifact }}
package loader

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/aescanero/dagrun/pkg/domain"
)

// Parse decodes one workflow document. Structural problems are reported as
// *domain.GraphError values of kind domain.ErrInvalidWorkflow; graph-level
// validation is left to graph.Build.
func Parse(data []byte) (*domain.Workflow, error) {
	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, invalid("", "%v", err)
	}

	wf := &domain.Workflow{
		Name:        doc.Name,
		Env:         doc.Env,
		Concurrency: doc.Concurrency.spec(),
	}

	jobs, err := decodeJobs(&doc.Jobs)
	if err != nil {
		return nil, err
	}
	if len(jobs) == 0 {
		return nil, invalid("", "no jobs defined")
	}
	wf.Jobs = jobs
	return wf, nil
}

// LoadFile reads and parses a workflow document from disk.
func LoadFile(path string) (*domain.Workflow, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read workflow: %w", err)
	}
	wf, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return wf, nil
}

// decodeJobs accepts jobs as a mapping keyed by job name, kept in document
// order, or as a sequence of jobs carrying a name field.
func decodeJobs(node *yaml.Node) ([]domain.JobDefinition, error) {
	var jobs []domain.JobDefinition

	switch node.Kind {
	case 0:
		return nil, nil
	case yaml.MappingNode:
		for i := 0; i+1 < len(node.Content); i += 2 {
			name := node.Content[i].Value
			var jd jobDocument
			if err := node.Content[i+1].Decode(&jd); err != nil {
				return nil, invalid(name, "%v", err)
			}
			if jd.Name != "" && jd.Name != name {
				return nil, invalid(name, "name field %q does not match key", jd.Name)
			}
			jd.Name = name
			jobs = append(jobs, jd.definition())
		}
	case yaml.SequenceNode:
		for i, c := range node.Content {
			var jd jobDocument
			if err := c.Decode(&jd); err != nil {
				return nil, invalid("", "job %d: %v", i, err)
			}
			if jd.Name == "" {
				return nil, invalid("", "job %d (line %d) has no name", i, c.Line)
			}
			jobs = append(jobs, jd.definition())
		}
	default:
		return nil, invalid("", "line %d: jobs must be a mapping or a list", node.Line)
	}
	return jobs, nil
}

func (jd *jobDocument) definition() domain.JobDefinition {
	def := domain.JobDefinition{
		Name:           jd.Name,
		Needs:          jd.Needs,
		Condition:      jd.If,
		Concurrency:    jd.Concurrency.spec(),
		Env:            jd.Env,
		Outputs:        jd.Outputs,
		TimeoutMinutes: jd.TimeoutMinutes,
	}
	if s := jd.Strategy; s != nil {
		def.FailFast = s.FailFast
		def.MaxParallel = s.MaxParallel
		if s.Matrix != nil {
			m := s.Matrix.Matrix
			def.Matrix = &m
		}
	}
	for _, sd := range jd.Steps {
		def.Steps = append(def.Steps, domain.Step{
			ID:       sd.ID,
			Name:     sd.Name,
			Run:      sd.Run,
			Env:      sd.Env,
			Upload:   sd.Upload,
			Download: sd.Download,
		})
	}
	return def
}

func invalid(job, format string, args ...any) error {
	return domain.NewGraphError(domain.ErrInvalidWorkflow, job, format, args...)
}
