// Package domain holds the types shared by the orchestration core, the
// adapters and the API layer: workflow definitions, job instance states,
// events, run reports and the graph error taxonomy.
package domain
