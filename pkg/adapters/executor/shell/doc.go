// Package shell is the reference step executor. Each run step is a shell
// command executed in a scratch workspace; upload and download steps move
// files between the workspace and the blob store.
//
// A step publishes outputs by appending to the file named by $DAGRUN_OUTPUT,
// either as name=value lines or as multi-line values:
//
//	name<<DELIM
//	line one
//	line two
//	DELIM
//
// Later steps reference them as ${{ steps.<id>.outputs.<name> }}, and job
// outputs are rendered from the same context once all steps have run.
package shell
