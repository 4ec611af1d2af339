// Command ralph drives the local multi-agent orchestrator: task scheduling,
// worker lifecycle, pipeline execution, conflict resolution, and resume
// decisions, all operating against a project's .ralph/ directory.
package main

import (
	"os"

	"github.com/ralphorchestrator/ralph/internal/cli"
)

func main() {
	os.Exit(cli.Execute())
}
