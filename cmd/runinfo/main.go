package main

import "github.com/beamkit/runindex/cmd/runinfo/cmd"

func main() {
	cmd.Execute()
}
