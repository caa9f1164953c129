// Command pagewire serves a set of example pages through a relay.
//
// Programs with their own pages build the same command tree with
// pkg/cli and their own Register function.
package main

import (
	"os"

	"github.com/vango-dev/pagewire/pkg/cli"
)

// Version information set at build time.
var (
	version = ""
	commit  = "none"
	date    = "unknown"
)

func main() {
	os.Exit(cli.Main(cli.Options{
		Register: registerExamples,
		Version:  version,
		Commit:   commit,
		Date:     date,
	}))
}
