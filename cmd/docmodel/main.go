// Command docmodel runs edit scenarios, inspects change journals and hosts
// the collaboration hub.
package main

import (
	"os"

	"github.com/roach88/docmodel/internal/cli"
)

func main() {
	os.Exit(cli.Execute(os.Args[1:], os.Stdout, os.Stderr))
}
