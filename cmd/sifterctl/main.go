// Command sifterctl inspects and exercises a running sifter: exposure
// files, the event database and the FrbSifter gRPC service.
package main

import (
	"fmt"
	"os"

	"github.com/chord-frb/sifter/cmd/sifterctl/commands"
	"github.com/chord-frb/sifter/internal/version"
)

func main() {
	root := commands.NewRootCmd(version.String())
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
