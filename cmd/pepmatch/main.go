// PepMatch - peptide spectrum matching with variable modifications
package main

import (
	"fmt"
	"os"

	"github.com/ChrisMcGann/PepMatch/cmd/pepmatch/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
