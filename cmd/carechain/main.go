// Command carechain records care events per production batch and verifies
// their provenance.
package main

import "github.com/mesh-intelligence/carechain/internal/cli"

func main() {
	cli.Execute()
}
