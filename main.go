// The main package for the imgsize executable.
package main

import (
	"github.com/JakeFAU/imagesize-intrinsic/cmd"
)

func main() {
	cmd.Execute()
}
