package main

import (
	"os"

	"github.com/create-to-solve/jtis/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
