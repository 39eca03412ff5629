package main

import (
	"os"

	"github.com/calebhart/issuewise/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
