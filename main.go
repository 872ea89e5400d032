package main

import (
	"os"

	"github.com/rkusa/wimg/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
