package main

import (
	"fmt"
	"os"

	"github.com/hboehmer-IW/prefect/cmd/prefect/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
