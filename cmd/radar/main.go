package main

import (
	"os"

	"narrativeradar/internal/cli"
)

func main() {
	os.Exit(cli.Execute())
}
