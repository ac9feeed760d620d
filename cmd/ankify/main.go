package main

import (
	"os"

	"github.com/mcao2/readwise-ankify/internal/cli"
)

func main() {
	os.Exit(cli.Execute())
}
