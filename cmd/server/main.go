package main // Entry point package

import (
	"os" // exit status

	"github.com/iliyamo/live-auction/internal/cli" // command wiring
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil { // cobra prints the error
		os.Exit(1)
	}
}
