package main

import (
	"fmt"
	"os"

	"arcsync/cmd/internal/cli"
)

func main() {
	if err := cli.NewApp().Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "arcsync:", err)
		os.Exit(1)
	}
}
