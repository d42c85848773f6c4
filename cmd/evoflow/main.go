package main

import (
	"fmt"
	"os"

	"github.com/eenlars/evoflow/internal/cli"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "evoflow",
	Short: "Evolve multi-agent workflows against an evaluation goal",
}

func main() {
	cli.SetupCLI(rootCmd)
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}
