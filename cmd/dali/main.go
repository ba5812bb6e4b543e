// Copyright (c) 2026 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Command dali serves synthetic HTTP responses and measures transfers
// against them.
package main

import (
	"context"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	err := newRootCmd().ExecuteContext(context.Background())
	if err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:          "dali",
		Short:        "Synthetic HTTP response server",
		SilenceUsage: true,
	}
	cmd.AddCommand(
		newServeCmd(),
		newMeasureCmd(),
	)
	return cmd
}
