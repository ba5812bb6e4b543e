// Copyright (c) 2026 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package main

import (
	"os"
	"path/filepath"

	"github.com/z5labs/dali"
	"github.com/z5labs/dali/appbuilder"
	"github.com/z5labs/dali/config"
	"github.com/z5labs/dali/server"

	"github.com/spf13/cobra"
)

func newServeCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the configured routes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			srcs := []config.Source{server.DefaultConfig()}
			if configPath != "" {
				src, err := config.FromFile(os.DirFS(filepath.Dir(configPath)), filepath.Base(configPath))
				if err != nil {
					return err
				}
				srcs = append(srcs, src)
			}

			builder := appbuilder.Recover(
				appbuilder.OTel(
					dali.AppBuilderFunc[server.Config](server.Build),
				),
			)
			return dali.Run(cmd.Context(), builder, srcs...)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "YAML or JSON `FILE` layered over the built in configuration")
	return cmd
}
