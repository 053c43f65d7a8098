/*
Copyright © 2022 Morgan Gangwere <morgan.gangwere@gmail.com>
*/
package cmd

import (
	"fmt"
	"os"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/cobra/doc"
)

var docsCmd = &cobra.Command{
	Use:    "docs [dir]",
	Short:  "Generate markdown documentation for reeltool",
	Args:   cobra.MaximumNArgs(1),
	Hidden: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		dir := "./docs/reeltool"
		if len(args) == 1 {
			dir = args[0]
		}
		return GenDocs(dir)
	},
}

// GenDocs writes one markdown page per command into dir.
func GenDocs(dir string) error {
	if err := os.MkdirAll(dir, 0o775); err != nil {
		return errors.Wrap(err, "failed to make docs dir")
	}
	if err := doc.GenMarkdownTree(rootCmd, dir); err != nil {
		return errors.Wrap(err, "failed to make docs")
	}
	fmt.Fprintln(rootCmd.OutOrStdout(), "docs written to", dir)
	return nil
}

func init() {
	rootCmd.AddCommand(docsCmd)
}
