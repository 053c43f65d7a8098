/*
Copyright © 2022 Morgan Gangwere <morgan.gangwere@gmail.com>
*/
package cmd

import (
	"os"

	"github.com/hashicorp/go-hclog"
	"github.com/indrora/reel/reel/config"
	"github.com/spf13/cobra"
)

var (
	cfg    config.Config
	logger hclog.Logger = hclog.NewNullLogger()
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "reeltool",
	Short: "Reeltool records and inspects game recordings",
	Long: `Reeltool is a reference tool for .rdemo recordings.

It can produce synthetic recordings, dump their header and index, and
validate every chunk of a finished recording.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		path, _ := cmd.Flags().GetString("config")
		loaded, err := config.Load(path)
		if err != nil {
			return err
		}
		if verbose, _ := cmd.Flags().GetBool("verbose"); verbose {
			loaded.Log.Level = "debug"
		}
		cfg = loaded
		logger = cfg.Logger("reeltool", cmd.ErrOrStderr())
		return nil
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().String("config", "", "YAML configuration file")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Write detailed information to the terminal")
}
