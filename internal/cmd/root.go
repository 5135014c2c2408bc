// Package cmd contém os comandos cobra do binário gateway.
package cmd

import (
	"github.com/spf13/cobra"

	"admission-gateway/internal/config"
)

var cfgFile string

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "gateway",
		Short:         "Admission gateway: method allowlist, security headers and auth rate limiting",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (YAML); env ADMISSION_* overrides it")

	root.AddCommand(newServeCmd(), newConfigCmd(), newProbeCmd())
	return root
}

// Execute é chamado pelo main.
func Execute() error {
	return newRootCmd().Execute()
}

func loadConfig() (*config.Config, error) {
	return config.Load(cfgFile)
}
