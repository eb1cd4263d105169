package cmd

import (
	"os"

	"github.com/meshpay/meshledger/logx"
	"github.com/spf13/cobra"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "meshledger",
	Short: "Offline-capable payment mesh node CLI",
	Long:  "Command line interface for running a payment mesh node and managing its local ledger.",
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "config/genesis.yml", "Path to the node configuration file")
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		logx.Error("CMD", "Command execution failed:", err)
		os.Exit(1)
	}
}
