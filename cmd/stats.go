package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/meshpay/meshledger/jsonx"
	"github.com/meshpay/meshledger/logx"
	"github.com/meshpay/meshledger/service"
	"github.com/spf13/cobra"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Print ledger statistics and the registry digest",
	Long: `Print the local ledger statistics. Two nodes that merged the same
transactions print the same digest.`,
	Run: func(cmd *cobra.Command, args []string) {
		if err := showStats(); err != nil {
			logx.Error("STATS CLI", err)
			os.Exit(1)
		}
	},
}

func init() {
	rootCmd.AddCommand(statsCmd)
}

func showStats() error {
	node, err := openNode(configPath)
	if err != nil {
		return err
	}
	defer node.Close()

	svc := service.NewLedgerService(node.ledger, nil, nil, nil, nil, node.gossipCfg)
	status, err := service.NewHealthService(svc).Check(context.Background())
	if err != nil {
		return err
	}
	out, err := jsonx.MarshalIndent(status)
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}
