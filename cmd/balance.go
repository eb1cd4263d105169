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

var (
	balanceOwner   string
	balanceOutputs bool
	balanceHistory string
	balanceLimit   int
)

var balanceCmd = &cobra.Command{
	Use:   "balance",
	Short: "Show the spendable balance of an owner in the local ledger",
	Run: func(cmd *cobra.Command, args []string) {
		var err error
		if cmd.Flags().Changed("history") {
			err = showHistory(balanceOwner, balanceHistory, balanceLimit)
		} else {
			err = showBalance(balanceOwner, balanceOutputs)
		}
		if err != nil {
			logx.Error("BALANCE CLI", err)
			os.Exit(1)
		}
	},
}

func init() {
	rootCmd.AddCommand(balanceCmd)
	balanceCmd.Flags().StringVarP(&balanceOwner, "owner", "o", "", "owner key or DID, defaults to the node key")
	balanceCmd.Flags().BoolVar(&balanceOutputs, "outputs", false, "list the unspent outputs")
	balanceCmd.Flags().StringVar(&balanceHistory, "history", "all", "show transaction history instead: all, sent or received")
	balanceCmd.Flags().Lookup("history").NoOptDefVal = "all"
	balanceCmd.Flags().IntVar(&balanceLimit, "limit", 0, "with --history, show only the newest entries")
}

func showBalance(owner string, withOutputs bool) error {
	node, err := openNode(configPath)
	if err != nil {
		return err
	}
	defer node.Close()

	if owner == "" {
		owner = node.key.PublicKey()
	}
	svc := service.NewLedgerService(node.ledger, nil, nil, nil, nil, node.gossipCfg)
	info, err := service.NewAccountService(svc).GetAccount(context.Background(), owner, withOutputs)
	if err != nil {
		return err
	}
	out, err := jsonx.MarshalIndent(info)
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}

func showHistory(owner, filter string, limit int) error {
	node, err := openNode(configPath)
	if err != nil {
		return err
	}
	defer node.Close()

	if owner == "" {
		owner = node.key.PublicKey()
	}
	svc := service.NewLedgerService(node.ledger, nil, nil, nil, nil, node.gossipCfg)
	history, err := service.NewAccountService(svc).GetHistory(context.Background(), owner, filter, limit)
	if err != nil {
		return err
	}
	out, err := jsonx.MarshalIndent(history)
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}
