package cmd

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/meshpay/meshledger/config"
	"github.com/meshpay/meshledger/identity"
	"github.com/meshpay/meshledger/interfaces"
	"github.com/meshpay/meshledger/jsonx"
	"github.com/meshpay/meshledger/logx"
	"github.com/meshpay/meshledger/service"
	"github.com/spf13/cobra"
)

type TransferConfig struct {
	PrivateKeyFile string
	To             string
	Amount         string
	Fee            string
	Verbose        bool
}

var transferConfig TransferConfig

var transferCmd = &cobra.Command{
	Use:   "transfer [flags]",
	Short: "Pay another owner from the local ledger",
	Long: `This command spends unspent outputs of the sender from the node's local
ledger, without any network. The transaction is gossiped by the node the next
time it runs. Stop the node first: the store is opened exclusively.

Examples:
  # Pay 1000 using the node key
  transfer -t 5GrwvaEF5zXb26Fz9rcQpDWS57CtERHpNehXCPcNoHGKutQY -a 1_000

  # Pay 500 from another wallet key with a fee of 1
  transfer -t did:mesh:5GrwvaEF5zXb26Fz9rcQpDWS57CtERHpNehXCPcNoHGKutQY -a 500 --fee 1 -f /path/to/key.txt`,
	Run: func(cmd *cobra.Command, args []string) {
		if err := transferToken(transferConfig); err != nil {
			logx.Error("TRANSFER CLI", err)
			os.Exit(1)
		}
	},
}

func init() {
	rootCmd.AddCommand(transferCmd)

	transferCmd.PersistentFlags().StringVarP(&transferConfig.PrivateKeyFile, "private-key-file", "f", "", "sender private key file, defaults to the node key")
	transferCmd.PersistentFlags().StringVarP(&transferConfig.To, "to", "t", "", "owner key or DID of the recipient")
	transferCmd.PersistentFlags().StringVarP(&transferConfig.Amount, "amount", "a", "", "amount")
	transferCmd.PersistentFlags().StringVar(&transferConfig.Fee, "fee", "0", "fee burned by the transaction")
	transferCmd.PersistentFlags().BoolVarP(&transferConfig.Verbose, "verbose", "v", false, "verbose output")
}

func parseAmount(s string) (uint64, error) {
	return strconv.ParseUint(strings.ReplaceAll(s, "_", ""), 10, 64)
}

func transferToken(tc TransferConfig) error {
	amount, err := parseAmount(tc.Amount)
	if err != nil {
		return fmt.Errorf("could not parse amount string: %v", err)
	}
	fee, err := parseAmount(tc.Fee)
	if err != nil {
		return fmt.Errorf("could not parse fee string: %v", err)
	}

	node, err := openNode(configPath)
	if err != nil {
		return err
	}
	defer node.Close()

	signer := node.key
	if tc.PrivateKeyFile != "" {
		privKey, err := config.LoadEd25519PrivKey(tc.PrivateKeyFile)
		if err != nil {
			return fmt.Errorf("failed to load sender private key: %w", err)
		}
		if signer, err = identity.KeyPairFromPrivateKey(privKey); err != nil {
			return err
		}
	}
	if tc.Verbose {
		logx.Debug("TRANSFER CLI", "Sender: ", signer.PublicKey())
	}

	svc := service.NewLedgerService(node.ledger, node.store, node.meta, nil, nil, node.gossipCfg)
	tx, res, err := service.NewTxService(svc).Transfer(context.Background(), interfaces.TransferRequest{
		Signer: signer,
		To:     tc.To,
		Amount: amount,
		Fee:    fee,
	})
	if err != nil {
		return fmt.Errorf("transfer failed: %w", err)
	}

	out, err := jsonx.MarshalIndent(map[string]interface{}{
		"tx_id":  tx.ID,
		"status": res.Status.String(),
		"inputs": tx.Inputs,
	})
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}
