package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/meshpay/meshledger/identity"
	"github.com/meshpay/meshledger/logx"
	"github.com/meshpay/meshledger/p2p"
	"github.com/spf13/cobra"
)

var keygenOut string

var keygenCmd = &cobra.Command{
	Use:   "keygen",
	Short: "Generate an Ed25519 key for a node or wallet",
	Long: `Generate a new Ed25519 private key, save it hex encoded and print the
owner key, its DID and the peer id a node using it announces.`,
	Run: func(cmd *cobra.Command, args []string) {
		if err := generateKey(keygenOut); err != nil {
			logx.Error("KEYGEN", err)
			os.Exit(1)
		}
	},
}

func init() {
	rootCmd.AddCommand(keygenCmd)
	keygenCmd.Flags().StringVarP(&keygenOut, "out", "o", "config/key.txt", "File to write the private key to")
}

func generateKey(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("%s already exists", path)
	}
	key, err := identity.GenerateKeyPair()
	if err != nil {
		return err
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return fmt.Errorf("failed to create %s: %w", dir, err)
		}
	}
	if err := key.Save(path); err != nil {
		return fmt.Errorf("failed to save key: %w", err)
	}
	peerID, err := p2p.NodeIDFromPrivKey(key.PrivateKey())
	if err != nil {
		return err
	}
	fmt.Printf("Private key: %s\n", path)
	fmt.Printf("Owner key:   %s\n", key.PublicKey())
	fmt.Printf("DID:         %s\n", key.DID())
	fmt.Printf("Peer ID:     %s\n", peerID)
	return nil
}
