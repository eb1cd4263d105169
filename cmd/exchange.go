package cmd

import (
	"fmt"
	"os"

	"github.com/meshpay/meshledger/jsonx"
	"github.com/meshpay/meshledger/logx"
	"github.com/meshpay/meshledger/service"
	"github.com/meshpay/meshledger/snapshot"
	"github.com/spf13/cobra"
)

var (
	exportDir     string
	exportSince   uint64
	exportCleanup bool
	importPath    string
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Write the local ledger delta to a file",
	Long: `Write everything the local ledger changed after --since to a delta file.
Carry the file to a node that shares no network with this one and load it
with the import command.`,
	Run: func(cmd *cobra.Command, args []string) {
		if err := exportDelta(); err != nil {
			logx.Error("EXPORT CLI", err)
			os.Exit(1)
		}
	},
}

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Merge a delta file into the local ledger",
	Long: `Merge a delta file written by the export command. A path to a directory
imports every delta file it contains, oldest first.`,
	Run: func(cmd *cobra.Command, args []string) {
		if err := importDeltas(); err != nil {
			logx.Error("IMPORT CLI", err)
			os.Exit(1)
		}
	},
}

func init() {
	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(importCmd)

	exportCmd.Flags().StringVarP(&exportDir, "out", "o", "./deltas", "Directory to write the delta file to")
	exportCmd.Flags().Uint64Var(&exportSince, "since", 0, "Only export changes after this epoch")
	exportCmd.Flags().BoolVar(&exportCleanup, "cleanup", false, "Remove older delta files of this node from the directory")
	importCmd.Flags().StringVarP(&importPath, "file", "f", "", "Delta file or directory of delta files")
}

func exportDelta() error {
	node, err := openNode(configPath)
	if err != nil {
		return err
	}
	defer node.Close()

	d := node.ledger.ExportDelta(exportSince)
	path, err := snapshot.WriteDeltaFile(exportDir, d, node.ledger.Digest())
	if err != nil {
		return err
	}
	if exportCleanup {
		if err := snapshot.CleanupOldDeltaFiles(exportDir, node.nodeID, path); err != nil {
			logx.Warn("EXPORT CLI", "Cleanup failed: ", err)
		}
	}
	fmt.Println(path)
	return nil
}

func importDeltas() error {
	if importPath == "" {
		return fmt.Errorf("--file is required")
	}
	paths := []string{importPath}
	if info, err := os.Stat(importPath); err != nil {
		return err
	} else if info.IsDir() {
		if paths, err = snapshot.ListDeltaFiles(importPath); err != nil {
			return err
		}
	}

	node, err := openNode(configPath)
	if err != nil {
		return err
	}
	defer node.Close()

	svc := service.NewLedgerService(node.ledger, node.store, node.meta, nil, nil, node.gossipCfg)
	for _, path := range paths {
		f, err := snapshot.ReadDeltaFile(path)
		if err != nil {
			return err
		}
		if f.Meta.Origin == node.nodeID {
			continue
		}
		summary, err := svc.ImportDelta(f.Delta)
		if err != nil {
			return fmt.Errorf("import %s: %w", path, err)
		}
		out, err := jsonx.MarshalIndent(map[string]interface{}{
			"file":    path,
			"summary": summary,
		})
		if err != nil {
			return err
		}
		fmt.Println(string(out))
	}
	return nil
}
