// Command meshnode is the meshstate node binary: it runs the gossip/DHT
// fabric, the authoritative state engine, the JSON-RPC surface, and the
// bridge watcher, and also doubles as a wallet/transaction CLI, matching
// the teacher's cmd/synnergy command-tree style.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	root := &cobra.Command{
		Use:   "meshnode",
		Short: "meshstate node and wallet CLI",
	}
	root.AddCommand(startCmd())
	root.AddCommand(walletCmd())
	root.AddCommand(txCmd())
	root.AddCommand(queryCmd())
	root.AddCommand(bridgeCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
