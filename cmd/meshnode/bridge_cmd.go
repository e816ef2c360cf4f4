package main

import (
	"encoding/json"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/spf13/cobra"

	"meshstate/core"
)

func bridgeCmd() *cobra.Command {
	var rpcAddr string
	cmd := &cobra.Command{Use: "bridge", Short: "cross-chain bridge operations"}
	cmd.PersistentFlags().StringVar(&rpcAddr, "rpc", "http://127.0.0.1:8645", "node JSON-RPC endpoint")

	lockCmd := &cobra.Command{
		Use:   "lock <address>",
		Short: "record a LockReceipt for funds already transferred into the bridge escrow",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			tokenID, _ := cmd.Flags().GetUint64("token-id")
			amount, _ := cmd.Flags().GetUint64("amount")
			var out json.RawMessage
			if err := rpcCall(rpcAddr, "bridge_startLock", &out, args[0], tokenID, hexutil.EncodeBig(new(big.Int).SetUint64(amount))); err != nil {
				return err
			}
			fmt.Println(string(out))
			return nil
		},
	}
	lockCmd.Flags().Uint64("token-id", uint64(core.NativeTokenID), "token id")
	lockCmd.Flags().Uint64("amount", 0, "amount locked")
	lockCmd.MarkFlagRequired("amount")
	cmd.AddCommand(lockCmd)

	releaseCmd := &cobra.Command{
		Use:   "release <ext_tx_hash> <dst_address>",
		Short: "record a ReleaseRequest observed from a confirmed external Locked event",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			tokenID, _ := cmd.Flags().GetUint64("token-id")
			amount, _ := cmd.Flags().GetUint64("amount")
			var out json.RawMessage
			if err := rpcCall(rpcAddr, "bridge_submitRelease", &out, args[0], args[1], tokenID, hexutil.EncodeBig(new(big.Int).SetUint64(amount))); err != nil {
				return err
			}
			fmt.Println(string(out))
			return nil
		},
	}
	releaseCmd.Flags().Uint64("token-id", uint64(core.NativeTokenID), "token id")
	releaseCmd.Flags().Uint64("amount", 0, "amount released")
	releaseCmd.MarkFlagRequired("amount")
	cmd.AddCommand(releaseCmd)

	cmd.AddCommand(&cobra.Command{
		Use:   "status <id>",
		Short: "print a lock receipt or release request by id",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var out json.RawMessage
			if err := rpcCall(rpcAddr, "bridge_status", &out, args[0]); err != nil {
				return err
			}
			fmt.Println(string(out))
			return nil
		},
	})

	return cmd
}
