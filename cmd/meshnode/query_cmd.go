package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"meshstate/core"
)

func queryCmd() *cobra.Command {
	var rpcAddr string
	cmd := &cobra.Command{Use: "query", Short: "read-only state queries against a node's RPC"}
	cmd.PersistentFlags().StringVar(&rpcAddr, "rpc", "http://127.0.0.1:8645", "node JSON-RPC endpoint")

	cmd.AddCommand(&cobra.Command{
		Use:   "root",
		Short: "print the current committed state root",
		RunE: func(cmd *cobra.Command, args []string) error {
			var out map[string]string
			if err := rpcCall(rpcAddr, "getRoot", &out); err != nil {
				return err
			}
			fmt.Println(out["root"])
			return nil
		},
	})

	balanceCmd := &cobra.Command{
		Use:   "balance <address>",
		Short: "print an account's balance for a token (default native)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			tokenID, _ := cmd.Flags().GetUint64("token-id")
			var out map[string]string
			if err := rpcCall(rpcAddr, "getBalanceWithToken", &out, args[0], tokenID); err != nil {
				return err
			}
			fmt.Println(out["balance"])
			return nil
		},
	}
	balanceCmd.Flags().Uint64("token-id", uint64(core.NativeTokenID), "token id")
	cmd.AddCommand(balanceCmd)

	proofCmd := &cobra.Command{
		Use:   "proof <address>",
		Short: "print a membership/absence proof for (address, token_id)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			tokenID, _ := cmd.Flags().GetUint64("token-id")
			var out map[string]string
			if err := rpcCall(rpcAddr, "get_proof_with_token", &out, args[0], tokenID); err != nil {
				return err
			}
			fmt.Println(out["proof"])
			return nil
		},
	}
	proofCmd.Flags().Uint64("token-id", uint64(core.NativeTokenID), "token id")
	cmd.AddCommand(proofCmd)

	cmd.AddCommand(&cobra.Command{
		Use:   "tokens",
		Short: "list registered tokens",
		RunE: func(cmd *cobra.Command, args []string) error {
			var out []map[string]interface{}
			if err := rpcCall(rpcAddr, "get_tokens", &out); err != nil {
				return err
			}
			enc, err := json.MarshalIndent(out, "", "  ")
			if err != nil {
				return err
			}
			fmt.Println(string(enc))
			return nil
		},
	})

	return cmd
}
