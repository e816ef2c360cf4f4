package main

import (
	"encoding/hex"
	"fmt"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/spf13/cobra"

	"meshstate/core"
	"meshstate/wallet"
)

func txCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "tx", Short: "build, sign, and submit messages"}
	cmd.AddCommand(txTransferCmd())
	cmd.AddCommand(txMintCmd())
	cmd.AddCommand(txIssueCmd())
	cmd.AddCommand(txBurnCmd())
	return cmd
}

// keyFlags are the mnemonic/derivation-path flags shared by every tx
// subcommand; each subcommand derives its own signing key from them.
type keyFlags struct {
	mnemonic, passphrase string
	account, index       uint32
}

func addKeyFlags(cmd *cobra.Command, kf *keyFlags) {
	cmd.Flags().StringVar(&kf.mnemonic, "mnemonic", "", "signer's BIP-39 recovery phrase (required)")
	cmd.Flags().StringVar(&kf.passphrase, "passphrase", "", "optional BIP-39 passphrase")
	cmd.Flags().Uint32Var(&kf.account, "account", 0, "hardened account index")
	cmd.Flags().Uint32Var(&kf.index, "index", 0, "hardened address index")
	cmd.MarkFlagRequired("mnemonic")
}

func derive(kf keyFlags) (*wallet.HDWallet, core.Address, error) {
	w, err := wallet.WalletFromMnemonic(kf.mnemonic, kf.passphrase)
	if err != nil {
		return nil, core.Address{}, err
	}
	addr, err := w.NewAddress(kf.account, kf.index)
	return w, addr, err
}

func txTransferCmd() *cobra.Command {
	var kf keyFlags
	var rpcAddr, toStr string
	var tokenID uint64
	var amount uint64
	cmd := &cobra.Command{
		Use:   "transfer",
		Short: "sign and submit a Transfer via the send RPC (scalar-intent path)",
		RunE: func(cmd *cobra.Command, args []string) error {
			w, from, err := derive(kf)
			if err != nil {
				return err
			}
			priv, _, err := w.PrivateKey(kf.account, kf.index)
			if err != nil {
				return err
			}
			to, err := core.ParseAddress(toStr)
			if err != nil {
				return fmt.Errorf("--to: %w", err)
			}
			var nonceResp struct {
				Nonce uint64 `json:"nonce"`
			}
			if err := rpcCall(rpcAddr, "get_nonce_with_token", &nonceResp, from.String(), tokenID); err != nil {
				return err
			}
			amt := core.Uint128FromUint64(amount)
			sig := core.SignTransferIntent(from, to, core.TokenId(tokenID), amt, core.Nonce(nonceResp.Nonce), priv)
			var result map[string]interface{}
			if err := rpcCall(rpcAddr, "send", &result, from.String(), to.String(), tokenID, hexutil.EncodeBig(amt.BigInt()), nonceResp.Nonce, hex.EncodeToString(sig[:])); err != nil {
				return err
			}
			fmt.Printf("accepted msg_id=%v\n", result["msg_id"])
			return nil
		},
	}
	addKeyFlags(cmd, &kf)
	cmd.Flags().StringVar(&rpcAddr, "rpc", "http://127.0.0.1:8645", "node JSON-RPC endpoint")
	cmd.Flags().StringVar(&toStr, "to", "", "recipient address (required)")
	cmd.Flags().Uint64Var(&tokenID, "token-id", uint64(core.NativeTokenID), "token id")
	cmd.Flags().Uint64Var(&amount, "amount", 0, "amount (required, > 0)")
	cmd.MarkFlagRequired("to")
	cmd.MarkFlagRequired("amount")
	return cmd
}

func txMintCmd() *cobra.Command {
	var kf keyFlags
	var rpcAddr, toStr string
	var tokenID, amount uint64
	cmd := &cobra.Command{
		Use:   "mint",
		Short: "sign and submit a Mint (issuer authority required) via broadcast_mint",
		RunE: func(cmd *cobra.Command, args []string) error {
			w, issuer, err := derive(kf)
			if err != nil {
				return err
			}
			priv, _, err := w.PrivateKey(kf.account, kf.index)
			if err != nil {
				return err
			}
			to, err := core.ParseAddress(toStr)
			if err != nil {
				return fmt.Errorf("--to: %w", err)
			}
			var nonceResp struct {
				Nonce uint64 `json:"nonce"`
			}
			if err := rpcCall(rpcAddr, "get_nonce_with_token", &nonceResp, issuer.String(), tokenID); err != nil {
				return err
			}
			m := core.Mint{Issuer: issuer, To: to, TokenID: core.TokenId(tokenID), Amount: core.Uint128FromUint64(amount), Nonce: core.Nonce(nonceResp.Nonce)}
			core.SignMint(&m, priv)
			raw := core.EncodeMintForGossip(m)
			var result map[string]interface{}
			if err := rpcCall(rpcAddr, "broadcast_mint", &result, hex.EncodeToString(raw)); err != nil {
				return err
			}
			fmt.Printf("accepted msg_id=%v\n", result["msg_id"])
			return nil
		},
	}
	addKeyFlags(cmd, &kf)
	cmd.Flags().StringVar(&rpcAddr, "rpc", "http://127.0.0.1:8645", "node JSON-RPC endpoint")
	cmd.Flags().StringVar(&toStr, "to", "", "recipient address (required)")
	cmd.Flags().Uint64Var(&tokenID, "token-id", uint64(core.NativeTokenID), "token id")
	cmd.Flags().Uint64Var(&amount, "amount", 0, "amount (required, > 0)")
	cmd.MarkFlagRequired("to")
	cmd.MarkFlagRequired("amount")
	return cmd
}

func txIssueCmd() *cobra.Command {
	var kf keyFlags
	var rpcAddr, metadata string
	var maxSupply uint64
	cmd := &cobra.Command{
		Use:   "issue",
		Short: "sign and submit an IssueToken via p3p_issueToken",
		RunE: func(cmd *cobra.Command, args []string) error {
			w, issuer, err := derive(kf)
			if err != nil {
				return err
			}
			priv, _, err := w.PrivateKey(kf.account, kf.index)
			if err != nil {
				return err
			}
			var nonceResp struct {
				Nonce uint64 `json:"nonce"`
			}
			if err := rpcCall(rpcAddr, "getNonce", &nonceResp, issuer.String()); err != nil {
				return err
			}
			it := core.IssueToken{Issuer: issuer, Metadata: metadata, MaxSupply: core.Uint128FromUint64(maxSupply), Nonce: core.Nonce(nonceResp.Nonce)}
			core.SignIssueToken(&it, priv)
			raw := core.EncodeIssueTokenForGossip(it)
			var result map[string]interface{}
			if err := rpcCall(rpcAddr, "p3p_issueToken", &result, hex.EncodeToString(raw)); err != nil {
				return err
			}
			fmt.Printf("accepted token_id=%v msg_id=%v\n", result["token_id"], result["msg_id"])
			return nil
		},
	}
	addKeyFlags(cmd, &kf)
	cmd.Flags().StringVar(&rpcAddr, "rpc", "http://127.0.0.1:8645", "node JSON-RPC endpoint")
	cmd.Flags().StringVar(&metadata, "metadata", "", "token metadata, e.g. name|symbol|decimals (required)")
	cmd.Flags().Uint64Var(&maxSupply, "max-supply", 0, "maximum total supply (required, > 0)")
	cmd.MarkFlagRequired("metadata")
	cmd.MarkFlagRequired("max-supply")
	return cmd
}

func txBurnCmd() *cobra.Command {
	var kf keyFlags
	var rpcAddr string
	var tokenID, amount uint64
	cmd := &cobra.Command{
		Use:   "burn",
		Short: "sign and submit a Burn via broadcastUpdate",
		RunE: func(cmd *cobra.Command, args []string) error {
			w, holder, err := derive(kf)
			if err != nil {
				return err
			}
			priv, _, err := w.PrivateKey(kf.account, kf.index)
			if err != nil {
				return err
			}
			var nonceResp struct {
				Nonce uint64 `json:"nonce"`
			}
			if err := rpcCall(rpcAddr, "get_nonce_with_token", &nonceResp, holder.String(), tokenID); err != nil {
				return err
			}
			b := core.Burn{Holder: holder, TokenID: core.TokenId(tokenID), Amount: core.Uint128FromUint64(amount), Nonce: core.Nonce(nonceResp.Nonce)}
			core.SignBurn(&b, priv)
			raw := core.EncodeBurnForGossip(b)
			var result map[string]interface{}
			if err := rpcCall(rpcAddr, "broadcastUpdate", &result, hex.EncodeToString(raw)); err != nil {
				return err
			}
			fmt.Printf("accepted msg_id=%v\n", result["msg_id"])
			return nil
		},
	}
	addKeyFlags(cmd, &kf)
	cmd.Flags().StringVar(&rpcAddr, "rpc", "http://127.0.0.1:8645", "node JSON-RPC endpoint")
	cmd.Flags().Uint64Var(&tokenID, "token-id", uint64(core.NativeTokenID), "token id")
	cmd.Flags().Uint64Var(&amount, "amount", 0, "amount (required, > 0)")
	cmd.MarkFlagRequired("amount")
	return cmd
}
