package main

import (
	"encoding/hex"
	"fmt"

	"github.com/spf13/cobra"

	"meshstate/wallet"
)

func walletCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "wallet", Short: "key management"}
	cmd.AddCommand(walletNewCmd())
	cmd.AddCommand(walletAddressCmd())
	cmd.AddCommand(walletSignCmd())
	return cmd
}

func walletNewCmd() *cobra.Command {
	var entropyBits int
	cmd := &cobra.Command{
		Use:   "new",
		Short: "generate a new HD wallet and print its recovery mnemonic",
		RunE: func(cmd *cobra.Command, args []string) error {
			w, mnemonic, err := wallet.NewRandomWallet(entropyBits)
			if err != nil {
				return err
			}
			addr, err := w.NewAddress(0, 0)
			if err != nil {
				return err
			}
			fmt.Printf("mnemonic: %s\n", mnemonic)
			fmt.Printf("address (account 0, index 0): %s\n", addr.String())
			return nil
		},
	}
	cmd.Flags().IntVar(&entropyBits, "entropy", 128, "mnemonic entropy bits (128 or 256)")
	return cmd
}

func walletAddressCmd() *cobra.Command {
	var mnemonic, passphrase string
	var account, index uint32
	cmd := &cobra.Command{
		Use:   "address",
		Short: "derive an address from a mnemonic",
		RunE: func(cmd *cobra.Command, args []string) error {
			w, err := wallet.WalletFromMnemonic(mnemonic, passphrase)
			if err != nil {
				return err
			}
			addr, err := w.NewAddress(account, index)
			if err != nil {
				return err
			}
			fmt.Println(addr.String())
			return nil
		},
	}
	cmd.Flags().StringVar(&mnemonic, "mnemonic", "", "BIP-39 recovery phrase (required)")
	cmd.Flags().StringVar(&passphrase, "passphrase", "", "optional BIP-39 passphrase")
	cmd.Flags().Uint32Var(&account, "account", 0, "hardened account index")
	cmd.Flags().Uint32Var(&index, "index", 0, "hardened address index")
	cmd.MarkFlagRequired("mnemonic")
	return cmd
}

func walletSignCmd() *cobra.Command {
	var mnemonic, passphrase, messageHex string
	var account, index uint32
	cmd := &cobra.Command{
		Use:   "sign",
		Short: "sign an arbitrary hex-encoded message digest with a derived key",
		RunE: func(cmd *cobra.Command, args []string) error {
			w, err := wallet.WalletFromMnemonic(mnemonic, passphrase)
			if err != nil {
				return err
			}
			priv, _, err := w.PrivateKey(account, index)
			if err != nil {
				return err
			}
			msg, err := hex.DecodeString(messageHex)
			if err != nil {
				return fmt.Errorf("--message must be hex: %w", err)
			}
			sig := signRaw(priv, msg)
			fmt.Println(hex.EncodeToString(sig))
			return nil
		},
	}
	cmd.Flags().StringVar(&mnemonic, "mnemonic", "", "BIP-39 recovery phrase (required)")
	cmd.Flags().StringVar(&passphrase, "passphrase", "", "optional BIP-39 passphrase")
	cmd.Flags().Uint32Var(&account, "account", 0, "hardened account index")
	cmd.Flags().Uint32Var(&index, "index", 0, "hardened address index")
	cmd.Flags().StringVar(&messageHex, "message", "", "hex-encoded message to sign (required)")
	cmd.MarkFlagRequired("mnemonic")
	cmd.MarkFlagRequired("message")
	return cmd
}
