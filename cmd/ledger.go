package cmd

import (
	"errors"
	"fmt"
	"log"

	"github.com/findy-network/findy-wallet/agent/ledger"
	"github.com/findy-network/findy-wallet/agent/utils"
	"github.com/lainio/err2"
	"github.com/lainio/err2/try"
	"github.com/spf13/cobra"
)

var ledgerFlags = struct {
	token string
	from  string
}{}

var balanceCmd = &cobra.Command{
	Use:   "balance <address>",
	Short: "Prints the ether or token balance of the address",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) (err error) {
		defer err2.Handle(&err)

		c := try.To1(dialLedger())
		defer c.Close()
		ctx, cancel := timeoutCtx()
		defer cancel()

		out := cmd.OutOrStdout()
		if ledgerFlags.token == "" {
			bal := try.To1(c.NativeBalance(ctx, args[0]))
			try.To1(fmt.Fprintln(out, bal, "ETH"))
			return nil
		}
		ta := try.To1(c.TokenBalance(ctx, ledgerFlags.token, args[0]))
		try.To1(fmt.Fprintln(out, ta.Amount, ta.Symbol))
		return nil
	},
}

var tokenCmd = &cobra.Command{
	Use:   "token <token-address>",
	Short: "Prints the ERC-20 metadata of the token",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) (err error) {
		defer err2.Handle(&err)

		c := try.To1(dialLedger())
		defer c.Close()
		ctx, cancel := timeoutCtx()
		defer cancel()

		tk := try.To1(c.TokenMetadata(ctx, args[0]))
		try.To1(fmt.Fprintf(cmd.OutOrStdout(), "name: %s\nsymbol: %s\ndecimals: %d\ntotal supply: %s\n",
			tk.Name, tk.Symbol, tk.Decimals, tk.TotalSupply))
		return nil
	},
}

var txCmd = &cobra.Command{
	Use:   "tx <hash>",
	Short: "Prints the transaction",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) (err error) {
		defer err2.Handle(&err)

		c := try.To1(dialLedger())
		defer c.Close()
		ctx, cancel := timeoutCtx()
		defer cancel()

		tx, err := c.TransactionByHash(ctx, args[0])
		if errors.Is(err, ledger.ErrNotFound) {
			try.To1(fmt.Fprintln(cmd.OutOrStdout(), "not found:", args[0]))
			return nil
		}
		try.To(err)
		try.To1(fmt.Fprintf(cmd.OutOrStdout(),
			"hash: %s\nfrom: %s\nto: %s\nvalue: %s ETH\ngas price: %s gwei\n"+
				"gas limit: %d\nnonce: %d\nstatus: %s\nblock: %d\nconfirmations: %d\n",
			tx.Hash, tx.From, tx.To, tx.Value, tx.GasPrice, tx.GasLimit, tx.Nonce,
			tx.Status, tx.BlockNumber, tx.Confirmations))
		return nil
	},
}

var sendCmd = &cobra.Command{
	Use:   "send <to> <amount>",
	Short: "Sends ether or tokens from a managed identity",
	Long: `
Sends ether, or tokens with --token, from the managed identity given with
--from or from the active identity.

Example
	findy-wallet send 0x70997970C51812dc3A010C7d01b50e0d17dc79C8 0.01
	`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) (err error) {
		defer err2.Handle(&err)

		w := try.To1(openWallet())
		defer w.Close()

		id, ok := w.Active()
		if ledgerFlags.from != "" {
			id, ok = w.Identity(ledgerFlags.from)
		}
		if !ok {
			return fmt.Errorf("no managed identity to send from")
		}
		if rootFlags.dryRun {
			try.To1(fmt.Fprintf(cmd.OutOrStdout(), "would send %s from %s to %s\n",
				args[1], id.Address, args[0]))
			return nil
		}

		c := try.To1(dialLedger())
		defer c.Close()
		ctx, cancel := timeoutCtx()
		defer cancel()

		var h ledger.TxHandle
		if ledgerFlags.token == "" {
			h = try.To1(c.SubmitNativeTransfer(ctx, id.KeyMaterial, args[0], args[1]))
		} else {
			h = try.To1(c.SubmitTokenTransfer(ctx, id.KeyMaterial, ledgerFlags.token, args[0], args[1]))
		}
		try.To1(fmt.Fprintln(cmd.OutOrStdout(), "tx:", h.Hash, "nonce:", h.Nonce))
		return nil
	},
}

var allowanceCmd = &cobra.Command{
	Use:   "allowance <token-address> <owner> <spender>",
	Short: "Prints how much of the token the spender may move from the owner",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) (err error) {
		defer err2.Handle(&err)

		c := try.To1(dialLedger())
		defer c.Close()
		ctx, cancel := timeoutCtx()
		defer cancel()

		ta := try.To1(c.TokenAllowance(ctx, args[0], args[1], args[2]))
		try.To1(fmt.Fprintln(cmd.OutOrStdout(), ta.Amount, ta.Symbol))
		return nil
	},
}

var approveCmd = &cobra.Command{
	Use:   "approve <token-address> <spender> <amount>",
	Short: "Sets the spending cap of the spender from a managed identity",
	Long: `
Sets the ERC-20 spending cap of the spender. The cap replaces the previous
one and 0 revokes it. The owner is the managed identity given with --from or
the active identity.

Example
	findy-wallet approve 0x1c7D4B196Cb0C7B01d743Fbc6116a902379C7238 \
		0x70997970C51812dc3A010C7d01b50e0d17dc79C8 100
	`,
	Args: cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) (err error) {
		defer err2.Handle(&err)

		w := try.To1(openWallet())
		defer w.Close()

		id, ok := w.Active()
		if ledgerFlags.from != "" {
			id, ok = w.Identity(ledgerFlags.from)
		}
		if !ok {
			return fmt.Errorf("no managed identity to approve from")
		}
		if rootFlags.dryRun {
			try.To1(fmt.Fprintf(cmd.OutOrStdout(), "would approve %s of %s for %s from %s\n",
				args[2], args[0], args[1], id.Address))
			return nil
		}

		c := try.To1(dialLedger())
		defer c.Close()
		ctx, cancel := timeoutCtx()
		defer cancel()

		h := try.To1(c.SubmitTokenApproval(ctx, id.KeyMaterial, args[0], args[1], args[2]))
		try.To1(fmt.Fprintln(cmd.OutOrStdout(), "tx:", h.Hash, "nonce:", h.Nonce))
		return nil
	},
}

func dialLedger() (c *ledger.Client, err error) {
	defer err2.Handle(&err)

	url := utils.Settings.RPCURL()
	if url == "" {
		return nil, fmt.Errorf("ledger node not set, use --rpc or %s", getEnvName("", rootEnvs["rpc"]))
	}
	ctx, cancel := timeoutCtx()
	defer cancel()
	return ledger.Dial(ctx, url)
}

func init() {
	defer err2.Catch(err2.Err(func(err error) {
		log.Println(err)
	}))

	balanceCmd.Flags().StringVar(&ledgerFlags.token, "token", "", "ERC-20 token address")
	sendCmd.Flags().StringVar(&ledgerFlags.token, "token", "", "ERC-20 token address")
	sendCmd.Flags().StringVar(&ledgerFlags.from, "from", "", "managed identity to send from")
	approveCmd.Flags().StringVar(&ledgerFlags.from, "from", "", "managed identity which owns the tokens")

	rootCmd.AddCommand(balanceCmd)
	rootCmd.AddCommand(tokenCmd)
	rootCmd.AddCommand(txCmd)
	rootCmd.AddCommand(sendCmd)
	rootCmd.AddCommand(allowanceCmd)
	rootCmd.AddCommand(approveCmd)
}
