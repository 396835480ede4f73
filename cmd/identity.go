package cmd

import (
	"fmt"
	"io"
	"log"
	"strings"

	"github.com/findy-network/findy-wallet/agent/identity"
	"github.com/findy-network/findy-wallet/agent/wallet"
	"github.com/lainio/err2"
	"github.com/lainio/err2/try"
	"github.com/spf13/cobra"
)

// identityCmd represents the identity subcommand
var identityCmd = &cobra.Command{
	Use:   "identity",
	Short: "Parent command for managing the identities of the wallet",
	Long: `
Parent command for managing the identities of the wallet
	`,
	Run: func(cmd *cobra.Command, _ []string) {
		SubCmdNeeded(cmd)
	},
}

var identityFlags = struct {
	name    string
	secrets bool
}{}

var createIdentityCmd = &cobra.Command{
	Use:   "create",
	Short: "Creates a new identity with a recovery phrase and adds it",
	Long: `
Creates a new identity from fresh entropy and adds it to the wallet. The
recovery phrase is printed once, write it down.

Example
	findy-wallet identity create --name savings
	`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) (err error) {
		return addIdentity(cmd.OutOrStdout(), func(w *wallet.Wallet) (identity.Identity, error) {
			return w.CreateIdentity()
		})
	},
}

var importPhraseCmd = &cobra.Command{
	Use:   "import-phrase <word>...",
	Short: "Imports an identity from its recovery phrase",
	Long: `
Imports an identity from its recovery phrase. The phrase can be given as one
quoted argument or word by word.

Example
	findy-wallet identity import-phrase "test test ... junk" --name old
	`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) (err error) {
		phrase := strings.Join(args, " ")
		return addIdentity(cmd.OutOrStdout(), func(w *wallet.Wallet) (identity.Identity, error) {
			return w.ImportPhrase(phrase)
		})
	},
}

var importKeyCmd = &cobra.Command{
	Use:   "import-key <hex-key>",
	Short: "Imports an identity from raw key material",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) (err error) {
		return addIdentity(cmd.OutOrStdout(), func(w *wallet.Wallet) (identity.Identity, error) {
			return w.ImportKey(args[0])
		})
	},
}

var listIdentityCmd = &cobra.Command{
	Use:   "list",
	Short: "Lists the identities in order, the active one marked with *",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) (err error) {
		defer err2.Handle(&err)

		w := try.To1(openWallet())
		defer w.Close()

		act, _ := w.Active()
		out := cmd.OutOrStdout()
		for _, id := range w.Identities() {
			mark := " "
			if id.Address == act.Address {
				mark = "*"
			}
			try.To1(fmt.Fprintf(out, "%s %s\t%s\n", mark, id.Address, id.Name))
			if identityFlags.secrets {
				printSecrets(out, id)
			}
		}
		return nil
	},
}

var useIdentityCmd = &cobra.Command{
	Use:   "use <address>",
	Short: "Sets the active identity",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) (err error) {
		defer err2.Handle(&err)

		w := try.To1(openWallet())
		defer w.Close()

		if rootFlags.dryRun {
			if _, ok := w.Identity(args[0]); !ok {
				return fmt.Errorf("unknown identity %s", args[0])
			}
			return nil
		}
		try.To(w.SetActive(args[0]))
		try.To1(fmt.Fprintln(cmd.OutOrStdout(), "active:", args[0]))
		return nil
	},
}

var renameIdentityCmd = &cobra.Command{
	Use:   "rename <address> <name>",
	Short: "Sets the display name of the identity",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) (err error) {
		defer err2.Handle(&err)

		w := try.To1(openWallet())
		defer w.Close()

		if rootFlags.dryRun {
			return nil
		}
		if !try.To1(w.RenameIdentity(args[0], args[1])) {
			try.To1(fmt.Fprintln(cmd.OutOrStdout(), "no identity", args[0]))
		}
		return nil
	},
}

var rmIdentityCmd = &cobra.Command{
	Use:   "rm <address>",
	Short: "Removes the identity and its key material from the wallet",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) (err error) {
		defer err2.Handle(&err)

		w := try.To1(openWallet())
		defer w.Close()

		if rootFlags.dryRun {
			return nil
		}
		out := cmd.OutOrStdout()
		if !try.To1(w.RemoveIdentity(args[0])) {
			try.To1(fmt.Fprintln(out, "no identity", args[0]))
			return nil
		}
		act, ok := w.Active()
		if !ok {
			try.To1(fmt.Fprintln(out, "wallet is empty"))
			return nil
		}
		try.To1(fmt.Fprintln(out, "active:", act.Address))
		return nil
	},
}

// addIdentity opens the wallet, gets the identity with get and adds it unless
// it's a dry run.
func addIdentity(out io.Writer, get func(w *wallet.Wallet) (identity.Identity, error)) (err error) {
	defer err2.Handle(&err)

	w := try.To1(openWallet())
	defer w.Close()

	id := try.To1(get(w))
	if !rootFlags.dryRun {
		try.To(w.AddIdentity(id, identityFlags.name))
	}
	try.To1(fmt.Fprintln(out, "address:", id.Address))
	printSecrets(out, id)
	return nil
}

func printSecrets(out io.Writer, id identity.Identity) {
	if id.HasPhrase() {
		_, _ = fmt.Fprintln(out, "  recovery phrase:", id.RecoveryPhrase)
	}
	if identityFlags.secrets {
		_, _ = fmt.Fprintln(out, "  key material:", id.KeyMaterial)
	}
}

func init() {
	defer err2.Catch(err2.Err(func(err error) {
		log.Println(err)
	}))

	for _, c := range []*cobra.Command{createIdentityCmd, importPhraseCmd, importKeyCmd} {
		c.Flags().StringVar(&identityFlags.name, "name", "", "display name of the identity")
	}
	for _, c := range []*cobra.Command{createIdentityCmd, importPhraseCmd, importKeyCmd, listIdentityCmd} {
		c.Flags().BoolVar(&identityFlags.secrets, "secrets", false, "print key material as well")
	}

	identityCmd.AddCommand(createIdentityCmd)
	identityCmd.AddCommand(importPhraseCmd)
	identityCmd.AddCommand(importKeyCmd)
	identityCmd.AddCommand(listIdentityCmd)
	identityCmd.AddCommand(useIdentityCmd)
	identityCmd.AddCommand(renameIdentityCmd)
	identityCmd.AddCommand(rmIdentityCmd)
	rootCmd.AddCommand(identityCmd)
}
