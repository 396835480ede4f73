package cmd

import (
	"fmt"
	"log"
	"text/tabwriter"

	"github.com/lainio/err2"
	"github.com/lainio/err2/try"
	"github.com/spf13/cobra"
)

var historyCmd = &cobra.Command{
	Use:   "history [address]",
	Short: "Prints the transfer history of the address, the active identity by default",
	Long: `
Prints the transfer history of the address. If the indexer cannot be reached
after the retries, or it has no records, the demo dataset is printed and
marked as fallback.

Example
	findy-wallet history 0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266 \
		--rpc https://eth-sepolia.g.alchemy.com/v2/<key>
	`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) (err error) {
		defer err2.Handle(&err)

		w := try.To1(openWallet())
		defer w.Close()

		var address string
		if len(args) == 1 {
			address = args[0]
		} else if act, ok := w.Active(); ok {
			address = act.Address
		} else {
			return fmt.Errorf("no address and no active identity")
		}

		ctx, cancel := timeoutCtx()
		defer cancel()
		r := w.History(ctx, address)

		out := cmd.OutOrStdout()
		try.To1(fmt.Fprintf(out, "%s: %s, %d records, %d attempts\n",
			r.Address, r.Source, len(r.Records), r.Attempts))
		if r.IsFallback() {
			try.To1(fmt.Fprintln(out, "fallback:", r.Reason))
		}
		tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
		for _, rec := range r.Records {
			try.To1(fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s -> %s\n", rec.BlockNumber,
				rec.Value, rec.Asset, rec.Hash, rec.From, rec.To))
		}
		return tw.Flush()
	},
}

func init() {
	defer err2.Catch(err2.Err(func(err error) {
		log.Println(err)
	}))

	rootCmd.AddCommand(historyCmd)
}
