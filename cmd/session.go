package cmd

import (
	"fmt"
	"log"

	"github.com/lainio/err2"
	"github.com/lainio/err2/try"
	"github.com/spf13/cobra"
)

var sessionCmd = &cobra.Command{
	Use:   "session",
	Short: "Parent command for the session state",
	Run: func(cmd *cobra.Command, _ []string) {
		SubCmdNeeded(cmd)
	},
}

var showSessionCmd = &cobra.Command{
	Use:   "show",
	Short: "Shows the active identity and the last known connected identity",
	Long: `
Shows the active managed identity and the last known connected identity. The
connected identity is never live here since only the browser extension can
confirm it.
	`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) (err error) {
		defer err2.Handle(&err)

		w := try.To1(openWallet())
		defer w.Close()

		out := cmd.OutOrStdout()
		if act, ok := w.Active(); ok {
			try.To1(fmt.Fprintln(out, "active:   ", act))
		} else {
			try.To1(fmt.Fprintln(out, "active:    none"))
		}
		try.To1(fmt.Fprintln(out, "managed:  ", len(w.Identities())))
		if c, ok := w.Connected(); ok {
			try.To1(fmt.Fprintf(out, "connected: %s (%s) live: %v\n", c.Address, c.Kind, c.Live))
		} else {
			try.To1(fmt.Fprintln(out, "connected: none"))
		}
		return nil
	},
}

var backupCmd = &cobra.Command{
	Use:   "backup",
	Short: "Copies the wallet state file to the backup directory",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) (err error) {
		defer err2.Handle(&err)

		w := try.To1(openWallet())
		defer w.Close()

		if rootFlags.dryRun {
			return nil
		}
		name := try.To1(w.Backup())
		try.To1(fmt.Fprintln(cmd.OutOrStdout(), "backup:", name))
		return nil
	},
}

func init() {
	defer err2.Catch(err2.Err(func(err error) {
		log.Println(err)
	}))

	sessionCmd.AddCommand(showSessionCmd)
	sessionCmd.AddCommand(backupCmd)
	rootCmd.AddCommand(sessionCmd)
}
