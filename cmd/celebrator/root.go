package main

import (
	"io"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

var (
	green  = color.New(color.FgGreen).SprintFunc()
	yellow = color.New(color.FgYellow).SprintFunc()
	red    = color.New(color.FgRed).SprintFunc()
	gray   = color.New(color.FgHiBlack).SprintFunc()
	bold   = color.New(color.Bold).SprintFunc()
)

// isTerminal reports whether w is an interactive terminal.
func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   "celebrator",
		Short: "Mastodon bot that celebrates posting milestones",
		Long: `celebrator follows a Mastodon timeline and posts a congratulation when an
account publishes its first status or crosses a posting milestone.
Every celebration is recorded in a JSON ledger so it happens only once.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, _ []string) {
			if !isTerminal(cmd.OutOrStdout()) {
				color.NoColor = true
			}
		},
	}
	root.AddCommand(newRunCommand(), newLedgerCommand(), newVersionCommand())
	return root
}
