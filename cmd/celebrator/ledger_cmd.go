package main

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"celebrator/internal/config"
	"celebrator/internal/ledger"
	jsonx "celebrator/internal/shared/json"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

type ledgerRow struct {
	Milestone int64 `json:"milestone" yaml:"milestone"`
	ledger.Entry `yaml:",inline"`
}

func newLedgerCommand() *cobra.Command {
	var path string
	cmd := &cobra.Command{
		Use:   "ledger",
		Short: "Inspect the milestone ledger",
	}
	cmd.PersistentFlags().StringVar(&path, "ledger", "", "ledger path (defaults to $LEDGER_PATH or "+config.DefaultLedgerPath+")")
	cmd.AddCommand(newLedgerListCommand(&path), newLedgerCheckCommand(&path))
	return cmd
}

func resolveLedgerPath(flag string) string {
	if strings.TrimSpace(flag) != "" {
		return flag
	}
	if v, ok := config.DefaultEnvLookup(config.KeyLedgerPath); ok && strings.TrimSpace(v) != "" {
		return strings.TrimSpace(v)
	}
	return config.DefaultLedgerPath
}

func loadLedger(flag string) (*ledger.Ledger, error) {
	store := ledger.New(resolveLedgerPath(flag))
	if err := store.Load(); err != nil {
		return nil, &ExitCodeError{Code: 2, Err: err}
	}
	return store, nil
}

func newLedgerListCommand(path *string) *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recorded celebrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, err := loadLedger(*path)
			if err != nil {
				return err
			}
			return writeLedger(cmd.OutOrStdout(), store, output)
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "table", "table, json or yaml")
	return cmd
}

func ledgerRows(store *ledger.Ledger) []ledgerRow {
	rows := make([]ledgerRow, 0, store.Len())
	for _, m := range store.Milestones() {
		for _, e := range store.Entries(m) {
			rows = append(rows, ledgerRow{Milestone: m, Entry: e})
		}
	}
	return rows
}

func writeLedger(w io.Writer, store *ledger.Ledger, output string) error {
	rows := ledgerRows(store)
	switch strings.ToLower(strings.TrimSpace(output)) {
	case "json":
		data, err := jsonx.MarshalIndent(rows, "", "  ")
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(w, string(data))
		return err
	case "yaml", "yml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(rows); err != nil {
			return err
		}
		return enc.Close()
	case "", "table":
		if len(rows) == 0 {
			_, err := fmt.Fprintln(w, gray("no celebrations recorded in "+store.Path()))
			return err
		}
		tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, bold("MILESTONE")+"\t"+bold("ACCOUNT")+"\t"+bold("USERNAME")+"\t"+bold("STATUS")+"\t"+bold("LOGGED"))
		for _, r := range rows {
			logged := "-"
			if r.LoggedAt > 0 {
				logged = r.LoggedTime().UTC().Format(time.RFC3339)
			}
			fmt.Fprintf(tw, "%d\t%s\t@%s\t%s\t%s\n", r.Milestone, r.AccountID, r.Username, r.StatusID, logged)
		}
		return tw.Flush()
	default:
		return fmt.Errorf("unknown output format %q", output)
	}
}

func newLedgerCheckCommand(path *string) *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Validate the ledger file and report duplicate celebrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, err := loadLedger(*path)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			dups := store.Duplicates()
			if len(dups) == 0 {
				fmt.Fprintf(out, "%s %s: %d entries across %d milestones\n",
					green("ok"), store.Path(), store.Len(), len(store.Milestones()))
				return nil
			}
			for _, d := range dups {
				fmt.Fprintf(out, "%s milestone %d: account %s celebrated %d times\n",
					yellow("duplicate"), d.Milestone, d.AccountID, d.Count)
			}
			return &ExitCodeError{Code: 2, Err: fmt.Errorf("%s has %d duplicate entries", store.Path(), len(dups))}
		},
	}
}
