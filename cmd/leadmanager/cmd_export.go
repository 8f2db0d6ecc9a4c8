package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Skryldev/lead-manager/export"
)

type exportOptions struct {
	format string
	output string
	erase  bool
	yes    bool
}

func newExportCmd(a *app) *cobra.Command {
	var opts exportOptions
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export every lead, optionally erasing them afterwards",
		Long: `Export every lead as CSV or XLSX.

The file defaults to leads.<format> in the working directory; "-" writes to
stdout. With --erase the store is emptied once the export was written,
after typing 'yes' (or passing --yes). The erase is refused when leads
changed between the export and the confirmation.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.export(cmd.Context(), opts)
		},
	}
	f := cmd.Flags()
	f.StringVar(&opts.format, "format", string(export.FormatCSV), "csv or xlsx")
	f.StringVarP(&opts.output, "output", "o", "", `destination file, "-" for stdout (default leads.<format>)`)
	f.BoolVar(&opts.erase, "erase", false, "erase every lead after a successful export")
	f.BoolVar(&opts.yes, "yes", false, "do not ask before erasing")
	return cmd
}

func (a *app) export(ctx context.Context, opts exportOptions) error {
	format, err := export.ParseFormat(opts.format)
	if err != nil {
		return err
	}
	if opts.output == "" {
		opts.output = format.Filename()
	}

	snap, err := a.workflow.Snapshot(ctx, format)
	if err != nil {
		return err
	}

	deliver := func(data []byte) error { return os.WriteFile(opts.output, data, 0o600) }
	if opts.output == "-" {
		deliver = export.ToWriter(a.stdout)
	}
	if err := a.workflow.Handoff(snap.Token, deliver); err != nil {
		return err
	}
	if opts.output != "-" {
		fmt.Fprintf(a.stderr, "Exported %d leads to %s\n", snap.Rows, opts.output)
	}

	if !opts.erase {
		return nil
	}
	if !opts.yes {
		fmt.Fprintf(a.stderr, "WARNING: this erases all %d leads. Type 'yes' to confirm: ", snap.Rows)
		var confirm string
		_, _ = fmt.Fscanln(a.stdin, &confirm)
		if strings.TrimSpace(confirm) != "yes" {
			fmt.Fprintln(a.stderr, "Aborted. No leads were erased.")
			return nil
		}
	}

	n, err := a.workflow.Confirm(ctx, snap.Token)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.stderr, "Erased %d leads\n", n)
	return nil
}
