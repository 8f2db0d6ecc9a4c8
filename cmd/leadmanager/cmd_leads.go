package main

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/Skryldev/lead-manager/models"
)

func newAddCmd(a *app) *cobra.Command {
	var (
		p      models.CreateLeadParams
		source string
	)
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Record a new lead",
		Long: `Record a new lead with status New and today's date as last contact.

The email must be unique. Source is one of Manual, LinkedIn, Website or
Instagram and defaults to Manual. Score is between 0 and 100.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			p.Source = models.Source(source)
			l, err := a.leads.Create(cmd.Context(), p)
			if err != nil {
				return err
			}
			fmt.Fprintf(a.stdout, "Lead #%d added: %s <%s>\n", l.ID, l.Name, l.Email)
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVar(&p.Name, "name", "", "full name (required)")
	f.StringVar(&p.Email, "email", "", "email address (required, unique)")
	f.StringVar(&p.Phone, "phone", "", "phone number")
	f.StringVar(&source, "source", string(models.SourceManual), "Manual, LinkedIn, Website or Instagram")
	f.IntVar(&p.Score, "score", 0, "lead score, 0-100")
	f.StringVar(&p.Notes, "notes", "", "free-form notes")
	_ = cmd.MarkFlagRequired("name")
	_ = cmd.MarkFlagRequired("email")
	return cmd
}

func newListCmd(a *app) *cobra.Command {
	var (
		status string
		asJSON bool
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List leads",
		Long: `List leads in insertion order.

--status keeps only leads whose status matches exactly; "All" or an empty
value lists everything.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			list, err := a.leads.List(cmd.Context(), status)
			if err != nil {
				return err
			}
			if asJSON {
				enc := json.NewEncoder(a.stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(list)
			}
			return printLeads(a.stdout, list)
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "New, Contacted, Qualified, Closed or All")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON instead of a table")
	return cmd
}

func printLeads(w io.Writer, list []*models.Lead) error {
	if len(list) == 0 {
		_, err := fmt.Fprintln(w, "No leads.")
		return err
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tEMAIL\tPHONE\tSOURCE\tSTATUS\tSCORE\tLAST CONTACT")
	for _, l := range list {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%s\t%d\t%s\n",
			l.ID, l.Name, l.Email, l.Phone, l.Source, l.Status, l.Score, l.LastContact)
	}
	return tw.Flush()
}

func newSetStatusCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "set-status <email> <status>",
		Short: "Change the status of a lead",
		Long: `Change the status of the lead with the given email.

Status is one of New, Contacted, Qualified or Closed. Any transition is
allowed.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			l, err := a.leads.UpdateStatus(cmd.Context(), args[0], args[1])
			if err != nil {
				return err
			}
			fmt.Fprintf(a.stdout, "Lead %s is now %s\n", l.Email, l.Status)
			return nil
		},
	}
}

func newSummaryCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "summary",
		Short: "Show lead counts per status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			sum, err := a.leads.Summary(cmd.Context())
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(a.stdout, 0, 0, 2, ' ', 0)
			for _, s := range models.Statuses {
				fmt.Fprintf(tw, "%s\t%d\n", s, sum.ByStatus[s])
			}
			fmt.Fprintf(tw, "Total\t%d\n", sum.Total)
			return tw.Flush()
		},
	}
}
