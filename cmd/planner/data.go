package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/warp/strategy-planner/budget"
	"github.com/warp/strategy-planner/interchange"
	"github.com/warp/strategy-planner/store/sqlite"
)

var flagMerge bool

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored strategies",
	Args:  cobra.NoArgs,
	RunE:  withStore(runList),
}

var exportCmd = &cobra.Command{
	Use:   "export [file]",
	Short: "Export every strategy as a JSON array",
	Args:  cobra.MaximumNArgs(1),
	RunE:  withStore(runExport),
}

var importCmd = &cobra.Command{
	Use:   "import <file>",
	Short: "Import an exported JSON array",
	Long:  "Import strategies from an export file. Existing strategies are replaced unless --merge is given.",
	Args:  cobra.ExactArgs(1),
	RunE:  withStore(runImport),
}

var validateCmd = &cobra.Command{
	Use:   "validate <id>",
	Short: "Check a strategy's line items against its budget",
	Args:  cobra.ExactArgs(1),
	RunE:  withStore(runValidate),
}

var flightsCmd = &cobra.Command{
	Use:   "flights <id>",
	Short: "Show a strategy's billing-cycle flights",
	Args:  cobra.ExactArgs(1),
	RunE:  withStore(runFlights),
}

var csvCmd = &cobra.Command{
	Use:   "csv <id>",
	Short: "Write a strategy's line items as CSV",
	Args:  cobra.ExactArgs(1),
	RunE:  withStore(runCSV),
}

func init() {
	importCmd.Flags().BoolVar(&flagMerge, "merge", false, "Add to the existing strategies instead of replacing them")
	rootCmd.AddCommand(listCmd, exportCmd, importCmd, validateCmd, flightsCmd, csvCmd)
}

// withStore opens the database around a command.
func withStore(run func(cmd *cobra.Command, store *sqlite.Store, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		store, err := openStore()
		if err != nil {
			return err
		}
		defer store.Close()
		return run(cmd, store, args)
	}
}

func loadStrategy(cmd *cobra.Command, store *sqlite.Store, id string) (*budget.Strategy, error) {
	s, err := store.Get(cmd.Context(), id)
	if err != nil {
		return nil, err
	}
	if s == nil {
		return nil, fmt.Errorf("%w: %s", budget.ErrStrategyNotFound, id)
	}
	return s, nil
}

func runList(cmd *cobra.Command, store *sqlite.Store, _ []string) error {
	strategies, err := store.List(cmd.Context())
	if err != nil {
		return err
	}
	currentID, err := store.CurrentID(cmd.Context())
	if err != nil {
		return err
	}
	if len(strategies) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No strategies.")
		return nil
	}

	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "\tID\tNAME\tCLIENT\tBUDGET\tIMPRESSIONS\tDATES\tUPDATED")
	for _, s := range strategies {
		marker := ""
		if s.ID == currentID {
			marker = "*"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s to %s\t%s\n",
			marker, s.ID, s.Name, s.ClientName,
			budget.FormatMoney(s.ClientBudget),
			humanize.Comma(s.ImpressionGoal),
			s.CampaignStart, s.CampaignEnd,
			humanize.Time(s.UpdatedAt),
		)
	}
	return tw.Flush()
}

func runExport(cmd *cobra.Command, store *sqlite.Store, args []string) error {
	data, err := interchange.ExportAll(cmd.Context(), store)
	if err != nil {
		return err
	}
	if len(args) == 0 {
		_, err := cmd.OutOrStdout().Write(append(data, '\n'))
		return err
	}
	if err := os.WriteFile(args[0], data, 0o644); err != nil {
		return fmt.Errorf("write export: %w", err)
	}
	logger.Info("strategies exported", "file", args[0], "size", humanize.Bytes(uint64(len(data))))
	return nil
}

func runImport(cmd *cobra.Command, store *sqlite.Store, args []string) error {
	var (
		data []byte
		err  error
	)
	if args[0] == "-" {
		data, err = io.ReadAll(cmd.InOrStdin())
	} else {
		data, err = os.ReadFile(args[0])
	}
	if err != nil {
		return fmt.Errorf("read import: %w", err)
	}

	n, err := interchange.ImportAll(cmd.Context(), store, data, flagMerge)
	if err != nil {
		return err
	}
	logger.Info("strategies imported", "count", n, "merge", flagMerge)
	fmt.Fprintf(cmd.OutOrStdout(), "Imported %d %s.\n", n, plural(n, "strategy", "strategies"))
	return nil
}

func runValidate(cmd *cobra.Command, store *sqlite.Store, args []string) error {
	s, err := loadStrategy(cmd, store, args[0])
	if err != nil {
		return err
	}
	v := budget.Validate(s)
	c := budget.Calculate(s)
	out := cmd.OutOrStdout()

	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "Strategy\t%s\n", s.Name)
	fmt.Fprintf(tw, "Client budget\t%s\n", budget.FormatMoney(s.ClientBudget))
	fmt.Fprintf(tw, "Line item budget\t%s\n", budget.FormatMoney(v.TotalLineItemBudget))
	fmt.Fprintf(tw, "Difference\t%s\n", budget.FormatMoney(v.Difference))
	fmt.Fprintf(tw, "Impressions\t%s of %s\n", humanize.Comma(c.TotalImpressions), humanize.Comma(s.ImpressionGoal))
	fmt.Fprintf(tw, "Profit\t%s (%s%%)\n", budget.FormatMoney(c.TotalProfit), c.ProfitMarginPercentage.StringFixed(1))
	if err := tw.Flush(); err != nil {
		return err
	}

	for _, e := range v.Errors {
		fmt.Fprintln(out, "ERROR  ", e)
	}
	for _, w := range v.Warnings {
		fmt.Fprintln(out, "WARNING", w)
	}
	if !v.IsValid {
		return fmt.Errorf("strategy %s is over budget", s.ID)
	}
	fmt.Fprintln(out, "OK")
	return nil
}

func runFlights(cmd *cobra.Command, store *sqlite.Store, args []string) error {
	s, err := loadStrategy(cmd, store, args[0])
	if err != nil {
		return err
	}
	if len(s.Flights) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No flights. Set campaign dates and regenerate.")
		return nil
	}

	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(tw, "PERIOD\tIMPRESSIONS\tRPM\tBUDGET\tDSP BID\tDSP SPEND\tPROFIT\t")
	for _, f := range s.Flights {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\t\n",
			f.MonthYear,
			humanize.Comma(f.ImpressionsAllocation),
			f.RPMTarget.StringFixed(2),
			budget.FormatMoney(f.ClientBudgetAllocation),
			f.DSPBidAllocation.StringFixed(2),
			budget.FormatMoney(f.DSPSpendAllocation),
			budget.FormatMoney(f.ProfitMargin),
		)
	}
	return tw.Flush()
}

func runCSV(cmd *cobra.Command, store *sqlite.Store, args []string) error {
	s, err := loadStrategy(cmd, store, args[0])
	if err != nil {
		return err
	}
	_, err = cmd.OutOrStdout().Write(append(interchange.LineItemsCSV(*s), '\n'))
	return err
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}
