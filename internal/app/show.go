package app

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/shopspring/decimal"

	"arbitrator/internal/history"
)

// Show prints the latest hourly record's series, newest first.
func (a *App) Show(ctx context.Context, opts ShowOptions) error {
	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	records, err := store.ListRecentRecords(ctx, history.CategoryHourly, 1)
	if err != nil {
		return err
	}
	if len(records) == 0 || len(records[0].Series) == 0 {
		fmt.Fprintln(os.Stdout, "no hourly records found")
		return nil
	}

	series := records[0].Series
	if opts.Limit > 0 && len(series) > opts.Limit {
		series = series[:opts.Limit]
	}

	writer := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Period (UTC)\tPriceA\tConverted\tPriceB\tRate\tSpread%\tSpreadMin\tSpreadMax")

	for _, s := range series {
		fmt.Fprintf(
			writer,
			"%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			time.UnixMilli(s.PeriodStartMS).UTC().Format(time.RFC3339),
			formatDecimal(s.PriceA),
			formatDecimal(s.Converted),
			formatDecimal(s.PriceB),
			formatDecimal(s.Rate),
			formatDecimal(s.Spread),
			formatDecimal(s.SpreadMin),
			formatDecimal(s.SpreadMax),
		)
	}

	writer.Flush()
	return nil
}

func formatDecimal(v *decimal.Decimal) string {
	if v == nil {
		return "-"
	}
	return v.StringFixed(2)
}
