package main

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/neiandria/clinic-scheduling/internal/calendar"
	"github.com/neiandria/clinic-scheduling/internal/config"
)

func calendarCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "calendar [YYYY-MM]",
		Short: "Print the 42-day month grid",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			loc, err := cfg.Location()
			if err != nil {
				return err
			}

			ref := time.Now().In(loc)
			if len(args) == 1 {
				if ref, err = time.ParseInLocation("2006-01", args[0], loc); err != nil {
					return fmt.Errorf("month must be YYYY-MM, got %q", args[0])
				}
			}
			printCalendar(cmd.OutOrStdout(), ref, cfg.WeekStart)
			return nil
		},
	}
}

func slotsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "slots",
		Short: "List the bookable time slots",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			catalog, err := cfg.Catalog()
			if err != nil {
				return err
			}
			for _, l := range catalog.Labels() {
				fmt.Fprintln(cmd.OutOrStdout(), l)
			}
			return nil
		},
	}
}

// printCalendar writes a month header, a weekday header and six rows of
// days. Days outside the month are shown in parentheses.
func printCalendar(w io.Writer, ref time.Time, weekStart time.Weekday) {
	first := calendar.FirstOfMonth(ref)
	fmt.Fprintf(w, "%s %d\n", first.Month(), first.Year())

	heads := make([]string, 7)
	for i := range heads {
		heads[i] = fmt.Sprintf("%4s", time.Weekday((int(weekStart)+i)%7).String()[:2])
	}
	fmt.Fprintln(w, strings.Join(heads, ""))

	for _, week := range calendar.Rows(calendar.BuildMonthGrid(first, weekStart)) {
		var b strings.Builder
		for _, d := range week {
			if d.CurrentMonth {
				fmt.Fprintf(&b, "%4d", d.Date.Day())
			} else {
				fmt.Fprintf(&b, "%4s", fmt.Sprintf("(%d)", d.Date.Day()))
			}
		}
		fmt.Fprintln(w, b.String())
	}
}
