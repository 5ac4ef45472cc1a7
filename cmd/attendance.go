package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/kozaktomas/face-attendance/internal/ledger"
	"github.com/spf13/cobra"
)

var attendanceCmd = &cobra.Command{
	Use:   "attendance",
	Short: "Inspect the attendance file",
}

var attendanceListCmd = &cobra.Command{
	Use:   "list",
	Short: "Print all attendance records in append order",
	RunE: func(cmd *cobra.Command, args []string) error {
		records, err := loadRecords(cmd)
		if err != nil {
			return err
		}
		return printRecords(cmd, records)
	},
}

var attendanceTodayCmd = &cobra.Command{
	Use:   "today",
	Short: "Print today's attendance records",
	RunE: func(cmd *cobra.Command, args []string) error {
		records, err := loadRecords(cmd)
		if err != nil {
			return err
		}
		date := time.Now().Format("2006-01-02")
		var today []ledger.Record
		for _, r := range records {
			if r.Date == date {
				today = append(today, r)
			}
		}
		return printRecords(cmd, today)
	},
}

func loadRecords(cmd *cobra.Command) ([]ledger.Record, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	path := cfg.LedgerPath
	if p := mustGetString(cmd, "file"); p != "" {
		path = p
	}
	records, err := ledger.ReadRecords(path)
	if err != nil {
		return nil, fmt.Errorf("reading attendance file: %w", err)
	}
	return records, nil
}

func printRecords(cmd *cobra.Command, records []ledger.Record) error {
	if mustGetBool(cmd, "json") {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(records)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tTIME\tDATE")
	for _, r := range records {
		fmt.Fprintf(w, "%s\t%s\t%s\n", r.Name, r.Time, r.Date)
	}
	if err := w.Flush(); err != nil {
		return err
	}
	fmt.Printf("%d records\n", len(records))
	return nil
}

func init() {
	for _, c := range []*cobra.Command{attendanceListCmd, attendanceTodayCmd} {
		c.Flags().Bool("json", false, "Output as JSON")
		c.Flags().String("file", "", "Attendance file path (overrides config)")
		attendanceCmd.AddCommand(c)
	}
	rootCmd.AddCommand(attendanceCmd)
}
