package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/machinepulse/machinepulse/internal/api"
	"github.com/machinepulse/machinepulse/internal/config"
	"github.com/machinepulse/machinepulse/internal/monitor"
	"github.com/machinepulse/machinepulse/internal/source"
	"github.com/machinepulse/machinepulse/internal/store"
	"github.com/machinepulse/machinepulse/pkg/types"
)

type analyzeOptions struct {
	configPath    string
	scale         float64
	window        int
	threshold     float64
	fields        []string
	primary       string
	secondary     string
	columns       map[string]string
	failureColumn string
	pretty        bool
}

func newAnalyzeCmd() *cobra.Command {
	opts := &analyzeOptions{}

	cmd := &cobra.Command{
		Use:   "analyze FILE.csv",
		Short: "Analyse a CSV file once and print the result as JSON",
		Long: `Analyse a CSV file of readings once: bounds per field, extreme regions,
failure probability, risk level and time to maintenance. Use "-" to read
from standard input. Monitor settings come from --config when given, and
individual flags override them.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAnalyze(cmd, opts, args[0])
		},
	}

	f := cmd.Flags()
	f.StringVar(&opts.configPath, "config", "", "read monitor settings from this config file")
	f.Float64Var(&opts.scale, "scale", 0, "maintenance scale (hours per unit of volatility)")
	f.IntVar(&opts.window, "window", 0, "number of most recent readings used for indicators")
	f.Float64Var(&opts.threshold, "threshold", 0, "failure probability (%) that raises the risk score")
	f.StringSliceVar(&opts.fields, "fields", nil, "monitored fields (default airTemp,processTemp)")
	f.StringVar(&opts.primary, "primary", "", "field driving volatility and the first risk term")
	f.StringVar(&opts.secondary, "secondary", "", "field driving the second risk term")
	f.StringToStringVar(&opts.columns, "column", nil, "field=header column mapping, repeatable")
	f.StringVar(&opts.failureColumn, "failure-column", "", "column whose positive value marks a failure")
	f.BoolVar(&opts.pretty, "pretty", false, "indent JSON output")
	return cmd
}

func runAnalyze(cmd *cobra.Command, opts *analyzeOptions, path string) error {
	mc := config.Defaults().Monitor
	if opts.configPath != "" {
		cfg, err := config.Load(opts.configPath)
		if err != nil {
			return err
		}
		mc = cfg.Monitor
	}
	if len(opts.fields) > 0 {
		mc.Fields = opts.fields
	}
	if opts.primary != "" {
		mc.PrimaryField = opts.primary
	}
	if opts.secondary != "" {
		mc.SecondaryField = opts.secondary
	}
	if opts.window > 0 {
		mc.Window = opts.window
	}
	if opts.scale > 0 {
		mc.MaintenanceScale = opts.scale
	}
	if opts.threshold > 0 {
		mc.FailureThreshold = opts.threshold
	}

	cols, failure := source.DefaultCSVColumns()
	for f, c := range opts.columns {
		cols[types.FieldName(f)] = c
	}
	// Monitored fields without a mapping are read from a column of the same name.
	for _, f := range mc.Fields {
		if _, ok := cols[types.FieldName(f)]; !ok {
			cols[types.FieldName(f)] = f
		}
	}
	if opts.failureColumn != "" {
		failure = opts.failureColumn
	}

	var rd io.Reader = cmd.InOrStdin()
	lineID := "stdin"
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return fmt.Errorf("open %s: %w", path, err)
		}
		defer f.Close()
		rd = f
		lineID = path
	}

	now := time.Now().UTC()
	res, err := monitor.AnalyzeCSV(rd, mc, cols, failure, now)
	if err != nil {
		return fmt.Errorf("analyze %s: %w", path, err)
	}
	res.LineID = lineID

	enc := json.NewEncoder(cmd.OutOrStdout())
	if opts.pretty {
		enc.SetIndent("", "  ")
	}
	return enc.Encode(api.ToLineResponse(&store.Entry{Result: res, UpdatedAt: now}))
}
