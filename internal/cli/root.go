// Package cli команды kpictl: расчёт KPI и алертов по выгрузке без сервера.
package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/bashkirian/kpi-engine/internal/alerts"
	"github.com/bashkirian/kpi-engine/internal/engine"
	"github.com/bashkirian/kpi-engine/internal/period"
	"github.com/bashkirian/kpi-engine/pkg/models"
)

type app struct {
	dataPath    string
	output      string
	preset      string
	from        string
	to          string
	now         string
	timezone    string
	granularity string
	slaMinutes  float64
	limit       int
	verbose     bool
}

func NewRootCommand() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:           "kpictl",
		Short:         "Restaurant KPI and alerts over an exported dataset",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := root.PersistentFlags()
	pf.StringVarP(&a.output, "output", "o", "yaml", "output format: yaml|json")
	pf.StringVar(&a.preset, "preset", "7d", "range preset: today|yesterday|7d|30d|custom")
	pf.StringVar(&a.from, "from", "", "custom range start (RFC3339)")
	pf.StringVar(&a.to, "to", "", "custom range end, exclusive (RFC3339)")
	pf.StringVar(&a.now, "now", "", "reference time for presets (RFC3339, default: current time)")
	pf.StringVar(&a.timezone, "timezone", "UTC", "IANA zone for day boundaries")

	root.AddCommand(a.newOverviewCmd(), a.newAnalyzeCmd(), a.newPresetsCmd(), a.newRulesCmd())
	return root
}

func (a *app) addQueryFlags(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&a.dataPath, "data", "d", "", "dataset file (.json, .yaml)")
	cmd.Flags().StringVar(&a.granularity, "granularity", "day", "series bucket: hour|day|hour_of_day")
	cmd.Flags().Float64Var(&a.slaMinutes, "sla", 15, "kitchen SLA in minutes")
	cmd.Flags().IntVar(&a.limit, "limit", 0, "ranked list size (default: 10 for overview, 50 for analyze)")
	cmd.Flags().BoolVarP(&a.verbose, "verbose", "v", false, "log attribution warnings to stderr")
	_ = cmd.MarkFlagRequired("data")
}

func (a *app) newOverviewCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "overview",
		Short: "KPIs, comparisons and alerts for every domain",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			eng, win, opts, err := a.prepare(cmd)
			if err != nil {
				return err
			}
			res, err := eng.GetOverview(cmd.Context(), win, opts)
			if err != nil {
				return err
			}
			return writeOutput(cmd.OutOrStdout(), a.output, res)
		},
	}
	a.addQueryFlags(cmd)
	return cmd
}

func (a *app) newAnalyzeCmd() *cobra.Command {
	names := make([]string, len(models.Domains))
	for i, d := range models.Domains {
		names[i] = string(d)
	}
	cmd := &cobra.Command{
		Use:       "analyze <domain>",
		Short:     "Detailed analysis of one domain",
		Long:      "Detailed analysis of one domain: " + strings.Join(names, ", "),
		Args:      cobra.ExactArgs(1),
		ValidArgs: names,
		RunE: func(cmd *cobra.Command, args []string) error {
			domain := models.Domain(strings.ToLower(args[0]))
			if !domain.Valid() {
				return fmt.Errorf("%w: %q (expected one of %s)", engine.ErrUnknownDomain, args[0], strings.Join(names, ", "))
			}
			eng, win, opts, err := a.prepare(cmd)
			if err != nil {
				return err
			}
			res, err := eng.GetDomainAnalysis(cmd.Context(), domain, win, opts)
			if err != nil {
				return err
			}
			return writeOutput(cmd.OutOrStdout(), a.output, res)
		},
	}
	a.addQueryFlags(cmd)
	return cmd
}

type presetWindow struct {
	Preset period.Preset `json:"preset"`
	Start  time.Time     `json:"start"`
	End    time.Time     `json:"end"`
}

func (a *app) newPresetsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "presets",
		Short: "Print the windows every range preset resolves to",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			now, loc, err := a.clock()
			if err != nil {
				return err
			}
			out := make([]presetWindow, 0, len(period.Presets))
			for _, p := range period.Presets {
				w, err := period.Resolve(p, now, loc)
				if err != nil {
					return err
				}
				out = append(out, presetWindow{Preset: p, Start: w.Start, End: w.End})
			}
			return writeOutput(cmd.OutOrStdout(), a.output, out)
		},
	}
}

type domainRules struct {
	Domain models.Domain      `json:"domain"`
	Alerts []models.AlertType `json:"alerts"`
}

func (a *app) newRulesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rules [domain]",
		Short: "List the alert types each domain evaluates",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			domains := models.Domains
			if len(args) == 1 {
				d := models.Domain(strings.ToLower(args[0]))
				if !d.Valid() {
					return fmt.Errorf("%w: %q", engine.ErrUnknownDomain, args[0])
				}
				domains = []models.Domain{d}
			}
			out := make([]domainRules, 0, len(domains))
			for _, d := range domains {
				out = append(out, domainRules{Domain: d, Alerts: alerts.Catalogue(d)})
			}
			return writeOutput(cmd.OutOrStdout(), a.output, out)
		},
	}
}

func (a *app) clock() (time.Time, *time.Location, error) {
	loc, err := time.LoadLocation(a.timezone)
	if err != nil {
		return time.Time{}, nil, fmt.Errorf("invalid --timezone: %w", err)
	}
	now := time.Now()
	if a.now != "" {
		if now, err = time.Parse(time.RFC3339, a.now); err != nil {
			return time.Time{}, nil, fmt.Errorf("invalid --now: %w", err)
		}
	}
	return now, loc, nil
}

func (a *app) window(now time.Time, loc *time.Location) (models.Window, error) {
	preset, err := period.ParsePreset(a.preset)
	if err != nil {
		return models.Window{}, err
	}
	if a.from == "" && a.to == "" {
		return period.Resolve(preset, now, loc)
	}
	if a.from == "" || a.to == "" {
		return models.Window{}, fmt.Errorf("%w: --from and --to must be used together", models.ErrInvalidRange)
	}
	start, err := time.Parse(time.RFC3339, a.from)
	if err != nil {
		return models.Window{}, fmt.Errorf("invalid --from: %w", err)
	}
	end, err := time.Parse(time.RFC3339, a.to)
	if err != nil {
		return models.Window{}, fmt.Errorf("invalid --to: %w", err)
	}
	return period.Custom(start, end)
}

func (a *app) prepare(cmd *cobra.Command) (*engine.Engine, models.Window, engine.Options, error) {
	now, loc, err := a.clock()
	if err != nil {
		return nil, models.Window{}, engine.Options{}, err
	}
	win, err := a.window(now, loc)
	if err != nil {
		return nil, models.Window{}, engine.Options{}, err
	}

	opts := engine.Options{
		SLAMinutes:  a.slaMinutes,
		Granularity: models.Granularity(a.granularity),
		Limit:       a.limit,
		RankLimit:   a.limit,
		Location:    loc,
	}
	if err := opts.Validate(); err != nil {
		return nil, models.Window{}, engine.Options{}, err
	}
	if err := engine.CheckBuckets(win, opts.Granularity); err != nil {
		return nil, models.Window{}, engine.Options{}, err
	}

	ds, err := LoadDataset(a.dataPath)
	if err != nil {
		return nil, models.Window{}, engine.Options{}, err
	}
	store, err := ds.Store(cmd.Context())
	if err != nil {
		return nil, models.Window{}, engine.Options{}, fmt.Errorf("load dataset: %w", err)
	}

	log := zap.NewNop()
	if a.verbose {
		if log, err = zap.NewDevelopment(); err != nil {
			return nil, models.Window{}, engine.Options{}, err
		}
	}
	eng := engine.New(store, store, engine.WithMenuFeed(store), engine.WithLogger(log))
	return eng, win, opts, nil
}
