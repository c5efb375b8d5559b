package main

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/abelzeko/aguasur/internal/bootstrap"
	"github.com/abelzeko/aguasur/internal/config"
	"github.com/abelzeko/aguasur/internal/entities"
	"github.com/abelzeko/aguasur/internal/usecases"
	"github.com/spf13/cobra"
)

// cli holds state shared by every subcommand.
type cli struct {
	configPath string
	dbPath     string
	asOf       string
	app        *bootstrap.App
}

func newRootCmd() *cobra.Command {
	c := &cli{}
	root := &cobra.Command{
		Use:           "aguasur",
		Short:         "Operate the AguaSur water monitoring engine",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(c.configPath)
			if err != nil {
				return err
			}
			if c.dbPath != "" {
				cfg.DBPath = c.dbPath
			}
			c.app, err = bootstrap.New(cfg, nil)
			return err
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			if c.app == nil {
				return nil
			}
			return c.app.Close()
		},
	}
	root.PersistentFlags().StringVar(&c.configPath, "config", "", "path to a YAML config file")
	root.PersistentFlags().StringVar(&c.dbPath, "db", "", "SQLite database path")
	root.PersistentFlags().StringVar(&c.asOf, "as-of", "", "evaluation time in RFC 3339 (default now)")

	root.AddCommand(
		c.dashboardCmd(),
		c.alertsCmd(),
		c.statusCmd(),
		c.planCmd(),
		c.cycleCmd(),
		c.familyCmd(),
		c.cisternCmd(),
		c.fillCmd(),
		c.levelCmd(),
		c.reportCmd(),
	)
	return root
}

func (c *cli) now() (time.Time, error) {
	if c.asOf == "" {
		return time.Now(), nil
	}
	t, err := time.Parse(time.RFC3339, c.asOf)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: --as-of: %v", entities.ErrInvalidInput, err)
	}
	return t, nil
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func (c *cli) dashboardCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "dashboard",
		Short: "Print the community summary",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			asOf, err := c.now()
			if err != nil {
				return err
			}
			summary, err := c.app.UseCase.Dashboard(cmd.Context(), asOf)
			if err != nil {
				return err
			}
			return printJSON(cmd, summary)
		},
	}
}

func (c *cli) alertsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "alerts",
		Short: "Evaluate every cistern and print current alerts, most severe first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			asOf, err := c.now()
			if err != nil {
				return err
			}
			list, err := c.app.UseCase.CurrentAlerts(cmd.Context(), asOf)
			if err != nil {
				return err
			}
			return printJSON(cmd, list)
		},
	}
}

func (c *cli) statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status [cistern]",
		Short: "Print the prediction and alert for one cistern",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			asOf, err := c.now()
			if err != nil {
				return err
			}
			view, err := c.app.UseCase.CisternStatus(cmd.Context(), args[0], asOf)
			if err != nil {
				return err
			}
			return printJSON(cmd, view)
		},
	}
}

func (c *cli) planCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "plan",
		Short: "Propose shared truck purchases for cisterns running low",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			asOf, err := c.now()
			if err != nil {
				return err
			}
			res, err := c.app.UseCase.PlanCoordination(cmd.Context(), asOf)
			if err != nil {
				return err
			}
			return printJSON(cmd, res)
		},
	}
}

func (c *cli) cycleCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "cycle",
		Short: "Evaluate every cistern and store the resulting alerts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			asOf, err := c.now()
			if err != nil {
				return err
			}
			ev, err := c.app.UseCase.EvaluateCisterns(cmd.Context(), asOf)
			if err != nil {
				return err
			}
			failures := make(map[string]string, len(ev.Failures))
			for _, f := range ev.Failures {
				failures[f.CisternID] = f.Err.Error()
			}
			return printJSON(cmd, map[string]any{
				"as_of":       ev.AsOf,
				"predictions": ev.Predictions,
				"alerts":      ev.Alerts,
				"failures":    failures,
			})
		},
	}
}

func (c *cli) familyCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "family", Short: "Manage registered families"}

	var f entities.Family
	add := &cobra.Command{
		Use:   "add",
		Short: "Register a family",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			stored, err := c.app.UseCase.RegisterFamily(cmd.Context(), f)
			if err != nil {
				return err
			}
			return printJSON(cmd, stored)
		},
	}
	add.Flags().StringVar(&f.ID, "id", "", "family id")
	add.Flags().StringVar(&f.Address, "address", "", "street address")
	add.Flags().StringVar(&f.Zone, "zone", "", "zone or sector name")
	add.Flags().IntVar(&f.Occupants, "occupants", 1, "number of people in the household")
	add.Flags().StringVar(&f.Contact, "contact", "", "phone number or Telegram handle")
	add.Flags().Float64Var(&f.StorageCapacityLiters, "storage", 0, "total storage in liters")
	add.Flags().BoolVar(&f.HasCistern, "has-cistern", false, "whether the family owns a cistern")

	archive := &cobra.Command{
		Use:   "archive [family]",
		Short: "Archive a family",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := c.app.UseCase.ArchiveFamily(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Family %s archived\n", args[0])
			return nil
		},
	}

	cmd.AddCommand(add, archive)
	return cmd
}

func (c *cli) cisternCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "cistern", Short: "Manage cisterns"}

	var (
		ct       entities.Cistern
		kind     string
		lat, lng float64
	)
	add := &cobra.Command{
		Use:   "add",
		Short: "Register a cistern",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ct.Type = entities.CisternType(kind)
			if cmd.Flags().Changed("lat") || cmd.Flags().Changed("lng") {
				ct.Latitude, ct.Longitude = &lat, &lng
			}
			if c.asOf != "" {
				at, err := c.now()
				if err != nil {
					return err
				}
				ct.InstalledAt, ct.LevelUpdatedAt = at, at
			}
			stored, err := c.app.UseCase.RegisterCistern(cmd.Context(), ct)
			if err != nil {
				return err
			}
			return printJSON(cmd, stored)
		},
	}
	add.Flags().StringVar(&ct.ID, "id", "", "cistern id")
	add.Flags().StringVar(&ct.Location, "location", "", "location description")
	add.Flags().StringVar(&ct.Zone, "zone", "", "zone used to group deliveries when no family zone applies")
	add.Flags().StringVar(&kind, "type", string(entities.CisternDomestic), "domestic, school, health_center or communal")
	add.Flags().Float64Var(&ct.TotalCapacityLiters, "capacity", 0, "capacity in liters")
	add.Flags().Float64Var(&ct.CurrentLevelLiters, "level", 0, "current level in liters")
	add.Flags().StringVar(&ct.FamilyID, "family", "", "owning family id")
	add.Flags().Float64Var(&lat, "lat", 0, "latitude")
	add.Flags().Float64Var(&lng, "lng", 0, "longitude")

	setStatus := &cobra.Command{
		Use:   "set-status [cistern] [status]",
		Short: "Mark a cistern operational, damaged, maintenance, inactive or retired",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := c.app.UseCase.SetCisternStatus(cmd.Context(), args[0], entities.CisternStatus(args[1])); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Cistern %s is now %s\n", args[0], args[1])
			return nil
		},
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List cisterns",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			all, err := c.app.UseCase.ListCisterns(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(cmd, all)
		},
	}

	cmd.AddCommand(add, setStatus, list)
	return cmd
}

func (c *cli) fillCmd() *cobra.Command {
	var req usecases.FillRequest
	var levelBefore float64
	cmd := &cobra.Command{
		Use:   "fill [cistern] [liters]",
		Short: "Record a water delivery",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			liters, err := strconv.ParseFloat(args[1], 64)
			if err != nil {
				return fmt.Errorf("%w: liters: %v", entities.ErrInvalidInput, err)
			}
			req.CisternID, req.Liters = args[0], liters
			if cmd.Flags().Changed("level-before") {
				req.LevelBefore = &levelBefore
			}
			if c.asOf != "" {
				if req.At, err = c.now(); err != nil {
					return err
				}
			}
			fill, err := c.app.UseCase.RecordFill(cmd.Context(), req)
			if err != nil {
				return err
			}
			return printJSON(cmd, fill)
		},
	}
	cmd.Flags().StringVar(&req.Provider, "provider", "", "provider name")
	cmd.Flags().Float64Var(&req.Cost, "cost", 0, "total cost paid")
	cmd.Flags().StringVar(&req.Notes, "notes", "", "free-form notes")
	cmd.Flags().Float64Var(&levelBefore, "level-before", 0, "level read just before the delivery, projected when omitted")
	return cmd
}

func (c *cli) levelCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "level [cistern] [liters]",
		Short: "Record a manual level reading",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			liters, err := strconv.ParseFloat(args[1], 64)
			if err != nil {
				return fmt.Errorf("%w: liters: %v", entities.ErrInvalidInput, err)
			}
			var at time.Time
			if c.asOf != "" {
				if at, err = c.now(); err != nil {
					return err
				}
			}
			if err := c.app.UseCase.RecordLevelReading(cmd.Context(), args[0], liters, at); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Cistern %s level set to %.0f L\n", args[0], liters)
			return nil
		},
	}
}

func (c *cli) reportCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "report", Short: "Manage community reports"}

	var draft entities.Report
	var kind string
	submit := &cobra.Command{
		Use:   "submit [description]",
		Short: "Triage and store a report",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			draft.Type = entities.ReportType(kind)
			draft.Description = args[0]
			cls, err := c.app.UseCase.SubmitReport(cmd.Context(), draft)
			if err != nil {
				return err
			}
			return printJSON(cmd, cls)
		},
	}
	submit.Flags().StringVar(&kind, "type", string(entities.ReportOther), "running_out, contaminated, infrastructure or other")
	submit.Flags().StringVar(&draft.FamilyID, "family", "", "reporting family id")
	submit.Flags().StringVar(&draft.CisternID, "cistern", "", "affected cistern id")
	submit.Flags().StringVar(&draft.Zone, "zone", "", "affected zone")

	list := &cobra.Command{
		Use:   "list",
		Short: "List reports",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			reports, err := c.app.UseCase.ListReports(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(cmd, reports)
		},
	}

	var notes string
	advance := &cobra.Command{
		Use:   "advance [report] [status]",
		Short: "Move a report to in_progress or resolved",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := c.app.UseCase.AdvanceReport(cmd.Context(), args[0], entities.ReportStatus(args[1]), notes)
			if err != nil {
				return err
			}
			return printJSON(cmd, r)
		},
	}
	advance.Flags().StringVar(&notes, "notes", "", "resolution notes")

	escalate := &cobra.Command{
		Use:   "escalate [report] [urgency]",
		Short: "Raise the urgency of a report",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			to, err := entities.ParseSeverity(args[1])
			if err != nil {
				return err
			}
			r, err := c.app.UseCase.EscalateReport(cmd.Context(), args[0], to)
			if err != nil {
				return err
			}
			return printJSON(cmd, r)
		},
	}

	var reason string
	override := &cobra.Command{
		Use:   "override [report] [urgency]",
		Short: "Set the urgency of a report, recording why",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			to, err := entities.ParseSeverity(args[1])
			if err != nil {
				return err
			}
			r, err := c.app.UseCase.OverrideReportUrgency(cmd.Context(), args[0], to, reason)
			if err != nil {
				return err
			}
			return printJSON(cmd, r)
		},
	}
	override.Flags().StringVar(&reason, "reason", "", "why the urgency was changed")

	cmd.AddCommand(submit, list, advance, escalate, override)
	return cmd
}
