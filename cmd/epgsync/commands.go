package main

import (
	"fmt"
	"io"
	"net/url"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/voyagen/epgsync/internal/config"
	"github.com/voyagen/epgsync/internal/models"
	"github.com/voyagen/epgsync/internal/reconcile"
	"github.com/voyagen/epgsync/internal/service"
)

func newImportCommand(ctx *commandContext) *cobra.Command {
	var group string
	cmd := &cobra.Command{
		Use:   "import <m3u-url>",
		Short: "Import channels from an M3U playlist",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withApp(cmd, func(a *app) error {
				res, err := a.svc.ImportPlaylist(cmd.Context(), args[0], group)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Imported %d channels (%d new, %d updated)\n", res.Total, res.Created, res.Updated)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&group, "group", "", "Group assigned to every imported channel")
	return cmd
}

func newExportCommand(ctx *commandContext) *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write every channel as an M3U playlist",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return ctx.withApp(cmd, func(a *app) error {
				var w io.Writer = cmd.OutOrStdout()
				if output != "" && output != "-" {
					f, err := os.Create(output)
					if err != nil {
						return fmt.Errorf("create %s: %w", output, err)
					}
					defer f.Close()
					w = f
				}
				return a.svc.ExportPlaylist(cmd.Context(), w)
			})
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "Output file (default stdout)")
	return cmd
}

func newRefreshCommand(ctx *commandContext) *cobra.Command {
	var sourceID int64
	var jsonOut bool
	cmd := &cobra.Command{
		Use:   "refresh",
		Short: "Download enabled XMLTV sources into the EPG catalog",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return ctx.withApp(cmd, func(a *app) error {
				var results []service.SourceResult
				if sourceID > 0 {
					res, err := a.svc.RefreshSource(cmd.Context(), sourceID)
					if err != nil {
						return err
					}
					results = []service.SourceResult{*res}
				} else {
					var err error
					if results, err = a.svc.RefreshCatalog(cmd.Context()); err != nil {
						return err
					}
				}
				if jsonOut {
					return writeJSON(cmd, results)
				}
				fmt.Fprint(cmd.OutOrStdout(), renderSourceResults(results))
				return nil
			})
		},
	}
	cmd.Flags().Int64Var(&sourceID, "source", 0, "Refresh only this source id, even if disabled")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Output JSON")
	return cmd
}

func newReconcileCommand(ctx *commandContext) *cobra.Command {
	var (
		opts       reconcile.Options
		threshold  float64
		dryRun     bool
		decisions  bool
		async      bool
		jsonOutput bool
	)
	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Run a reconciliation pass over every channel",
		Long: "Run a reconciliation pass. Pattern mappings always apply; --auto adds fuzzy " +
			"name matching against the EPG catalog.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return ctx.withApp(cmd, func(a *app) error {
				opts.Threshold = a.cfg.AutoScanThreshold
				if cmd.Flags().Changed("threshold") {
					opts.Threshold = threshold
				}
				req := service.RunRequest{Options: opts, DryRun: dryRun, IncludeDecisions: decisions}
				if async {
					if a.redis == nil {
						return fmt.Errorf("--async needs REDIS_URL so a serve process can pick up the job")
					}
					rec, err := a.runner.Submit(cmd.Context(), req)
					if err != nil {
						return err
					}
					if jsonOutput {
						return writeJSON(cmd, rec)
					}
					fmt.Fprintf(cmd.OutOrStdout(), "Queued run %s\n", rec.ID)
					return nil
				}
				rep, err := a.rec.Run(cmd.Context(), req)
				if err != nil {
					return err
				}
				if jsonOutput {
					return writeJSON(cmd, rep)
				}
				fmt.Fprint(cmd.OutOrStdout(), renderReport(rep))
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&opts.AutoScan, "auto", false, "Also match channels to catalog entries by name similarity")
	cmd.Flags().Float64Var(&threshold, "threshold", 0, "Minimum similarity for --auto (default from config)")
	cmd.Flags().BoolVar(&opts.RespectExisting, "respect-existing", false, "Keep channels that already have tvg-id and tvg-name")
	cmd.Flags().BoolVar(&opts.CleanUnmatched, "clean-unmatched", false, "Clear EPG fields of channels no rule matched")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Report without writing")
	cmd.Flags().BoolVar(&decisions, "decisions", false, "List every changed channel")
	cmd.Flags().BoolVar(&async, "async", false, "Queue the pass for a serve process instead of running it here")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output JSON")
	return cmd
}

func newPreviewCommand(ctx *commandContext) *cobra.Command {
	var (
		pattern string
		epgID   string
		exclude bool
		regex   bool
		limit   int
		jsonOut bool
	)
	cmd := &cobra.Command{
		Use:   "preview",
		Short: "Show which channels a pattern would match",
		RunE: func(cmd *cobra.Command, _ []string) error {
			rec := models.MappingRecord{SearchPattern: pattern, EPGChannelID: epgID, Regex: regex}
			if exclude {
				rec.SearchPattern = models.ExclusionPrefix + strings.TrimSpace(pattern)
				rec.EPGChannelID = ""
			}
			return ctx.withApp(cmd, func(a *app) error {
				res, err := a.svc.PreviewMapping(cmd.Context(), rec, limit)
				if err != nil {
					return err
				}
				if jsonOut {
					return writeJSON(cmd, res)
				}
				fmt.Fprint(cmd.OutOrStdout(), renderPreview(res))
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&pattern, "pattern", "p", "", "Search pattern (a leading ! makes it an exclusion)")
	cmd.Flags().StringVar(&epgID, "epg-id", "", "EPG channel id the mapping would assign")
	cmd.Flags().BoolVar(&exclude, "exclude", false, "Preview as an exclusion pattern")
	cmd.Flags().BoolVar(&regex, "regex", false, "Treat the pattern as a regular expression")
	cmd.Flags().IntVar(&limit, "limit", service.DefaultPreviewLimit, "Maximum channels to list")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Output JSON")
	_ = cmd.MarkFlagRequired("pattern")
	return cmd
}

func newSuggestCommand(ctx *commandContext) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "suggest <channel name>",
		Short: "Suggest EPG catalog entries for a channel name",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withApp(cmd, func(a *app) error {
				cands, err := a.svc.SuggestEPG(cmd.Context(), strings.Join(args, " "), limit)
				if err != nil {
					return err
				}
				fmt.Fprint(cmd.OutOrStdout(), renderCandidates(cands))
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&limit, "limit", service.DefaultSuggestLimit, "Maximum suggestions")
	return cmd
}

func newMappingsCommand(ctx *commandContext) *cobra.Command {
	mappingsCmd := &cobra.Command{
		Use:   "mappings",
		Short: "Manage pattern mappings",
	}

	mappingsCmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List pattern mappings",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return ctx.withApp(cmd, func(a *app) error {
				records, err := a.svc.ListMappings(cmd.Context())
				if err != nil {
					return err
				}
				fmt.Fprint(cmd.OutOrStdout(), renderMappings(records))
				return nil
			})
		},
	})

	var regex bool
	addCmd := &cobra.Command{
		Use:   "add <pattern> [epg-channel-id]",
		Short: "Add a mapping; prefix the pattern with ! for an exclusion",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			rec := models.MappingRecord{SearchPattern: args[0], Regex: regex}
			if len(args) == 2 {
				rec.EPGChannelID = args[1]
			}
			return ctx.withApp(cmd, func(a *app) error {
				m, err := a.svc.CreateMapping(cmd.Context(), rec)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Added mapping %d\n", m.ID)
				return nil
			})
		},
	}
	addCmd.Flags().BoolVar(&regex, "regex", false, "Treat the pattern as a regular expression")
	mappingsCmd.AddCommand(addCmd)

	mappingsCmd.AddCommand(&cobra.Command{
		Use:   "remove <id>",
		Short: "Delete a mapping",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(strings.TrimSpace(args[0]), 10, 64)
			if err != nil || id <= 0 {
				return fmt.Errorf("invalid mapping id %q", args[0])
			}
			return ctx.withApp(cmd, func(a *app) error {
				if err := a.store.DeleteMapping(cmd.Context(), id); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Mapping %d removed\n", id)
				return nil
			})
		},
	})

	return mappingsCmd
}

func newConfigCommand(ctx *commandContext) *cobra.Command {
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration utilities",
	}
	configCmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration with secrets redacted",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), renderConfig(cfg))
			return nil
		},
	})
	return configCmd
}

func renderConfig(cfg *config.Config) string {
	rows := [][]string{
		{"database_url", redactURL(cfg.DatabaseURL)},
		{"redis_url", redactURL(cfg.RedisURL)},
		{"server_port", cfg.ServerPort},
		{"user_agent", cfg.UserAgent},
		{"timeout", cfg.Timeout.String()},
		{"update_timeout", cfg.UpdateTimeout.String()},
		{"update_concurrency", strconv.Itoa(cfg.UpdateConcurrency)},
		{"auto_scan_threshold", strconv.FormatFloat(cfg.AutoScanThreshold, 'f', -1, 64)},
		{"lock_dir", cfg.LockDir},
		{"migrations_path", cfg.MigrationsPath},
		{"log_level", cfg.LogLevel},
		{"log_format", cfg.LogFormat},
	}
	return renderTable([]string{"Key", "Value"}, rows, nil) + "\n"
}

func redactURL(raw string) string {
	if raw == "" {
		return ""
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "(unparseable)"
	}
	return u.Redacted()
}
