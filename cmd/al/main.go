package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"auditline/internal/action"
	"auditline/internal/config"
	"auditline/internal/db"
	"auditline/internal/domain"
	"auditline/internal/engine"
	"auditline/internal/migrate"
	"auditline/internal/repo"
	"auditline/internal/server"
)

var rootCmd = &cobra.Command{
	Use:   "al",
	Short: "Auditline CLI",
	Long: `Auditline validates instruction audit logs exported as JSON Lines.
Each run ingests one log file: lines are parsed into entries, entries are
grouped per instruction, and every group is checked against the category
rule catalog (status sequences, timestamps, step counts, owner notes,
paired actions). The result is a persisted validation report.

- Workspace: the .auditline directory holding the database; an optional
  auditline.yml beside it overrides the built-in rule catalog.
- Ingest: one processed upload with its entries, parse errors, and report.
- Event log: diary of ingests and reports, view with 'al log tail'.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		workspace := viper.GetString("workspace")
		if _, err := db.EnsureWorkspace(workspace); err != nil {
			return err
		}
		return nil
	},
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	if err := rootCmd.Execute(); err != nil {
		fmt.Println("error:", err)
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("AUDITLINE")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().String("actor-id", "local-user", "actor identifier")
	_ = viper.BindPFlag("workspace", rootCmd.PersistentFlags().Lookup("workspace"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	_ = viper.BindPFlag("actor-id", rootCmd.PersistentFlags().Lookup("actor-id"))
}

func registerCommands() {
	rootCmd.AddCommand(validateCmd())
	rootCmd.AddCommand(reportCmd())
	rootCmd.AddCommand(entriesCmd())
	rootCmd.AddCommand(errorsCmd())
	rootCmd.AddCommand(ingestCmd())
	rootCmd.AddCommand(actionCmd())
	rootCmd.AddCommand(rulesCmd())
	rootCmd.AddCommand(configCmd())
	rootCmd.AddCommand(logCmd())
	rootCmd.AddCommand(serveCmd())
}

func validateCmd() *cobra.Command {
	var source string
	var dryRun bool
	cmd := &cobra.Command{
		Use:   "validate <file>",
		Short: "Validate an instruction log file",
		Long:  "Parse a JSON Lines log, run every rule check, and store the ingest with its report. Use '-' to read from stdin, --dry-run to skip persistence.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, name, err := readInput(args[0])
			if err != nil {
				return err
			}
			if source == "" {
				source = name
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				if dryRun {
					result, err := e.Validate(raw)
					if err != nil {
						return reportNoUsableRecords(result, err)
					}
					return printReport(result)
				}
				result, err := e.IngestLog(ctx, engine.IngestOptions{
					Raw:     raw,
					Source:  source,
					ActorID: viper.GetString("actor-id"),
				})
				if err != nil {
					return reportNoUsableRecords(result, err)
				}
				return printReport(result)
			})
		},
	}
	cmd.Flags().StringVar(&source, "source", "", "source label (defaults to file name)")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "validate without persisting")
	return cmd
}

func reportCmd() *cobra.Command {
	var ingestID string
	cmd := &cobra.Command{
		Use:   "report",
		Short: "Show a stored validation report",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				in, err := e.ResolveIngest(ctx, ingestID)
				if err != nil {
					return err
				}
				rep, err := e.Repo.GetReport(ctx, in.ID)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(rep)
				}
				renderReport(in, rep)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&ingestID, "ingest", "", "ingest id (defaults to latest)")
	return cmd
}

func entriesCmd() *cobra.Command {
	var ingestID string
	var f repo.EntryFilter
	cmd := &cobra.Command{
		Use:   "entries",
		Short: "List an ingest's entries",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				in, err := e.ResolveIngest(ctx, ingestID)
				if err != nil {
					return err
				}
				entries, err := e.Repo.ListEntries(ctx, in.ID, f)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(entries)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Title", "Category", "Status", "Created", "Owner"})
				for _, entry := range entries {
					tw.AppendRow(table.Row{entry.ID, entry.Title, entry.Category, entry.Status, entry.CreatedAt, entry.Owner})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&ingestID, "ingest", "", "ingest id (defaults to latest)")
	cmd.Flags().StringVar(&f.Category, "category", "", "category filter")
	cmd.Flags().StringVar(&f.Status, "status", "", "status filter")
	cmd.Flags().StringVar(&f.Owner, "owner", "", "owner filter")
	return cmd
}

func errorsCmd() *cobra.Command {
	var ingestID string
	cmd := &cobra.Command{
		Use:   "errors",
		Short: "List an ingest's parse errors",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				in, err := e.ResolveIngest(ctx, ingestID)
				if err != nil {
					return err
				}
				parseErrs, err := e.Repo.ListParseErrors(ctx, in.ID)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(parseErrs)
				}
				if len(parseErrs) == 0 {
					fmt.Println("no parse errors")
					return nil
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"Line", "Message"})
				for _, pe := range parseErrs {
					tw.AppendRow(table.Row{pe.Line, pe.Message})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&ingestID, "ingest", "", "ingest id (defaults to latest)")
	return cmd
}

func ingestCmd() *cobra.Command {
	in := &cobra.Command{Use: "ingest", Short: "Manage ingests"}
	in.AddCommand(ingestListCmd())
	in.AddCommand(ingestShowCmd())
	in.AddCommand(ingestDeleteCmd())
	return in
}

func ingestListCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List ingests",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				items, err := r.ListIngests(ctx, limit)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Source", "Lines", "Entries", "Errors", "Created"})
				for _, item := range items {
					tw.AppendRow(table.Row{item.ID, item.Source, item.LineCount, item.EntryCount, item.ErrorCount, item.CreatedAt})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 50, "max ingests to list")
	return cmd
}

func ingestShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Show an ingest",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				in, err := r.GetIngest(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(in)
			})
		},
	}
	return cmd
}

func ingestDeleteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete an ingest and everything it produced",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				return r.DeleteIngest(ctx, args[0])
			})
		},
	}
	return cmd
}

func actionCmd() *cobra.Command {
	act := &cobra.Command{Use: "action", Short: "Inspect action codes"}
	act.AddCommand(actionResolveCmd())
	return act
}

func actionResolveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "resolve <code>",
		Short: "Resolve an action code to its metadata",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			meta := action.Resolve(args[0])
			if viper.GetBool("json") {
				return printJSON(meta)
			}
			fmt.Printf("%s: %s (%s, %s)\n", meta.Code, meta.Name, meta.Category, meta.Color)
			return nil
		},
	}
	return cmd
}

func rulesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rules",
		Short: "Show the category rule catalog",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				if viper.GetBool("json") {
					return printJSON(e.Config.Categories)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"Category", "Min steps", "Owner notes", "Pairings"})
				for _, cat := range domain.Categories {
					rule, ok := e.Config.Categories[string(cat)]
					if !ok {
						continue
					}
					notes := "optional"
					if rule.RequireOwnerNotes {
						notes = "required"
					} else if len(rule.RequireOwnerNotesFor) > 0 {
						notes = "for " + strings.Join(rule.RequireOwnerNotesFor, ", ")
					}
					tw.AppendRow(table.Row{cat, rule.MinSteps, notes, len(rule.Pairings)})
				}
				tw.Render()
				return nil
			})
		},
	}
	return cmd
}

func configCmd() *cobra.Command {
	cfg := &cobra.Command{
		Use:   "config",
		Short: "Inspect workspace config",
		Long:  "Config is the rulebook: per-category sequence, step-count, owner-note, and pairing rules loaded from auditline.yml, falling back to the built-in catalog.",
	}
	cfg.AddCommand(configShowCmd())
	cfg.AddCommand(configInitCmd())
	cfg.AddCommand(configValidateCmd())
	return cfg
}

func configShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show the resolved config",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Resolve(viper.GetString("workspace"))
			if err != nil {
				return err
			}
			return printJSONOrTable(cfg)
		},
	}
	return cmd
}

func configInitCmd() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write the default auditline.yml to the workspace",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := config.Path(viper.GetString("workspace"))
			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("%s already exists (use --force to overwrite)", path)
			}
			if err := os.WriteFile(path, []byte(config.GenerateDefault()), 0o644); err != nil {
				return err
			}
			fmt.Println("wrote", path)
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "overwrite existing file")
	return cmd
}

func configValidateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate the workspace config",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Resolve(viper.GetString("workspace"))
			if err == nil {
				err = cfg.Validate()
			}
			if viper.GetBool("json") {
				return printJSON(map[string]any{"ok": err == nil, "error": fmt.Sprint(err)})
			}
			if err != nil {
				return err
			}
			fmt.Println("config OK")
			return nil
		},
	}
	return cmd
}

func logCmd() *cobra.Command {
	log := &cobra.Command{
		Use:   "log",
		Short: "Event log",
		Long:  "The diary of everything that happened: ingests, rejections, and generated reports.",
	}
	log.AddCommand(logTailCmd())
	return log
}

func logTailCmd() *cobra.Command {
	var n int
	var evtType, entityKind, entityID string
	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Tail events",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				events, err := r.LatestEvents(ctx, n, evtType, entityKind, entityID)
				if err != nil {
					return err
				}
				return printJSONOrTable(events)
			})
		},
	}
	cmd.Flags().IntVar(&n, "n", 20, "number of events")
	cmd.Flags().StringVar(&evtType, "type", "", "event type filter")
	cmd.Flags().StringVar(&entityKind, "entity-kind", "", "entity kind")
	cmd.Flags().StringVar(&entityID, "entity-id", "", "entity id")
	return cmd
}

func serveCmd() *cobra.Command {
	var addr, basePath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace := viper.GetString("workspace")
			if _, err := db.EnsureWorkspace(workspace); err != nil {
				return err
			}
			conn, err := db.Open(db.Config{Workspace: workspace})
			if err != nil {
				return err
			}
			defer conn.Close()
			if err := migrate.Migrate(conn); err != nil {
				return err
			}
			cfg, err := config.Resolve(workspace)
			if err != nil {
				return err
			}
			e := engine.New(conn, cfg)
			handler, err := server.New(server.Config{Engine: e, BasePath: basePath})
			if err != nil {
				return err
			}
			srv := &http.Server{Addr: addr, Handler: handler}
			go func() {
				<-cmd.Context().Done()
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				srv.Shutdown(ctx)
			}()
			fmt.Printf("Serving Auditline API on http://%s%s (OpenAPI at /openapi.json, Swagger UI at /docs)\n", addr, basePath)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8080", "listen address")
	cmd.Flags().StringVar(&basePath, "base-path", "/v0", "API base path")
	return cmd
}

// --- helpers ---

func withEngine(ctx context.Context, fn func(context.Context, engine.Engine) error) error {
	workspace := viper.GetString("workspace")
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return err
	}
	defer conn.Close()
	if err := migrate.Migrate(conn); err != nil {
		return err
	}
	cfg, err := config.Resolve(workspace)
	if err != nil {
		return err
	}
	e := engine.New(conn, cfg)
	return fn(ctx, e)
}

func withRepo(ctx context.Context, fn func(context.Context, repo.Repo) error) error {
	workspace := viper.GetString("workspace")
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return err
	}
	defer conn.Close()
	if err := migrate.Migrate(conn); err != nil {
		return err
	}
	return fn(ctx, repo.Repo{DB: conn})
}

func readInput(arg string) (raw, name string, err error) {
	if arg == "-" {
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			return "", "", err
		}
		return string(data), "stdin", nil
	}
	data, err := os.ReadFile(arg)
	if err != nil {
		return "", "", err
	}
	return string(data), filepath.Base(arg), nil
}

func reportNoUsableRecords(result engine.IngestResult, err error) error {
	if !errors.Is(err, engine.ErrNoUsableRecords) {
		return err
	}
	if viper.GetBool("json") {
		_ = printJSON(result)
	} else {
		for _, pe := range result.Errors {
			fmt.Printf("line %d: %s\n", pe.Line, pe.Message)
		}
	}
	return err
}

func printReport(result engine.IngestResult) error {
	if viper.GetBool("json") {
		return printJSON(result)
	}
	for _, pe := range result.Errors {
		fmt.Printf("line %d: %s\n", pe.Line, pe.Message)
	}
	renderReport(result.Ingest, result.Report)
	return nil
}

func renderReport(in domain.Ingest, rep domain.ValidationReport) {
	if in.ID != "" {
		fmt.Printf("Ingest: %s (%d lines, %d entries, %d parse errors)\n", in.ID, in.LineCount, in.EntryCount, in.ErrorCount)
	}
	t := rep.Totals
	fmt.Printf("Instructions: %d checked, %d with findings, %d errors, %d warnings\n",
		t.InstructionCount, t.AffectedCount, t.ErrorCount, t.WarningCount)
	if len(rep.Results) > 0 {
		tw := table.NewWriter()
		tw.SetOutputMirror(os.Stdout)
		tw.AppendHeader(table.Row{"Instruction", "Title", "Category", "Errors", "Warnings"})
		for _, res := range rep.Results {
			tw.AppendRow(table.Row{res.InstructionID, res.Title, res.Category, res.ErrorCount, res.WarningCount})
		}
		tw.Render()
		for _, res := range rep.Results {
			for _, issue := range res.Issues {
				fmt.Printf("  [%s] %s %s: %s\n", issue.Severity, res.InstructionID, issue.Code, issue.Message)
			}
		}
	}
	if len(rep.CategorySummaries) > 0 {
		tw := table.NewWriter()
		tw.SetOutputMirror(os.Stdout)
		tw.AppendHeader(table.Row{"Category", "Instructions", "Affected", "Errors", "Warnings"})
		for _, cs := range rep.CategorySummaries {
			tw.AppendRow(table.Row{cs.Category, cs.InstructionCount, cs.AffectedCount, cs.ErrorCount, cs.WarningCount})
		}
		tw.Render()
	}
}

func printJSONOrTable(v any) error {
	if viper.GetBool("json") {
		return printJSON(v)
	}
	b, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(b))
	return nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
