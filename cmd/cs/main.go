package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"callsheet/internal/app"
	"callsheet/internal/config"
	"callsheet/internal/db"
	"callsheet/internal/domain"
	"callsheet/internal/engine"
	"callsheet/internal/filter"
	"callsheet/internal/migrate"
	"callsheet/internal/repo"
	"callsheet/internal/runner"
	"callsheet/internal/server"
)

var rootCmd = &cobra.Command{
	Use:   "cs",
	Short: "Callsheet CLI",
	Long: `Callsheet runs outbound contact campaigns over a roster file.
- Workspace: your .callsheet directory with the database; the roster stays an external read-only file.
- Campaign: a named filter over the roster; its contact queue is snapshotted at creation and only grows.
- Run: 'cs run next' walks the queue in order; record answered/no_answer outcomes as you go.
- Missed pass: after the first pass, retry contacts whose latest outcome is no_answer.
- Survey: one question with fixed options per campaign; answers are logged per contact.
- Reports: call log, survey log, and a per-contact summary CSV, plus flat rows for upload.
- Event log: diary of changes, view with 'cs log tail'.`,
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
	viper.SetEnvPrefix("CALLSHEET")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().String("actor-id", "local-user", "actor identifier")
	rootCmd.PersistentFlags().String("roster", "", "roster file (overrides config)")
	_ = viper.BindPFlag("workspace", rootCmd.PersistentFlags().Lookup("workspace"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	_ = viper.BindPFlag("actor-id", rootCmd.PersistentFlags().Lookup("actor-id"))
	_ = viper.BindPFlag("roster", rootCmd.PersistentFlags().Lookup("roster"))
}

func registerCommands() {
	rootCmd.AddCommand(campaignCmd())
	rootCmd.AddCommand(runCmd())
	rootCmd.AddCommand(statusCmd())
	rootCmd.AddCommand(reportCmd())
	rootCmd.AddCommand(rosterCmd())
	rootCmd.AddCommand(configCmd())
	rootCmd.AddCommand(logCmd())
	rootCmd.AddCommand(apikeyCmd())
	rootCmd.AddCommand(serveCmd())
}

func campaignCmd() *cobra.Command {
	c := &cobra.Command{Use: "campaign", Short: "Manage campaigns"}
	c.AddCommand(campaignCreateCmd())
	c.AddCommand(campaignListCmd())
	c.AddCommand(campaignShowCmd())
	c.AddCommand(campaignDeleteCmd())
	c.AddCommand(campaignRefreshCmd())
	c.AddCommand(surveySetCmd())
	c.AddCommand(remindCmd())
	return c
}

func campaignCreateCmd() *cobra.Command {
	var name string
	var filters []string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a campaign from the roster",
		Long:  "Filters are conjunctive field<op>value expressions, e.g. --filter state=TX --filter grade>=3. Operators: = (equals, case-insensitive), ~ (contains), >, >=, <, <= (numeric).",
		RunE: func(cmd *cobra.Command, args []string) error {
			if name == "" {
				return fmt.Errorf("--name required")
			}
			conditions := make([]domain.FilterCondition, 0, len(filters))
			for _, expr := range filters {
				cond, err := filter.ParseCondition(expr)
				if err != nil {
					return err
				}
				conditions = append(conditions, cond)
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				records, missing, err := app.LoadRoster(viper.GetString("workspace"), viper.GetString("roster"), e.Config)
				if err != nil {
					return err
				}
				if missing > 0 {
					fmt.Fprintf(os.Stderr, "warning: %d roster records have no 'id' field; their identity is positional and breaks if the roster changes\n", missing)
				}
				c, err := e.CreateCampaign(ctx, engine.CampaignCreateOptions{
					Name:    name,
					Filters: conditions,
					ActorID: viper.GetString("actor-id"),
				}, records)
				if err != nil {
					return err
				}
				return printJSONOrTable(c)
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "campaign name")
	cmd.Flags().StringArrayVar(&filters, "filter", nil, "filter expression (repeatable)")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func campaignListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List campaigns",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.ListCampaigns(ctx)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Name", "Contacts", "Filters", "Survey", "Created"})
				for _, c := range items {
					survey := ""
					if c.Survey != nil {
						survey = c.Survey.Question
					}
					tw.AppendRow(table.Row{c.ID, c.Name, len(c.ContactIDs), len(c.Filters), survey, c.CreatedAt})
				}
				tw.Render()
				return nil
			})
		},
	}
}

func campaignShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <campaign-id>",
		Short: "Show a campaign",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				c, err := e.GetCampaign(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(c)
			})
		},
	}
}

func campaignDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <campaign-id>",
		Short: "Delete a campaign and its progress",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				return e.DeleteCampaign(ctx, args[0], viper.GetString("actor-id"))
			})
		},
	}
}

func campaignRefreshCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "refresh <campaign-id>",
		Short: "Re-apply filters against the current roster",
		Long:  "New matches are appended to the contact queue and backfilled into progress. Existing queue entries are never removed or reordered.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				records, _, err := app.LoadRoster(viper.GetString("workspace"), viper.GetString("roster"), e.Config)
				if err != nil {
					return err
				}
				c, err := e.RefreshQueue(ctx, args[0], records, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(c)
			})
		},
	}
}

func surveySetCmd() *cobra.Command {
	var question string
	var options []string
	var activate, deactivate bool
	cmd := &cobra.Command{
		Use:   "survey <campaign-id>",
		Short: "Set or replace the campaign survey",
		Long:  "With --question/--option the survey is set or replaced (and activated). With --activate or --deactivate alone the existing survey is toggled without changing it.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if activate && deactivate {
				return fmt.Errorf("--activate and --deactivate are mutually exclusive")
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				actor := viper.GetString("actor-id")
				if question == "" && (activate || deactivate) {
					c, err := e.SetSurveyActive(ctx, args[0], activate, actor)
					if err != nil {
						return err
					}
					return printJSONOrTable(c)
				}
				c, err := e.SetSurvey(ctx, args[0], question, options, actor)
				if err != nil {
					return err
				}
				return printJSONOrTable(c)
			})
		},
	}
	cmd.Flags().StringVar(&question, "question", "", "survey question")
	cmd.Flags().StringArrayVar(&options, "option", nil, "answer option (repeatable)")
	cmd.Flags().BoolVar(&activate, "activate", false, "re-enable the existing survey")
	cmd.Flags().BoolVar(&deactivate, "deactivate", false, "stop accepting survey answers")
	return cmd
}

func remindCmd() *cobra.Command {
	var contactID string
	var dates []string
	cmd := &cobra.Command{
		Use:   "remind <campaign-id>",
		Short: "Add callback dates for a contact",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				c, err := e.AddReminder(ctx, args[0], contactID, dates, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(c)
			})
		},
	}
	cmd.Flags().StringVar(&contactID, "contact", "", "contact id")
	cmd.Flags().StringArrayVar(&dates, "date", nil, "callback date (repeatable)")
	_ = cmd.MarkFlagRequired("contact")
	_ = cmd.MarkFlagRequired("date")
	return cmd
}

func runCmd() *cobra.Command {
	run := &cobra.Command{
		Use:   "run",
		Short: "Walk a campaign's call queue",
		Long:  "One-shot queue navigation: each invocation picks from durable progress, so runs survive restarts. Use --missed after the first pass to retry no_answer contacts.",
	}
	run.AddCommand(runStartCmd())
	run.AddCommand(runNextCmd())
	run.AddCommand(runRecordCmd())
	run.AddCommand(runSurveyCmd())
	run.AddCommand(runClearMissedCmd())
	run.AddCommand(runCompleteCmd())
	return run
}

func runStartCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "start <campaign-id>",
		Short: "Interactive calling session",
		Long:  "Walks the queue prompting for each outcome: a=answered, m=no_answer, s=skip, q=quit. Progress persists after every answer, so quitting and restarting resumes where you left off. When the pass ends you can roll into a retry pass over missed contacts.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				campaign, err := e.GetCampaign(ctx, args[0])
				if err != nil {
					return err
				}
				run, err := e.NewRun(ctx, campaign.ID)
				if err != nil {
					return err
				}
				actor := viper.GetString("actor-id")
				in := bufio.NewScanner(cmd.InOrStdin())
				out := cmd.OutOrStdout()

				prompt := func(label string) (string, bool) {
					fmt.Fprint(out, label)
					if !in.Scan() {
						return "", false
					}
					return strings.TrimSpace(in.Text()), true
				}

				contactID, ok, err := run.Begin(ctx)
				if err != nil {
					return err
				}
				for {
					for ok {
						answer, alive := prompt(fmt.Sprintf("%s  [a]nswered [m]issed [s]kip [q]uit: ", contactID))
						if !alive {
							return nil
						}
						skip := ""
						switch answer {
						case "q":
							return nil
						case "s":
							skip = contactID
						case "a", "m":
							outcome := domain.OutcomeAnswered
							if answer == "m" {
								outcome = domain.OutcomeNoAnswer
							}
							if _, err := e.RecordOutcome(ctx, campaign.ID, contactID, outcome, actor); err != nil {
								return err
							}
							if outcome == domain.OutcomeAnswered {
								if survey := activeSurvey(ctx, e, campaign.ID); survey != nil {
									reply, alive := prompt(fmt.Sprintf("%s (%s, blank to skip): ", survey.Question, strings.Join(survey.Options, "/")))
									if !alive {
										return nil
									}
									if reply != "" {
										if _, err := e.RecordSurvey(ctx, campaign.ID, contactID, reply, actor); err != nil {
											fmt.Fprintln(out, "not recorded:", err)
										}
									}
								}
							}
							// a no_answer during a missed pass still matches the
							// missed predicate; skip it so it is not re-presented
							if run.State == runner.StateMissed && outcome == domain.OutcomeNoAnswer {
								skip = contactID
							}
						default:
							continue
						}
						contactID, ok, err = run.Advance(ctx, skip)
						if err != nil {
							return err
						}
					}

					totals, err := e.Summary(ctx, campaign.ID)
					if err != nil {
						return err
					}
					fmt.Fprintf(out, "pass complete: %d/%d made, %d answered, %d missed\n",
						totals.Made, totals.Total, totals.Answered, totals.Missed)
					if totals.Missed == 0 {
						return nil
					}
					answer, alive := prompt("retry missed contacts? [y/N]: ")
					if !alive || answer != "y" {
						return nil
					}
					contactID, ok, err = run.RetryMissed(ctx)
					if err != nil {
						return err
					}
				}
			})
		},
	}
}

// activeSurvey re-reads the campaign so a survey set or toggled after the
// session began still takes effect on the next answered call.
func activeSurvey(ctx context.Context, e engine.Engine, campaignID string) *domain.Survey {
	c, err := e.GetCampaign(ctx, campaignID)
	if err != nil || c.Survey == nil || !c.Survey.Active {
		return nil
	}
	return c.Survey
}

func runNextCmd() *cobra.Command {
	var missed bool
	var skipID string
	cmd := &cobra.Command{
		Use:   "next <campaign-id>",
		Short: "Pick the next contact to call",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				strategy := runner.StrategyUnattempted
				if missed {
					strategy = runner.StrategyMissed
				}
				id, ok, err := e.NextContact(ctx, args[0], strategy, skipID)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(map[string]any{"contact_id": id, "done": !ok, "strategy": string(strategy)})
				}
				if !ok {
					fmt.Println("queue exhausted; see 'cs status' for the summary")
					return nil
				}
				fmt.Println(id)
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&missed, "missed", false, "retry pass over no_answer contacts")
	cmd.Flags().StringVar(&skipID, "skip", "", "contact id to skip (the one just processed)")
	return cmd
}

func runRecordCmd() *cobra.Command {
	var contactID, outcome string
	cmd := &cobra.Command{
		Use:   "record <campaign-id>",
		Short: "Record a call outcome",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				snap, err := e.RecordOutcome(ctx, args[0], contactID, outcome, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(snap.Totals)
			})
		},
	}
	cmd.Flags().StringVar(&contactID, "contact", "", "contact id")
	cmd.Flags().StringVar(&outcome, "outcome", "", "answered or no_answer")
	_ = cmd.MarkFlagRequired("contact")
	_ = cmd.MarkFlagRequired("outcome")
	return cmd
}

func runSurveyCmd() *cobra.Command {
	var contactID, answer string
	cmd := &cobra.Command{
		Use:   "survey <campaign-id>",
		Short: "Record a survey answer",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				snap, err := e.RecordSurvey(ctx, args[0], contactID, answer, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(snap.Contacts[contactID])
			})
		},
	}
	cmd.Flags().StringVar(&contactID, "contact", "", "contact id")
	cmd.Flags().StringVar(&answer, "answer", "", "survey answer (must be one of the survey options)")
	_ = cmd.MarkFlagRequired("contact")
	_ = cmd.MarkFlagRequired("answer")
	return cmd
}

func runClearMissedCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "clear-missed <campaign-id>",
		Short: "Reset no_answer outcomes for a fresh retry pass",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				snap, err := e.ClearMissed(ctx, args[0], viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(snap.Totals)
			})
		},
	}
}

func runCompleteCmd() *cobra.Command {
	var undo bool
	cmd := &cobra.Command{
		Use:   "complete <campaign-id>",
		Short: "Mark a campaign run completed",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				snap, err := e.MarkCompleted(ctx, args[0], !undo, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(snap.Totals)
			})
		},
	}
	cmd.Flags().BoolVar(&undo, "undo", false, "clear the completed flag instead")
	return cmd
}

func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status <campaign-id>",
		Short: "Show campaign call totals",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				c, err := e.GetCampaign(ctx, args[0])
				if err != nil {
					return err
				}
				totals, err := e.Summary(ctx, c.ID)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(map[string]any{"campaign_id": c.ID, "name": c.Name, "totals": totals})
				}
				fmt.Printf("Campaign: %s (%s)\n", c.Name, c.ID)
				fmt.Printf("  contacts: %d\n", totals.Total)
				fmt.Printf("  calls made: %d\n", totals.Made)
				fmt.Printf("  answered: %d\n", totals.Answered)
				fmt.Printf("  missed: %d\n", totals.Missed)
				return nil
			})
		},
	}
}

func reportCmd() *cobra.Command {
	rep := &cobra.Command{Use: "report", Short: "Export campaign reports"}
	rep.AddCommand(reportCSVCmd("calls", "Call log CSV (one row per call attempt)", engineCallLog))
	rep.AddCommand(reportCSVCmd("surveys", "Survey log CSV (one row per recorded answer)", engineSurveyLog))
	rep.AddCommand(reportSummaryCmd())
	rep.AddCommand(reportRowsCmd())
	return rep
}

func engineCallLog(ctx context.Context, e engine.Engine, id string) (string, error) {
	return e.CallLogCSV(ctx, id)
}

func engineSurveyLog(ctx context.Context, e engine.Engine, id string) (string, error) {
	return e.SurveyLogCSV(ctx, id)
}

func reportCSVCmd(name, short string, render func(context.Context, engine.Engine, string) (string, error)) *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   name + " <campaign-id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				csvOut, err := render(ctx, e, args[0])
				if err != nil {
					return err
				}
				return writeOut(out, csvOut)
			})
		},
	}
	cmd.Flags().StringVar(&out, "out", "", "output file (default stdout)")
	return cmd
}

func reportSummaryCmd() *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "summary <campaign-id>",
		Short: "Per-contact summary CSV joining roster and progress",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				records, _, err := app.LoadRoster(viper.GetString("workspace"), viper.GetString("roster"), e.Config)
				if err != nil {
					return err
				}
				csvOut, err := e.SummaryCSV(ctx, args[0], records)
				if err != nil {
					return err
				}
				return writeOut(out, csvOut)
			})
		},
	}
	cmd.Flags().StringVar(&out, "out", "", "output file (default stdout)")
	return cmd
}

func reportRowsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rows <campaign-id>",
		Short: "Flat report rows as JSON for the external row store",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				records, _, err := app.LoadRoster(viper.GetString("workspace"), viper.GetString("roster"), e.Config)
				if err != nil {
					return err
				}
				rows, err := e.ReportRows(ctx, args[0], records)
				if err != nil {
					return err
				}
				return printJSON(rows)
			})
		},
	}
}

func rosterCmd() *cobra.Command {
	ros := &cobra.Command{Use: "roster", Short: "Inspect the roster file"}
	ros.AddCommand(&cobra.Command{
		Use:   "check",
		Short: "Validate the roster and report records without a durable id",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				records, missing, err := app.LoadRoster(viper.GetString("workspace"), viper.GetString("roster"), e.Config)
				if err != nil {
					return err
				}
				out := map[string]any{"records": len(records), "missing_id": missing}
				if viper.GetBool("json") {
					return printJSON(out)
				}
				fmt.Printf("%d records, %d without an 'id' field\n", len(records), missing)
				if missing > 0 {
					fmt.Println("records without an id get positional identity, which breaks if the roster changes; add a durable id column")
				}
				return nil
			})
		},
	})
	return ros
}

func configCmd() *cobra.Command {
	cfg := &cobra.Command{Use: "config", Short: "Workspace configuration"}
	cfg.AddCommand(&cobra.Command{
		Use:   "init",
		Short: "Write a default callsheet.yml",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := config.Path(viper.GetString("workspace"))
			if _, err := os.Stat(path); err == nil {
				return fmt.Errorf("%s already exists", path)
			}
			return os.WriteFile(path, []byte(config.GenerateDefault()), 0o644)
		},
	})
	cfg.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print the effective config",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				c, err := app.ResolveConfig(ctx, viper.GetString("workspace"), r)
				if err != nil {
					return err
				}
				return printJSON(c)
			})
		},
	})
	cfg.AddCommand(&cobra.Command{
		Use:   "import",
		Short: "Import callsheet.yml into the workspace store",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := config.Load(viper.GetString("workspace"))
			if err != nil {
				return err
			}
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				return r.UpsertWorkspaceConfig(ctx, app.ConfigName, c)
			})
		},
	})
	return cfg
}

func logCmd() *cobra.Command {
	log := &cobra.Command{
		Use:   "log",
		Short: "Event log",
		Long:  "The diary of everything that happened: campaign changes, recorded calls, survey answers.",
	}
	log.AddCommand(logTailCmd())
	return log
}

func logTailCmd() *cobra.Command {
	var n int
	var campaignID, evtType string
	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Tail events",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				events, err := r.LatestEvents(ctx, n, campaignID, evtType, "", "")
				if err != nil {
					return err
				}
				return printJSONOrTable(events)
			})
		},
	}
	cmd.Flags().IntVar(&n, "n", 20, "number of events")
	cmd.Flags().StringVar(&campaignID, "campaign", "", "campaign id filter")
	cmd.Flags().StringVar(&evtType, "type", "", "event type filter")
	return cmd
}

func apikeyCmd() *cobra.Command {
	key := &cobra.Command{Use: "apikey", Short: "Manage API keys for the HTTP server"}
	key.AddCommand(apikeyCreateCmd())
	key.AddCommand(apikeyListCmd())
	key.AddCommand(apikeyDeleteCmd())
	return key
}

func apikeyCreateCmd() *cobra.Command {
	var name string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create an API key for the current actor",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				secret := uuid.NewString()
				key := domain.APIKey{
					ID:        uuid.NewString(),
					ActorID:   viper.GetString("actor-id"),
					Name:      name,
					KeyHash:   repo.HashAPIKey(secret),
					CreatedAt: time.Now().UTC().Format(time.RFC3339),
				}
				if err := r.InsertAPIKey(ctx, key); err != nil {
					return err
				}
				// the plaintext key is shown once and never stored
				return printJSON(map[string]string{"id": key.ID, "actor_id": key.ActorID, "key": secret})
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "key label")
	return cmd
}

func apikeyListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List API keys",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				keys, err := r.ListAPIKeys(ctx, "")
				if err != nil {
					return err
				}
				return printJSONOrTable(keys)
			})
		},
	}
}

func apikeyDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <key-id>",
		Short: "Delete an API key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				return r.DeleteAPIKey(ctx, args[0])
			})
		},
	}
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
			r := repo.Repo{DB: conn}
			cfg, err := app.ResolveConfig(cmd.Context(), workspace, r)
			if err != nil {
				return err
			}
			e := engine.New(conn, cfg)
			authCfg := server.AuthConfig{JWTSecret: os.Getenv("CALLSHEET_JWT_SECRET")}
			if authCfg.JWTSecret == "" {
				return fmt.Errorf("CALLSHEET_JWT_SECRET is required for bearer auth")
			}
			handler, err := server.New(server.Config{Engine: e, Workspace: workspace, BasePath: basePath, Auth: authCfg})
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
			fmt.Printf("Serving Callsheet API on http://%s%s (OpenAPI at %s/openapi.json, Swagger UI at /docs)\n", addr, basePath, basePath)
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
	return withRepo(ctx, func(ctx context.Context, r repo.Repo) error {
		cfg, err := app.ResolveConfig(ctx, viper.GetString("workspace"), r)
		if err != nil {
			return err
		}
		e := engine.New(r.DB, cfg)
		return fn(ctx, e)
	})
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

func writeOut(path, content string) error {
	if path == "" {
		fmt.Print(content)
		return nil
	}
	return os.WriteFile(path, []byte(content), 0o644)
}
