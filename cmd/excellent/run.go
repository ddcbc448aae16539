package main

import (
	"bufio"
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/excellent-lang/excellent/pkg/dates"
	"github.com/excellent-lang/excellent/pkg/flows"
	"github.com/excellent-lang/excellent/pkg/observability"
	"github.com/excellent-lang/excellent/pkg/sessions"
)

// orgConfig is the YAML form of the org settings a flow runs under.
type orgConfig struct {
	Country         string `yaml:"country"`
	PrimaryLanguage string `yaml:"primary_language"`
	Timezone        string `yaml:"timezone"`
	DateStyle       string `yaml:"date_style"`
	Anon            bool   `yaml:"anon"`
}

func loadOrg(path string) (*flows.Org, error) {
	config := orgConfig{
		Country:         "RW",
		PrimaryLanguage: "eng",
		Timezone:        "Africa/Kigali",
		DateStyle:       "day_first",
	}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading org config: %w", err)
		}
		if err := yaml.Unmarshal(data, &config); err != nil {
			return nil, fmt.Errorf("parsing org config: %w", err)
		}
	}

	tz, err := time.LoadLocation(config.Timezone)
	if err != nil {
		return nil, fmt.Errorf("loading org timezone: %w", err)
	}

	style := dates.DayFirst
	if config.DateStyle == "month_first" {
		style = dates.MonthFirst
	}

	return &flows.Org{
		Country:         config.Country,
		PrimaryLanguage: config.PrimaryLanguage,
		Timezone:        tz,
		DateStyle:       style,
		Anon:            config.Anon,
	}, nil
}

// runCmd runs a flow definition as an interactive session
var runCmd = &cobra.Command{
	Use:   "run [flow.json]",
	Short: "Run a flow interactively",
	Long: `Starts a run of the given flow definition, printing its messages and
reading replies from stdin until the run completes. The run is saved to the
session store between each message, the way a messaging service would hold
it between webhooks.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		logger := newLogger(cmd)

		definition, err := os.ReadFile(args[0])
		if err != nil {
			return fmt.Errorf("reading flow definition: %w", err)
		}
		flow, err := flows.ReadFlow(definition)
		if err != nil {
			return err
		}

		orgPath, _ := cmd.Flags().GetString("org")
		org, err := loadOrg(orgPath)
		if err != nil {
			return err
		}

		name, _ := cmd.Flags().GetString("name")
		urn, _ := cmd.Flags().GetString("urn")
		language, _ := cmd.Flags().GetString("language")

		parsedURN, err := flows.ParseURN(urn)
		if err != nil {
			return err
		}
		contact := flows.NewContact(uuid.NewString(), name, parsedURN, language)

		store, err := newSessionStore(cmd)
		if err != nil {
			return err
		}

		options := []flows.RunnerOption{flows.WithLogger(logger)}
		if addr, _ := cmd.Flags().GetString("metrics"); addr != "" {
			registry := prometheus.NewRegistry()
			options = append(options, flows.WithListener(observability.NewMetrics(registry)))

			go func() {
				mux := http.NewServeMux()
				mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
				logger.Info("serving metrics", "addr", addr)
				if err := http.ListenAndServe(addr, mux); err != nil {
					logger.Error("metrics server stopped", "error", err)
				}
			}()
		}

		runner := flows.NewRunner(options...)
		return runSession(cmd, runner, store, org, contact, flow)
	},
}

// runSession drives a run through the session store until it completes.
func runSession(cmd *cobra.Command, runner *flows.Runner, store sessions.Store, org *flows.Org, contact *flows.Contact, flow *flows.Flow) error {
	ctx := context.Background()
	sessionID := contact.URNs[0].String()

	run, err := runner.Start(org, nil, contact, flow)
	if err != nil {
		return err
	}
	printSteps(cmd, run)

	scanner := bufio.NewScanner(cmd.InOrStdin())
	for run.State() == flows.StateWaitMessage {
		session, err := sessions.NewSession(sessionID, run)
		if err != nil {
			return err
		}
		if err := store.Save(ctx, session); err != nil {
			return err
		}

		fmt.Fprint(cmd.OutOrStdout(), "> ")
		if !scanner.Scan() {
			return scanner.Err()
		}

		if session, err = store.Load(ctx, sessionID); err != nil {
			return err
		}
		if run, err = session.Restore(); err != nil {
			return err
		}
		if run, err = runner.Resume(run, flows.NewInput(scanner.Text())); err != nil {
			return err
		}
		printSteps(cmd, run)
	}

	if err := store.Delete(ctx, sessionID); err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), "run completed")
	return nil
}

// printSteps prints the messages sent back to the contact, and any template
// errors collected along the way.
func printSteps(cmd *cobra.Command, run *flows.RunState) {
	out := cmd.OutOrStdout()
	for _, step := range run.Steps() {
		for _, action := range step.Actions() {
			if reply, ok := action.(*flows.ReplyAction); ok {
				fmt.Fprintln(out, reply.Msg.Localized(nil, ""))
			}
		}
		for _, stepErr := range step.Errors() {
			fmt.Fprintln(out, "error:", stepErr)
		}
	}
}

func newSessionStore(cmd *cobra.Command) (sessions.Store, error) {
	addr, _ := cmd.Flags().GetString("redis")
	if addr == "" {
		return sessions.NewMemoryStore(), nil
	}
	password, _ := cmd.Flags().GetString("redis-password")
	db, _ := cmd.Flags().GetInt("redis-db")
	ttl, _ := cmd.Flags().GetDuration("session-ttl")

	return sessions.NewRedisStore(addr, password, db, sessions.WithTTL(ttl)), nil
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().String("org", "", "Path to a YAML org config")
	runCmd.Flags().String("name", "Joe Flow", "Contact name")
	runCmd.Flags().String("urn", "tel:+250788383383", "Contact URN")
	runCmd.Flags().String("language", "eng", "Contact language (ISO 639-2)")
	runCmd.Flags().String("redis", "", "Redis address for session storage (default in-memory)")
	runCmd.Flags().String("redis-password", "", "Redis password")
	runCmd.Flags().Int("redis-db", 0, "Redis database")
	runCmd.Flags().Duration("session-ttl", 0, "Expiration for stored sessions")
	runCmd.Flags().String("metrics", "", "Address to serve Prometheus metrics on, e.g. :2112")
}
