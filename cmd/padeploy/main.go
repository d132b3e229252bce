package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/mpataki/padeploy/internal/config"
	"github.com/mpataki/padeploy/internal/console"
	"github.com/mpataki/padeploy/internal/gateway"
	"github.com/mpataki/padeploy/internal/metrics"
	"github.com/mpataki/padeploy/internal/models"
	"github.com/mpataki/padeploy/internal/orchestrator"
	"github.com/mpataki/padeploy/internal/report"
	"github.com/mpataki/padeploy/internal/storage"
	"github.com/mpataki/padeploy/internal/tui"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/uber-go/tally/v4"
	"go.uber.org/zap"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "padeploy",
		Short: "Deploy a web app through its hosting console",
		Long: "padeploy pulls the latest source into a hosted web app through a remote console, " +
			"runs the framework's setup commands and reloads the app.",
		SilenceUsage: true,
		RunE:         runDeploy,
	}
	config.RegisterFlags(rootCmd.PersistentFlags())

	rootCmd.AddCommand(newRunCommand())
	rootCmd.AddCommand(newHistoryCommand())
	rootCmd.AddCommand(newStatusCommand())
	rootCmd.AddCommand(newBrowseCommand())
	rootCmd.AddCommand(newFrameworksCommand())
	rootCmd.AddCommand(newDeleteCommand())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	v, err := config.NewViper(cmd.Flags())
	if err != nil {
		return nil, errors.Wrap(err, "failed to load config")
	}
	return config.Load(v), nil
}

func newRunCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Deploy the web app (the default command)",
		Args:  cobra.NoArgs,
		RunE:  runDeploy,
	}
}

// runDeploy reports any failure as a workflow error and exits 1.
func runDeploy(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	rep := report.New(os.Stdout, cfg.Verbose)
	defer rep.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := deploy(ctx, cfg, rep.Logger()); err != nil {
		stop()
		rep.Fail(err)
	}
	return nil
}

func deploy(ctx context.Context, cfg *config.Config, log *zap.SugaredLogger) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	scope, closer := newScope(cfg, log)
	defer closer.Close()

	registry, err := loadFrameworks(cfg, log)
	if err != nil {
		return err
	}

	client := gateway.New(gateway.BaseURL(cfg.Host, cfg.Username), cfg.APIToken, gateway.WithLogger(log))
	api := gateway.NewInstrumented(client, scope)
	driver := console.New(api,
		console.WithLogger(log),
		console.WithScope(scope),
		console.WithFetchPolicy(cfg.FetchAttempts, cfg.FetchDelay),
	)

	opts := []orchestrator.Option{
		orchestrator.WithLogger(log),
		orchestrator.WithScope(scope),
	}
	if !cfg.NoHistory {
		store, err := storage.Open(cfg.DataDir)
		if err != nil {
			log.Warnf("Deployment history disabled: %v", err)
		} else {
			defer store.Close()
			opts = append(opts, orchestrator.WithHistory(store))
		}
	}

	orch := orchestrator.New(api, driver, registry, opts...)
	d, err := orch.Deploy(ctx, orchestrator.Request{
		Domain:    cfg.DomainName,
		Framework: cfg.FrameworkType,
		Settings:  cfg.DjangoSettings,
		Envs:      cfg.Envs,
	})
	if err != nil {
		return err
	}
	log.Debugf("Deployment %s finished in state %s", d.RunID, d.State)
	return nil
}

func newScope(cfg *config.Config, log *zap.SugaredLogger) (tally.Scope, io.Closer) {
	scope, closer, err := metrics.NewScope(cfg.StatsdAddr)
	if err != nil {
		log.Warnf("Metrics disabled: %v", err)
		return tally.NoopScope, io.NopCloser(nil)
	}
	return scope, closer
}

func openStore(cmd *cobra.Command) (*storage.Storage, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	store, err := storage.Open(cfg.DataDir)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open history")
	}
	return store, nil
}

func parseID(arg string) (int64, error) {
	id, err := strconv.ParseInt(arg, 10, 64)
	if err != nil {
		return 0, errors.Wrap(err, "invalid deployment ID")
	}
	return id, nil
}

func newHistoryCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recent deployments",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			limit, _ := cmd.Flags().GetInt("limit")

			store, err := openStore(cmd)
			if err != nil {
				return err
			}
			defer store.Close()

			deployments, err := store.ListDeployments(limit)
			if err != nil {
				return err
			}

			if len(deployments) == 0 {
				fmt.Println("No deployments found.")
				return nil
			}

			for _, d := range deployments {
				fmt.Printf("#%d %-10s [%s] %-8s %s\n",
					d.ID, d.Framework, d.Status,
					storage.FormatTimeAgo(d.CreatedAt), truncate(d.DomainName, 50))
			}
			return nil
		},
	}

	cmd.Flags().IntP("limit", "n", 20, "Number of deployments to show")
	return cmd
}

func newStatusCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "status <deployment-id>",
		Short: "Show a deployment and its console commands",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}

			store, err := openStore(cmd)
			if err != nil {
				return err
			}
			defer store.Close()

			d, err := store.GetDeployment(id)
			if err != nil {
				return errors.Wrap(err, "failed to get deployment")
			}

			fmt.Printf("Deployment #%d: %s\n", d.ID, d.DomainName)
			fmt.Printf("Run: %s\n", d.RunID)
			fmt.Printf("Framework: %s\n", d.Framework)
			fmt.Printf("Status: %s (%s)\n", d.Status, d.State)
			if d.ConsoleID != "" {
				fmt.Printf("Console: %s\n", d.ConsoleID)
			}
			if d.Error != "" {
				fmt.Printf("Error: %s\n", d.Error)
			}

			invs, err := store.GetInvocations(id)
			if err != nil {
				return err
			}

			if len(invs) > 0 {
				fmt.Println("\nConsole:")
				for _, inv := range invs {
					what := inv.Command
					if inv.Kind == models.InvocationFetch {
						what = inv.Label
					}
					fmt.Printf("  %d. %-5s [%s] %s\n", inv.SequenceNum, inv.Kind, inv.Status, truncate(firstLine(what), 70))
				}
			}

			return nil
		},
	}
}

func newBrowseCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "browse",
		Short: "Browse deployment history interactively",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openStore(cmd)
			if err != nil {
				return err
			}
			defer store.Close()

			p := tea.NewProgram(tui.NewApp(store), tea.WithAltScreen())
			_, err = p.Run()
			return err
		},
	}
}

func newFrameworksCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "frameworks",
		Short: "List the frameworks available to deploy",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}

			registry, err := loadFrameworks(cfg, zap.NewNop().Sugar())
			if err != nil {
				return err
			}

			for _, name := range registry.Names() {
				fmt.Println(name)
			}
			return nil
		},
	}
}

func newDeleteCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <deployment-id>",
		Short: "Delete a deployment from history",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}

			store, err := openStore(cmd)
			if err != nil {
				return err
			}
			defer store.Close()

			if err := store.DeleteDeployment(id); err != nil {
				return errors.Wrap(err, "failed to delete deployment")
			}

			fmt.Printf("Deleted deployment #%d\n", id)
			return nil
		},
	}
}
