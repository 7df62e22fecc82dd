package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/google/uuid"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"autophish/config"
	"autophish/gophish"
	"autophish/notification"
	"autophish/service"
	"autophish/templates"
	"autophish/tracker"
)

type ExitCode int

const (
	ExitOk            ExitCode = 0
	ExitConfig        ExitCode = 1
	ExitPartialFailed ExitCode = 2
)

// ExitError carries the process exit code for an error returned by a command.
type ExitError struct {
	err  error
	exit ExitCode
}

func (e ExitError) Error() string {
	if e.err == nil {
		return ""
	}
	return e.err.Error()
}

func (e ExitError) Unwrap() error {
	return e.err
}

var logger *zap.Logger

var rootCmd = &cobra.Command{
	Use:   "autophish",
	Short: "Set up and launch Gophish campaigns from a template directory",
	Long: `autophish reconciles a target group, sending profiles and a landing page on a
Gophish server, publishes every template file found in the template directory,
and launches one campaign per template and sending profile. A confirmation
mail is sent through each sending profile after its campaign is launched.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		logger, err = newLogger(viper.GetBool("verbose"), viper.GetString("log-format"))
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Reconcile resources and launch campaigns",
	Args:  cobra.NoArgs,
	RunE:  runCampaigns,
}

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Parse the template directory without contacting the server",
	Args:  cobra.NoArgs,
	RunE:  checkTemplates,
}

func main() {
	cobra.OnInitialize(initConfig)
	addFlags()
	rootCmd.AddCommand(runCmd, checkCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		var exitErr ExitError
		if errors.As(err, &exitErr) {
			os.Exit(int(exitErr.exit))
		}
		os.Exit(int(ExitConfig))
	}
}

func initConfig() {
	viper.SetEnvPrefix("AUTOPHISH")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addFlags() {
	flags := rootCmd.PersistentFlags()
	flags.StringP("config", "c", config.DefaultPath, "configuration file (JSON or YAML)")
	flags.StringP("templates", "t", "", "template directory (overrides template.dir)")
	flags.BoolP("verbose", "v", false, "enable debug logging")
	flags.String("log-format", "json", "log encoding: json or console")
	runCmd.Flags().Bool("fail-on-error", false, "exit with status 2 when any template, resource or dispatch failed")

	for _, name := range []string{"config", "templates", "verbose", "log-format"} {
		_ = viper.BindPFlag(name, flags.Lookup(name))
	}
	_ = viper.BindPFlag("fail-on-error", runCmd.Flags().Lookup("fail-on-error"))
}

func newLogger(verbose bool, format string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	if format == "console" {
		cfg.Encoding = "console"
		cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	}
	if verbose {
		cfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	}
	return cfg.Build()
}

func loadConfig(load func(path string) (*config.Config, error)) (*config.Config, error) {
	cfg, err := load(viper.GetString("config"))
	if err != nil {
		return nil, ExitError{err: fmt.Errorf("failed to load config: %w", err), exit: ExitConfig}
	}
	if dir := viper.GetString("templates"); dir != "" {
		cfg.Template.Dir = dir
	}
	return cfg, nil
}

func runCampaigns(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(config.LoadConfig)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	runLogger := logger.With(zap.String("run_id", uuid.NewString()))
	runLogger.Info("Configuration loaded",
		zap.String("host", cfg.Host),
		zap.Int("profiles", len(cfg.SMTPProfiles)),
		zap.String("template_dir", cfg.Template.Dir),
		zap.Duration("delay", cfg.PacingDelay()))

	client := gophish.New(cfg.Host, cfg.APIKey)
	client.InsecureSkipVerify = cfg.Insecure()

	tr := tracker.NewTracker(runLogger)
	runner := service.NewRunner(cfg, client, notification.NewSender(cfg.Dispatch.NotifyPort, runLogger), tr, runLogger)
	if err := runner.Run(ctx); err != nil {
		return ExitError{err: err, exit: ExitConfig}
	}

	tr.WriteSummary(cmd.OutOrStdout())
	if err := tr.Err(); err != nil {
		runLogger.Warn("Run finished with failures", zap.Int("failures", tr.FailureCount()), zap.Error(err))
		if viper.GetBool("fail-on-error") {
			return ExitError{err: fmt.Errorf("%d units failed", tr.FailureCount()), exit: ExitPartialFailed}
		}
		return nil
	}
	runLogger.Info("Run finished", zap.Int("sent", tr.SentCount()))
	return nil
}

// checkTemplates never contacts the server, so only the template section of
// the configuration has to be present.
func checkTemplates(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(config.LoadTemplateSettings)
	if err != nil {
		return err
	}
	files, err := templates.LoadDir(cfg.Template.Dir, cfg.Template.Extension)
	if err != nil {
		return ExitError{err: err, exit: ExitConfig}
	}
	parser := templates.Parser{AssumeEncoded: cfg.Template.IsBase64, SkipAmbiguous: cfg.SkipAmbiguousTemplates()}
	writeCheckTable(cmd.OutOrStdout(), parser, files)
	return nil
}

func writeCheckTable(w io.Writer, parser templates.Parser, files []templates.File) {
	tw := table.NewWriter()
	tw.SetOutputMirror(w)
	tw.AppendHeader(table.Row{"File", "Subject", "Status", "Detail"})
	for _, f := range files {
		tmpl, err := parser.Parse(f.Content)
		switch {
		case errors.Is(err, templates.ErrSkipped):
			tw.AppendRow(table.Row{f.Name, "", "skipped", err.Error()})
		case err != nil:
			tw.AppendRow(table.Row{f.Name, "", "error", err.Error()})
		default:
			tw.AppendRow(table.Row{f.Name, tmpl.Subject, "ok", fmt.Sprintf("%d bytes of html", len(tmpl.HTML))})
		}
	}
	tw.SetStyle(table.StyleLight)
	tw.Render()
}
