// Command image-updater resolves the newest registry tags for
// the images declared in an update plan, rewrites the output
// documents whose tag or digest changed and reports the
// result. With --publish it also commits the changes to a
// deployment branch and opens a pull request.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/byte4ever/image_updater/gitops/commitmsg"
	"github.com/byte4ever/image_updater/gitops/git"
	"github.com/byte4ever/image_updater/gitops/output"
	"github.com/byte4ever/image_updater/gitops/prer"
	"github.com/byte4ever/image_updater/plan"
	"github.com/byte4ever/image_updater/registry"
	"github.com/byte4ever/image_updater/updater"
)

// version is set at build time via ldflags.
var version = "dev"

func main() {
	ctx, stop := signal.NotifyContext(
		context.Background(), os.Interrupt, syscall.SIGTERM,
	)

	err := newRootCommand(viper.New()).ExecuteContext(ctx)

	stop()

	if err != nil {
		slog.Error("image updater failed", "error", err)
		os.Exit(1)
	}
}

func newRootCommand(v *viper.Viper) *cobra.Command {
	var configFile string

	cmd := &cobra.Command{
		Use:           "image-updater",
		Short:         "Update container image tags and digests in YAML documents",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.NoArgs,
		PersistentPreRunE: func(*cobra.Command, []string) error {
			if err := initConfig(v, configFile); err != nil {
				return err
			}

			setupLogging(v.GetString(keyLogLevel))

			return nil
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadSettings(v)
			if err != nil {
				return err
			}

			return run(cmd.Context(), cfg)
		},
	}

	cmd.PersistentFlags().StringVar(
		&configFile, "config", "", "Config file path",
	)

	bindFlags(cmd, v)

	return cmd
}

func setupLogging(level string) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = slog.LevelInfo
	}

	slog.SetDefault(slog.New(slog.NewTextHandler(
		os.Stderr, &slog.HandlerOptions{Level: lvl},
	)))
}

func run(ctx context.Context, cfg settings) error {
	const errCtx = "running image updater"

	registry.UserAgent = "image-updater/" + version

	p, err := plan.Load(cfg.PlanFile)
	if err != nil {
		return fmt.Errorf("%s: %w", errCtx, err)
	}

	regs, err := registrations(cfg)
	if err != nil {
		return fmt.Errorf("%s: %w", errCtx, err)
	}

	up := &updater.Updater{
		Auth:     registry.NewAuthenticator(regs...),
		Registry: registry.NewClient(nil),
		Templates: commitmsg.Templates{
			Commit:    cfg.CommitTemplate,
			Changed:   cfg.ChangedTemplate,
			Unchanged: cfg.UnchangedTemplate,
		},
	}

	res, err := up.Run(ctx, p)
	if err != nil {
		return fmt.Errorf("%s: %w", errCtx, err)
	}

	if err := output.WriteCommitMessage(cfg.OutputFile, res.CommitMessage); err != nil {
		return fmt.Errorf("%s: %w", errCtx, err)
	}

	if err := output.WriteSummary(cfg.SummaryFile, res.Report); err != nil {
		return fmt.Errorf("%s: %w", errCtx, err)
	}

	if cfg.Publish {
		if err := publish(ctx, cfg, res); err != nil {
			return fmt.Errorf("%s: %w", errCtx, err)
		}
	}

	slog.Info(
		"image updater successful",
		"commit_message", res.CommitMessage,
		"changed_files", strings.Join(res.ChangedFiles, ","),
	)

	return nil
}

func publish(ctx context.Context, cfg settings, res updater.Result) error {
	const errCtx = "publishing"

	provider, err := newGitProvider(cfg.GitServer, cfg.Provider)
	if err != nil {
		return fmt.Errorf("%s: %w", errCtx, err)
	}

	repo, err := git.Open(ctx, cfg.RepoDir)
	if err != nil {
		return fmt.Errorf("%s: %w", errCtx, err)
	}

	return prer.Publish(ctx, prer.Config{
		Repo:          repo,
		PrimaryBranch: cfg.PrimaryBranch,
		Branch:        cfg.Branch,
		BodyTemplate:  cfg.BodyTemplate,
		DryRun:        cfg.DryRun,
		Provider:      provider,
	}, res)
}
