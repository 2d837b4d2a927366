// Package cli implements the layeralign command.
package cli

import (
	"context"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"layer-align/internal/config"
	"layer-align/internal/logging"
	"layer-align/internal/version"
)

// Root holds what every subcommand needs.
type Root struct {
	cfg *config.Config
	log *slog.Logger
	out io.Writer
	err io.Writer
}

// NewRoot returns a Root writing command output to stdout and logs to
// stderr.
func NewRoot(cfg *config.Config) *Root {
	return &Root{cfg: cfg, out: os.Stdout, err: os.Stderr}
}

// NewRootCmd creates the root Cobra command.
func NewRootCmd(root *Root) *cobra.Command {
	var (
		logLevel  string
		logFormat string
	)

	rootCmd := &cobra.Command{
		Use:   "layeralign",
		Short: "Register image layers onto a base image",
		Long: `layeralign finds the perspective transform that maps each layer onto a base
image using ORB keypoints, Hamming matching and RANSAC, and writes the
layers resampled onto the base pixel grid.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			root.log = logging.NewWriter(root.err, logLevel, logFormat)
			return nil
		},
	}
	rootCmd.SetOut(root.out)
	rootCmd.SetErr(root.err)

	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", root.cfg.LogLevel, "log level (debug|info|warn|error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", root.cfg.LogFormat, "log format (text|json)")

	rootCmd.AddCommand(newAlignCmd(root))
	rootCmd.AddCommand(newDetectCmd(root))
	rootCmd.AddCommand(newVersionCmd(root))

	return rootCmd
}

// Run executes the command line args.
func (r *Root) Run(ctx context.Context, args []string) error {
	cmd := NewRootCmd(r)
	cmd.SetArgs(args)
	return cmd.ExecuteContext(ctx)
}

func newVersionCmd(root *Root) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			cmd.Println(version.String())
		},
	}
}
