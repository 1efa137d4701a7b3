package main

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var configPath string

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCommand().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "filevault: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "filevault",
		Short: "FileVault operator and development CLI",
		Long: `filevault applies database migrations, seeds demo accounts, serves the API with an
in-process extraction pool, and runs the api and worker binaries from source.`,
		SilenceUsage: true,
	}
	cmd.PersistentFlags().StringVarP(&configPath, "config", "c", os.Getenv("FILEVAULT_CONFIG"), "Optional YAML config file")
	cmd.AddCommand(
		newMigrateCmd(),
		newSeedCmd(),
		newServeCmd(),
		newTestCmd(),
		newRunCmd(),
	)
	return cmd
}

func newTestCmd() *cobra.Command {
	var race, cover bool
	cmd := &cobra.Command{
		Use:   "test [packages]",
		Short: "Run Go tests (defaults to ./...)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return goTool(cmd.Context(), testArgs(race, cover, args)...)
		},
	}
	cmd.Flags().BoolVar(&race, "race", false, "Enable Go race detector")
	cmd.Flags().BoolVar(&cover, "cover", false, "Collect coverage data")
	return cmd
}

func testArgs(race, cover bool, pkgs []string) []string {
	out := []string{"test"}
	if race {
		out = append(out, "-race")
	}
	if cover {
		out = append(out, "-cover")
	}
	if len(pkgs) == 0 {
		pkgs = []string{"./..."}
	}
	return append(out, pkgs...)
}

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the api or worker binary from source with the selected config",
	}
	for _, name := range []string{"api", "worker"} {
		name := name
		cmd.AddCommand(&cobra.Command{
			Use:   name + " [args...]",
			Short: fmt.Sprintf("go run ./cmd/%s", name),
			RunE: func(cmd *cobra.Command, args []string) error {
				return goTool(cmd.Context(), append([]string{"run", "./cmd/" + name}, args...)...)
			},
		})
	}
	return cmd
}

// goTool runs the go command attached to the terminal. A --config choice is
// handed to child binaries through FILEVAULT_CONFIG.
func goTool(ctx context.Context, args ...string) error {
	c := exec.CommandContext(ctx, "go", args...)
	c.Stdin, c.Stdout, c.Stderr = os.Stdin, os.Stdout, os.Stderr
	c.Env = childEnv(os.Environ(), configPath)
	return c.Run()
}

func childEnv(base []string, config string) []string {
	if config == "" {
		return base
	}
	return append(base, "FILEVAULT_CONFIG="+config)
}
