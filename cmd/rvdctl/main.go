// rvdctl is the maintenance tool for a project workspace. It works on the
// workspace directory directly and needs no running server.
//
// Usage:
//
//	rvdctl [--workspace DIR] [--json] <command> [args]
//
// Commands:
//
//	list          list every project
//	build         rebuild a project
//	upgrade       upgrade one project to the running version
//	upgrade-all   upgrade every project behind the running version
//	export        write a project archive
//	import        install a project archive
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/GoSim-25-26J-441/rvd-backend/config"
	"github.com/GoSim-25-26J-441/rvd-backend/internal/bootstrap"
	"github.com/GoSim-25-26J-441/rvd-backend/internal/logging"
	"github.com/GoSim-25-26J-441/rvd-backend/internal/projects/service"
)

var version = "dev"

type globals struct {
	workspace  string
	jsonOutput bool
	logLevel   string
	version    int
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	g := &globals{}

	rootCmd := &cobra.Command{
		Use:           "rvdctl",
		Short:         "Maintenance tool for the project workspace",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVar(&g.workspace, "workspace", os.Getenv("RVD_WORKSPACE_DIR"), "workspace directory (default ./workspace)")
	rootCmd.PersistentFlags().BoolVar(&g.jsonOutput, "json", false, "output in JSON format")
	rootCmd.PersistentFlags().StringVar(&g.logLevel, "log-level", "warn", "log level")
	rootCmd.PersistentFlags().IntVar(&g.version, "project-version", service.DefaultVersion, "project version the workspace is upgraded to")

	rootCmd.AddCommand(
		newListCmd(g),
		newBuildCmd(g),
		newUpgradeCmd(g),
		newUpgradeAllCmd(g),
		newExportCmd(g),
		newImportCmd(g),
	)
	return rootCmd
}

// open builds the project service for the selected workspace.
func (g *globals) open() (*service.ProjectService, error) {
	log, err := logging.New("development", g.logLevel)
	if err != nil {
		return nil, err
	}
	dir := g.workspace
	if dir == "" {
		dir = "./workspace"
	}
	svc, _, err := bootstrap.OpenProjects(&config.WorkspaceConfig{Dir: dir, ProjectVersion: g.version}, log, nil)
	return svc, err
}
