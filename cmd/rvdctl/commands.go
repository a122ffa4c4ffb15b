package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
)

func (g *globals) out(cmd *cobra.Command) *output {
	return &output{jsonMode: g.jsonOutput, w: cmd.OutOrStdout(), errW: cmd.ErrOrStderr()}
}

func newListCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List every project in the workspace",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := g.open()
			if err != nil {
				return err
			}
			items, err := svc.ListAllProjects(cmd.Context())
			if err != nil {
				return err
			}
			rows := make([][]string, len(items))
			for i, it := range items {
				owner := it.Owner
				if owner == "" {
					owner = "-"
				}
				rows[i] = []string{it.Name, it.Kind, strconv.Itoa(it.Version), owner}
			}
			return g.out(cmd).print([]string{"NAME", "KIND", "VERSION", "OWNER"}, rows, items)
		},
	}
}

func newBuildCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "build <name>",
		Short: "Rebuild a project from its stored state",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := g.open()
			if err != nil {
				return err
			}
			owner, err := svc.ProjectOwner(args[0])
			if err != nil {
				return err
			}
			m, err := svc.BuildProject(cmd.Context(), owner, args[0])
			if err != nil {
				return err
			}
			out := g.out(cmd)
			out.success(fmt.Sprintf("Built %s (%d nodes)", m.Project, len(m.Nodes)))
			return out.print(
				[]string{"PROJECT", "VERSION", "START", "SHA256"},
				[][]string{{m.Project, strconv.Itoa(m.Version), m.StartNode, m.StateSHA256}},
				m,
			)
		},
	}
}

func newUpgradeCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "upgrade <name>",
		Short: "Upgrade a project to the running version and rebuild it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := g.open()
			if err != nil {
				return err
			}
			owner, err := svc.ProjectOwner(args[0])
			if err != nil {
				return err
			}
			from, err := svc.UpgradeProject(cmd.Context(), owner, args[0])
			if err != nil {
				return err
			}
			g.out(cmd).success(fmt.Sprintf("Upgraded %s from version %d to %d", args[0], from, svc.Version()))
			return nil
		},
	}
}

func newUpgradeAllCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "upgrade-all",
		Short: "Upgrade every project behind the running version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := g.open()
			if err != nil {
				return err
			}
			reports, err := svc.UpgradeAll(cmd.Context())
			if err != nil {
				return err
			}

			failed := 0
			rows := make([][]string, len(reports))
			for i, r := range reports {
				status := "ok"
				if r.Error != "" {
					status = r.Error
					failed++
				}
				rows[i] = []string{r.Project, strconv.Itoa(r.From), status}
			}
			if err := g.out(cmd).print([]string{"PROJECT", "FROM", "RESULT"}, rows, reports); err != nil {
				return err
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d projects not upgraded", failed, len(reports))
			}
			return nil
		},
	}
}

func newExportCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "export <name> <file>",
		Short: "Write a project archive",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := g.open()
			if err != nil {
				return err
			}
			owner, err := svc.ProjectOwner(args[0])
			if err != nil {
				return err
			}

			f, err := os.Create(args[1])
			if err != nil {
				return err
			}
			if err := svc.ArchiveProject(cmd.Context(), owner, args[0], f); err != nil {
				f.Close()
				os.Remove(args[1])
				return err
			}
			if err := f.Close(); err != nil {
				return err
			}
			g.out(cmd).success(fmt.Sprintf("Exported %s to %s", args[0], args[1]))
			return nil
		},
	}
}

func newImportCmd(g *globals) *cobra.Command {
	var (
		name  string
		owner string
	)

	cmd := &cobra.Command{
		Use:   "import <file>",
		Short: "Install a project archive",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := g.open()
			if err != nil {
				return err
			}
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()

			suggested := name
			if suggested == "" {
				base := filepath.Base(args[0])
				suggested = strings.TrimSuffix(base, filepath.Ext(base))
			}
			installed, err := svc.ImportProjectFromArchive(cmd.Context(), owner, f, suggested)
			if err != nil {
				return err
			}
			g.out(cmd).success(fmt.Sprintf("Imported %s as %s", args[0], installed))
			return nil
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "project name (default: archive file name)")
	cmd.Flags().StringVar(&owner, "owner", "", "owner of the imported project (default: none)")
	return cmd
}
