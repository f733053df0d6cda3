package main

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/ludo-technologies/pyqc/service"
)

func watchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch [path]",
		Short: "Check Python files as they are saved",
		Long: `Watch a directory tree (default: the project root) and check each Python
file shortly after it is saved. Results are printed and recorded in the
edit-time hook log. Stop with Ctrl+C.`,
		RunE:         runWatch,
		SilenceUsage: true,
	}
	addConfigFlags(cmd)
	return cmd
}

func runWatch(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd, firstArg(args), service.ConfigOverrides{})
	if err != nil {
		return err
	}
	uc, err := newUseCase(cfg, false)
	if err != nil {
		return err
	}
	defer uc.Close()

	root := firstArg(args)
	if root == "" {
		root = cfg.Root()
	}
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Watching %s (Ctrl+C to stop)\n", root)

	ctx := commandContext(cmd)
	return uc.Watch(ctx, root, func(paths []string) {
		for _, p := range paths {
			name := p
			if rel, err := filepath.Rel(cfg.Root(), p); err == nil {
				name = rel
			}
			stamp := faintStyle.Render(time.Now().Format(time.TimeOnly))

			report, err := uc.CheckFile(ctx, p)
			switch {
			case err != nil:
				fmt.Fprintf(out, "%s %s %s: %v\n", stamp, failStyle.Render("error"), name, err)
			case report.Success && report.TotalIssues() == 0:
				fmt.Fprintf(out, "%s %s %s\n", stamp, passStyle.Render("ok"), name)
			default:
				label := passStyle.Render("ok")
				if !report.Success {
					label = failStyle.Render("fail")
				}
				fmt.Fprintf(out, "%s %s %s: %s\n", stamp, label, name, pluralize(report.TotalIssues(), "issue"))
				for _, is := range report.Issues {
					fmt.Fprintf(out, "    %s:%d %s [%s %s] %s\n", name, is.Line, is.Severity, is.Checker, is.Code, is.Message)
				}
			}
		}
	})
}
