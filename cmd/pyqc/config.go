package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/ludo-technologies/pyqc/service"
)

func configCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect the effective configuration",
	}

	show := &cobra.Command{
		Use:   "show [path]",
		Short: "Print the configuration after defaults, file and PYQC_* variables",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, firstArg(args), service.ConfigOverrides{})
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
				return service.WriteJSON(out, cfg)
			}

			source := cfg.Source()
			if source == "" {
				source = "built-in defaults"
			}
			fmt.Fprintf(out, "# source: %s\n# root:   %s\n", source, cfg.Root())
			data, err := yaml.Marshal(cfg)
			if err != nil {
				return fmt.Errorf("failed to encode configuration: %w", err)
			}
			_, err = out.Write(data)
			return err
		},
	}
	show.Flags().Bool("json", false, "Print as JSON")
	addConfigFlags(show)

	cmd.AddCommand(show)
	return cmd
}
