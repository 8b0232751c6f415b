package main

import (
	"fmt"
	"os"

	"clinicsync/internal/config"
	"clinicsync/internal/utils"

	"github.com/spf13/cobra"
)

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect the configuration",
	}
	cmd.AddCommand(newConfigSampleCmd())
	cmd.AddCommand(newConfigShowCmd())
	return cmd
}

func newConfigSampleCmd() *cobra.Command {
	var write bool

	cmd := &cobra.Command{
		Use:   "sample",
		Short: "Print the sample configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !write {
				_, err := os.Stdout.Write(config.Sample())
				return err
			}

			path, err := config.GetConfigPath()
			if err != nil {
				return err
			}
			if _, err := os.Stat(path); err == nil {
				if !utils.PromptYesNo(fmt.Sprintf("%s exists. Overwrite?", path)) {
					return nil
				}
			}
			if err := config.WriteSample(path); err != nil {
				return err
			}
			fmt.Printf("✓ Sample config written to %s\n", path)
			return nil
		},
	}

	cmd.Flags().BoolVar(&write, "write", false, "Write the sample to the config path instead of printing it")
	return cmd
}

func newConfigShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration (access key hidden)",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := *config.GetConfig()
			if cfg.Remote.AccessKey != "" {
				cfg.Remote.AccessKey = "********"
			}
			path, _ := config.GetConfigPath()
			fmt.Printf("# %s\n", path)
			return utils.OutputYAML(cfg)
		},
	}
}
