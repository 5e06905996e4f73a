package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

func newConfigCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Print the resolved configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, workDir, err := loadConfig()
			if err != nil {
				return err
			}
			for provider, key := range cfg.APIKeys {
				if key != "" {
					cfg.APIKeys[provider] = "***"
				}
			}
			out, err := yaml.Marshal(cfg)
			if err != nil {
				return err
			}
			fmt.Printf("# workspace: %s\n%s", workDir, out)
			return nil
		},
	}
}
