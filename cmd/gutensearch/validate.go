package main

import (
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/kadirpekel/gutensearch/pkg/config"
)

// ValidateCmd validates a configuration file.
type ValidateCmd struct {
	Config string `arg:"" name:"config" help:"Configuration file path." placeholder:"PATH"`

	PrintConfig bool `short:"p" name:"print-config" help:"Print the expanded configuration (defaults applied, env vars resolved)."`
}

func (c *ValidateCmd) Run(_ *CLI) error {
	cfg, err := config.Load(c.Config)
	if err != nil {
		return fmt.Errorf("%s is invalid: %w", c.Config, err)
	}

	if c.PrintConfig {
		out, err := yaml.Marshal(cfg)
		if err != nil {
			return fmt.Errorf("rendering configuration: %w", err)
		}
		fmt.Print(string(out))
		return nil
	}

	fmt.Printf("%s is valid\n", c.Config)
	fmt.Printf("  cluster members: %d\n", len(cfg.Cluster.MemberList()))
	fmt.Printf("  datalake:        %s (%s)\n", cfg.Datalake.Path, cfg.Datalake.Type)
	fmt.Printf("  broker:          %s\n", cfg.ActiveMQ.BrokerAddr())
	return nil
}
