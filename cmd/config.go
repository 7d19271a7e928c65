package cmd

import (
	"errors"
	"fmt"
	"os"

	"github.com/creasty/defaults"
	"gopkg.in/yaml.v3"

	"github.com/solwatch/soltrail/pkg/engine"
)

// loadConfigFromFile reads the engine configuration. A missing default
// config file is not an error so one-shot commands can run on defaults
// and flags alone; environment variables in the file are expanded.
func loadConfigFromFile(file string) (*engine.Config, error) {
	explicit := file != ""
	if !explicit {
		file = "./config.yaml"
	}

	config := &engine.Config{}

	if err := defaults.Set(config); err != nil {
		return nil, fmt.Errorf("failed to set defaults: %w", err)
	}

	yamlFile, err := os.ReadFile(file) //nolint:gosec // User-provided config file path
	if err != nil {
		if !explicit && errors.Is(err, os.ErrNotExist) {
			return config, nil
		}

		return nil, err
	}

	expanded := os.ExpandEnv(string(yamlFile))

	if err := yaml.Unmarshal([]byte(expanded), config); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	return config, nil
}
