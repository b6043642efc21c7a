/*
 * SPDX-License-Identifier: AGPL-3.0-or-later
 * Copyright 2021 Kopano and its licensors
 */

package send

import (
	"fmt"
	"os"
	"time"

	env "github.com/Netflix/go-env"
)

// Config holds the defaults of the send command which can be preset in the
// environment.
type Config struct {
	Endpoint string        `env:"CONTACTRELAY_ENDPOINT,default=http://localhost:5000/send-message"`
	Name     string        `env:"CONTACTRELAY_NAME"`
	Email    string        `env:"CONTACTRELAY_EMAIL"`
	Timeout  time.Duration `env:"CONTACTRELAY_TIMEOUT"`
}

func loadConfig(es env.EnvSet) (*Config, error) {
	cfg := &Config{}
	if err := env.Unmarshal(es, cfg); err != nil {
		return nil, fmt.Errorf("invalid send environment: %w", err)
	}
	return cfg, nil
}

func loadConfigFromEnviron() (*Config, error) {
	es, err := env.EnvironToEnvSet(os.Environ())
	if err != nil {
		return nil, fmt.Errorf("failed to read environment: %w", err)
	}
	return loadConfig(es)
}
