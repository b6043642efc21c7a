/*
 * SPDX-License-Identifier: AGPL-3.0-or-later
 * Copyright 2021 Kopano and its licensors
 */

package common

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// DefaultDotEnvFile is read when no config file was given and it exists.
const DefaultDotEnvFile = ".env"

var (
	DefaultEnvConfigFile = os.Getenv("RELAYD_DEFAULT_ENV_CONFIG")
)

// EnvOr returns the value of the environment variable name, or fallback when
// it is unset or empty.
func EnvOr(name, fallback string) string {
	if value := os.Getenv(name); value != "" {
		return value
	}
	return fallback
}

// ApplyFlagsFromEnvFile sets flags of cmd which were not set explicitly from
// the env config file. mapping maps flag names to variable names, an empty
// variable name is derived from the flag name. A nil mapping covers all flags.
func ApplyFlagsFromEnvFile(cmd *cobra.Command, mapping map[string]string) error {
	envConfigFiles, err := envConfigFiles(cmd)
	if err != nil || len(envConfigFiles) == 0 {
		return err
	}

	envConfig, err := godotenv.Read(envConfigFiles...)
	if err != nil {
		return fmt.Errorf("config read error: %w", err)
	}

	if mapping == nil {
		mapping = make(map[string]string)
		cmd.Flags().VisitAll(func(flag *pflag.Flag) {
			if flag.Changed || flag.Name == "help" || flag.Name == "config" {
				// Ignore flags which are set already or are on black list.
				return
			}
			mapping[flag.Name] = "" // Add without value, will auto generate below.
		})
	}

	// Support setting values from config file if they are not set explicitly via flags.
	for flagName, envName := range mapping {
		flag := cmd.Flags().Lookup(flagName)
		if flag == nil {
			return fmt.Errorf("unknown flag in config mapping: %s", flagName)
		}
		if flag.Changed {
			continue
		}

		sliceValue, isSlice := flag.Value.(pflag.SliceValue)

		// Auto generate env name from flag name if not set.
		if envName == "" {
			envName = strings.ToUpper(strings.ReplaceAll(flagName, "-", "_"))
			if isSlice {
				envName += "S"
			}
		}
		if v, ok := envConfig[envName]; ok {
			if isSlice {
				err = sliceValue.Replace(strings.Fields(v))
			} else {
				err = flag.Value.Set(v)
			}
			if err != nil {
				return fmt.Errorf("failed to apply %v config: %w", envName, err)
			}
		}
	}

	return nil
}

// envConfigFiles returns the absolute paths of the env files to read. The
// config value may list several files separated by colon.
func envConfigFiles(cmd *cobra.Command) ([]string, error) {
	value := DefaultEnvConfigFile
	explicit := value != ""
	if flag := cmd.Flags().Lookup("config"); flag != nil && flag.Changed {
		value = flag.Value.String()
		explicit = true
	}
	if value == "" {
		if _, err := os.Stat(DefaultDotEnvFile); err != nil {
			return nil, nil
		}
		value = DefaultDotEnvFile
	}

	var files []string
	for _, name := range strings.Split(value, ":") {
		if name == "" {
			continue
		}
		path, err := filepath.Abs(name)
		if err != nil {
			return nil, fmt.Errorf("invalid config path: %w", err)
		}
		if _, err = os.Stat(path); err != nil {
			if !explicit && errors.Is(err, os.ErrNotExist) {
				continue
			}
			return nil, fmt.Errorf("config read error: %w", err)
		}
		files = append(files, path)
	}

	return files, nil
}
