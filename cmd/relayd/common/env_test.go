/*
 * SPDX-License-Identifier: AGPL-3.0-or-later
 * Copyright 2021 Kopano and its licensors
 */

package common

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testCommand() *cobra.Command {
	cmd := &cobra.Command{Use: "test"}
	cmd.Flags().Int("port", 5000, "")
	cmd.Flags().String("email-user", "", "")
	cmd.Flags().String("email-pass", "", "")
	cmd.Flags().StringArray("allow-origin", nil, "")
	cmd.Flags().String("config", "", "")
	return cmd
}

func writeEnvFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "relayd.env")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func withEnvConfigFile(t *testing.T, value string) {
	t.Helper()
	old := DefaultEnvConfigFile
	DefaultEnvConfigFile = value
	t.Cleanup(func() {
		DefaultEnvConfigFile = old
	})
}

func TestApplyFlagsFromEnvFileAutoMapping(t *testing.T) {
	withEnvConfigFile(t, writeEnvFile(t, `
PORT=8080
EMAIL_USER=inbox@example.com
EMAIL_PASS=from-file
ALLOW_ORIGINS="https://a.example https://b.example"
`))

	cmd := testCommand()
	require.NoError(t, cmd.Flags().Parse([]string{"--email-pass", "from-flag"}))
	require.NoError(t, ApplyFlagsFromEnvFile(cmd, nil))

	port, _ := cmd.Flags().GetInt("port")
	user, _ := cmd.Flags().GetString("email-user")
	pass, _ := cmd.Flags().GetString("email-pass")
	origins, _ := cmd.Flags().GetStringArray("allow-origin")

	assert.Equal(t, 8080, port)
	assert.Equal(t, "inbox@example.com", user)
	assert.Equal(t, "from-flag", pass)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, origins)
}

func TestApplyFlagsFromEnvFileExplicitMapping(t *testing.T) {
	withEnvConfigFile(t, writeEnvFile(t, "STATE=/run/relayd\nPORT=1\n"))

	cmd := testCommand()
	cmd.Flags().String("state-path", "", "")
	require.NoError(t, ApplyFlagsFromEnvFile(cmd, map[string]string{
		"state-path": "STATE",
	}))

	statePath, _ := cmd.Flags().GetString("state-path")
	port, _ := cmd.Flags().GetInt("port")
	assert.Equal(t, "/run/relayd", statePath)
	assert.Equal(t, 5000, port)

	assert.Error(t, ApplyFlagsFromEnvFile(cmd, map[string]string{
		"no-such-flag": "",
	}))
}

func TestApplyFlagsFromEnvFileInvalidValue(t *testing.T) {
	withEnvConfigFile(t, writeEnvFile(t, "PORT=eighty\n"))

	assert.Error(t, ApplyFlagsFromEnvFile(testCommand(), nil))
}

func TestEnvConfigFiles(t *testing.T) {
	t.Run("missing explicit file", func(t *testing.T) {
		withEnvConfigFile(t, "")
		cmd := testCommand()
		require.NoError(t, cmd.Flags().Parse([]string{"--config", filepath.Join(t.TempDir(), "missing.env")}))

		_, err := envConfigFiles(cmd)
		assert.Error(t, err)
	})

	t.Run("list", func(t *testing.T) {
		first := writeEnvFile(t, "PORT=1\n")
		second := writeEnvFile(t, "PORT=2\n")
		withEnvConfigFile(t, first+":"+second)

		files, err := envConfigFiles(testCommand())
		require.NoError(t, err)
		assert.Equal(t, []string{first, second}, files)
	})

	t.Run("dotenv in working directory", func(t *testing.T) {
		withEnvConfigFile(t, "")
		dir := t.TempDir()
		wd, err := os.Getwd()
		require.NoError(t, err)
		require.NoError(t, os.Chdir(dir))
		t.Cleanup(func() { _ = os.Chdir(wd) })

		files, err := envConfigFiles(testCommand())
		require.NoError(t, err)
		assert.Empty(t, files)

		require.NoError(t, os.WriteFile(filepath.Join(dir, DefaultDotEnvFile), []byte("PORT=1\n"), 0o600))
		files, err = envConfigFiles(testCommand())
		require.NoError(t, err)
		require.Len(t, files, 1)
		assert.Equal(t, DefaultDotEnvFile, filepath.Base(files[0]))
	})
}

func TestEnvOr(t *testing.T) {
	t.Setenv("RELAYD_TEST_VALUE", "set")
	assert.Equal(t, "set", EnvOr("RELAYD_TEST_VALUE", "fallback"))

	t.Setenv("RELAYD_TEST_VALUE", "")
	assert.Equal(t, "fallback", EnvOr("RELAYD_TEST_VALUE", "fallback"))
}

func TestNewLogger(t *testing.T) {
	logger, err := NewLogger(true, "debug")
	require.NoError(t, err)
	assert.Equal(t, "debug", logger.GetLevel().String())

	_, err = NewLogger(false, "chatty")
	assert.Error(t, err)
}
