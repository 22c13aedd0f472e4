package main

import (
	"bytes"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/302ai/302-custom-mcp/pkg/config"
)

func TestVersionCommand(t *testing.T) {
	var out bytes.Buffer
	versionCmd.SetOut(&out)
	versionCmd.Run(versionCmd, nil)
	assert.Equal(t, "302ai-custom-mcp version 0.1.3\n", out.String())
}

func TestApplyFlagsOnlyChanged(t *testing.T) {
	cmd := &cobra.Command{Use: "test"}
	f := cmd.Flags()
	f.StringVar(&flagMode, "mode", config.DefaultMode, "")
	f.IntVar(&flagPort, "port", config.DefaultPort, "")
	f.DurationVar(&flagUpstreamTimeout, "upstream-timeout", config.DefaultUpstreamTimeout, "")
	f.StringSliceVar(&flagAllowedOrigins, "allowed-origin", []string{"*"}, "")
	f.StringVar(&flagAPIKey, "302ai_api_key", "", "")
	require.NoError(t, cmd.ParseFlags([]string{
		"--mode", "rest",
		"--upstream-timeout", "3s",
		"--allowed-origin", "https://a.example",
		"--allowed-origin", "https://b.example",
		"--302ai_api_key", "K",
	}))

	cfg := config.Default()
	cfg.Port = 7000
	applyFlags(cmd, cfg)

	assert.Equal(t, "rest", cfg.Mode)
	assert.Equal(t, 7000, cfg.Port, "unset flag keeps the loaded value")
	assert.Equal(t, 3*time.Second, cfg.UpstreamTimeout)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.AllowedOrigins)
	assert.Equal(t, "K", cfg.APIKey)
}
