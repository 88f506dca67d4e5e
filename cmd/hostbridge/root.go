package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/caffeineduck/hostbridge/codec"
	"github.com/caffeineduck/hostbridge/config"
	"github.com/caffeineduck/hostbridge/driver/jsdelegate"
	"github.com/caffeineduck/hostbridge/driver/luadelegate"
	"github.com/caffeineduck/hostbridge/executor"
	"github.com/caffeineduck/hostbridge/registry"
	"github.com/caffeineduck/hostbridge/sandbox"
	"github.com/caffeineduck/hostbridge/stack"
)

var rootCmd = &cobra.Command{
	Use:   "hostbridge",
	Short: "Run sandboxed modules against host capabilities",
	Long: `hostbridge - run deterministic modules that reach the outside world
only through a capability bridge.

Scripts (js, lua) and WebAssembly guests run as a caller address. They
can fetch over HTTP from allowed hosts, sign and verify, draw VRF
randomness, use an ephemeral cache and write tagged logs. Drivers are
resolved by name from the registry at call time.

Configuration comes from HOSTBRIDGE_* environment variables; flags
override them.`,
	SilenceUsage: true,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringP("lang", "l", "", "Script language: js, lua (default: auto-detect, then HOSTBRIDGE_SCRIPT_LANG)")
	flags.String("log-level", "", "Host log level (default: HOSTBRIDGE_LOG_LEVEL or info)")
	flags.String("log-format", "", "Host log format: text, json")
	flags.String("manifest", "", "Drivers manifest (YAML) merged over the builtin drivers")
	flags.StringSlice("allow-host", nil, "Allow HTTP to host (repeatable, * allows any)")
	flags.Duration("timeout", 0, "Invocation timeout (default: HOSTBRIDGE_INVOCATION_TIMEOUT or 30s)")
	flags.String("caller", "cli", "Label the caller address is derived from")
}

// loadConfig reads the environment and applies persistent flag overrides.
func loadConfig(cmd *cobra.Command) (config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return config.Config{}, err
	}

	flags := cmd.Flags()
	if v, _ := flags.GetString("log-level"); v != "" {
		cfg.LogLevel = v
	}
	if v, _ := flags.GetString("log-format"); v != "" {
		cfg.LogFormat = v
	}
	if v, _ := flags.GetString("manifest"); v != "" {
		cfg.Manifest = v
	}
	if v, _ := flags.GetStringSlice("allow-host"); len(v) > 0 {
		cfg.AllowedHosts = v
	}
	if v, _ := flags.GetDuration("timeout"); v > 0 {
		cfg.InvocationTimeout = v
	}
	return cfg, cfg.Validate()
}

func loadStack(cmd *cobra.Command) (*stack.Stack, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	return newStack(cmd, cfg)
}

func newStack(cmd *cobra.Command, cfg config.Config) (*stack.Stack, error) {
	return stack.New(cmd.Context(), cfg, cmd.ErrOrStderr())
}

func callerAddress(cmd *cobra.Command) registry.Address {
	label, _ := cmd.Flags().GetString("caller")
	return registry.AddressFor(label)
}

func modeFor(tx bool) executor.Mode {
	if tx {
		return executor.ModeTransaction
	}
	return executor.ModeQuery
}

// driverFor picks the script driver name for an explicit language, the
// file extension, or the configured default.
func driverFor(lang, filename, fallback string) (string, error) {
	if lang == "" && filename != "" {
		switch strings.ToLower(filepath.Ext(filename)) {
		case ".js", ".mjs":
			lang = config.LangJS
		case ".lua":
			lang = config.LangLua
		}
	}
	if lang == "" {
		lang = fallback
	}

	switch strings.ToLower(lang) {
	case "js", "javascript":
		return jsdelegate.Name, nil
	case "lua":
		return luadelegate.Name, nil
	default:
		return "", fmt.Errorf("unknown language %q: use js or lua", lang)
	}
}

// readSource takes code from the flag, then the file argument, then stdin.
func readSource(cmd *cobra.Command, code string, args []string) (source, filename string, err error) {
	switch {
	case code != "":
		return code, "", nil
	case len(args) > 0:
		data, err := os.ReadFile(args[0])
		if err != nil {
			return "", "", err
		}
		return string(data), args[0], nil
	default:
		data, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return "", "", fmt.Errorf("read stdin: %w", err)
		}
		return string(data), "", nil
	}
}

func formatValue(v codec.Value) string {
	switch v.Kind() {
	case codec.KindString:
		s, _ := v.AsString()
		return s
	case codec.KindBytes:
		return v.String()
	default:
		return "undefined"
	}
}

func parseMemoryLimit(s string) uint32 {
	switch strings.ToLower(s) {
	case "1mb":
		return sandbox.MemoryLimit1MB
	case "16mb":
		return sandbox.MemoryLimit16MB
	case "64mb":
		return sandbox.MemoryLimit64MB
	default:
		return 0
	}
}
