package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/caffeineduck/hostbridge/executor"
)

var runCmd = &cobra.Command{
	Use:   "run module.wasm",
	Short: "Run a WebAssembly guest against the bridge",
	Long: `Instantiate a WebAssembly module and call one of its exports.

The guest imports the bridge from the "ext" module (log,
is_in_transaction, cache_set, cache_get). The export must take no
arguments and return an i32, which is printed.`,
	Args: cobra.ExactArgs(1),
	RunE: runRun,
}

func init() {
	runCmd.Flags().String("export", "run", "Exported function to call")
	runCmd.Flags().Bool("tx", false, "Run as a transaction")
	runCmd.Flags().String("memory", "", "Memory limit: 1mb, 16mb, 64mb")
	rootCmd.AddCommand(runCmd)
}

func runRun(cmd *cobra.Command, args []string) error {
	export, _ := cmd.Flags().GetString("export")
	tx, _ := cmd.Flags().GetBool("tx")
	memory, _ := cmd.Flags().GetString("memory")

	wasm, err := os.ReadFile(args[0])
	if err != nil {
		return err
	}

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if pages := parseMemoryLimit(memory); pages > 0 {
		cfg.WasmMemoryPages = pages
	}
	s, err := newStack(cmd, cfg)
	if err != nil {
		return err
	}
	defer s.Close()

	var result int32
	err = s.Host.Run(cmd.Context(), callerAddress(cmd), modeFor(tx), func(ctx context.Context, env *executor.Env) error {
		var err error
		result, err = s.Sandbox.Call(ctx, env, wasm, export)
		return err
	})
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), result)
	return nil
}
