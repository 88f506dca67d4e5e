package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/caffeineduck/hostbridge/codec"
	"github.com/caffeineduck/hostbridge/executor"
	"github.com/caffeineduck/hostbridge/logging"
	"github.com/caffeineduck/hostbridge/registry"
	"github.com/caffeineduck/hostbridge/scripteval"
)

var evalCmd = &cobra.Command{
	Use:   "eval [file]",
	Short: "Evaluate a script through the script driver",
	Long: `Evaluate JavaScript or Lua as a delegate call to the script driver.

Code can be provided via:
  - File argument: hostbridge eval script.lua
  - Inline flag: hostbridge eval -c '"ok"'
  - Stdin: echo 'return 1 + 1' | hostbridge eval --lang lua

The script sees its arguments as scriptArgs and the capability bridge as
host. The result value is printed. With --tx the invocation runs as a
transaction and storage writes are committed.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runEval,
}

func init() {
	evalCmd.Flags().StringP("code", "c", "", "Code to evaluate")
	evalCmd.Flags().StringArray("arg", nil, "Script argument (repeatable)")
	evalCmd.Flags().Bool("tx", false, "Run as a transaction")
	rootCmd.AddCommand(evalCmd)
}

func runEval(cmd *cobra.Command, args []string) error {
	code, _ := cmd.Flags().GetString("code")
	lang, _ := cmd.Flags().GetString("lang")
	scriptArgs, _ := cmd.Flags().GetStringArray("arg")
	tx, _ := cmd.Flags().GetBool("tx")

	source, filename, err := readSource(cmd, code, args)
	if err != nil {
		return err
	}
	if source == "" {
		return cmd.Help()
	}

	s, err := loadStack(cmd)
	if err != nil {
		return err
	}
	defer s.Close()

	driver, err := driverFor(lang, filename, s.Config.ScriptLang)
	if err != nil {
		return err
	}

	v, err := evaluate(cmd.Context(), s.Host, callerAddress(cmd), modeFor(tx), driver, source, scriptArgs)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), formatValue(v))
	return nil
}

// evaluate runs one script invocation inside an "eval" log span.
func evaluate(ctx context.Context, h *executor.Host, caller registry.Address, mode executor.Mode, driver, source string, args []string) (codec.Value, error) {
	var out codec.Value
	err := h.Run(ctx, caller, mode, func(ctx context.Context, env *executor.Env) error {
		span := logging.Enter(ctx, env, "eval")
		defer span.Release(ctx)

		v, err := scripteval.EvalWith(ctx, env, driver, source, args)
		if err != nil {
			return logging.LogErr(ctx, env, err, driver)
		}
		out = v
		return nil
	})
	return out, err
}
