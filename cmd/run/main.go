package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/zap"
	"golang.org/x/term"

	"github.com/wippyai/wasm-interp/runtime"
)

type options struct {
	funcName    string
	args        []string
	list        bool
	interactive bool
	configPath  string
	verbose     bool
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &options{}
	cmd := &cobra.Command{
		Use:   "run <file.wasm>",
		Short: "Run a WebAssembly module",
		Long: `Run a WebAssembly MVP module in the interpreter.

  Without --func, the first of _start, main or run is called, or the only
  exported function. Arguments are parsed against the parameter types:
  integers accept 0x prefixes, floats use Go syntax.`,
		Example: `  run add.wasm --func add --arg 2 --arg 3
  run add.wasm --list
  run add.wasm -i`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			err := run(cmd.Context(), cmd.OutOrStdout(), args[0], opts)
			if err != nil {
				fmt.Fprintf(cmd.ErrOrStderr(), "Error: %v\n", err)
			}
			return err
		},
	}

	bindFlags(cmd.Flags(), opts)
	return cmd
}

func bindFlags(flags *pflag.FlagSet, opts *options) {
	flags.StringVar(&opts.funcName, "func", "", "exported function to call")
	flags.StringArrayVar(&opts.args, "arg", nil, "argument value, repeat once per parameter")
	flags.BoolVar(&opts.list, "list", false, "list exports and exit")
	flags.BoolVarP(&opts.interactive, "interactive", "i", false, "browse and call exports in a terminal UI")
	flags.StringVar(&opts.configPath, "config", "", "TOML config file")
	flags.BoolVarP(&opts.verbose, "verbose", "v", false, "enable debug logging")
}

func run(ctx context.Context, out io.Writer, path string, opts *options) error {
	cfg, err := runtime.LoadConfig(opts.configPath, nil)
	if err != nil {
		return err
	}
	rtOpts := []runtime.Option{runtime.WithConfig(cfg)}
	if opts.verbose {
		logger, err := zap.NewDevelopment()
		if err != nil {
			return err
		}
		rtOpts = append(rtOpts, runtime.WithLogger(logger))
	}
	rt, err := runtime.New(rtOpts...)
	if err != nil {
		return err
	}
	defer func() { _ = rt.Logger().Sync() }()

	mod, err := rt.LoadFile(ctx, path)
	if err != nil {
		return err
	}

	if opts.interactive {
		if !term.IsTerminal(int(os.Stdout.Fd())) {
			return fmt.Errorf("interactive mode needs a terminal")
		}
		return runInteractive(ctx, path, mod)
	}

	exports := mod.Exports()
	fmt.Fprintf(out, "Module: %s\n", path)
	fmt.Fprintf(out, "Exports: %d\n", len(exports))
	for _, e := range exports {
		if e.Type != "" {
			fmt.Fprintf(out, "  %-8s %s %s\n", e.Kind, e.Name, e.Type)
		} else {
			fmt.Fprintf(out, "  %-8s %s\n", e.Kind, e.Name)
		}
	}
	if opts.list {
		return nil
	}

	if err := rt.Link(ctx, mod.Name()); err != nil {
		return err
	}

	export, ok := pickFunc(exports, opts.funcName)
	if !ok {
		if opts.funcName != "" {
			return fmt.Errorf("no exported function %q", opts.funcName)
		}
		fmt.Fprintf(out, "\nNo function specified and no entry point found.\n")
		fmt.Fprintf(out, "Use --func to specify a function to call.\n")
		return nil
	}

	raw, err := parseArgs(export, opts.args)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "\nCalling %s(%s)\n", export.Name, strings.Join(opts.args, ", "))
	res, err := mod.CallRaw(ctx, export.Name, raw...)
	if err != nil {
		return fmt.Errorf("call %s: %w", export.Name, err)
	}
	fmt.Fprintf(out, "Result: %s\n", formatResults(export, res))
	return nil
}

// pickFunc finds the named function export, or an entry point when name
// is empty.
func pickFunc(exports []runtime.ExportInfo, name string) (runtime.ExportInfo, bool) {
	funcs := make(map[string]runtime.ExportInfo)
	var order []runtime.ExportInfo
	for _, e := range exports {
		if e.Kind == "func" {
			funcs[e.Name] = e
			order = append(order, e)
		}
	}
	if name != "" {
		e, ok := funcs[name]
		return e, ok
	}
	for _, entry := range []string{"_start", "main", "run"} {
		if e, ok := funcs[entry]; ok {
			return e, true
		}
	}
	if len(order) == 1 {
		return order[0], true
	}
	return runtime.ExportInfo{}, false
}

func parseArgs(export runtime.ExportInfo, args []string) ([]uint64, error) {
	if len(args) != len(export.Params) {
		return nil, fmt.Errorf("%s takes %d arguments, got %d", export.Name, len(export.Params), len(args))
	}
	raw := make([]uint64, len(args))
	for i, a := range args {
		v, err := runtime.ParseValue(export.Params[i], a)
		if err != nil {
			return nil, fmt.Errorf("argument %d: %w", i, err)
		}
		raw[i] = v
	}
	return raw, nil
}

func formatResults(export runtime.ExportInfo, res []uint64) string {
	if len(res) == 0 {
		return "(none)"
	}
	s := make([]string, len(res))
	for i, v := range res {
		s[i] = runtime.Format(export.Result[i], v)
	}
	return strings.Join(s, ", ")
}
