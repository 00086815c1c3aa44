/*
Copyright 2022 The l7mp/stunner team.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package main

import (
	"context"
	"errors"
	goflag "flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/go-logr/logr"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/zap/zapcore"
	"sigs.k8s.io/controller-runtime/pkg/log/zap"

	"github.com/l7mp/fixpoint/examples"
	"github.com/l7mp/fixpoint/internal/buildinfo"
	"github.com/l7mp/fixpoint/pkg/api/v1alpha1"
	"github.com/l7mp/fixpoint/pkg/evaluator"
	"github.com/l7mp/fixpoint/pkg/program"
	"github.com/l7mp/fixpoint/pkg/relation"
	"github.com/l7mp/fixpoint/pkg/report"
	"github.com/l7mp/fixpoint/pkg/visualize"
)

// Set at link time with -ldflags "-X main.version=...".
var (
	version    string
	commitHash string
	buildDate  string
)

const (
	exitError          = 1
	exitConfiguration  = 2
	exitNonTermination = 3
)

type options struct {
	file          string
	example       string
	params        []string
	relations     []string
	maxIterations int
	parallel      bool
	output        string
	metrics       bool
	format        string
}

func main() {
	zapOpts := zap.Options{
		Development:     true,
		DestWriter:      os.Stderr,
		StacktraceLevel: zapcore.Level(3),
		TimeEncoder:     zapcore.RFC3339NanoTimeEncoder,
	}
	zapOpts.BindFlags(goflag.CommandLine)

	var logger logr.Logger
	opts := &options{}

	root := &cobra.Command{
		Use:           "fixpoint",
		Short:         "Evaluate Datalog programs to their least fixpoint",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			logger = zap.New(zap.UseFlagOptions(&zapOpts)).WithName("fixpoint")
		},
	}
	root.PersistentFlags().AddGoFlagSet(goflag.CommandLine)

	addSourceFlags := func(fs *pflag.FlagSet) {
		fs.StringVarP(&opts.file, "file", "f", "", "program file (YAML or JSON), - for stdin")
		fs.StringVar(&opts.example, "example", "", "name of a built-in example program")
		fs.StringArrayVar(&opts.params, "param", nil, "override a program parameter, as name=value")
	}

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Evaluate a program and print the derived relations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runProgram(cmd.Context(), cmd.OutOrStdout(), cmd.ErrOrStderr(), opts, logger)
		},
	}
	addSourceFlags(runCmd.Flags())
	runCmd.Flags().StringSliceVarP(&opts.relations, "relation", "r", nil,
		"relations to print, all if empty")
	runCmd.Flags().IntVar(&opts.maxIterations, "max-iterations", evaluator.DefaultMaxIterations,
		"maximum number of rounds per stratum")
	runCmd.Flags().BoolVar(&opts.parallel, "parallel", false, "evaluate rules concurrently")
	runCmd.Flags().StringVarP(&opts.output, "output", "o", "table", "output format: table, json or yaml")
	runCmd.Flags().BoolVar(&opts.metrics, "metrics", false, "print evaluation metrics to stderr")

	validateCmd := &cobra.Command{
		Use:   "validate",
		Short: "Check a program and print its strata and rule plans",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := compileProgram(opts, logger)
			if err != nil {
				return err
			}
			_, err = fmt.Fprint(cmd.OutOrStdout(), p.Describe())
			return err
		},
	}
	addSourceFlags(validateCmd.Flags())

	graphCmd := &cobra.Command{
		Use:   "graph",
		Short: "Render the precedence graph of a program",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			gen, err := visualize.NewGenerator(opts.format)
			if err != nil {
				return err
			}
			p, err := compileProgram(opts, logger)
			if err != nil {
				return err
			}
			_, err = fmt.Fprint(cmd.OutOrStdout(), gen.Generate(visualize.BuildGraph(p)))
			return err
		},
	}
	addSourceFlags(graphCmd.Flags())
	graphCmd.Flags().StringVar(&opts.format, "format", "dot", "diagram format: dot, mermaid or markdown")

	examplesCmd := &cobra.Command{
		Use:   "examples [name]",
		Short: "List the built-in example programs or print one",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				for _, n := range examples.Names() {
					fmt.Fprintln(cmd.OutOrStdout(), n) //nolint:errcheck
				}
				return nil
			}
			data, err := examples.Source(args[0])
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(data)
			return err
		},
	}

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			info := buildinfo.New(version, commitHash, buildDate)
			fmt.Fprintf(cmd.OutOrStdout(), "fixpoint %s\n", info.String()) //nolint:errcheck
		},
	}

	root.AddCommand(runCmd, validateCmd, graphCmd, examplesCmd, versionCmd)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err) //nolint:errcheck
		cancel()
		os.Exit(exitCode(err))
	}
}

func exitCode(err error) int {
	switch {
	case errors.Is(err, evaluator.ErrNonTermination):
		return exitNonTermination
	case errors.Is(err, relation.ErrConfiguration):
		return exitConfiguration
	}
	return exitError
}

func loadProgram(opts *options) (*v1alpha1.Program, error) {
	switch {
	case opts.file != "" && opts.example != "":
		return nil, errors.New("--file and --example are mutually exclusive")
	case opts.example != "":
		return examples.Load(opts.example)
	case opts.file == "-":
		return program.Load(os.Stdin)
	case opts.file != "":
		return program.LoadFile(opts.file)
	}
	return nil, errors.New("no program given, use --file or --example")
}

// parseParams parses name=value overrides. Values that parse as integers are integers, @unit is
// the unit value, everything else is a string.
func parseParams(params []string) (map[string]relation.Value, error) {
	ret := map[string]relation.Value{}
	for _, p := range params {
		name, value, ok := strings.Cut(p, "=")
		if !ok || name == "" {
			return nil, relation.NewConfigurationError("invalid parameter %q, expected name=value", p)
		}
		switch i, err := strconv.ParseInt(value, 10, 64); {
		case err == nil:
			ret[name] = relation.NewInt(i)
		case value == "@unit":
			ret[name] = relation.Unit()
		default:
			ret[name] = relation.NewString(value)
		}
	}
	return ret, nil
}

func compileProgram(opts *options, logger logr.Logger) (*program.Program, error) {
	spec, err := loadProgram(opts)
	if err != nil {
		return nil, err
	}
	params, err := parseParams(opts.params)
	if err != nil {
		return nil, err
	}
	return program.Compile(spec, program.Options{Params: params, Logger: logger})
}

func runProgram(ctx context.Context, out, errOut io.Writer, opts *options, logger logr.Logger) error {
	format, err := report.ParseFormat(opts.output)
	if err != nil {
		return err
	}

	p, err := compileProgram(opts, logger)
	if err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	e, err := evaluator.New(p, nil, evaluator.Options{
		Logger:        logger,
		MaxIterations: opts.maxIterations,
		Parallel:      opts.parallel,
		Registerer:    reg,
	})
	if err != nil {
		return err
	}

	res, runErr := e.Run(ctx)

	if opts.metrics {
		if err := writeMetrics(errOut, reg); err != nil {
			return err
		}
	}

	if runErr != nil {
		return runErr
	}

	for _, s := range e.Stats() {
		logger.V(1).Info("stratum stats", "stratum", s.Stratum, "relations", s.Relations,
			"iterations", s.Iterations, "productive-rounds", s.ProductiveRounds,
			"tuples", s.Derived, "duration", s.Duration.String())
	}

	return report.Write(out, res, opts.relations, format)
}

func writeMetrics(w io.Writer, reg *prometheus.Registry) error {
	families, err := reg.Gather()
	if err != nil {
		return fmt.Errorf("failed to gather metrics: %w", err)
	}
	for _, mf := range families {
		if _, err := expfmt.MetricFamilyToText(w, mf); err != nil {
			return fmt.Errorf("failed to write metrics: %w", err)
		}
	}
	return nil
}
