package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/su1ph3r/isolator/internal/ddmin"
	"github.com/su1ph3r/isolator/internal/oracle"
	"github.com/su1ph3r/isolator/internal/parser"
	"github.com/su1ph3r/isolator/internal/payloads"
	"github.com/su1ph3r/isolator/internal/reporter"
	"github.com/su1ph3r/isolator/pkg/types"
)

// searcher bundles the engine with the oracle it queries so payload probes
// go through the same retry policy as the search
type searcher struct {
	engine     *ddmin.Engine
	oracle     ddmin.Oracle
	decomposer ddmin.Decomposer
	mode       string
}

func newSearcher(o ddmin.Oracle, logger *zap.Logger) (*searcher, error) {
	d, err := ddmin.NewDecomposer(config.Minimize.Granularity)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrConfiguration, err)
	}
	if config.Scan.MaxRetries > 0 {
		o = ddmin.WithRetry(o, config.Scan.MaxRetries, config.Scan.RetryDelay, logger)
	}
	return &searcher{
		engine:     ddmin.NewEngine(o, d, ddmin.Options{Parallelism: config.Minimize.Parallelism}, logger),
		oracle:     o,
		decomposer: d,
		mode:       config.Minimize.Mode,
	}, nil
}

// search runs one minimization and converts it for the report
func (s *searcher) search(ctx context.Context, failing, passing string) (*types.Minimization, error) {
	res, err := s.engine.Run(ctx, s.mode, failing, passing)
	m := reporter.NewMinimization(res, failing, passing, err)
	return m, err
}

// probe classifies one payload as a whole
func (s *searcher) probe(ctx context.Context, payload string) ddmin.Outcome {
	cfg := ddmin.NewConfiguration(s.decomposer, s.decomposer.Decompose(payload, ddmin.SideFailing))
	return s.oracle.Evaluate(ctx, cfg)
}

// signalContext cancels on SIGINT/SIGTERM
func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		select {
		case <-sigChan:
			printWarning("Interrupted, finishing with a partial result...")
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(sigChan)
	}()

	return ctx, cancel
}

func boundaryInputs(cmd *cobra.Command) (string, string) {
	failing, _ := cmd.Flags().GetString("bug_triggering_input")
	passing, _ := cmd.Flags().GetString("non_triggering_input")
	return failing, passing
}

func runIsolate(cmd *cobra.Command, args []string) error {
	if configErr != nil {
		return configErr
	}
	updateConfigFromFlags(cmd)

	failing, passing := boundaryInputs(cmd)
	payloadsFile, _ := cmd.Flags().GetString("payloads_file")
	if failing == "" && payloadsFile == "" {
		return fmt.Errorf("%w: --bug_triggering_input or --payloads_file is required", types.ErrConfiguration)
	}

	if err := types.ValidateConfig(config, true); err != nil {
		return err
	}
	if failing != "" {
		if errs := types.NewConfigValidator().ValidateInputs(failing, passing, config.Minimize.MaxInputLength); errs.HasErrors() {
			return errs
		}
	}

	var payloadList []string
	if payloadsFile != "" {
		if err := types.ValidateInputFile(payloadsFile); err != nil {
			return err
		}
		var err error
		if payloadList, err = payloads.Load(payloadsFile); err != nil {
			return err
		}
	}

	logger, err := buildLogger(config.Log)
	if err != nil {
		return err
	}
	defer logger.Sync()

	location := config.Target.Location
	if location == "" && config.Target.OpenAPI != "" {
		location, err = parser.LookupLocation(config.Target.OpenAPI, config.Target.Method, config.Target.URL, config.Target.Parameter)
		if err != nil {
			return fmt.Errorf("failed to resolve parameter location: %w", err)
		}
		printInfo("Resolved %s location from %s: %s", config.Target.Parameter, config.Target.OpenAPI, location)
	}

	codes, err := types.ParseStatusCodes(config.Target.SuccessStatusCodes)
	if err != nil {
		return err
	}

	reqLog, err := oracle.NewRequestLogger(config.Log.RequestLog)
	if err != nil {
		return err
	}
	defer reqLog.Close()

	httpOracle, err := oracle.NewHTTPOracle(oracle.RequestSpec{
		URL:          config.Target.URL,
		Method:       config.Target.Method,
		Parameter:    config.Target.Parameter,
		Location:     location,
		SuccessCodes: codes,
	}, *config, reqLog, logger)
	if err != nil {
		return err
	}
	spec := httpOracle.Spec()

	s, err := newSearcher(httpOracle, logger)
	if err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()

	printBanner()
	printInfo("Target: %s %s", spec.Method, spec.URL)
	printInfo("Parameter: %s (%s), success codes: %s", spec.Parameter, spec.Location, spec.SuccessCodes)

	report := reporter.NewReport(config.Minimize.Mode, config.Minimize.Granularity)
	report.Target = &types.ReportTarget{
		URL:                spec.URL,
		Method:             spec.Method,
		Parameter:          spec.Parameter,
		Location:           spec.Location,
		SuccessStatusCodes: spec.SuccessCodes.String(),
	}

	curlOpts := reporter.CurlOptionsFromConfig(config)
	curl := func(payload string) string {
		req, err := httpOracle.BuildRequest(payload)
		if err != nil {
			return ""
		}
		return reporter.GenerateCurlCommandWithOptions(req, curlOpts)
	}

	var fatal error
	if failing != "" {
		printInfo("Starting delta debugging (%s, %s granularity)...", config.Minimize.Mode, config.Minimize.Granularity)
		m, err := s.search(ctx, failing, passing)
		if err == nil {
			m.Curl = curl(m.Minimal)
			printSuccess("Minimal input change to trigger the bug: %q", m.Minimal)
		} else {
			printWarning("Could not isolate the minimal input change")
			fatal = err
		}
		report.Primary = m
	}

	if len(payloadList) > 0 && ctx.Err() == nil {
		printInfo("Testing %d payloads from %s", len(payloadList), payloadsFile)
		report.Payloads = confirmPayloads(ctx, s, payloadList, passing, config.Minimize.MaxInputLength, curl)
	}

	reporter.Finalize(report)
	if err := writeReport(report); err != nil {
		return err
	}
	printInfo("%d HTTP requests sent", httpOracle.Requests())

	if fatal == nil && ctx.Err() != nil {
		fatal = ctx.Err()
	}
	return fatal
}

// confirmPayloads probes every payload once and minimizes each confirmed
// one against the passing input. Payloads over maxLength are confirmed but
// not minimized.
func confirmPayloads(ctx context.Context, s *searcher, list []string, passing string, maxLength int, curl func(string) string) []types.PayloadResult {
	results := make([]types.PayloadResult, 0, len(list))

	for _, payload := range list {
		if ctx.Err() != nil {
			break
		}

		out := s.probe(ctx, payload)
		result := types.PayloadResult{
			Payload: payload,
			Verdict: out.Verdict.String(),
			Detail:  out.Detail,
		}

		switch out.Verdict {
		case ddmin.Fail:
			printSuccess("Payload: %s - Triggers Bug: true", payload)
			if errs := types.NewConfigValidator().ValidatePayload(payload, maxLength); errs.HasErrors() {
				printWarning("    not minimized: payload %s", errs[0].Message)
				result.Detail = fmt.Sprintf("%s; not minimized: payload %s", out.Detail, errs[0].Message)
				break
			}
			m, err := s.search(ctx, payload, passing)
			if err == nil {
				m.Curl = curl(m.Minimal)
				printSuccess("    minimal: %q", m.Minimal)
			} else {
				printWarning("    minimization failed: %v", err)
			}
			result.Minimization = m
		case ddmin.Pass:
			printInfo("Payload: %s - Triggers Bug: false", payload)
		default:
			printWarning("Payload: %s - UNRESOLVED (%s)", payload, out.Detail)
		}

		results = append(results, result)
	}

	return results
}

func runExec(cmd *cobra.Command, args []string) error {
	if configErr != nil {
		return configErr
	}
	updateConfigFromFlags(cmd)

	failing, passing := boundaryInputs(cmd)
	if failing == "" {
		return fmt.Errorf("%w: --bug_triggering_input is required", types.ErrConfiguration)
	}
	if err := types.ValidateConfig(config, false); err != nil {
		return err
	}
	if errs := types.NewConfigValidator().ValidateInputs(failing, passing, config.Minimize.MaxInputLength); errs.HasErrors() {
		return errs
	}

	logger, err := buildLogger(config.Log)
	if err != nil {
		return err
	}
	defer logger.Sync()

	criterion, _ := cmd.Flags().GetString("criterion")
	pattern, _ := cmd.Flags().GetString("pattern")
	proc, err := oracle.NewProcessOracle(oracle.ProcessSpec{
		Command:   args,
		Criterion: criterion,
		Pattern:   pattern,
		Timeout:   config.Scan.Timeout,
	}, logger)
	if err != nil {
		return fmt.Errorf("%w: %v", types.ErrConfiguration, err)
	}

	ctx, cancel := signalContext()
	defer cancel()

	printBanner()
	printInfo("Command: %s", strings.Join(args, " "))
	printInfo("Criterion: %s", criterion)

	if err := proc.Calibrate(ctx, passing); err != nil {
		return err
	}

	s, err := newSearcher(proc, logger)
	if err != nil {
		return err
	}

	report := reporter.NewReport(config.Minimize.Mode, config.Minimize.Granularity)
	report.Command = args

	printInfo("Starting delta debugging (%s, %s granularity)...", config.Minimize.Mode, config.Minimize.Granularity)
	m, searchErr := s.search(ctx, failing, passing)
	if searchErr == nil {
		printSuccess("Minimal input change to trigger the bug: %q", m.Minimal)
	} else {
		printWarning("Could not isolate the minimal input change")
	}
	report.Primary = m

	reporter.Finalize(report)
	if err := writeReport(report); err != nil {
		return err
	}
	printInfo("%d process runs", proc.Runs())

	return searchErr
}

// writeReport prints text reports to stdout and saves the other formats to
// a file
func writeReport(report *types.Report) error {
	for _, warning := range report.Warnings {
		printWarning("%s", warning)
	}

	outputFile := config.Output.File

	options := reporter.DefaultOptions()
	options.Verbose = config.Output.Verbose
	options.NoColor = !config.Output.Color || outputFile != ""
	options.Version = version

	rep, err := reporter.NewReporter(config.Output.Format, options)
	if err != nil {
		return fmt.Errorf("failed to create reporter: %w", err)
	}

	if rep.Format() == reporter.FormatText && outputFile == "" {
		if err := rep.Write(report, os.Stdout); err != nil {
			return fmt.Errorf("failed to write report: %w", err)
		}
		return nil
	}

	if outputFile == "" {
		outputFile = fmt.Sprintf("isolator-report-%s", time.Now().Format("20060102-150405"))
	}

	outputPath := outputFile
	if filepath.Ext(outputPath) == "" {
		outputPath = outputFile + "." + rep.Extension()
	}

	if err := reporter.WriteToFile(rep, report, outputPath); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}

	printSuccess("Report saved to: %s", outputPath)
	return nil
}
