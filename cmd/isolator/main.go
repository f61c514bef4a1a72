// Package main is the entry point for the Isolator CLI
package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/su1ph3r/isolator/pkg/types"
)

var (
	version   = "1.0.0"
	cfgFile   string
	config    *types.Config
	configErr error
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		printError("%v", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "isolator",
	Short: "Isolator - regression bug input minimizer",
	Long: `Isolator finds the minimal input change that triggers a regression bug.

Given an input that triggers the bug and one that does not, it runs delta
debugging against an oracle (a live HTTP endpoint, or a local command) and
reports a 1-minimal failure-inducing input together with the full trace of
oracle queries that justifies it.`,
	Version:       version,
	SilenceErrors: true,
	SilenceUsage:  true,
	RunE:          runIsolate,
}

var isolateCmd = &cobra.Command{
	Use:   "isolate",
	Short: "Minimize a failing input against an HTTP endpoint",
	Long: `Send candidate values for one parameter to a live HTTP endpoint and shrink
the bug-triggering input. A response status in --success_status_codes means
the bug was reproduced.`,
	RunE: runIsolate,
}

var execCmd = &cobra.Command{
	Use:   "exec [flags] -- COMMAND [ARGS...]",
	Short: "Minimize a failing input against a local command",
	Long: `Run a local command for every candidate. The candidate replaces {} in the
arguments, or is written to stdin when no argument contains {}.

Criteria:
  diff     FAIL when stdout or exit status differ from the run on the passing input
  exit     FAIL when the command exits non-zero
  pattern  FAIL when stdout or stderr match --pattern`,
	Args: cobra.MinimumNArgs(1),
	RunE: runExec,
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
	Long:  `View and modify Isolator configuration settings`,
}

var configSetCmd = &cobra.Command{
	Use:   "set [key] [value]",
	Short: "Set a configuration value",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		viper.Set(args[0], args[1])
		if viper.ConfigFileUsed() == "" {
			return viper.WriteConfigAs(".isolator.yaml")
		}
		return viper.WriteConfig()
	},
}

var configGetCmd = &cobra.Command{
	Use:   "get [key]",
	Short: "Get a configuration value",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if !viper.IsSet(args[0]) {
			return fmt.Errorf("unknown configuration key: %s", args[0])
		}
		fmt.Fprintln(cmd.OutOrStdout(), viper.Get(args[0]))
		return nil
	},
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show all configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		keys := viper.AllKeys()
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %v\n", k, viper.Get(k))
		}
		return nil
	},
}

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&cfgFile, "config", "", "config file (default is $HOME/.isolator.yaml)")
	pf.Bool("no-color", false, "Disable colored output")
	pf.String("bug_triggering_input", "", "The input that triggers the regression bug")
	pf.String("non_triggering_input", "", "The input that does not trigger the regression bug")
	pf.String("mode", types.ModeMinimize, "Search mode (minimize, isolate)")
	pf.StringP("granularity", "g", "char", "Input decomposition (char, token, line, field)")
	pf.Int("parallel", 1, "Oracle calls evaluated concurrently within a round")
	pf.Int("max-input-length", 1000, "Reject inputs longer than this (0 disables)")
	pf.Int("retries", 0, "Extra attempts for UNRESOLVED oracle calls")
	pf.Duration("retry-delay", 500*time.Millisecond, "Delay between retries")
	pf.Duration("timeout", 10*time.Second, "Per oracle call timeout")
	pf.StringP("format", "f", "text", "Output format (text, json, markdown, yaml)")
	pf.StringP("output", "o", "", "Output file path (text format prints to stdout if not specified)")
	pf.BoolP("verbose", "v", false, "Include the full oracle trace in text output")
	pf.String("log-level", "warn", "Structured log level (debug, info, warn, error)")
	pf.String("log-file", "", "Write structured logs to file instead of stderr")

	addHTTPFlags(rootCmd.Flags())
	addHTTPFlags(isolateCmd.Flags())

	execCmd.Flags().String("criterion", "diff", "Failure criterion (diff, exit, pattern)")
	execCmd.Flags().String("pattern", "", "Regular expression for the pattern criterion")

	// Add commands
	rootCmd.AddCommand(isolateCmd)
	rootCmd.AddCommand(execCmd)
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configSetCmd)
	configCmd.AddCommand(configGetCmd)
	configCmd.AddCommand(configShowCmd)
}

func addHTTPFlags(flags *pflag.FlagSet) {
	flags.StringP("url", "u", "", "The URL to test against")
	flags.StringP("parameter", "p", "", "The parameter to fuzz")
	flags.StringP("method", "X", "GET", "HTTP method (GET, POST, PUT, PATCH, DELETE)")
	flags.String("location", "", "Parameter location (query, form, header, json); default by method")
	flags.String("openapi", "", "OpenAPI document used to resolve the parameter location")
	flags.String("payloads_file", "", "File containing fuzzing payloads (one per line)")
	flags.String("success_status_codes", "200", "Comma-separated status codes that mean the bug was reproduced")
	flags.Float64("rate-limit", 10, "Requests per second (0 = unlimited)")
	flags.String("proxy", "", "HTTP proxy URL")
	flags.StringToString("headers", map[string]string{}, "Additional headers")
	flags.StringToString("cookies", map[string]string{}, "Cookies to send")
	flags.String("user-agent", "", "User-Agent header")
	flags.Bool("no-ssl-verify", false, "Skip SSL certificate verification")
	flags.Bool("no-follow-redirects", false, "Do not follow redirects")
	flags.String("log-requests", "", "Write every oracle request/response to a JSON file")
}

// setDefaults registers every configuration key so that ISOLATOR_*
// variables and "config show" see the full tree
func setDefaults(def *types.Config) {
	viper.SetDefault("target.url", def.Target.URL)
	viper.SetDefault("target.parameter", def.Target.Parameter)
	viper.SetDefault("target.method", def.Target.Method)
	viper.SetDefault("target.location", def.Target.Location)
	viper.SetDefault("target.success_status_codes", def.Target.SuccessStatusCodes)
	viper.SetDefault("target.openapi", def.Target.OpenAPI)

	viper.SetDefault("scan.rate_limit", def.Scan.RateLimit)
	viper.SetDefault("scan.timeout", def.Scan.Timeout)
	viper.SetDefault("scan.max_retries", def.Scan.MaxRetries)
	viper.SetDefault("scan.retry_delay", def.Scan.RetryDelay)
	viper.SetDefault("scan.follow_redirects", def.Scan.FollowRedirects)
	viper.SetDefault("scan.max_redirects", def.Scan.MaxRedirects)
	viper.SetDefault("scan.verify_ssl", def.Scan.VerifySSL)

	viper.SetDefault("http.proxy_url", def.HTTP.ProxyURL)
	viper.SetDefault("http.user_agent", def.HTTP.UserAgent)
	viper.SetDefault("http.headers", def.HTTP.Headers)
	viper.SetDefault("http.cookies", def.HTTP.Cookies)

	viper.SetDefault("minimize.mode", def.Minimize.Mode)
	viper.SetDefault("minimize.granularity", def.Minimize.Granularity)
	viper.SetDefault("minimize.parallelism", def.Minimize.Parallelism)
	viper.SetDefault("minimize.max_input_length", def.Minimize.MaxInputLength)

	viper.SetDefault("output.format", def.Output.Format)
	viper.SetDefault("output.file", def.Output.File)
	viper.SetDefault("output.verbose", def.Output.Verbose)
	viper.SetDefault("output.color", def.Output.Color)

	viper.SetDefault("log.level", def.Log.Level)
	viper.SetDefault("log.file", def.Log.File)
	viper.SetDefault("log.request_log", def.Log.RequestLog)
}

func initConfig() {
	// .env values feed the ISOLATOR_* environment; real variables win
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		printWarning("Failed to load .env: %v", err)
	}

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err == nil {
			viper.AddConfigPath(home)
		}
		viper.AddConfigPath(".")
		viper.SetConfigName(".isolator")
		viper.SetConfigType("yaml")
	}

	viper.AutomaticEnv()
	viper.SetEnvPrefix("ISOLATOR")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	setDefaults(types.DefaultConfig())

	configErr = nil
	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			configErr = fmt.Errorf("failed to read config: %w", err)
		}
	}

	config = types.DefaultConfig()
	if err := viper.Unmarshal(config); err != nil && configErr == nil {
		configErr = fmt.Errorf("%w: %v", types.ErrConfiguration, err)
	}
}

// updateConfigFromFlags applies flags the user set explicitly over the
// file and environment configuration
func updateConfigFromFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	set := func(name string) bool {
		return f.Lookup(name) != nil && f.Changed(name)
	}

	if set("url") {
		config.Target.URL, _ = f.GetString("url")
	}
	if set("parameter") {
		config.Target.Parameter, _ = f.GetString("parameter")
	}
	if set("method") {
		config.Target.Method, _ = f.GetString("method")
	}
	if set("location") {
		config.Target.Location, _ = f.GetString("location")
	}
	if set("openapi") {
		config.Target.OpenAPI, _ = f.GetString("openapi")
	}
	if set("success_status_codes") {
		config.Target.SuccessStatusCodes, _ = f.GetString("success_status_codes")
	}
	if set("rate-limit") {
		config.Scan.RateLimit, _ = f.GetFloat64("rate-limit")
	}
	if set("timeout") {
		config.Scan.Timeout, _ = f.GetDuration("timeout")
	}
	if set("retries") {
		config.Scan.MaxRetries, _ = f.GetInt("retries")
	}
	if set("retry-delay") {
		config.Scan.RetryDelay, _ = f.GetDuration("retry-delay")
	}
	if v, _ := f.GetBool("no-ssl-verify"); v {
		config.Scan.VerifySSL = false
	}
	if v, _ := f.GetBool("no-follow-redirects"); v {
		config.Scan.FollowRedirects = false
	}
	if set("proxy") {
		config.HTTP.ProxyURL, _ = f.GetString("proxy")
	}
	if set("user-agent") {
		config.HTTP.UserAgent, _ = f.GetString("user-agent")
	}
	if v, _ := f.GetStringToString("headers"); len(v) > 0 {
		if config.HTTP.Headers == nil {
			config.HTTP.Headers = make(map[string]string)
		}
		for k, val := range v {
			config.HTTP.Headers[k] = val
		}
	}
	if v, _ := f.GetStringToString("cookies"); len(v) > 0 {
		if config.HTTP.Cookies == nil {
			config.HTTP.Cookies = make(map[string]string)
		}
		for k, val := range v {
			config.HTTP.Cookies[k] = val
		}
	}
	if set("mode") {
		config.Minimize.Mode, _ = f.GetString("mode")
	}
	if set("granularity") {
		config.Minimize.Granularity, _ = f.GetString("granularity")
	}
	if set("parallel") {
		config.Minimize.Parallelism, _ = f.GetInt("parallel")
	}
	if set("max-input-length") {
		config.Minimize.MaxInputLength, _ = f.GetInt("max-input-length")
	}
	if set("format") {
		config.Output.Format, _ = f.GetString("format")
	}
	if set("output") {
		config.Output.File, _ = f.GetString("output")
	}
	if v, _ := f.GetBool("verbose"); v {
		config.Output.Verbose = true
	}
	if v, _ := f.GetBool("no-color"); v {
		config.Output.Color = false
	}
	if set("log-level") {
		config.Log.Level, _ = f.GetString("log-level")
	}
	if set("log-file") {
		config.Log.File, _ = f.GetString("log-file")
	}
	if set("log-requests") {
		config.Log.RequestLog, _ = f.GetString("log-requests")
	}

	color.NoColor = color.NoColor || !config.Output.Color
}

// buildLogger creates the structured logger from the log settings
func buildLogger(settings types.LogSettings) (*zap.Logger, error) {
	level := zapcore.WarnLevel
	if settings.Level != "" {
		parsed, err := zapcore.ParseLevel(settings.Level)
		if err != nil {
			return nil, fmt.Errorf("%w: invalid log level %q", types.ErrConfiguration, settings.Level)
		}
		level = parsed
	}

	logConfig := zap.NewProductionConfig()
	logConfig.Level = zap.NewAtomicLevelAt(level)
	logConfig.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	logConfig.Sampling = nil
	if settings.File != "" {
		logConfig.OutputPaths = []string{settings.File}
		logConfig.ErrorOutputPaths = []string{settings.File}
	}

	return logConfig.Build()
}

// Printing functions

func printBanner() {
	banner := `
 ___           _       _
|_ _|___  ___ | | __ _| |_ ___  _ __
 | |/ __|/ _ \| |/ _` + "`" + ` | __/ _ \| '__|
 | |\__ \ (_) | | (_| | || (_) | |
|___|___/\___/|_|\__,_|\__\___/|_|
Regression Bug Input Minimizer v%s
`
	fmt.Printf(banner, version)
	fmt.Println()
}

func printInfo(format string, args ...interface{}) {
	color.Cyan("[*] "+format, args...)
}

func printSuccess(format string, args ...interface{}) {
	color.Green("[+] "+format, args...)
}

func printWarning(format string, args ...interface{}) {
	color.Yellow("[!] "+format, args...)
}

func printError(format string, args ...interface{}) {
	color.Red("[-] "+format, args...)
}
