// Package app provides application bootstrapping with Cobra, Viper, and Pflag.
//
// This package provides a unified way to:
//   - Define a root command and its subcommands with Cobra
//   - Load configuration from .env, files, environment variables, and flags using Viper
//   - Use the functional options pattern for configuration
//
// Configuration is loaded once in the root PersistentPreRunE, so every
// subcommand sees the same completed and validated options.
//
// Usage:
//
//	app := app.NewApp(
//	    app.WithName("myapp"),
//	    app.WithDescription("My application"),
//	    app.WithOptions(opts),
//	    app.WithCommands(serveCmd, evalCmd),
//	)
//	app.Run()
package app

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"path/filepath"
	"regexp"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/kart-io/version"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// CliOptions is implemented by the root options of an application.
type CliOptions interface {
	// AddFlags registers all option flags on fs.
	AddFlags(fs *pflag.FlagSet)
	// Complete fills in derived defaults after loading.
	Complete() error
	// Validate reports every invalid option.
	Validate() error
}

// App is the main application structure.
type App struct {
	name        string
	shortDesc   string
	description string
	options     CliOptions
	runFunc     RunFunc
	commands    []*cobra.Command
	cmd         *cobra.Command
	viper       *viper.Viper
	args        cobra.PositionalArgs
	envFiles    []string
	silence     bool
	noVersion   bool
	noConfig    bool
}

// RunFunc is the root command's run function.
type RunFunc func(ctx context.Context, args []string) error

// Option configures an App.
type Option func(*App)

// WithName sets the application name.
func WithName(name string) Option {
	return func(a *App) {
		a.name = name
	}
}

// WithShortDescription sets the short description.
func WithShortDescription(desc string) Option {
	return func(a *App) {
		a.shortDesc = desc
	}
}

// WithDescription sets the long description.
func WithDescription(desc string) Option {
	return func(a *App) {
		a.description = desc
	}
}

// WithOptions sets the CLI options.
func WithOptions(opts CliOptions) Option {
	return func(a *App) {
		a.options = opts
	}
}

// WithRunFunc sets the root run function.
func WithRunFunc(run RunFunc) Option {
	return func(a *App) {
		a.runFunc = run
	}
}

// WithCommands adds subcommands to the root command.
func WithCommands(cmds ...*cobra.Command) Option {
	return func(a *App) {
		a.commands = append(a.commands, cmds...)
	}
}

// WithArgs sets the positional args validation of the root command.
func WithArgs(args cobra.PositionalArgs) Option {
	return func(a *App) {
		a.args = args
	}
}

// WithEnvFiles sets the dotenv files loaded before configuration.
// Missing files are ignored. Defaults to ".env".
func WithEnvFiles(files ...string) Option {
	return func(a *App) {
		a.envFiles = files
	}
}

// WithSilence disables usage and error printing.
func WithSilence() Option {
	return func(a *App) {
		a.silence = true
	}
}

// WithNoVersion disables version flag.
func WithNoVersion() Option {
	return func(a *App) {
		a.noVersion = true
	}
}

// WithNoConfig disables config file loading.
func WithNoConfig() Option {
	return func(a *App) {
		a.noConfig = true
	}
}

// NewApp creates a new application instance.
func NewApp(opts ...Option) *App {
	a := &App{
		name:     filepath.Base(os.Args[0]),
		viper:    viper.New(),
		envFiles: []string{".env"},
	}

	for _, opt := range opts {
		opt(a)
	}

	a.buildCommand()
	return a
}

// buildCommand creates the cobra command tree.
func (a *App) buildCommand() {
	cmd := &cobra.Command{
		Use:   a.name,
		Short: a.shortDesc,
		Long:  a.description,
		Args:  a.args,
		// Always silence usage on errors - users can use --help to see usage
		SilenceUsage:      true,
		PersistentPreRunE: a.prepare,
	}
	if a.runFunc != nil {
		cmd.RunE = func(cmd *cobra.Command, args []string) error {
			return a.runFunc(cmd.Context(), args)
		}
	}

	if a.silence {
		cmd.SilenceErrors = true
	}

	cmd.SetOut(os.Stdout)
	cmd.SetErr(os.Stderr)
	cmd.PersistentFlags().SortFlags = true

	a.addGlobalFlags(cmd)

	// Options flags are persistent so that every subcommand accepts them
	if a.options != nil {
		a.options.AddFlags(cmd.PersistentFlags())
	}

	cmd.AddCommand(a.commands...)
	a.cmd = cmd
}

// addGlobalFlags adds global flags to the command.
func (a *App) addGlobalFlags(cmd *cobra.Command) {
	if !a.noConfig {
		cmd.PersistentFlags().StringP("config", "c", "", "Path to config file")
	}

	if !a.noVersion {
		version.AddFlags(cmd.PersistentFlags())
	}
}

// prepare loads configuration and validates options before any command runs.
func (a *App) prepare(cmd *cobra.Command, _ []string) error {
	// Handle version flag - this will print and exit if --version is set
	if !a.noVersion {
		version.PrintAndExitIfRequested()
	}

	if err := a.loadEnvFiles(); err != nil {
		return err
	}

	if !a.noConfig {
		if err := a.loadConfig(cmd); err != nil {
			return err
		}
	}

	if a.options != nil {
		if err := a.options.Complete(); err != nil {
			return err
		}
		if err := a.options.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// loadEnvFiles loads dotenv files without overriding variables already set.
func (a *App) loadEnvFiles() error {
	for _, f := range a.envFiles {
		if err := godotenv.Load(f); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("failed to load %s: %w", f, err)
		}
	}
	return nil
}

// loadConfig loads configuration from file, environment, and flags.
func (a *App) loadConfig(cmd *cobra.Command) error {
	v := a.viper
	configFile, _ := cmd.Flags().GetString("config")

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName(a.name)
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		v.AddConfigPath(filepath.Join(os.Getenv("HOME"), "."+a.name))
		v.AddConfigPath("/etc/" + a.name)
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return fmt.Errorf("failed to read config file: %w", err)
		}
	}

	expandEnvVars(v)

	v.SetEnvPrefix(EnvPrefix(a.name))
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if a.options == nil {
		return nil
	}

	// Capture changed flags to preserve precedence over file and environment
	changed := make(map[string]flagValue)
	cmd.Flags().VisitAll(func(f *pflag.Flag) {
		if !f.Changed {
			return
		}
		fv := flagValue{value: f.Value.String()}
		if sv, ok := f.Value.(pflag.SliceValue); ok {
			fv.slice = sv.GetSlice()
		}
		changed[f.Name] = fv
	})

	if err := v.Unmarshal(a.options); err != nil {
		return fmt.Errorf("failed to unmarshal config: %w", err)
	}

	for name, fv := range changed {
		if err := fv.apply(cmd.Flags().Lookup(name)); err != nil {
			return fmt.Errorf("failed to re-apply flag %s: %w", name, err)
		}
	}
	return nil
}

// flagValue is a flag value captured before unmarshalling.
type flagValue struct {
	value string
	slice []string
}

// apply writes the captured value back. Slice flags append on Set, so they
// are replaced instead.
func (fv flagValue) apply(f *pflag.Flag) error {
	if sv, ok := f.Value.(pflag.SliceValue); ok && fv.slice != nil {
		return sv.Replace(fv.slice)
	}
	return f.Value.Set(fv.value)
}

var envPattern = regexp.MustCompile(`\$\{([^}]+)\}|\$([A-Za-z_][A-Za-z0-9_]*)`)

// expandEnvVars expands ${VAR} and $VAR style environment variables in config values.
func expandEnvVars(v *viper.Viper) {
	for _, key := range v.AllKeys() {
		strVal, ok := v.Get(key).(string)
		if !ok {
			continue
		}
		expanded := envPattern.ReplaceAllStringFunc(strVal, func(match string) string {
			var varName string
			if strings.HasPrefix(match, "${") {
				varName = match[2 : len(match)-1]
			} else {
				varName = match[1:]
			}
			if envVal := os.Getenv(varName); envVal != "" {
				return envVal
			}
			// 环境变量不存在时保留原样
			return match
		})
		if expanded != strVal {
			v.Set(key, expanded)
		}
	}
}

// EnvPrefix returns the environment variable prefix derived from an app name.
func EnvPrefix(name string) string {
	return strings.ToUpper(strings.ReplaceAll(name, "-", "_"))
}

// Run executes the application. SIGINT and SIGTERM cancel the command context.
func (a *App) Run() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := a.cmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// Command returns the cobra command.
func (a *App) Command() *cobra.Command {
	return a.cmd
}

// Viper returns the viper instance holding the loaded configuration.
func (a *App) Viper() *viper.Viper {
	return a.viper
}
