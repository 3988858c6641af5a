// Package cli provides the command line interface.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/temirov/tokencount/internal/config"
	"github.com/temirov/tokencount/internal/encoding"
	"github.com/temirov/tokencount/internal/output"
	"github.com/temirov/tokencount/internal/services/clipboard"
	"github.com/temirov/tokencount/internal/tokenizer"
	"github.com/temirov/tokencount/internal/types"
	"github.com/temirov/tokencount/internal/utils"
)

const (
	encodingFlagName  = "encoding"
	modelFlagName     = "model"
	engineFlagName    = "engine"
	specialFlagName   = "special"
	configFlagName    = "config"
	formatFlagName    = "format"
	copyFlagName      = "copy"
	verboseFlagName   = "verbose"
	versionFlagName   = "version"
	versionTemplate   = "tokencount version: %s\n"
	rootUse           = "tokencount <text>"
	rootShortDescribe = "count the tokens of a text"
	rootLongDescribe  = `tokencount encodes text with a byte-pair-encoding vocabulary and prints the number of tokens.
It supports the r50k_base, p50k_base, p50k_edit, cl100k_base and o200k_base encodings; vocabularies are
downloaded on first use and cached. Use --encoding or --model to select the encoding and --format to
select raw, json, xml or table output.

A single argument is always counted as text. Subcommands and flags apply when more arguments
follow; end them with -- when they take none, as in "tokencount encodings --".`
	rootUsageExample = `  # Count the tokens of a sentence with cl100k_base
  tokencount "hello world"

  # Count with the encoding of a model
  tokencount --model gpt-4o "hello world"

  # Count files
  tokencount count --file README.md --file main.go --format table

  # List the encodings
  tokencount encodings --`

	encodingFlagDescription = "encoding name (overrides --model)"
	modelFlagDescription    = "model name used to select the encoding"
	engineFlagDescription   = "tokenizer engine: native or reference"
	specialFlagDescription  = "special token literals in input: literal, recognize or reject"
	configFlagDescription   = "configuration file (default ./config.yaml)"
	formatFlagDescription   = "output format: raw, json, xml or table"
	copyFlagDescription     = "copy output to the system clipboard"
	verboseFlagDescription  = "log debug messages"
	versionFlagDescription  = "display application version"

	// setupAnnotationKey marks commands that run without loading configuration.
	setupAnnotationKey   = "setup"
	setupAnnotationSkip  = "skip"
	copyFailedLogMessage = "failed to copy output to clipboard"
)

// errVersionDisplayed stops command execution once the version was printed.
var errVersionDisplayed = errors.New("version displayed")

// globalOptions holds the values of persistent flags.
type globalOptions struct {
	encodingName string
	model        string
	engine       string
	special      string
	configPath   string
	format       string
	copyOutput   bool
	verbose      bool
	showVersion  bool
}

// application carries the collaborators and resolved state shared by commands.
type application struct {
	stdin            io.Reader
	stdout           io.Writer
	stderr           io.Writer
	workingDirectory string
	httpClient       *http.Client
	copier           clipboard.Copier
	newLogger        func(verbose bool) (*zap.Logger, error)

	options       globalOptions
	logger        *zap.Logger
	configuration config.ApplicationConfiguration
	registry      *encoding.Registry
	special       encoding.SpecialHandling
	engine        tokenizer.Engine
	format        string
}

func newApplication() *application {
	return &application{
		stdin:     os.Stdin,
		stdout:    os.Stdout,
		stderr:    os.Stderr,
		copier:    clipboard.NewService(),
		newLogger: utils.NewApplicationLogger,
		logger:    zap.NewNop(),
	}
}

// Execute runs the tokencount application.
func Execute(ctx context.Context, arguments []string) error {
	app := newApplication()
	defer func() { _ = app.logger.Sync() }()
	rootCommand := createRootCommand(app)
	rootCommand.SetArgs(commandArguments(rootCommand, arguments))
	if err := rootCommand.ExecuteContext(ctx); err != nil && !errors.Is(err, errVersionDisplayed) {
		return err
	}
	return nil
}

// commandArguments prepares raw arguments for rootCommand. A lone argument is
// always the text to count, even when it names a subcommand or starts with a
// dash, so it is placed after the end-of-flags marker.
func commandArguments(rootCommand *cobra.Command, arguments []string) []string {
	if len(arguments) == 1 {
		return []string{endOfFlagsMarker, arguments[0]}
	}
	return normalizeToggleArguments(rootCommand, arguments)
}

// createRootCommand builds the root Cobra command.
func createRootCommand(app *application) *cobra.Command {
	rootCommand := &cobra.Command{
		Use:           rootUse,
		Short:         rootShortDescribe,
		Long:          rootLongDescribe,
		Example:       rootUsageExample,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(command *cobra.Command, arguments []string) error {
			return app.setup(command)
		},
		RunE: func(command *cobra.Command, arguments []string) error {
			if len(arguments) == 0 {
				return command.Help()
			}
			return app.runCount(command, []string{arguments[0]}, nil, config.DefaultConcurrency)
		},
	}
	rootCommand.SetIn(app.stdin)
	rootCommand.SetOut(app.stdout)
	rootCommand.SetErr(app.stderr)

	persistentFlags := rootCommand.PersistentFlags()
	persistentFlags.StringVar(&app.options.encodingName, encodingFlagName, "", encodingFlagDescription)
	persistentFlags.StringVar(&app.options.model, modelFlagName, "", modelFlagDescription)
	persistentFlags.StringVar(&app.options.engine, engineFlagName, string(tokenizer.EngineNative), engineFlagDescription)
	persistentFlags.StringVar(&app.options.special, specialFlagName, string(encoding.SpecialLiteral), specialFlagDescription)
	persistentFlags.StringVar(&app.options.configPath, configFlagName, "", configFlagDescription)
	persistentFlags.StringVar(&app.options.format, formatFlagName, types.FormatRaw, formatFlagDescription)
	registerToggleFlag(persistentFlags, &app.options.copyOutput, copyFlagName, false, copyFlagDescription)
	registerToggleFlag(persistentFlags, &app.options.verbose, verboseFlagName, false, verboseFlagDescription)
	registerToggleFlag(persistentFlags, &app.options.showVersion, versionFlagName, false, versionFlagDescription)

	rootCommand.AddCommand(
		createCountCommand(app),
		createEncodeCommand(app),
		createDecodeCommand(app),
		createEncodingsCommand(app),
		createVocabularyCommand(app),
		createInitCommand(app),
	)
	rootCommand.InitDefaultHelpCmd()
	rootCommand.InitDefaultCompletionCmd()
	return rootCommand
}

// setup builds the logger, loads configuration, applies explicit flags on top
// of it and constructs the encoding registry.
func (app *application) setup(command *cobra.Command) error {
	if app.options.showVersion {
		fmt.Fprintf(command.OutOrStdout(), versionTemplate, utils.GetApplicationVersion())
		return errVersionDisplayed
	}
	logger, loggerErr := app.newLogger(app.options.verbose)
	if loggerErr != nil {
		return fmt.Errorf(utils.LoggerInitializationFailedMessageFormat, loggerErr)
	}
	app.logger = logger
	if command.Annotations[setupAnnotationKey] == setupAnnotationSkip {
		return nil
	}

	configuration, loadErr := config.LoadApplicationConfiguration(config.LoadOptions{
		WorkingDirectory: app.workingDirectory,
		ExplicitFilePath: app.options.configPath,
	})
	if loadErr != nil {
		return loadErr
	}
	flags := command.Flags()
	if flags.Changed(encodingFlagName) {
		configuration.Encoding = app.options.encodingName
	}
	if flags.Changed(modelFlagName) {
		configuration.Model = app.options.model
		if !flags.Changed(encodingFlagName) {
			configuration.Encoding = ""
		}
	}
	if flags.Changed(engineFlagName) || configuration.Engine == "" {
		configuration.Engine = app.options.engine
	}
	if flags.Changed(specialFlagName) || configuration.Special == "" {
		configuration.Special = app.options.special
	}
	if flags.Changed(formatFlagName) || configuration.Format == "" {
		configuration.Format = app.options.format
	}
	if flags.Changed(copyFlagName) {
		copyOutput := app.options.copyOutput
		configuration.Clipboard = &copyOutput
	}

	app.format = strings.ToLower(strings.TrimSpace(configuration.Format))
	if err := output.ValidateFormat(app.format); err != nil {
		return err
	}
	special, specialErr := encoding.ParseSpecialHandling(configuration.Special)
	if specialErr != nil {
		return specialErr
	}
	engine, engineErr := tokenizer.ParseEngine(configuration.Engine)
	if engineErr != nil {
		return engineErr
	}
	app.special = special
	app.engine = engine
	app.configuration = configuration
	app.registry = encoding.NewRegistry(encoding.RegistryOptions{
		CacheDirectory:  configuration.VocabularyCacheDirectory(),
		VocabularyFiles: configuration.Vocabulary.Files,
		HTTPClient:      app.httpClient,
		Logger:          logger,
		Encoder: encoding.Options{
			DefaultSpecial: special,
			StrictDecode:   configuration.EffectiveStrictDecode(),
			ChunkCacheSize: configuration.EffectiveChunkCacheSize(),
			MaxInputBytes:  configuration.EffectiveMaxInputBytes(),
			MatchTimeout:   configuration.EffectiveMatchTimeout(),
		},
	})
	logger.Debug("configuration resolved",
		zap.String("encoding", configuration.Encoding),
		zap.String("model", configuration.Model),
		zap.String("engine", string(engine)),
		zap.String("special", string(special)),
		zap.String("format", app.format),
	)
	return nil
}

// encoder returns the native encoder selected by --encoding or --model.
func (app *application) encoder(ctx context.Context) (*encoding.Encoder, error) {
	name, err := tokenizer.ResolveEncodingName(app.registry, app.tokenizerConfig())
	if err != nil {
		return nil, err
	}
	return app.registry.GetEncoding(ctx, name)
}

func (app *application) tokenizerConfig() tokenizer.Config {
	return tokenizer.Config{
		Model:    app.configuration.Model,
		Encoding: app.configuration.Encoding,
		Engine:   app.engine,
		Special:  app.special,
		Logger:   app.logger,
	}
}

// emit writes rendered output and copies it to the clipboard when requested.
// Clipboard failures are logged and do not fail the command.
func (app *application) emit(command *cobra.Command, rendered string) error {
	if _, err := io.WriteString(command.OutOrStdout(), rendered); err != nil {
		return fmt.Errorf("write output: %w", err)
	}
	if app.configuration.Clipboard == nil || !*app.configuration.Clipboard {
		return nil
	}
	if err := app.copier.Copy(rendered); err != nil {
		app.logger.Warn(copyFailedLogMessage, zap.Error(err))
	}
	return nil
}
