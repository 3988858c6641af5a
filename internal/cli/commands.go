package cli

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/temirov/tokencount/internal/config"
	"github.com/temirov/tokencount/internal/encoding"
	"github.com/temirov/tokencount/internal/output"
	"github.com/temirov/tokencount/internal/tokenizer"
	"github.com/temirov/tokencount/internal/types"
	"github.com/temirov/tokencount/internal/utils"
)

const (
	countUse              = "count [text]"
	countShortDescription = "count tokens of text, standard input or files"
	countLongDescription  = `Count the tokens of the text argument, of standard input when no argument
and no --file is given, or of each --file. Binary files are reported and skipped.`
	countUsageExample = `  # Count files concurrently and print a table
  tokencount count --file a.md --file b.md --format table

  # Count standard input with o200k_base
  cat prompt.txt | tokencount count --encoding o200k_base`

	encodeUse              = "encode [text]"
	encodeShortDescription = "print the token IDs of a text"
	encodeLongDescription  = `Encode the text argument, or standard input when no argument is given,
and print its token IDs. Use --explain to print the bytes behind every token.`

	decodeUse              = "decode [token ...]"
	decodeShortDescription = "print the text of token IDs"
	decodeLongDescription  = `Decode token IDs given as arguments, or read from standard input when no
argument is given. IDs may be separated by spaces or commas. Invalid UTF-8 is replaced with U+FFFD
unless --strict is set.`

	encodingsUse              = "encodings"
	encodingsShortDescription = "list the built-in encodings"

	vocabularyUse              = "vocab"
	vocabularyShortDescription = "inspect vocabularies"
	exportUse                  = "export <encoding>"
	exportShortDescription     = "write the vocabulary of an encoding in .tiktoken format"

	initUse              = "init"
	initShortDescription = "write the default configuration file"

	fileFlagName           = "file"
	fileFlagDescription    = "file to count (repeatable)"
	concurrencyFlagName    = "concurrency"
	concurrencyDescription = "files counted at the same time"
	explainFlagName        = "explain"
	explainDescription     = "print the bytes of every token"
	strictFlagName         = "strict"
	strictDescription      = "fail on decoded bytes that are not valid UTF-8"
	outputFlagName         = "output"
	outputDescription      = "destination file (default standard output)"
	globalFlagName         = "global"
	globalDescription      = "write the global configuration in the home directory"
	forceFlagName          = "force"
	forceDescription       = "overwrite an existing configuration file"

	invalidTokenMessage        = "invalid token ID %q"
	emptyTokenListMessage      = "no token IDs to decode"
	readStandardInputMessage   = "read standard input: %w"
	createExportFileMessage    = "create %s: %w"
	closeExportFileMessage     = "close exported vocabulary: %w"
	configurationWrittenFormat = "Configuration written to %s\n"
)

func createCountCommand(app *application) *cobra.Command {
	var filePaths []string
	var concurrency int

	countCommand := &cobra.Command{
		Use:     countUse,
		Short:   countShortDescription,
		Long:    countLongDescription,
		Example: countUsageExample,
		Args:    cobra.MaximumNArgs(1),
		RunE: func(command *cobra.Command, arguments []string) error {
			if !command.Flags().Changed(concurrencyFlagName) {
				concurrency = app.configuration.EffectiveConcurrency()
			}
			if len(arguments) == 0 && len(filePaths) == 0 {
				text, err := readStandardInput(command)
				if err != nil {
					return err
				}
				return app.runCount(command, nil, &text, concurrency, filePaths...)
			}
			return app.runCount(command, arguments, nil, concurrency, filePaths...)
		},
	}
	countCommand.Flags().StringArrayVar(&filePaths, fileFlagName, nil, fileFlagDescription)
	countCommand.Flags().IntVar(&concurrency, concurrencyFlagName, config.DefaultConcurrency, concurrencyDescription)
	return countCommand
}

// runCount counts texts, standard input and files and renders one report.
// Reports that include files carry a summary.
func (app *application) runCount(command *cobra.Command, texts []string, standardInput *string, concurrency int, filePaths ...string) error {
	ctx := command.Context()
	counter, encodingName, counterErr := tokenizer.NewCounter(ctx, app.registry, app.tokenizerConfig())
	if counterErr != nil {
		return counterErr
	}

	var report types.CountReport
	countText := func(source, text string) error {
		tokens, err := counter.CountString(text)
		if err != nil {
			return err
		}
		report.Items = append(report.Items, types.CountOutput{
			Source:    source,
			Encoding:  encodingName,
			Tokens:    tokens,
			Counted:   true,
			Size:      utils.FormatFileSize(int64(len(text))),
			SizeBytes: int64(len(text)),
		})
		return nil
	}
	for _, text := range texts {
		if err := countText(types.SourceArgument, text); err != nil {
			return err
		}
	}
	if standardInput != nil {
		if err := countText(types.SourceStandardInput, *standardInput); err != nil {
			return err
		}
	}
	if len(filePaths) > 0 {
		fileCounts, err := tokenizer.CountFiles(ctx, counter, filePaths, concurrency)
		if err != nil {
			return err
		}
		for _, fileCount := range fileCounts {
			if !fileCount.Counted {
				app.logger.Debug("skipped binary file", zap.String("path", fileCount.Path))
			}
			report.Items = append(report.Items, types.CountOutput{
				Source:    fileCount.Path,
				Encoding:  encodingName,
				Tokens:    fileCount.Tokens,
				Counted:   fileCount.Counted,
				Size:      utils.FormatFileSize(fileCount.SizeBytes),
				SizeBytes: fileCount.SizeBytes,
			})
		}
		report.Summary = output.Summarize(report.Items, encodingName)
	}

	rendered, renderErr := output.RenderCount(report, app.format)
	if renderErr != nil {
		return renderErr
	}
	return app.emit(command, rendered)
}

func createEncodeCommand(app *application) *cobra.Command {
	var explain bool

	encodeCommand := &cobra.Command{
		Use:   encodeUse,
		Short: encodeShortDescription,
		Long:  encodeLongDescription,
		Args:  cobra.MaximumNArgs(1),
		RunE: func(command *cobra.Command, arguments []string) error {
			text, err := textArgument(command, arguments)
			if err != nil {
				return err
			}
			encoder, err := app.encoder(command.Context())
			if err != nil {
				return err
			}
			tokens, err := encoder.EncodeWithOptions(text, encoding.EncodeOptions{Special: app.special})
			if err != nil {
				return err
			}
			result := types.EncodeOutput{Encoding: encoder.Name(), Count: len(tokens), Tokens: tokens}
			if explain {
				for _, token := range tokens {
					piece, pieceErr := encoder.DecodeSingleToken(token)
					if pieceErr != nil {
						return pieceErr
					}
					result.Pieces = append(result.Pieces, types.TokenPiece{ID: token, Text: string(piece)})
				}
			}
			rendered, err := output.RenderEncode(result, app.format)
			if err != nil {
				return err
			}
			return app.emit(command, rendered)
		},
	}
	registerToggleFlag(encodeCommand.Flags(), &explain, explainFlagName, false, explainDescription)
	return encodeCommand
}

func createDecodeCommand(app *application) *cobra.Command {
	var strict bool

	decodeCommand := &cobra.Command{
		Use:   decodeUse,
		Short: decodeShortDescription,
		Long:  decodeLongDescription,
		Args:  cobra.ArbitraryArgs,
		RunE: func(command *cobra.Command, arguments []string) error {
			if len(arguments) == 0 {
				text, err := readStandardInput(command)
				if err != nil {
					return err
				}
				arguments = []string{text}
			}
			tokens, err := parseTokenIDs(arguments)
			if err != nil {
				return err
			}
			if !command.Flags().Changed(strictFlagName) {
				strict = app.configuration.EffectiveStrictDecode()
			}
			encoder, err := app.encoder(command.Context())
			if err != nil {
				return err
			}
			text, err := encoder.DecodeWithOptions(tokens, encoding.DecodeOptions{Strict: strict})
			if err != nil {
				return err
			}
			rendered, err := output.RenderDecode(types.DecodeOutput{Encoding: encoder.Name(), Tokens: tokens, Text: text}, app.format)
			if err != nil {
				return err
			}
			return app.emit(command, rendered)
		},
	}
	registerToggleFlag(decodeCommand.Flags(), &strict, strictFlagName, false, strictDescription)
	return decodeCommand
}

func createEncodingsCommand(app *application) *cobra.Command {
	return &cobra.Command{
		Use:   encodingsUse,
		Short: encodingsShortDescription,
		Args:  cobra.NoArgs,
		RunE: func(command *cobra.Command, arguments []string) error {
			var list types.EncodingList
			for _, name := range app.registry.Names() {
				definition, err := app.registry.Definition(name)
				if err != nil {
					return err
				}
				source, err := app.registry.Source(name)
				if err != nil {
					return err
				}
				list.Encodings = append(list.Encodings, types.EncodingOutput{
					Name:          name,
					Source:        source.Name(),
					Available:     app.registry.Available(name),
					SpecialTokens: len(definition.SpecialTokens),
				})
			}
			rendered, err := output.RenderEncodings(list, app.format)
			if err != nil {
				return err
			}
			return app.emit(command, rendered)
		},
	}
}

func createVocabularyCommand(app *application) *cobra.Command {
	var outputPath string

	exportCommand := &cobra.Command{
		Use:   exportUse,
		Short: exportShortDescription,
		Args:  cobra.ExactArgs(1),
		RunE: func(command *cobra.Command, arguments []string) error {
			encoder, err := app.registry.GetEncoding(command.Context(), arguments[0])
			if err != nil {
				return err
			}
			var written int64
			if outputPath == "" {
				written, err = encoder.Vocabulary().WriteTo(command.OutOrStdout())
			} else {
				file, createErr := os.Create(outputPath)
				if createErr != nil {
					return fmt.Errorf(createExportFileMessage, outputPath, createErr)
				}
				written, err = writeAndClose(encoder.Vocabulary(), file)
			}
			if err != nil {
				return err
			}
			app.logger.Debug("vocabulary exported",
				zap.String("encoding", encoder.Name()),
				zap.Int64("bytes", written),
				zap.String("destination", outputPath),
			)
			return nil
		},
	}
	exportCommand.Flags().StringVar(&outputPath, outputFlagName, "", outputDescription)

	vocabularyCommand := &cobra.Command{
		Use:   vocabularyUse,
		Short: vocabularyShortDescription,
		Args:  cobra.NoArgs,
	}
	vocabularyCommand.AddCommand(exportCommand)
	return vocabularyCommand
}

// writeAndClose writes source to destination and closes it. A failed close
// is reported since the written data may be incomplete.
func writeAndClose(source io.WriterTo, destination io.WriteCloser) (int64, error) {
	written, writeErr := source.WriteTo(destination)
	closeErr := destination.Close()
	if writeErr != nil {
		return written, writeErr
	}
	if closeErr != nil {
		return written, fmt.Errorf(closeExportFileMessage, closeErr)
	}
	return written, nil
}

func createInitCommand(app *application) *cobra.Command {
	var global bool
	var force bool

	initCommand := &cobra.Command{
		Use:         initUse,
		Short:       initShortDescription,
		Args:        cobra.NoArgs,
		Annotations: map[string]string{setupAnnotationKey: setupAnnotationSkip},
		RunE: func(command *cobra.Command, arguments []string) error {
			target := config.InitTargetLocal
			if global {
				target = config.InitTargetGlobal
			}
			path, err := config.InitializeConfiguration(config.InitOptions{
				Target:           target,
				Force:            force,
				WorkingDirectory: app.workingDirectory,
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(command.OutOrStdout(), configurationWrittenFormat, path)
			return nil
		},
	}
	registerToggleFlag(initCommand.Flags(), &global, globalFlagName, false, globalDescription)
	registerToggleFlag(initCommand.Flags(), &force, forceFlagName, false, forceDescription)
	return initCommand
}

func textArgument(command *cobra.Command, arguments []string) (string, error) {
	if len(arguments) > 0 {
		return arguments[0], nil
	}
	return readStandardInput(command)
}

func readStandardInput(command *cobra.Command) (string, error) {
	data, err := io.ReadAll(command.InOrStdin())
	if err != nil {
		return "", fmt.Errorf(readStandardInputMessage, err)
	}
	return string(data), nil
}

func parseTokenIDs(arguments []string) ([]int, error) {
	var tokens []int
	for _, argument := range arguments {
		fields := strings.FieldsFunc(argument, func(character rune) bool {
			return character == ',' || character == ' ' || character == '\n' || character == '\t' || character == '\r'
		})
		for _, field := range fields {
			token, err := strconv.Atoi(field)
			if err != nil || token < 0 {
				return nil, fmt.Errorf(invalidTokenMessage, field)
			}
			tokens = append(tokens, token)
		}
	}
	if len(tokens) == 0 {
		return nil, errors.New(emptyTokenListMessage)
	}
	return tokens, nil
}
