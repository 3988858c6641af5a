// Package output renders command results as raw text, JSON, XML or tables.
package output

import (
	"bytes"
	"encoding/json"
	"encoding/xml"
	"fmt"
	"strconv"
	"strings"

	"github.com/olekukonko/tablewriter"

	"github.com/temirov/tokencount/internal/types"
	"github.com/temirov/tokencount/internal/utils"
)

const (
	indentPrefix = ""
	indentSpacer = "  "

	xmlHeader = xml.Header

	tablePadding     = "    "
	skippedMarker    = "-"
	skippedLabel     = "(binary, skipped)"
	availableLabel   = "cached"
	unavailableLabel = "remote"

	countRowFormat   = "%s\t%s\n"
	skippedRowFormat = "%s\t%s %s\n"
	pieceRowFormat   = "%d\t%q\n"
)

var (
	countTableHeader     = []string{"SOURCE", "TOKENS", "SIZE"}
	encodeTableHeader    = []string{"ID", "PIECE"}
	decodeTableHeader    = []string{"ENCODING", "TOKENS", "TEXT"}
	encodingsTableHeader = []string{"NAME", "SOURCE", "SPECIAL", "STATUS"}
)

// UnsupportedFormatError reports a format name no renderer handles.
type UnsupportedFormatError struct {
	Format string
}

func (unsupportedFormatError UnsupportedFormatError) Error() string {
	return fmt.Sprintf("unsupported output format %q (expected %s, %s, %s or %s)",
		unsupportedFormatError.Format, types.FormatRaw, types.FormatJSON, types.FormatXML, types.FormatTable)
}

// ValidateFormat returns an UnsupportedFormatError for unknown format names.
func ValidateFormat(format string) error {
	switch format {
	case types.FormatRaw, types.FormatJSON, types.FormatXML, types.FormatTable:
		return nil
	default:
		return UnsupportedFormatError{Format: format}
	}
}

// Summarize aggregates count results of several inputs.
func Summarize(items []types.CountOutput, encodingName string) *types.CountSummary {
	summary := &types.CountSummary{Encoding: encodingName}
	var totalBytes int64
	for _, item := range items {
		if !item.Counted {
			summary.Skipped++
			continue
		}
		summary.TotalFiles++
		summary.TotalTokens += item.Tokens
		totalBytes += item.SizeBytes
	}
	summary.TotalSize = utils.FormatFileSize(totalBytes)
	return summary
}

// FormatSummaryLine formats a CountSummary into the raw summary line.
func FormatSummaryLine(summary *types.CountSummary) string {
	if summary == nil {
		summary = &types.CountSummary{}
	}
	label := "files"
	if summary.TotalFiles == 1 {
		label = "file"
	}
	skipped := ""
	if summary.Skipped > 0 {
		skipped = fmt.Sprintf(", %d skipped", summary.Skipped)
	}
	encodingSuffix := ""
	if summary.Encoding != "" {
		encodingSuffix = fmt.Sprintf(" (encoding: %s)", summary.Encoding)
	}
	return fmt.Sprintf("Summary: %d %s, %s, %d tokens%s%s",
		summary.TotalFiles, label, summary.TotalSize, summary.TotalTokens, skipped, encodingSuffix)
}

// RenderCount renders the result of the count command. A report with one
// item and no summary renders in raw format as the bare token count.
func RenderCount(report types.CountReport, format string) (string, error) {
	switch format {
	case types.FormatJSON:
		return renderJSON(report)
	case types.FormatXML:
		return renderXML(report)
	case types.FormatTable:
		rows := make([][]string, 0, len(report.Items))
		for _, item := range report.Items {
			tokens := strconv.Itoa(item.Tokens)
			if !item.Counted {
				tokens = skippedMarker
			}
			rows = append(rows, []string{item.Source, tokens, item.Size})
		}
		rendered := renderTable(countTableHeader, rows)
		if report.Summary != nil {
			rendered += FormatSummaryLine(report.Summary) + "\n"
		}
		return rendered, nil
	case types.FormatRaw:
		if len(report.Items) == 1 && report.Summary == nil {
			return strconv.Itoa(report.Items[0].Tokens) + "\n", nil
		}
		var buffer bytes.Buffer
		for _, item := range report.Items {
			if !item.Counted {
				fmt.Fprintf(&buffer, skippedRowFormat, skippedMarker, item.Source, skippedLabel)
				continue
			}
			fmt.Fprintf(&buffer, countRowFormat, strconv.Itoa(item.Tokens), item.Source)
		}
		if report.Summary != nil {
			buffer.WriteString(FormatSummaryLine(report.Summary) + "\n")
		}
		return buffer.String(), nil
	default:
		return "", UnsupportedFormatError{Format: format}
	}
}

// RenderEncode renders token IDs, one line of space separated IDs in raw
// format, or one line per piece when pieces were explained.
func RenderEncode(result types.EncodeOutput, format string) (string, error) {
	switch format {
	case types.FormatJSON:
		return renderJSON(result)
	case types.FormatXML:
		return renderXML(result)
	case types.FormatTable:
		rows := make([][]string, 0, len(result.Tokens))
		if len(result.Pieces) > 0 {
			for _, piece := range result.Pieces {
				rows = append(rows, []string{strconv.Itoa(piece.ID), strconv.Quote(piece.Text)})
			}
		} else {
			for _, token := range result.Tokens {
				rows = append(rows, []string{strconv.Itoa(token), ""})
			}
		}
		return renderTable(encodeTableHeader, rows), nil
	case types.FormatRaw:
		if len(result.Pieces) > 0 {
			var buffer bytes.Buffer
			for _, piece := range result.Pieces {
				fmt.Fprintf(&buffer, pieceRowFormat, piece.ID, piece.Text)
			}
			return buffer.String(), nil
		}
		return joinTokens(result.Tokens) + "\n", nil
	default:
		return "", UnsupportedFormatError{Format: format}
	}
}

// RenderDecode renders decoded text. Raw format prints the text unchanged.
func RenderDecode(result types.DecodeOutput, format string) (string, error) {
	switch format {
	case types.FormatJSON:
		return renderJSON(result)
	case types.FormatXML:
		return renderXML(result)
	case types.FormatTable:
		row := []string{result.Encoding, joinTokens(result.Tokens), strconv.Quote(result.Text)}
		return renderTable(decodeTableHeader, [][]string{row}), nil
	case types.FormatRaw:
		if strings.HasSuffix(result.Text, "\n") {
			return result.Text, nil
		}
		return result.Text + "\n", nil
	default:
		return "", UnsupportedFormatError{Format: format}
	}
}

// RenderEncodings renders the list of registered encodings.
func RenderEncodings(list types.EncodingList, format string) (string, error) {
	switch format {
	case types.FormatJSON:
		return renderJSON(list)
	case types.FormatXML:
		return renderXML(list)
	case types.FormatTable:
		rows := make([][]string, 0, len(list.Encodings))
		for _, encoding := range list.Encodings {
			rows = append(rows, []string{
				encoding.Name,
				encoding.Source,
				strconv.Itoa(encoding.SpecialTokens),
				availability(encoding.Available),
			})
		}
		return renderTable(encodingsTableHeader, rows), nil
	case types.FormatRaw:
		var buffer bytes.Buffer
		for _, encoding := range list.Encodings {
			fmt.Fprintf(&buffer, "%s\t%s\t%s\n", encoding.Name, availability(encoding.Available), encoding.Source)
		}
		return buffer.String(), nil
	default:
		return "", UnsupportedFormatError{Format: format}
	}
}

func availability(available bool) string {
	if available {
		return availableLabel
	}
	return unavailableLabel
}

func joinTokens(tokens []int) string {
	parts := make([]string, len(tokens))
	for index, token := range tokens {
		parts[index] = strconv.Itoa(token)
	}
	return strings.Join(parts, " ")
}

func renderJSON(value any) (string, error) {
	encoded, err := json.MarshalIndent(value, indentPrefix, indentSpacer)
	if err != nil {
		return "", fmt.Errorf("failed to marshal json: %w", err)
	}
	return string(encoded) + "\n", nil
}

func renderXML(value any) (string, error) {
	encoded, err := xml.MarshalIndent(value, indentPrefix, indentSpacer)
	if err != nil {
		return "", fmt.Errorf("failed to marshal xml: %w", err)
	}
	return xmlHeader + string(encoded) + "\n", nil
}

func renderTable(header []string, rows [][]string) string {
	var buffer bytes.Buffer
	table := tablewriter.NewWriter(&buffer)
	table.SetHeader(header)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetNoWhiteSpace(true)
	table.SetTablePadding(tablePadding)
	table.SetAutoWrapText(false)
	table.AppendBulk(rows)
	table.Render()
	return buffer.String()
}
