// Package types defines every cross‑package data structure used by the tokencount CLI.
package types

import "encoding/xml"

const (
	FormatRaw   = "raw"
	FormatJSON  = "json"
	FormatXML   = "xml"
	FormatTable = "table"

	// SourceArgument labels counts of text given on the command line.
	SourceArgument = "argument"
	// SourceStandardInput labels counts of text read from standard input.
	SourceStandardInput = "stdin"
)

// CountOutput is the token count of one input.
type CountOutput struct {
	XMLName   xml.Name `json:"-" xml:"count"`
	Source    string   `json:"source" xml:"source"`
	Encoding  string   `json:"encoding" xml:"encoding"`
	Tokens    int      `json:"tokens" xml:"tokens"`
	Counted   bool     `json:"counted" xml:"counted"`
	Size      string   `json:"size,omitempty" xml:"size,omitempty"`
	SizeBytes int64    `json:"-" xml:"-"`
}

// CountSummary aggregates several CountOutput values.
type CountSummary struct {
	TotalFiles  int    `json:"totalFiles" xml:"totalFiles"`
	TotalSize   string `json:"totalSize" xml:"totalSize"`
	TotalTokens int    `json:"totalTokens" xml:"totalTokens"`
	Skipped     int    `json:"skipped,omitempty" xml:"skipped,omitempty"`
	Encoding    string `json:"encoding" xml:"encoding"`
}

// CountReport is the result of the count command.
type CountReport struct {
	XMLName xml.Name      `json:"-" xml:"counts"`
	Items   []CountOutput `json:"items" xml:"count"`
	Summary *CountSummary `json:"summary,omitempty" xml:"summary,omitempty"`
}

// TokenPiece is one token of an explained encode result.
type TokenPiece struct {
	ID   int    `json:"id" xml:"id,attr"`
	Text string `json:"text" xml:",chardata"`
}

// EncodeOutput is the result of the encode command.
type EncodeOutput struct {
	XMLName  xml.Name     `json:"-" xml:"encode"`
	Encoding string       `json:"encoding" xml:"encoding"`
	Count    int          `json:"count" xml:"count"`
	Tokens   []int        `json:"tokens" xml:"tokens>token"`
	Pieces   []TokenPiece `json:"pieces,omitempty" xml:"pieces>piece,omitempty"`
}

// DecodeOutput is the result of the decode command.
type DecodeOutput struct {
	XMLName  xml.Name `json:"-" xml:"decode"`
	Encoding string   `json:"encoding" xml:"encoding"`
	Tokens   []int    `json:"tokens" xml:"tokens>token"`
	Text     string   `json:"text" xml:"text"`
}

// EncodingOutput describes one registered encoding.
type EncodingOutput struct {
	Name          string `json:"name" xml:"name"`
	Source        string `json:"source" xml:"source"`
	Available     bool   `json:"available" xml:"available"`
	SpecialTokens int    `json:"specialTokens" xml:"specialTokens"`
}

// EncodingList is the result of the encodings command.
type EncodingList struct {
	XMLName   xml.Name         `json:"-" xml:"encodings"`
	Encodings []EncodingOutput `json:"encodings" xml:"encoding"`
}
