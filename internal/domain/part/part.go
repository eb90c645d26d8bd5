// Package part defines the heterogeneous content union carried by artifacts:
// plain text, binary files with a MIME type, and structured JSON data.
package part

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Kind discriminates the Part union.
type Kind string

const (
	KindText Kind = "text"
	KindFile Kind = "file"
	KindData Kind = "data"
)

// MIME types used during content negotiation.
const (
	MIMETextPlain = "text/plain"
	MIMEJSON      = "application/json"
)

// File is the payload of a file part: either inline bytes or a URI.
type File struct {
	Bytes    []byte `json:"bytes,omitempty"`
	URI      string `json:"uri,omitempty"`
	MIMEType string `json:"mime_type"`
	Name     string `json:"name,omitempty"`
}

// Part is a tagged union. Exactly one of Text, File, or Data is set,
// according to Kind.
type Part struct {
	Kind Kind            `json:"kind"`
	Text string          `json:"text,omitempty"`
	File *File           `json:"file,omitempty"`
	Data json.RawMessage `json:"data,omitempty"`
}

// NewText creates a text part.
func NewText(text string) Part {
	return Part{Kind: KindText, Text: text}
}

// NewFile creates a file part.
func NewFile(f File) Part {
	return Part{Kind: KindFile, File: &f}
}

// NewData creates a structured data part.
func NewData(data json.RawMessage) Part {
	return Part{Kind: KindData, Data: data}
}

// MIMEType returns the content type this part delivers as.
func (p Part) MIMEType() string {
	switch p.Kind {
	case KindText:
		return MIMETextPlain
	case KindData:
		return MIMEJSON
	case KindFile:
		if p.File != nil && p.File.MIMEType != "" {
			return p.File.MIMEType
		}
		return "application/octet-stream"
	}
	return ""
}

// Describe renders a short human-readable description, used when richer
// content has to degrade to text during negotiation.
func (p Part) Describe() string {
	switch p.Kind {
	case KindText:
		return p.Text
	case KindData:
		return fmt.Sprintf("[structured data, %d bytes of JSON]", len(p.Data))
	case KindFile:
		name := "file"
		if p.File != nil && p.File.Name != "" {
			name = p.File.Name
		}
		return fmt.Sprintf("[%s (%s) not deliverable in the negotiated format]", name, p.MIMEType())
	}
	return ""
}

// Validate checks that the tagged union is well-formed.
func (p Part) Validate() error {
	switch p.Kind {
	case KindText:
		if p.File != nil || p.Data != nil {
			return errors.New("text part must not carry file or data")
		}
	case KindFile:
		if p.File == nil {
			return errors.New("file part requires file content")
		}
		if len(p.File.Bytes) == 0 && p.File.URI == "" {
			return errors.New("file part requires bytes or uri")
		}
	case KindData:
		if len(p.Data) == 0 {
			return errors.New("data part requires json content")
		}
		if !json.Valid(p.Data) {
			return errors.New("data part content is not valid json")
		}
	default:
		return fmt.Errorf("unknown part kind %q", p.Kind)
	}
	return nil
}
