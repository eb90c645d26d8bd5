package part_test

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/harmonium-ai/harmonium/internal/domain/part"
)

func TestPartValidate(t *testing.T) {
	if err := part.NewText("hello").Validate(); err != nil {
		t.Fatalf("text part: %v", err)
	}
	if err := part.NewData(json.RawMessage(`{"k":1}`)).Validate(); err != nil {
		t.Fatalf("data part: %v", err)
	}
	if err := part.NewFile(part.File{Bytes: []byte{1}, MIMEType: "text/html"}).Validate(); err != nil {
		t.Fatalf("file part: %v", err)
	}

	if err := (part.Part{Kind: part.KindData, Data: json.RawMessage(`{bad`)}).Validate(); err == nil {
		t.Fatal("expected error for invalid json data")
	}
	if err := (part.Part{Kind: part.KindFile}).Validate(); err == nil {
		t.Fatal("expected error for empty file part")
	}
	if err := (part.Part{Kind: "blob"}).Validate(); err == nil {
		t.Fatal("expected error for unknown kind")
	}
}

func TestPartMIMEType(t *testing.T) {
	if got := part.NewText("x").MIMEType(); got != part.MIMETextPlain {
		t.Fatalf("text: %s", got)
	}
	if got := part.NewData(json.RawMessage(`1`)).MIMEType(); got != part.MIMEJSON {
		t.Fatalf("data: %s", got)
	}
	f := part.NewFile(part.File{URI: "https://x/report.html", MIMEType: "text/html"})
	if got := f.MIMEType(); got != "text/html" {
		t.Fatalf("file: %s", got)
	}
	bare := part.NewFile(part.File{Bytes: []byte{1}})
	if got := bare.MIMEType(); got != "application/octet-stream" {
		t.Fatalf("bare file: %s", got)
	}
}

func TestArtifactAppendAndSeal(t *testing.T) {
	a := part.NewArtifact("a1", "report")
	if err := a.Append(part.NewText("chunk 1")); err != nil {
		t.Fatal(err)
	}
	if err := a.Append(part.NewText("chunk 2"), part.NewText("chunk 3")); err != nil {
		t.Fatal(err)
	}
	a.Seal()
	if !a.Sealed() {
		t.Fatal("expected sealed")
	}
	if err := a.Append(part.NewText("late")); !errors.Is(err, part.ErrArtifactSealed) {
		t.Fatalf("expected ErrArtifactSealed, got %v", err)
	}
	if len(a.Parts) != 3 {
		t.Fatalf("expected 3 parts, got %d", len(a.Parts))
	}
	if a.Parts[0].Text != "chunk 1" || a.Parts[2].Text != "chunk 3" {
		t.Fatal("append order not preserved")
	}
}

func TestArtifactSnapshot_NoAliasing(t *testing.T) {
	a := part.NewArtifact("a1", "")
	_ = a.Append(part.NewText("one"))
	snap := a.Snapshot()
	_ = a.Append(part.NewText("two"))
	if len(snap.Parts) != 1 {
		t.Fatalf("snapshot grew with source: %d parts", len(snap.Parts))
	}
}
