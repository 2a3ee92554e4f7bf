package pdfgen

import (
	"bytes"
	"testing"
)

func TestBuild_Structure(t *testing.T) {
	doc := Build(Uniform(3, 612, 792))
	if !bytes.HasPrefix(doc, []byte("%PDF-1.4")) {
		t.Fatal("missing header")
	}
	if !bytes.Contains(doc, []byte("/Count 3")) {
		t.Fatal("expected page count 3")
	}
	if !bytes.HasSuffix(doc, []byte("%%EOF\n")) {
		t.Fatal("missing EOF marker")
	}
}
