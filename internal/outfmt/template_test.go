package outfmt

import (
	"bytes"
	"context"
	"strings"
	"testing"
)

func TestWithTemplate(t *testing.T) {
	ctx := WithTemplate(context.Background(), "{{.Title}}")
	if GetTemplate(ctx) != "{{.Title}}" {
		t.Error("GetTemplate should return the template set with WithTemplate")
	}
}

func TestGetTemplate_EmptyByDefault(t *testing.T) {
	if GetTemplate(context.Background()) != "" {
		t.Error("GetTemplate should return empty string by default")
	}
}

func TestWriteTemplate(t *testing.T) {
	var buf bytes.Buffer
	data := map[string]string{"Title": "fix login bug"}
	err := WriteTemplate(&buf, data, "title={{.Title}}")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if buf.String() != "title=fix login bug" {
		t.Errorf("unexpected output: %q", buf.String())
	}
}

func TestWriteTemplate_JSONFunc(t *testing.T) {
	var buf bytes.Buffer
	data := map[string]any{"Status": "RUNNING"}
	err := WriteTemplate(&buf, data, "{{json .}}")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(buf.String(), `"Status": "RUNNING"`) {
		t.Errorf("expected JSON output, got: %q", buf.String())
	}
}

func TestWriteTemplate_InvalidTemplate(t *testing.T) {
	var buf bytes.Buffer
	err := WriteTemplate(&buf, nil, "{{.Title")
	if err == nil {
		t.Error("expected error for invalid template")
	}
	if !strings.Contains(err.Error(), "invalid template") {
		t.Errorf("expected invalid template error, got: %v", err)
	}
}
