package dryrun

import (
	"bytes"
	"context"
	"strings"
	"testing"
)

func TestWithDryRun(t *testing.T) {
	if !IsEnabled(WithDryRun(context.Background(), true)) {
		t.Error("IsEnabled should return true after WithDryRun(true)")
	}
	if IsEnabled(WithDryRun(context.Background(), false)) {
		t.Error("IsEnabled should return false after WithDryRun(false)")
	}
	if IsEnabled(context.Background()) {
		t.Error("IsEnabled should default to false")
	}
}

func TestPreviewWrite(t *testing.T) {
	p := &Preview{
		Operation:   "wake",
		Resource:    "conversation",
		Description: "Start runtime for aaaa1111 (Fix login bug)",
		Details: map[string]any{
			"status":          "STOPPED",
			"conversation_id": "aaaa1111-1111-1111-1111-111111111111",
		},
	}

	var buf bytes.Buffer
	p.Write(&buf)
	output := buf.String()

	if !strings.Contains(output, "[DRY-RUN] Would wake conversation") {
		t.Errorf("missing header, got:\n%s", output)
	}
	if !strings.Contains(output, "Start runtime for aaaa1111") {
		t.Error("missing description")
	}

	// Detail keys print in sorted order.
	idIdx := strings.Index(output, "conversation_id:")
	statusIdx := strings.Index(output, "status:")
	if idIdx < 0 || statusIdx < 0 || idIdx > statusIdx {
		t.Errorf("details missing or unsorted, got:\n%s", output)
	}
}

func TestPreviewWriteWarnings(t *testing.T) {
	p := &Preview{
		Operation: "save",
		Resource:  "workspace files",
		Warnings:  []string{"existing files in the target directory will be overwritten"},
	}

	var buf bytes.Buffer
	p.Write(&buf)
	output := buf.String()

	if !strings.Contains(output, "Warnings:") {
		t.Error("missing warnings section")
	}
	if !strings.Contains(output, "will be overwritten") {
		t.Error("missing warning message")
	}
	if !strings.Contains(output, "No changes made") {
		t.Error("missing footer")
	}
}
