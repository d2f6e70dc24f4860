package filter

import (
	"bytes"
	"testing"
)

func TestApply_EmptyExpression(t *testing.T) {
	data := map[string]interface{}{"title": "test"}
	result, err := Apply(data, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.(map[string]interface{})["title"] != "test" {
		t.Error("empty expression should return data unchanged")
	}
}

func TestApply_SelectField(t *testing.T) {
	data := map[string]interface{}{"title": "test", "status": "RUNNING"}
	result, err := Apply(data, ".title")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result != "test" {
		t.Errorf("expected 'test', got %v", result)
	}
}

func TestApply_FilterArray(t *testing.T) {
	data := []interface{}{
		map[string]interface{}{"status": "RUNNING"},
		map[string]interface{}{"status": "STOPPED"},
	}
	result, err := Apply(data, `.[] | select(.status == "RUNNING")`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	m := result.(map[string]interface{})
	if m["status"] != "RUNNING" {
		t.Errorf("expected status 'RUNNING', got %v", m["status"])
	}
}

func TestApply_InvalidExpression(t *testing.T) {
	data := map[string]interface{}{"title": "test"}
	_, err := Apply(data, "invalid[[[")
	if err == nil {
		t.Error("expected error for invalid expression")
	}
}

func TestApply_ShellEscapedNotEqual(t *testing.T) {
	// Zsh escapes != to \!= even in single quotes
	data := []interface{}{
		map[string]interface{}{"title": nil},
		map[string]interface{}{"title": "test"},
	}
	result, err := Apply(data, `.[] | select(.title \!= null)`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	m := result.(map[string]interface{})
	if m["title"] != "test" {
		t.Errorf("expected title 'test', got %v", m["title"])
	}
}

func TestNormalizeExpression(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{`select(.x \!= null)`, `select(.x != null)`},
		{`select(.x != null)`, `select(.x != null)`},
		{`.[] | select(.a \!= .b)`, `.[] | select(.a != .b)`},
		{`select(.x == "test")`, `select(.x == "test")`},
	}
	for _, tt := range tests {
		got := NormalizeExpression(tt.input)
		if got != tt.expected {
			t.Errorf("NormalizeExpression(%q) = %q, want %q", tt.input, got, tt.expected)
		}
	}
}

func TestApplyToJSON_ValidJSON(t *testing.T) {
	jsonData := []byte(`{"title": "test", "status": "RUNNING"}`)
	result, err := ApplyToJSON(jsonData, ".title")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !bytes.Contains(result, []byte(`"test"`)) {
		t.Error("expected JSON output to contain filtered result")
	}
}

func TestApplyToJSON_InvalidJSON(t *testing.T) {
	_, err := ApplyToJSON([]byte(`{invalid}`), ".title")
	if err == nil {
		t.Error("expected error for invalid JSON")
	}
}

func TestApplyToJSON_EmptyExpression(t *testing.T) {
	jsonData := []byte(`{"title": "test"}`)
	result, err := ApplyToJSON(jsonData, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !bytes.Equal(jsonData, result) {
		t.Errorf("empty expression should return original JSON unchanged")
	}
}

func TestApplyFromJSON_WithExpression(t *testing.T) {
	jsonData := []byte(`{"title": "test", "status": "RUNNING"}`)
	result, err := ApplyFromJSON(jsonData, ".title")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result != "test" {
		t.Errorf("expected 'test', got %v", result)
	}
}

func TestApplyFromJSON_InvalidJSON(t *testing.T) {
	_, err := ApplyFromJSON([]byte(`{invalid}`), ".title")
	if err == nil {
		t.Error("expected error for invalid JSON")
	}
}

func TestApply_RootArrayQueryFallsBackToResults(t *testing.T) {
	data := map[string]any{
		"results": []any{
			map[string]any{"conversation_id": "aaa"},
			map[string]any{"conversation_id": "bbb"},
		},
		"next_page_id": "tok",
	}

	result, err := Apply(data, `.[].conversation_id`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	values, ok := result.([]any)
	if !ok {
		t.Fatalf("expected []any result, got %T (%v)", result, result)
	}
	if len(values) != 2 {
		t.Fatalf("expected 2 results, got %d (%v)", len(values), values)
	}
	if values[0] != "aaa" || values[1] != "bbb" {
		t.Fatalf("unexpected values: %v", values)
	}
}

func TestApply_RootArrayQueryWithoutResultsStillErrors(t *testing.T) {
	data := map[string]any{
		"payload": []any{map[string]any{"id": 1}},
	}

	_, err := Apply(data, `.[].id`)
	if err == nil {
		t.Fatal("expected error for root-array query on non-results object")
	}
}
