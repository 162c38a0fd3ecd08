package output

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"testing"

	"gopkg.in/yaml.v3"
)

func TestFormatOutput_TableData(t *testing.T) {
	data := &TableData{
		Headers: []string{"Tier", "Available"},
		Rows: [][]string{
			{"local", "yes"},
			{"registry", "no"},
		},
	}

	oldStdout := os.Stdout
	r, w, _ := os.Pipe()
	os.Stdout = w

	err := FormatOutput(data, JSON)
	w.Close()
	os.Stdout = oldStdout
	if err != nil {
		t.Fatalf("FormatOutput(TableData, JSON) failed: %v", err)
	}

	var buf bytes.Buffer
	io.Copy(&buf, r)

	var result TableData
	if err := json.Unmarshal(buf.Bytes(), &result); err != nil {
		t.Fatalf("Failed to parse JSON output: %v", err)
	}
	if len(result.Headers) != 2 {
		t.Errorf("Expected 2 headers, got %d", len(result.Headers))
	}
}

func TestFormatOutput_KeyValueData(t *testing.T) {
	data := &KeyValueData{
		Title: "Cache Stats",
		Pairs: []KeyValue{
			{Key: "Tarballs", Value: "3"},
			{Key: "Mirror clones", Value: "2"},
		},
	}

	oldStdout := os.Stdout
	r, w, _ := os.Pipe()
	os.Stdout = w

	err := FormatOutput(data, YAML)
	w.Close()
	os.Stdout = oldStdout
	if err != nil {
		t.Fatalf("FormatOutput(KeyValueData, YAML) failed: %v", err)
	}

	var buf bytes.Buffer
	io.Copy(&buf, r)

	var result KeyValueData
	if err := yaml.Unmarshal(buf.Bytes(), &result); err != nil {
		t.Fatalf("Failed to parse YAML output: %v", err)
	}
	if result.Title != "Cache Stats" {
		t.Errorf("Expected title 'Cache Stats', got %q", result.Title)
	}
}

// mockRenderable implements Renderable for testing FormatOutput's dispatch.
type mockRenderable struct {
	renderCalled bool
	renderFormat Format
	renderErr    error
}

func (m *mockRenderable) Render(format Format) error {
	m.renderCalled = true
	m.renderFormat = format
	return m.renderErr
}

func TestFormatOutput_Renderable(t *testing.T) {
	mock := &mockRenderable{}
	if err := FormatOutput(mock, JSON); err != nil {
		t.Fatalf("FormatOutput(Renderable) failed: %v", err)
	}
	if !mock.renderCalled {
		t.Error("Expected Render() to be called")
	}
	if mock.renderFormat != JSON {
		t.Errorf("Expected format JSON, got %v", mock.renderFormat)
	}
}

func TestFormatOutput_Renderable_Error(t *testing.T) {
	expectedErr := fmt.Errorf("render error")
	mock := &mockRenderable{renderErr: expectedErr}

	err := FormatOutput(mock, Table)
	if err != expectedErr {
		t.Errorf("Expected error %v, got %v", expectedErr, err)
	}
}

func TestFormatOutput_Generic_YAML(t *testing.T) {
	data := map[string]string{"tier": "local", "status": "available"}

	oldStdout := os.Stdout
	r, w, _ := os.Pipe()
	os.Stdout = w

	err := FormatOutput(data, YAML)
	w.Close()
	os.Stdout = oldStdout
	if err != nil {
		t.Fatalf("FormatOutput(generic, YAML) failed: %v", err)
	}

	var buf bytes.Buffer
	io.Copy(&buf, r)

	var result map[string]string
	if err := yaml.Unmarshal(buf.Bytes(), &result); err != nil {
		t.Fatalf("Failed to parse YAML output: %v", err)
	}
	if result["tier"] != "local" {
		t.Errorf("Expected tier='local', got %v", result["tier"])
	}
}

func TestFormatOutput_NilData(t *testing.T) {
	oldStdout := os.Stdout
	r, w, _ := os.Pipe()
	os.Stdout = w

	err := FormatOutput(nil, JSON)
	w.Close()
	os.Stdout = oldStdout
	if err != nil {
		t.Fatalf("FormatOutput(nil, JSON) failed: %v", err)
	}

	var buf bytes.Buffer
	io.Copy(&buf, r)

	out := strings.TrimSpace(buf.String())
	if out != "null" {
		t.Errorf("Expected 'null' for nil data, got %q", out)
	}
}

func TestFormatOutput_TableBuilder_Integration(t *testing.T) {
	builder := NewTable("Tier", "Available")
	builder.AddRow("local", "yes")
	builder.AddRow("git", "yes")

	oldStdout := os.Stdout
	r, w, _ := os.Pipe()
	os.Stdout = w

	err := builder.Format(JSON)
	w.Close()
	os.Stdout = oldStdout
	if err != nil {
		t.Fatalf("TableBuilder.Format(JSON) failed: %v", err)
	}

	var buf bytes.Buffer
	io.Copy(&buf, r)

	var result TableData
	if err := json.Unmarshal(buf.Bytes(), &result); err != nil {
		t.Fatalf("Failed to parse JSON output: %v", err)
	}
	if len(result.Rows) != 2 {
		t.Errorf("Expected 2 rows, got %d", len(result.Rows))
	}
}

func TestFormatOutput_KeyValueBuilder_Integration(t *testing.T) {
	builder := NewKeyValue("Cache Stats")
	builder.Add("Tarballs", "3")
	builder.Add("Mirror clones", "2")

	oldStdout := os.Stdout
	r, w, _ := os.Pipe()
	os.Stdout = w

	err := builder.Format(YAML)
	w.Close()
	os.Stdout = oldStdout
	if err != nil {
		t.Fatalf("KeyValueBuilder.Format(YAML) failed: %v", err)
	}

	var buf bytes.Buffer
	io.Copy(&buf, r)

	var result KeyValueData
	if err := yaml.Unmarshal(buf.Bytes(), &result); err != nil {
		t.Fatalf("Failed to parse YAML output: %v", err)
	}
	if result.Title != "Cache Stats" {
		t.Errorf("Expected title 'Cache Stats', got %q", result.Title)
	}
	if len(result.Pairs) != 2 {
		t.Errorf("Expected 2 pairs, got %d", len(result.Pairs))
	}
}
