package output

import (
	"fmt"
	"os"
	"strings"
)

// KeyValueData represents key-value pair output
type KeyValueData struct {
	Title string     `json:"title,omitempty" yaml:"title,omitempty"`
	Pairs []KeyValue `json:"pairs" yaml:"pairs"`
}

// KeyValue represents a single key-value pair
type KeyValue struct {
	Key   string `json:"key" yaml:"key"`
	Value string `json:"value" yaml:"value"`
}

// KeyValueBuilder provides a fluent API for building key-value output
type KeyValueBuilder struct {
	data *KeyValueData
}

// NewKeyValue creates a new KeyValueBuilder with the given title
func NewKeyValue(title string) *KeyValueBuilder {
	return &KeyValueBuilder{
		data: &KeyValueData{
			Title: title,
			Pairs: []KeyValue{},
		},
	}
}

// Add adds a key-value pair
func (kvb *KeyValueBuilder) Add(key, value string) *KeyValueBuilder {
	kvb.data.Pairs = append(kvb.data.Pairs, KeyValue{Key: key, Value: value})
	return kvb
}

// AddSection adds a blank line for visual grouping
func (kvb *KeyValueBuilder) AddSection() *KeyValueBuilder {
	kvb.data.Pairs = append(kvb.data.Pairs, KeyValue{Key: "", Value: ""})
	return kvb
}

// AddBytes adds a key-value pair whose value is a byte count formatted in
// the largest unit (B/KB/MB/GB) that keeps the number above 1, the way
// `du -h`/`npm cache verify` report on-disk size.
func (kvb *KeyValueBuilder) AddBytes(key string, n int64) *KeyValueBuilder {
	return kvb.Add(key, FormatBytes(n))
}

// FormatBytes renders n bytes as a human-readable size string.
func FormatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for x := n / unit; x >= unit; x /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(n)/float64(div), "KMGTPE"[exp])
}

// Format outputs the key-value data in the specified format
func (kvb *KeyValueBuilder) Format(format Format) error {
	return FormatOutput(kvb.data, format)
}

// formatKeyValueData renders KeyValueData in the requested format
func formatKeyValueData(data *KeyValueData, format Format) error {
	switch format {
	case Table:
		return renderKeyValue(data)
	case JSON:
		return EncodeJSON(os.Stdout, data)
	case YAML:
		return EncodeYAML(os.Stdout, data)
	default:
		return fmt.Errorf("unsupported format: %s", format)
	}
}

// renderKeyValue renders KeyValueData as human-readable text
func renderKeyValue(data *KeyValueData) error {
	if data.Title != "" {
		fmt.Println(data.Title)
		fmt.Println(strings.Repeat("=", len(data.Title)))
		fmt.Println()
	}

	for _, kv := range data.Pairs {
		if kv.Key == "" {
			fmt.Println()
			continue
		}
		fmt.Printf("%s: %s\n", kv.Key, kv.Value)
	}

	return nil
}
