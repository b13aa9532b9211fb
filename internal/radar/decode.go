package radar

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

type topicFile struct {
	Topics []Topic `json:"topics" yaml:"topics"`
}

// LoadTopics reads topic definitions from a YAML or JSON file.
func LoadTopics(path string) ([]Topic, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read topics file %s: %w", path, err)
	}
	format := "yaml"
	if strings.EqualFold(filepath.Ext(path), ".json") {
		format = "json"
	}
	topics, err := DecodeTopics(raw, format)
	if err != nil {
		return nil, fmt.Errorf("decode topics file %s: %w", path, err)
	}
	return topics, nil
}

// DecodeTopics parses and validates topic definitions. Unknown fields are rejected.
func DecodeTopics(data []byte, format string) ([]Topic, error) {
	var file topicFile
	switch format {
	case "json":
		decoder := json.NewDecoder(bytes.NewReader(data))
		decoder.DisallowUnknownFields()
		if err := decoder.Decode(&file); err != nil {
			return nil, fmt.Errorf("decode JSON: %w", err)
		}
	case "yaml", "yml":
		decoder := yaml.NewDecoder(bytes.NewReader(data))
		decoder.KnownFields(true)
		if err := decoder.Decode(&file); err != nil {
			return nil, fmt.Errorf("decode YAML: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported topics format %q", format)
	}

	topics := make([]Topic, 0, len(file.Topics))
	for _, t := range file.Topics {
		t.ID = strings.TrimSpace(t.ID)
		t.Title = strings.TrimSpace(t.Title)
		t.Keywords = normalizeKeywords(t.Keywords)
		topics = append(topics, t)
	}
	if len(topics) == 0 {
		return nil, fmt.Errorf("no topics defined")
	}
	if err := ValidateTopics(topics); err != nil {
		return nil, err
	}
	return topics, nil
}

func dedupeStrings(values []string) []string {
	if len(values) <= 1 {
		return values
	}
	seen := make(map[string]struct{}, len(values))
	var out []string
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		key := strings.ToLower(v)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, v)
	}
	return out
}
