package radar

import (
	"os"
	"path/filepath"
	"testing"
)

const topicsYAML = `
topics:
  - id: zk
    title: Zero-knowledge compression
    keywords: [" ZK ", "compression", "zk"]
    ideaTemplates:
      - one
      - two
      - three
`

func TestLoadTopicsYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "topics.yaml")
	if err := os.WriteFile(path, []byte(topicsYAML), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	topics, err := LoadTopics(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(topics) != 1 || topics[0].ID != "zk" {
		t.Fatalf("unexpected topics %+v", topics)
	}
	if len(topics[0].Keywords) != 2 || topics[0].Keywords[0] != "zk" {
		t.Fatalf("keywords should be trimmed, lower-cased and deduplicated, got %q", topics[0].Keywords)
	}
}

func TestDecodeTopicsRejectsInvalid(t *testing.T) {
	cases := map[string]string{
		"unknown field": `{"topics":[{"id":"a","title":"A","keywords":["x"],"idea_templates":["1","2","3"],"extra":1}]}`,
		"few ideas":     `{"topics":[{"id":"a","title":"A","keywords":["x"],"idea_templates":["1","2"]}]}`,
		"no keywords":   `{"topics":[{"id":"a","title":"A","keywords":[" "],"idea_templates":["1","2","3"]}]}`,
		"duplicate id":  `{"topics":[{"id":"a","title":"A","keywords":["x"],"idea_templates":["1","2","3"]},{"id":"a","title":"B","keywords":["y"],"idea_templates":["1","2","3"]}]}`,
		"empty":         `{"topics":[]}`,
	}
	for name, raw := range cases {
		if _, err := DecodeTopics([]byte(raw), "json"); err == nil {
			t.Errorf("%s: expected error", name)
		}
	}
}

func TestDefaultTopicsAreValid(t *testing.T) {
	if err := ValidateTopics(DefaultTopics()); err != nil {
		t.Fatalf("default topics: %v", err)
	}
}
