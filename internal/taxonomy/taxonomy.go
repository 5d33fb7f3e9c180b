// Package taxonomy holds the immutable topic → keyword phrase mapping that drives
// classification.
package taxonomy

import (
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/Adda-Baaj/khobor-topics/internal/domain"
)

//go:embed default.yaml
var defaultTaxonomy []byte

// file is the on-disk layout of a taxonomy file.
type file struct {
	Topics map[string][]string `json:"topics" yaml:"topics"`
}

// Taxonomy maps topic names to ordered keyword phrases. It is never mutated after
// construction and is safe for concurrent use.
type Taxonomy struct {
	topics   []string
	keywords map[string][]string
	phrases  map[string][]string
}

// New validates entries and builds a Taxonomy. Topic names are trimmed and
// lower-cased; phrases keep their order and duplicates.
func New(entries map[string][]string) (*Taxonomy, error) {
	if len(entries) == 0 {
		return nil, fmt.Errorf("%w: taxonomy has no topics", domain.ErrConfiguration)
	}

	t := &Taxonomy{
		topics:   make([]string, 0, len(entries)),
		keywords: make(map[string][]string, len(entries)),
		phrases:  make(map[string][]string, len(entries)),
	}

	for rawName, rawKeywords := range entries {
		name := strings.ToLower(strings.TrimSpace(rawName))
		if name == "" {
			return nil, fmt.Errorf("%w: taxonomy topic name is empty", domain.ErrConfiguration)
		}
		if _, exists := t.keywords[name]; exists {
			return nil, fmt.Errorf("%w: duplicate taxonomy topic %q", domain.ErrConfiguration, name)
		}

		keywords := make([]string, 0, len(rawKeywords))
		phrases := make([]string, 0, len(rawKeywords))
		for _, kw := range rawKeywords {
			p := Normalize(kw)
			if p == "" {
				continue
			}
			keywords = append(keywords, strings.TrimSpace(kw))
			phrases = append(phrases, p)
		}
		if len(phrases) == 0 {
			return nil, fmt.Errorf("%w: taxonomy topic %q has no keywords", domain.ErrConfiguration, name)
		}

		t.topics = append(t.topics, name)
		t.keywords[name] = keywords
		t.phrases[name] = phrases
	}

	sort.Strings(t.topics)
	return t, nil
}

// Default returns the built-in taxonomy.
func Default() (*Taxonomy, error) {
	return Parse(defaultTaxonomy, ".yaml")
}

// Load reads a YAML or JSON taxonomy file. Environment variables in the file are
// expanded before decoding.
func Load(path string) (*Taxonomy, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("%w: taxonomy file path is empty", domain.ErrConfiguration)
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: open taxonomy file: %v", domain.ErrConfiguration, err)
	}
	defer f.Close()

	raw, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("%w: read taxonomy file: %v", domain.ErrConfiguration, err)
	}

	return Parse([]byte(os.ExpandEnv(string(raw))), filepath.Ext(path))
}

// LoadOrDefault loads path, or the built-in taxonomy when path is blank.
func LoadOrDefault(path string) (*Taxonomy, error) {
	if strings.TrimSpace(path) == "" {
		return Default()
	}
	return Load(path)
}

// Parse decodes taxonomy content. ext selects the decoder; an empty ext tries
// YAML then JSON.
func Parse(data []byte, ext string) (*Taxonomy, error) {
	ext = strings.ToLower(strings.TrimSpace(ext))
	decoders := []struct {
		ext string
		fn  func([]byte, any) error
	}{
		{ext: ".yaml", fn: yaml.Unmarshal},
		{ext: ".yml", fn: yaml.Unmarshal},
		{ext: ".json", fn: json.Unmarshal},
	}

	var lastErr error
	for _, d := range decoders {
		if ext != "" && ext != d.ext {
			continue
		}
		var f file
		if err := d.fn(data, &f); err != nil {
			lastErr = err
			continue
		}
		return New(f.Topics)
	}

	if lastErr == nil {
		lastErr = errors.New("expected .yaml, .yml or .json")
	}
	return nil, fmt.Errorf("%w: taxonomy format not recognized: %v", domain.ErrConfiguration, lastErr)
}

// Topics returns the topic names in sorted order.
func (t *Taxonomy) Topics() []string {
	out := make([]string, len(t.topics))
	copy(out, t.topics)
	return out
}

// Has reports whether topic is a known topic name.
func (t *Taxonomy) Has(topic string) bool {
	_, ok := t.phrases[topic]
	return ok
}

// Keywords returns the keywords of topic as written in the source file.
func (t *Taxonomy) Keywords(topic string) []string {
	kws := t.keywords[topic]
	out := make([]string, len(kws))
	copy(out, kws)
	return out
}

// Phrases returns the normalized match phrases of topic. The returned slice must
// not be modified.
func (t *Taxonomy) Phrases(topic string) []string {
	return t.phrases[topic]
}

// Len returns the number of topics.
func (t *Taxonomy) Len() int { return len(t.topics) }
