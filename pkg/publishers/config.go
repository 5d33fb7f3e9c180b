package publishers

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/Adda-Baaj/khobor-topics/internal/domain"
)

const (
	// Supported publisher types.
	TypeQueue = "queue"
	TypeHTTP  = "http"

	// Supported queue providers.
	QueueProviderAWSSQS = "aws-sqs"
	QueueProviderAWSSNS = "aws-sns"
	QueueProviderGCP    = "gcp"

	httpDefaultMethod         = "POST"
	httpDefaultTimeoutSeconds = 5
)

// configFile is the layout of PUBLISHERS_FILE.
type configFile struct {
	Publishers []PublisherConfig `json:"publishers" yaml:"publishers"`
}

// PublisherConfig is one sink declared in the publishers file.
type PublisherConfig struct {
	ID      string                `json:"id" yaml:"id"`
	Type    string                `json:"type" yaml:"type"`
	Enabled *bool                 `json:"enabled" yaml:"enabled"`
	Topics  []string              `json:"topics" yaml:"topics"`
	Queue   *QueuePublisherConfig `json:"queue" yaml:"queue"`
	HTTP    *HTTPPublisherConfig  `json:"http" yaml:"http"`
}

// QueuePublisherConfig selects a cloud queue provider.
type QueuePublisherConfig struct {
	Provider string                 `json:"provider" yaml:"provider"`
	AWS      *AWSSQSPublisherConfig `json:"aws" yaml:"aws"`
	SNS      *AWSSNSPublisherConfig `json:"sns" yaml:"sns"`
	GCP      *GCPQueueConfig        `json:"gcp" yaml:"gcp"`
}

// AWSSQSPublisherConfig holds AWS SQS settings. Empty keys fall back to the
// default AWS credential chain.
type AWSSQSPublisherConfig struct {
	QueueURL        string `json:"uri" yaml:"uri"`
	Region          string `json:"region" yaml:"region"`
	AccessKeyID     string `json:"access_key_id" yaml:"access_key_id"`
	SecretAccessKey string `json:"secret_access_key" yaml:"secret_access_key"`
}

// AWSSNSPublisherConfig holds AWS SNS settings.
type AWSSNSPublisherConfig struct {
	TopicARN        string `json:"topic_arn" yaml:"topic_arn"`
	Region          string `json:"region" yaml:"region"`
	AccessKeyID     string `json:"access_key_id" yaml:"access_key_id"`
	SecretAccessKey string `json:"secret_access_key" yaml:"secret_access_key"`
}

// GCPQueueConfig holds Pub/Sub topic settings.
type GCPQueueConfig struct {
	ProjectID       string `json:"project_id" yaml:"project_id"`
	Topic           string `json:"topic" yaml:"topic"`
	CredentialsFile string `json:"credentials_file" yaml:"credentials_file"`
}

// HTTPPublisherConfig holds webhook settings.
type HTTPPublisherConfig struct {
	URL            string            `json:"url" yaml:"url"`
	Method         string            `json:"method" yaml:"method"`
	Headers        map[string]string `json:"headers" yaml:"headers"`
	TimeoutSeconds int               `json:"timeout_seconds" yaml:"timeout_seconds"`
}

// ConfigRegistry holds the validated publisher definitions.
type ConfigRegistry struct {
	mu         sync.RWMutex
	publishers []PublisherConfig
	idx        map[string]PublisherConfig
}

// LoadRegistry reads a YAML or JSON publishers file. Environment variables in the
// file are expanded. Every error wraps domain.ErrConfiguration.
func LoadRegistry(path string) (*ConfigRegistry, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("%w: publishers file path is empty", domain.ErrConfiguration)
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: read publishers file: %v", domain.ErrConfiguration, err)
	}

	return ParseRegistry([]byte(os.ExpandEnv(string(raw))), filepath.Ext(path))
}

// ParseRegistry decodes and validates publisher definitions. ext selects the
// decoder; an empty ext tries YAML then JSON.
func ParseRegistry(data []byte, ext string) (*ConfigRegistry, error) {
	file, err := decodeConfigFile(data, ext)
	if err != nil {
		return nil, err
	}

	reg := &ConfigRegistry{
		publishers: make([]PublisherConfig, 0, len(file.Publishers)),
		idx:        make(map[string]PublisherConfig, len(file.Publishers)),
	}

	for i := range file.Publishers {
		cfg := sanitizePublisherConfig(file.Publishers[i])
		if err := validatePublisherConfig(cfg); err != nil {
			return nil, fmt.Errorf("%w: publishers[%d]: %v", domain.ErrConfiguration, i, err)
		}
		if _, exists := reg.idx[cfg.ID]; exists {
			return nil, fmt.Errorf("%w: duplicate publisher id %q", domain.ErrConfiguration, cfg.ID)
		}
		reg.publishers = append(reg.publishers, cfg)
		reg.idx[cfg.ID] = cfg
	}

	return reg, nil
}

func decodeConfigFile(data []byte, ext string) (configFile, error) {
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
		var file configFile
		if err := d.fn(data, &file); err != nil {
			lastErr = err
			continue
		}
		return file, nil
	}

	if lastErr == nil {
		return configFile{}, fmt.Errorf("%w: publishers file extension %q not supported", domain.ErrConfiguration, ext)
	}
	return configFile{}, fmt.Errorf("%w: decode publishers file: %v", domain.ErrConfiguration, lastErr)
}

// sanitizePublisherConfig trims and normalizes the publisher config fields.
func sanitizePublisherConfig(cfg PublisherConfig) PublisherConfig {
	cfg.ID = strings.TrimSpace(cfg.ID)
	cfg.Type = strings.ToLower(strings.TrimSpace(cfg.Type))

	if cfg.Enabled == nil {
		def := true
		cfg.Enabled = &def
	}

	topics := make([]string, 0, len(cfg.Topics))
	for _, t := range cfg.Topics {
		if t = strings.ToLower(strings.TrimSpace(t)); t != "" {
			topics = append(topics, t)
		}
	}
	cfg.Topics = topics

	if cfg.Queue != nil {
		qc := *cfg.Queue
		qc.Provider = strings.ToLower(strings.TrimSpace(qc.Provider))
		if qc.AWS != nil {
			a := *qc.AWS
			a.QueueURL = strings.TrimSpace(a.QueueURL)
			a.Region = strings.TrimSpace(a.Region)
			a.AccessKeyID = strings.TrimSpace(a.AccessKeyID)
			a.SecretAccessKey = strings.TrimSpace(a.SecretAccessKey)
			qc.AWS = &a
		}
		if qc.SNS != nil {
			s := *qc.SNS
			s.TopicARN = strings.TrimSpace(s.TopicARN)
			s.Region = strings.TrimSpace(s.Region)
			s.AccessKeyID = strings.TrimSpace(s.AccessKeyID)
			s.SecretAccessKey = strings.TrimSpace(s.SecretAccessKey)
			qc.SNS = &s
		}
		if qc.GCP != nil {
			g := *qc.GCP
			g.ProjectID = strings.TrimSpace(g.ProjectID)
			g.Topic = strings.TrimSpace(g.Topic)
			g.CredentialsFile = strings.TrimSpace(g.CredentialsFile)
			qc.GCP = &g
		}
		cfg.Queue = &qc
	}
	if cfg.HTTP != nil {
		c := *cfg.HTTP
		c.URL = strings.TrimSpace(c.URL)
		c.Method = strings.ToUpper(strings.TrimSpace(c.Method))
		if c.Method == "" {
			c.Method = httpDefaultMethod
		}
		c.Headers = sanitizeHeaders(c.Headers)
		if c.TimeoutSeconds <= 0 {
			c.TimeoutSeconds = httpDefaultTimeoutSeconds
		}
		cfg.HTTP = &c
	}

	return cfg
}

// sanitizeHeaders trims and removes empty headers.
func sanitizeHeaders(headers map[string]string) map[string]string {
	out := make(map[string]string, len(headers))
	for k, v := range headers {
		key := strings.TrimSpace(k)
		val := strings.TrimSpace(v)
		if key == "" || val == "" {
			continue
		}
		out[key] = val
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// validatePublisherConfig checks that required fields are present.
func validatePublisherConfig(cfg PublisherConfig) error {
	if cfg.ID == "" {
		return fmt.Errorf("id is required")
	}
	switch cfg.Type {
	case "":
		return fmt.Errorf("type is required for publisher %q", cfg.ID)
	case TypeQueue:
		if cfg.Queue == nil {
			return fmt.Errorf("queue config required for publisher %q", cfg.ID)
		}
		switch cfg.Queue.Provider {
		case QueueProviderAWSSQS:
			return validateSQSConfig(cfg.ID, cfg.Queue.AWS)
		case QueueProviderAWSSNS:
			return validateSNSConfig(cfg.ID, cfg.Queue.SNS)
		case QueueProviderGCP:
			return validateGCPConfig(cfg.ID, cfg.Queue.GCP)
		default:
			return fmt.Errorf("queue provider %q not supported for publisher %q", cfg.Queue.Provider, cfg.ID)
		}
	case TypeHTTP:
		if cfg.HTTP == nil {
			return fmt.Errorf("http config required for publisher %q", cfg.ID)
		}
		if cfg.HTTP.URL == "" {
			return fmt.Errorf("http.url is required for publisher %q", cfg.ID)
		}
	default:
		return fmt.Errorf("type %q not supported for publisher %q", cfg.Type, cfg.ID)
	}
	return nil
}

func validateSQSConfig(id string, cfg *AWSSQSPublisherConfig) error {
	if cfg == nil {
		return fmt.Errorf("aws config required for publisher %q", id)
	}
	if cfg.QueueURL == "" {
		return fmt.Errorf("aws.uri is required for publisher %q", id)
	}
	if cfg.Region == "" {
		return fmt.Errorf("aws.region is required for publisher %q", id)
	}
	return validateKeyPair(id, "aws", cfg.AccessKeyID, cfg.SecretAccessKey)
}

func validateSNSConfig(id string, cfg *AWSSNSPublisherConfig) error {
	if cfg == nil {
		return fmt.Errorf("sns config required for publisher %q", id)
	}
	if cfg.TopicARN == "" {
		return fmt.Errorf("sns.topic_arn is required for publisher %q", id)
	}
	if cfg.Region == "" {
		return fmt.Errorf("sns.region is required for publisher %q", id)
	}
	return validateKeyPair(id, "sns", cfg.AccessKeyID, cfg.SecretAccessKey)
}

// validateKeyPair requires static keys to be given together or not at all.
func validateKeyPair(id, section, keyID, secret string) error {
	if (keyID == "") != (secret == "") {
		return fmt.Errorf("%s.access_key_id and %s.secret_access_key must be set together for publisher %q", section, section, id)
	}
	return nil
}

func validateGCPConfig(id string, cfg *GCPQueueConfig) error {
	if cfg == nil {
		return fmt.Errorf("gcp config required for publisher %q", id)
	}
	if cfg.ProjectID == "" {
		return fmt.Errorf("gcp.project_id is required for publisher %q", id)
	}
	if cfg.Topic == "" {
		return fmt.Errorf("gcp.topic is required for publisher %q", id)
	}
	return nil
}

// ByID returns the publisher config by id.
func (r *ConfigRegistry) ByID(id string) (PublisherConfig, bool) {
	if r == nil {
		return PublisherConfig{}, false
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	cfg, ok := r.idx[strings.TrimSpace(id)]
	return cfg, ok
}

// All returns all configured publishers in file order.
func (r *ConfigRegistry) All() []PublisherConfig {
	if r == nil {
		return nil
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]PublisherConfig, len(r.publishers))
	copy(out, r.publishers)
	return out
}

// Enabled returns publishers that are enabled.
func (r *ConfigRegistry) Enabled() []PublisherConfig {
	var out []PublisherConfig
	for _, cfg := range r.All() {
		if cfg.EnabledValue() {
			out = append(out, cfg)
		}
	}
	return out
}

// EnabledValue returns the enabled flag, defaulting to true.
func (cfg PublisherConfig) EnabledValue() bool {
	if cfg.Enabled == nil {
		return true
	}
	return *cfg.Enabled
}

// Accepts reports whether an article tagged with topics should reach this
// publisher. An empty Topics list accepts everything.
func (cfg PublisherConfig) Accepts(topics []string) bool {
	if len(cfg.Topics) == 0 {
		return true
	}
	for _, want := range cfg.Topics {
		for _, t := range topics {
			if t == want {
				return true
			}
		}
	}
	return false
}
