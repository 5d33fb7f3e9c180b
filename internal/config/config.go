// Package config loads runtime settings from defaults, an optional config file,
// an optional .env file and the process environment, in increasing precedence.
package config

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/Adda-Baaj/khobor-topics/internal/domain"
)

// Settings is one resolved view of the configuration.
type Settings struct {
	MinContentSize   int           `mapstructure:"min_content_size" json:"min_content_size"`
	MinTitleSize     int           `mapstructure:"min_title_size" json:"min_title_size"`
	ScoreThreshold   int           `mapstructure:"score_threshold" json:"score_threshold"`
	GetFullText      bool          `mapstructure:"get_full_text" json:"get_full_text"`
	FullTextRPS      float64       `mapstructure:"full_text_rps" json:"full_text_rps"`
	HoursBack        int           `mapstructure:"hours_back" json:"hours_back"`
	FetchOffsetHours int           `mapstructure:"fetch_offset_hours" json:"fetch_offset_hours"`
	Fetcher          string        `mapstructure:"fetcher" json:"fetcher"`
	NewsAPIKey       string        `mapstructure:"news_api_key" json:"-"`
	NewsAPIURL       string        `mapstructure:"news_api_url" json:"news_api_url"`
	NewsAPILanguage  string        `mapstructure:"news_api_language" json:"news_api_language"`
	NewsAPISortBy    string        `mapstructure:"news_api_sort_by" json:"news_api_sort_by"`
	SitemapURLs      []string      `mapstructure:"sitemap_urls" json:"sitemap_urls"`
	UserAgent        string        `mapstructure:"user_agent" json:"user_agent"`
	StoreBackend     string        `mapstructure:"store_backend" json:"store_backend"`
	DBPath           string        `mapstructure:"db_path" json:"db_path"`
	TaxonomyFile     string        `mapstructure:"taxonomy_file" json:"taxonomy_file"`
	PublishersFile   string        `mapstructure:"publishers_file" json:"publishers_file"`
	HTTPAddr         string        `mapstructure:"http_addr" json:"http_addr"`
	LogLevel         string        `mapstructure:"log_level" json:"log_level"`
	Workers          int           `mapstructure:"workers" json:"workers"`
	HTTPTimeout      time.Duration `mapstructure:"http_timeout" json:"http_timeout"`
	FullTextTimeout  time.Duration `mapstructure:"full_text_timeout" json:"full_text_timeout"`
	ArticleTimeout   time.Duration `mapstructure:"article_timeout" json:"article_timeout"`
	FetchTimeout     time.Duration `mapstructure:"fetch_timeout" json:"fetch_timeout"`
	RunInterval      time.Duration `mapstructure:"run_interval" json:"run_interval"`
}

// Snapshot is an immutable, versioned copy of the settings taken at the start of
// a run. Version changes whenever any setting changes.
type Snapshot struct {
	Version  string
	LoadedAt time.Time
	Settings Settings
}

var defaults = map[string]any{
	"min_content_size":   1000,
	"min_title_size":     15,
	"score_threshold":    2,
	"get_full_text":      false,
	"full_text_rps":      5.0,
	"hours_back":         24,
	"fetch_offset_hours": 24,
	"fetcher":            "newsapi",
	"news_api_key":       "",
	"news_api_url":       "https://newsapi.org/v2/everything",
	"news_api_language":  "en",
	"news_api_sort_by":   "popularity",
	"sitemap_urls":       []string{},
	"user_agent":         "",
	"store_backend":      "bolt",
	"db_path":            "data/articles.db",
	"taxonomy_file":      "",
	"publishers_file":    "",
	"http_addr":          ":8080",
	"log_level":          "info",
	"workers":            10,
	"http_timeout":       "15s",
	"full_text_timeout":  "5s",
	"article_timeout":    "30s",
	"fetch_timeout":      "60s",
	"run_interval":       "10m",
}

// Loader resolves settings. It re-reads its sources on every Load so that a run
// always sees the current configuration.
type Loader struct {
	// EnvFile is the dotenv file to read; empty means ".env". A missing file is
	// not an error.
	EnvFile string
	// ConfigFile is an optional YAML or JSON file. When empty, CONFIG_FILE from
	// the environment is used.
	ConfigFile string

	now func() time.Time
}

// NewLoader returns a Loader with the default sources.
func NewLoader() *Loader {
	return &Loader{now: time.Now}
}

// Load resolves and validates a new snapshot. Every error wraps
// domain.ErrConfiguration.
func (l *Loader) Load() (Snapshot, error) {
	v := viper.New()
	for k, val := range defaults {
		v.SetDefault(k, val)
	}
	v.AutomaticEnv()

	if err := l.applyDotenv(v); err != nil {
		return Snapshot{}, err
	}

	path := strings.TrimSpace(l.ConfigFile)
	if path == "" {
		path = strings.TrimSpace(v.GetString("config_file"))
	}
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Snapshot{}, fmt.Errorf("%w: read config file %s: %v", domain.ErrConfiguration, path, err)
		}
	}

	var s Settings
	if err := v.Unmarshal(&s); err != nil {
		return Snapshot{}, fmt.Errorf("%w: decode settings: %v", domain.ErrConfiguration, err)
	}
	s.normalize()

	if err := s.Validate(); err != nil {
		return Snapshot{}, err
	}

	version, err := s.version()
	if err != nil {
		return Snapshot{}, err
	}

	now := time.Now
	if l.now != nil {
		now = l.now
	}
	return Snapshot{Version: version, LoadedAt: now().UTC(), Settings: s}, nil
}

// applyDotenv copies dotenv values into v for keys the process environment does
// not already define.
func (l *Loader) applyDotenv(v *viper.Viper) error {
	file := strings.TrimSpace(l.EnvFile)
	if file == "" {
		file = ".env"
	}

	values, err := godotenv.Read(file)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("%w: read %s: %v", domain.ErrConfiguration, file, err)
	}

	for k, val := range values {
		if _, set := os.LookupEnv(k); set {
			continue
		}
		v.Set(strings.ToLower(k), val)
	}
	return nil
}

func (s *Settings) normalize() {
	s.Fetcher = strings.ToLower(strings.TrimSpace(s.Fetcher))
	s.StoreBackend = strings.ToLower(strings.TrimSpace(s.StoreBackend))
	s.LogLevel = strings.ToLower(strings.TrimSpace(s.LogLevel))

	urls := make([]string, 0, len(s.SitemapURLs))
	for _, raw := range s.SitemapURLs {
		for _, u := range strings.Split(raw, ",") {
			if u = strings.TrimSpace(u); u != "" {
				urls = append(urls, u)
			}
		}
	}
	s.SitemapURLs = urls
}

// Validate reports the first invalid setting.
func (s Settings) Validate() error {
	var problems []string
	check := func(ok bool, format string, args ...any) {
		if !ok {
			problems = append(problems, fmt.Sprintf(format, args...))
		}
	}

	check(s.MinContentSize >= 0, "MIN_CONTENT_SIZE must not be negative, got %d", s.MinContentSize)
	check(s.MinTitleSize >= 0, "MIN_TITLE_SIZE must not be negative, got %d", s.MinTitleSize)
	check(s.ScoreThreshold >= 0, "SCORE_THRESHOLD must not be negative, got %d", s.ScoreThreshold)
	check(s.FullTextRPS >= 0, "FULL_TEXT_RPS must not be negative, got %g", s.FullTextRPS)
	check(s.HoursBack > 0, "HOURS_BACK must be positive, got %d", s.HoursBack)
	check(s.FetchOffsetHours >= 0, "FETCH_OFFSET_HOURS must not be negative, got %d", s.FetchOffsetHours)
	check(s.Fetcher != "", "FETCHER is required")
	check(s.Workers > 0, "WORKERS must be positive, got %d", s.Workers)
	check(s.HTTPTimeout > 0, "HTTP_TIMEOUT must be positive")
	check(s.FullTextTimeout > 0, "FULL_TEXT_TIMEOUT must be positive")
	check(s.ArticleTimeout > 0, "ARTICLE_TIMEOUT must be positive")
	check(s.FetchTimeout > 0, "FETCH_TIMEOUT must be positive")
	check(s.RunInterval > 0, "RUN_INTERVAL must be positive")

	switch s.StoreBackend {
	case "bolt":
		check(strings.TrimSpace(s.DBPath) != "", "DB_PATH is required for the bolt store")
	case "memory":
	default:
		problems = append(problems, fmt.Sprintf("STORE_BACKEND %q is not supported", s.StoreBackend))
	}

	switch s.LogLevel {
	case "debug", "info", "warn", "warning", "error":
	default:
		problems = append(problems, fmt.Sprintf("LOG_LEVEL %q is not supported", s.LogLevel))
	}

	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", domain.ErrConfiguration, strings.Join(problems, "; "))
	}
	return nil
}

// version fingerprints the settings, secrets included.
func (s Settings) version() (string, error) {
	type withSecret struct {
		Settings
		NewsAPIKey string `json:"news_api_key"`
	}
	data, err := json.Marshal(withSecret{Settings: s, NewsAPIKey: s.NewsAPIKey})
	if err != nil {
		return "", fmt.Errorf("%w: fingerprint settings: %v", domain.ErrConfiguration, err)
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:6]), nil
}
