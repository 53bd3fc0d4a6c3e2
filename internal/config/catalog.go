package config

import (
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/nclamvn/prismy-production-sub002/internal/workspace"
)

// Catalog is the optional YAML file describing the workspace: the modes it
// offers, tracker timings, history limits and the sync backend. Values set
// here override the environment.
type Catalog struct {
	Modes     []string         `yaml:"modes"`
	Tracker   CatalogTracker   `yaml:"tracker"`
	Limits    CatalogLimits    `yaml:"limits"`
	Sync      CatalogSync      `yaml:"sync"`
	Retention CatalogRetention `yaml:"retention"`
}

// CatalogTracker holds tracker timings.
type CatalogTracker struct {
	SyncInterval         time.Duration `yaml:"sync_interval"`
	SuggestionDebounce   time.Duration `yaml:"suggestion_debounce"`
	SuggestionTTL        time.Duration `yaml:"suggestion_ttl"`
	TranslationThreshold int           `yaml:"translation_threshold"`
	MaxWorkspaces        int           `yaml:"max_workspaces"`
}

// CatalogLimits caps retained history.
type CatalogLimits struct {
	Activities          int `yaml:"activities"`
	CompletedOperations int `yaml:"completed_operations"`
	Insights            int `yaml:"insights"`
}

// CatalogSync configures the sync backend.
type CatalogSync struct {
	Mode  string `yaml:"mode"`
	URL   string `yaml:"url"`
	Token string `yaml:"token"`
}

// CatalogRetention configures history pruning.
type CatalogRetention struct {
	MaxAge   time.Duration `yaml:"max_age"`
	Interval time.Duration `yaml:"interval"`
}

// LoadCatalog reads and parses a catalog file, expanding env vars.
func LoadCatalog(path string) (*Catalog, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("catalog: read %s: %w", path, err)
	}
	cat, err := ParseCatalog(raw)
	if err != nil {
		return nil, fmt.Errorf("catalog: %s: %w", path, err)
	}
	return cat, nil
}

// ParseCatalog parses catalog YAML from bytes.
func ParseCatalog(data []byte) (*Catalog, error) {
	var cat Catalog
	if err := yaml.Unmarshal([]byte(expandEnvVars(string(data))), &cat); err != nil {
		return nil, fmt.Errorf("parse: %w", err)
	}
	for _, m := range cat.Modes {
		if strings.TrimSpace(m) == "" {
			return nil, fmt.Errorf("parse: empty mode name")
		}
	}
	return &cat, nil
}

// Apply overlays every non-zero catalog value onto cfg.
func (c *Catalog) Apply(cfg *Config) {
	if len(c.Modes) > 0 {
		modes := make([]workspace.Mode, 0, len(c.Modes))
		for _, m := range c.Modes {
			modes = append(modes, workspace.Mode(strings.TrimSpace(m)))
		}
		cfg.Modes = modes
	}

	setDuration(&cfg.SyncInterval, c.Tracker.SyncInterval)
	setDuration(&cfg.SuggestionDebounce, c.Tracker.SuggestionDebounce)
	setDuration(&cfg.SuggestionTTL, c.Tracker.SuggestionTTL)
	setInt(&cfg.TranslationThreshold, c.Tracker.TranslationThreshold)
	setInt(&cfg.MaxWorkspaces, c.Tracker.MaxWorkspaces)

	setInt(&cfg.ActivityLimit, c.Limits.Activities)
	setInt(&cfg.CompletedOperationLimit, c.Limits.CompletedOperations)
	setInt(&cfg.InsightLimit, c.Limits.Insights)

	setString(&cfg.SyncMode, c.Sync.Mode)
	setString(&cfg.SyncURL, c.Sync.URL)
	setString(&cfg.SyncToken, c.Sync.Token)

	setDuration(&cfg.Retention, c.Retention.MaxAge)
	setDuration(&cfg.RetentionInterval, c.Retention.Interval)
}

func setDuration(dst *time.Duration, v time.Duration) {
	if v > 0 {
		*dst = v
	}
}

func setInt(dst *int, v int) {
	if v > 0 {
		*dst = v
	}
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

// envVarPattern matches ${VAR_NAME} and $VAR_NAME.
var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}|\$([A-Za-z_][A-Za-z0-9_]*)`)

// expandEnvVars replaces ${VAR} and $VAR with the environment value; unset
// variables become empty.
func expandEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		name := strings.TrimPrefix(match, "${")
		name = strings.TrimSuffix(name, "}")
		name = strings.TrimPrefix(name, "$")
		return os.Getenv(name)
	})
}
