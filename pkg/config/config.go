package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	ProviderGitLab = "gitlab"
	ProviderGitHub = "github"

	DefaultInterval    = 5 * time.Minute
	DefaultLookback    = 14 * 24 * time.Hour
	DefaultConcurrency = 4
	DefaultGitLabURL   = "https://gitlab.com"
)

// DefaultLinearStates are the issue states mirrored into the issues list.
var DefaultLinearStates = []string{"In Progress", "Next", "Backlog"}

type Config struct {
	LinearAPIKey string
	LinearStates []string

	TodoistAPIKey string
	IssuesList    string
	ReviewsList   string

	ReviewProvider string
	GitLabAPIKey   string
	GitLabURL      string
	GitLabUsername string
	GitLabGroup    string
	GitHubToken    string
	GitHubUsername string
	GitHubScope    string

	Interval    time.Duration
	Lookback    time.Duration
	DryRun      bool
	Concurrency int
	HTTPAddr    string
	PluginsDir  string
}

// ReviewUser is the identity matched against reviewer and approver sets.
func (c Config) ReviewUser() string {
	if c.ReviewProvider == ProviderGitHub {
		return c.GitHubUsername
	}
	return c.GitLabUsername
}

// IssuesEnabled reports whether the issues category is configured at all.
func (c Config) IssuesEnabled() bool {
	return c.LinearAPIKey != "" && c.IssuesList != ""
}

// ReviewsEnabled reports whether the reviews category is configured at all.
func (c Config) ReviewsEnabled() bool {
	if c.ReviewsList == "" {
		return false
	}
	switch c.ReviewProvider {
	case ProviderGitHub:
		return c.GitHubToken != "" && c.GitHubUsername != ""
	default:
		return c.GitLabAPIKey != "" && c.GitLabUsername != "" && c.GitLabGroup != ""
	}
}

// Validate reports configuration that makes a cycle pointless.
func (c Config) Validate() error {
	var errs []error
	if c.TodoistAPIKey == "" {
		errs = append(errs, errors.New("missing TODOIST_API_KEY"))
	}
	if c.ReviewProvider != ProviderGitLab && c.ReviewProvider != ProviderGitHub {
		errs = append(errs, fmt.Errorf("unknown review provider %q", c.ReviewProvider))
	}
	if !c.IssuesEnabled() && !c.ReviewsEnabled() {
		errs = append(errs, errors.New("neither issues nor reviews sync is configured"))
	}
	if c.Interval <= 0 {
		errs = append(errs, errors.New("sync interval must be positive"))
	}
	return errors.Join(errs...)
}

func LoadConfig() Config {
	interval, _ := time.ParseDuration(os.Getenv("SYNC_INTERVAL"))
	if interval == 0 {
		interval = DefaultInterval
	}
	lookback, _ := time.ParseDuration(os.Getenv("REVIEW_LOOKBACK"))
	if lookback == 0 {
		lookback = DefaultLookback
	}
	concurrency, _ := strconv.Atoi(os.Getenv("SYNC_CONCURRENCY"))
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}

	states := splitList(os.Getenv("LINEAR_STATES"))
	if len(states) == 0 {
		states = append([]string(nil), DefaultLinearStates...)
	}

	provider := strings.ToLower(strings.TrimSpace(os.Getenv("REVIEW_PROVIDER")))
	if provider == "" {
		provider = ProviderGitLab
	}
	gitlabURL := os.Getenv("GITLAB_URL")
	if gitlabURL == "" {
		gitlabURL = DefaultGitLabURL
	}

	return Config{
		LinearAPIKey:   os.Getenv("LINEAR_API_KEY"),
		LinearStates:   states,
		TodoistAPIKey:  os.Getenv("TODOIST_API_KEY"),
		IssuesList:     os.Getenv("TODOIST_LINEAR_ISSUES_PROJECT_NAME"),
		ReviewsList:    os.Getenv("TODOIST_CODE_REVIEW_PROJECT_NAME"),
		ReviewProvider: provider,
		GitLabAPIKey:   os.Getenv("GITLAB_API_KEY"),
		GitLabURL:      gitlabURL,
		GitLabUsername: os.Getenv("GITLAB_USERNAME"),
		GitLabGroup:    os.Getenv("GITLAB_GROUP_NAME"),
		GitHubToken:    os.Getenv("GITHUB_TOKEN"),
		GitHubUsername: os.Getenv("GITHUB_USERNAME"),
		GitHubScope:    os.Getenv("GITHUB_SCOPE"),
		Interval:       interval,
		Lookback:       lookback,
		DryRun:         os.Getenv("DRY_RUN") == "true",
		Concurrency:    concurrency,
		HTTPAddr:       os.Getenv("HTTP_ADDR"),
		PluginsDir:     os.Getenv("PLUGINS_DIR"),
	}
}

// ConfigMap is a sectioned configuration map keyed by plugin name (or "core").
// Values are YAML-friendly scalars or nested maps/lists.
type ConfigMap map[string]map[string]any

// LoadConfigFile loads a YAML config file from disk.
// Returns an empty map if the file does not exist or is empty.
func LoadConfigFile(path string) (ConfigMap, error) {
	if path == "" {
		return ConfigMap{}, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return ConfigMap{}, nil
		}
		return nil, err
	}
	if len(strings.TrimSpace(string(data))) == 0 {
		return ConfigMap{}, nil
	}

	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}

	return normalizeConfigMap(raw), nil
}

// LoadConfigMapFromEnv builds a sectioned config map from environment variables.
// This allows config-file values to override env values without losing defaults.
func LoadConfigMapFromEnv() ConfigMap {
	cfg := ConfigMap{
		"core": {
			"http_addr":   os.Getenv("HTTP_ADDR"),
			"plugins_dir": os.Getenv("PLUGINS_DIR"),
		},
		"pushover": {
			"token": os.Getenv("NOTIFY_PUSHOVER_TOKEN"),
			"user":  os.Getenv("NOTIFY_PUSHOVER_USER"),
		},
		"webhook": {
			"url": os.Getenv("NOTIFY_WEBHOOK_URL"),
		},
		"webhook_trigger": {
			"token": os.Getenv("WEBHOOK_TOKEN"),
		},
		"hooks": {
			"dir": os.Getenv("SYNC_HOOKS_DIR"),
		},
	}
	if v := os.Getenv("NOTIFY_PUSHOVER_EVENTS"); v != "" {
		cfg["pushover"]["subscribe"] = v
	}
	if v := os.Getenv("NOTIFY_WEBHOOK_EVENTS"); v != "" {
		cfg["webhook"]["subscribe"] = v
	}
	return cfg
}

// LoadConfigFromMap builds a core Config from the "core" section of a file.
// Unset keys stay zero so MergeConfig can fall back to env values.
func LoadConfigFromMap(m map[string]any) Config {
	cfg := Config{}

	if v, ok := getString(m, "linear_api_key"); ok {
		cfg.LinearAPIKey = v
	}
	if v, ok := getStringSlice(m, "linear_states"); ok {
		cfg.LinearStates = v
	}
	if v, ok := getString(m, "todoist_api_key"); ok {
		cfg.TodoistAPIKey = v
	}
	if v, ok := getString(m, "issues_list", "todoist_linear_issues_project_name"); ok {
		cfg.IssuesList = v
	}
	if v, ok := getString(m, "reviews_list", "todoist_code_review_project_name"); ok {
		cfg.ReviewsList = v
	}
	if v, ok := getString(m, "review_provider"); ok {
		cfg.ReviewProvider = strings.ToLower(v)
	}
	if v, ok := getString(m, "gitlab_api_key"); ok {
		cfg.GitLabAPIKey = v
	}
	if v, ok := getString(m, "gitlab_url"); ok {
		cfg.GitLabURL = v
	}
	if v, ok := getString(m, "gitlab_username"); ok {
		cfg.GitLabUsername = v
	}
	if v, ok := getString(m, "gitlab_group", "gitlab_group_name"); ok {
		cfg.GitLabGroup = v
	}
	if v, ok := getString(m, "github_token"); ok {
		cfg.GitHubToken = v
	}
	if v, ok := getString(m, "github_username"); ok {
		cfg.GitHubUsername = v
	}
	if v, ok := getString(m, "github_scope"); ok {
		cfg.GitHubScope = v
	}
	if v, ok := getDuration(m, "interval", "sync_interval"); ok {
		cfg.Interval = v
	}
	if v, ok := getDuration(m, "lookback", "review_lookback"); ok {
		cfg.Lookback = v
	}
	if v, ok := getBool(m, "dry_run"); ok {
		cfg.DryRun = v
	}
	if v, ok := getInt(m, "concurrency", "sync_concurrency"); ok {
		cfg.Concurrency = v
	}
	if v, ok := getString(m, "http_addr"); ok {
		cfg.HTTPAddr = v
	}
	if v, ok := getString(m, "plugins_dir"); ok {
		cfg.PluginsDir = v
	}

	return cfg
}

// MergeConfig uses primary values when set, otherwise falls back.
func MergeConfig(primary, fallback Config) Config {
	out := primary
	str := func(dst *string, fb string) {
		if *dst == "" {
			*dst = fb
		}
	}
	str(&out.LinearAPIKey, fallback.LinearAPIKey)
	str(&out.TodoistAPIKey, fallback.TodoistAPIKey)
	str(&out.IssuesList, fallback.IssuesList)
	str(&out.ReviewsList, fallback.ReviewsList)
	str(&out.ReviewProvider, fallback.ReviewProvider)
	str(&out.GitLabAPIKey, fallback.GitLabAPIKey)
	str(&out.GitLabURL, fallback.GitLabURL)
	str(&out.GitLabUsername, fallback.GitLabUsername)
	str(&out.GitLabGroup, fallback.GitLabGroup)
	str(&out.GitHubToken, fallback.GitHubToken)
	str(&out.GitHubUsername, fallback.GitHubUsername)
	str(&out.GitHubScope, fallback.GitHubScope)
	str(&out.HTTPAddr, fallback.HTTPAddr)
	str(&out.PluginsDir, fallback.PluginsDir)

	if len(out.LinearStates) == 0 {
		out.LinearStates = fallback.LinearStates
	}
	if out.Interval == 0 {
		out.Interval = fallback.Interval
	}
	if out.Lookback == 0 {
		out.Lookback = fallback.Lookback
	}
	if out.Concurrency == 0 {
		out.Concurrency = fallback.Concurrency
	}
	if !out.DryRun && fallback.DryRun {
		out.DryRun = true
	}
	return out
}

// MergeConfigMap merges primary over fallback (primary wins).
func MergeConfigMap(primary, fallback ConfigMap) ConfigMap {
	out := cloneConfigMap(fallback)
	for section, vals := range primary {
		if len(vals) == 0 {
			continue
		}
		merged := map[string]any{}
		if existing, ok := out[section]; ok {
			for k, v := range existing {
				merged[k] = v
			}
		}
		for k, v := range vals {
			merged[k] = v
		}
		out[section] = merged
	}
	return out
}

// Load resolves the effective configuration: env first, then the YAML file at
// path on top of it. A missing file is not an error.
func Load(path string) (Config, ConfigMap, error) {
	cfgEnv := LoadConfig()
	cfgMapEnv := LoadConfigMapFromEnv()

	cfgMapFile, err := LoadConfigFile(path)
	if err != nil {
		return cfgEnv, cfgMapEnv, err
	}
	cfgMap := MergeConfigMap(cfgMapFile, cfgMapEnv)

	cfg := cfgEnv
	if coreSection, ok := cfgMapFile["core"]; ok {
		cfg = MergeConfig(LoadConfigFromMap(coreSection), cfgEnv)
	}
	return cfg, cfgMap, nil
}

func cloneConfigMap(src ConfigMap) ConfigMap {
	dst := ConfigMap{}
	for section, vals := range src {
		sectionCopy := map[string]any{}
		for k, v := range vals {
			sectionCopy[k] = v
		}
		dst[section] = sectionCopy
	}
	return dst
}

func normalizeConfigMap(raw map[string]any) ConfigMap {
	out := ConfigMap{}
	for key, value := range raw {
		if m := normalizeStringMap(value); m != nil {
			out[key] = m
		}
	}
	return out
}

func normalizeStringMap(v any) map[string]any {
	switch t := v.(type) {
	case map[string]any:
		out := map[string]any{}
		for k, v := range t {
			out[k] = normalizeValue(v)
		}
		return out
	case map[any]any:
		out := map[string]any{}
		for k, v := range t {
			ks, ok := k.(string)
			if !ok {
				continue
			}
			out[ks] = normalizeValue(v)
		}
		return out
	default:
		return nil
	}
}

func normalizeValue(v any) any {
	switch t := v.(type) {
	case map[string]any, map[any]any:
		return normalizeStringMap(t)
	case []any:
		out := make([]any, 0, len(t))
		for _, item := range t {
			out = append(out, normalizeValue(item))
		}
		return out
	default:
		return v
	}
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func getString(m map[string]any, keys ...string) (string, bool) {
	for _, key := range keys {
		if v, ok := m[key]; ok {
			switch t := v.(type) {
			case string:
				return t, true
			default:
				return strings.TrimSpace(fmt.Sprint(t)), true
			}
		}
	}
	return "", false
}

func toString(v any) string {
	if v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}

func getBool(m map[string]any, keys ...string) (bool, bool) {
	for _, key := range keys {
		if v, ok := m[key]; ok {
			switch t := v.(type) {
			case bool:
				return t, true
			case string:
				return strings.EqualFold(strings.TrimSpace(t), "true"), true
			case int:
				return t != 0, true
			case int64:
				return t != 0, true
			case float64:
				return t != 0, true
			}
		}
	}
	return false, false
}

func getInt(m map[string]any, keys ...string) (int, bool) {
	for _, key := range keys {
		if v, ok := m[key]; ok {
			switch t := v.(type) {
			case int:
				return t, true
			case int64:
				return int(t), true
			case float64:
				return int(t), true
			case string:
				n, err := strconv.Atoi(strings.TrimSpace(t))
				if err == nil {
					return n, true
				}
			}
		}
	}
	return 0, false
}

func getDuration(m map[string]any, keys ...string) (time.Duration, bool) {
	for _, key := range keys {
		if v, ok := m[key]; ok {
			switch t := v.(type) {
			case time.Duration:
				return t, true
			case string:
				d, err := time.ParseDuration(strings.TrimSpace(t))
				if err == nil {
					return d, true
				}
			case int:
				return time.Duration(t) * time.Second, true
			case int64:
				return time.Duration(t) * time.Second, true
			case float64:
				return time.Duration(t) * time.Second, true
			}
		}
	}
	return 0, false
}

func getStringSlice(m map[string]any, keys ...string) ([]string, bool) {
	for _, key := range keys {
		if v, ok := m[key]; ok {
			switch t := v.(type) {
			case []any:
				out := make([]string, 0, len(t))
				for _, item := range t {
					out = append(out, strings.TrimSpace(toString(item)))
				}
				return out, true
			case []string:
				return t, true
			case string:
				return splitList(t), true
			}
		}
	}
	return nil, false
}
