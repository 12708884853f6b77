package assistant

import (
	"errors"
	"log/slog"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/miradorstack/mirador-insights/internal/models"
)

// ActionRules supplies locally derived causes and actions for error
// analyses and investigations.
type ActionRules struct {
	rules  []ActionRule
	logger *slog.Logger
}

// ActionRule represents a single cause/action rule. A rule with an empty
// match applies to every subject.
type ActionRule struct {
	ID      string    `yaml:"id"`
	Match   RuleMatch `yaml:"match"`
	Causes  []string  `yaml:"causes"`
	Actions []string  `yaml:"actions"`
}

// RuleMatch defines optional attributes for rule matching; all set fields must hold.
type RuleMatch struct {
	Service         string   `yaml:"service"`
	Level           string   `yaml:"level"`
	Category        string   `yaml:"category"`
	MessageContains []string `yaml:"message_contains"`
}

// RuleConfigFile is the YAML root structure.
type RuleConfigFile struct {
	Rules []ActionRule `yaml:"rules"`
}

// Subject is what a rule is evaluated against.
type Subject struct {
	Category models.Category
	Services []string
	Entries  []models.LogEntry
}

const defaultRulesYAML = `
rules:
  - id: timeouts
    match:
      message_contains: ["timeout", "timed out", "deadline exceeded"]
    causes:
      - A downstream dependency is responding slowly or not at all.
    actions:
      - Check latency and saturation of the downstream services named in the errors.
      - Review client timeout and retry settings.
  - id: connectivity
    match:
      message_contains: ["connection refused", "connection reset", "no route to host", "dial tcp"]
    causes:
      - A dependency is unreachable or restarting.
    actions:
      - Verify the target service is healthy and its endpoints are registered.
  - id: auth
    match:
      message_contains: ["unauthorized", "forbidden", "token", "credential"]
    causes:
      - Credentials are invalid, expired or not propagated.
    actions:
      - Check token issuance and expiry, and recent secret rotations.
  - id: resources
    match:
      message_contains: ["out of memory", "oom", "no space left", "too many open files"]
    causes:
      - The process is exhausting a host resource.
    actions:
      - Inspect memory, disk and file-descriptor usage of the affected pods.
  - id: generic-errors
    match:
      level: error
    actions:
      - Start from the most frequent error message and correlate it with recent deploys.
`

// DefaultActionRules returns the built-in rule set.
func DefaultActionRules(logger *slog.Logger) *ActionRules {
	rules, err := parseActionRules([]byte(defaultRulesYAML), logger)
	if err != nil {
		panic("assistant: invalid default rules: " + err.Error())
	}
	return rules
}

// LoadActionRules loads rules from path. An empty or missing path yields
// the built-in defaults.
func LoadActionRules(path string, logger *slog.Logger) (*ActionRules, error) {
	if path == "" {
		return DefaultActionRules(logger), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return DefaultActionRules(logger), nil
		}
		return nil, err
	}
	return parseActionRules(data, logger)
}

func parseActionRules(data []byte, logger *slog.Logger) (*ActionRules, error) {
	var cfg RuleConfigFile
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ActionRules{rules: cfg.Rules, logger: logger}, nil
}

// Len reports the number of loaded rules.
func (r *ActionRules) Len() int {
	if r == nil {
		return 0
	}
	return len(r.rules)
}

// Recommend returns the deduplicated causes and actions of every matching rule.
func (r *ActionRules) Recommend(subject Subject) (causes, actions []string) {
	if r == nil {
		return nil, nil
	}

	causes = make([]string, 0)
	actions = make([]string, 0)
	for _, rule := range r.rules {
		if rule.Match.Service != "" && !serviceMatches(rule.Match.Service, subject) {
			continue
		}
		if rule.Match.Level != "" && !entriesHaveLevel(rule.Match.Level, subject.Entries) {
			continue
		}
		if rule.Match.Category != "" && !strings.EqualFold(rule.Match.Category, string(subject.Category)) {
			continue
		}
		if len(rule.Match.MessageContains) > 0 && !messagesContain(rule.Match.MessageContains, subject.Entries) {
			continue
		}
		r.logger.Debug("action rule matched", "rule", rule.ID)
		causes = appendUnique(causes, rule.Causes...)
		actions = appendUnique(actions, rule.Actions...)
	}
	return causes, actions
}

func serviceMatches(service string, subject Subject) bool {
	for _, s := range subject.Services {
		if strings.EqualFold(service, s) {
			return true
		}
	}
	for _, e := range subject.Entries {
		if strings.EqualFold(service, e.ServiceID) {
			return true
		}
	}
	return false
}

func entriesHaveLevel(level string, entries []models.LogEntry) bool {
	want, ok := models.ParseLevel(level)
	if !ok {
		return false
	}
	for _, e := range entries {
		if e.Level == want || (want == models.LevelError && e.Level.IsError()) {
			return true
		}
	}
	return false
}

func messagesContain(keywords []string, entries []models.LogEntry) bool {
	for _, e := range entries {
		msg := strings.ToLower(e.Message)
		for _, kw := range keywords {
			if kw != "" && strings.Contains(msg, strings.ToLower(kw)) {
				return true
			}
		}
	}
	return false
}

func appendUnique(existing []string, additions ...string) []string {
	seen := make(map[string]struct{}, len(existing))
	for _, rec := range existing {
		seen[rec] = struct{}{}
	}
	for _, item := range additions {
		if item == "" {
			continue
		}
		if _, ok := seen[item]; ok {
			continue
		}
		existing = append(existing, item)
		seen[item] = struct{}{}
	}
	return existing
}
