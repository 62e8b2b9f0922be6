package sigma

import (
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	sigmago "github.com/bradleyjkemp/sigma-go"

	"honeyshield/pkg/logger"
)

//go:embed builtin/*.yml
var builtinFS embed.FS

var techniqueTagRegex = regexp.MustCompile(`^attack\.t\d{4}(?:\.\d{3})?$`)

// LoadStats counts loaded and skipped rule files.
type LoadStats struct {
	TotalFiles        int `json:"total_files"`
	Loaded            int `json:"loaded"`
	SkippedInvalid    int `json:"skipped_invalid"`
	SkippedLogsource  int `json:"skipped_logsource"`
	SkippedComplex    int `json:"skipped_complex"`
	SkippedDuplicated int `json:"skipped_duplicated"`
}

// Loader reads Sigma rules for the message logsource.
type Loader struct {
	logger *logger.Logger
}

func NewLoader(log *logger.Logger) *Loader {
	return &Loader{logger: log.WithComponent("sigma-loader")}
}

// LoadDirectory parses every .yml/.yaml file below dir. A missing directory
// yields no rules.
func (l *Loader) LoadDirectory(dir string) ([]*Rule, LoadStats, error) {
	var stats LoadStats
	if dir == "" {
		return nil, stats, nil
	}
	info, err := os.Stat(dir)
	if errors.Is(err, os.ErrNotExist) {
		l.logger.Debug().Str("dir", dir).Msg("rule directory missing")
		return nil, stats, nil
	}
	if err != nil {
		return nil, stats, fmt.Errorf("stat rule dir: %w", err)
	}
	if !info.IsDir() {
		return nil, stats, fmt.Errorf("rule path %s is not a directory", dir)
	}

	var files []string
	err = filepath.WalkDir(dir, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if !d.IsDir() && IsRuleFile(path) {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, stats, fmt.Errorf("walk rule dir: %w", err)
	}
	sort.Strings(files)

	rules := make([]*Rule, 0, len(files))
	for _, f := range files {
		raw, err := os.ReadFile(f)
		if err != nil {
			l.logger.Warn().Err(err).Str("file", f).Msg("failed to read rule file")
			stats.TotalFiles++
			stats.SkippedInvalid++
			continue
		}
		rules = l.add(rules, &stats, f, raw)
	}

	l.logger.Info().Int("count", stats.Loaded).Str("dir", dir).Msg("loaded sigma rules from directory")
	return rules, stats, nil
}

// LoadBuiltinRules returns the rules compiled into the binary.
func (l *Loader) LoadBuiltinRules() ([]*Rule, LoadStats, error) {
	var stats LoadStats
	entries, err := builtinFS.ReadDir("builtin")
	if err != nil {
		return nil, stats, err
	}
	var rules []*Rule
	for _, e := range entries {
		name := "builtin/" + e.Name()
		raw, err := builtinFS.ReadFile(name)
		if err != nil {
			return nil, stats, err
		}
		rules = l.add(rules, &stats, name, raw)
	}
	return rules, stats, nil
}

func (l *Loader) add(rules []*Rule, stats *LoadStats, name string, raw []byte) []*Rule {
	stats.TotalFiles++
	rule, err := l.Parse(name, raw)
	switch {
	case errors.Is(err, errUnsupportedLogsource):
		stats.SkippedLogsource++
		return rules
	case errors.Is(err, errComplexRule):
		stats.SkippedComplex++
		l.logger.Warn().Err(err).Str("file", name).Msg("skipping rule")
		return rules
	case err != nil:
		stats.SkippedInvalid++
		l.logger.Warn().Err(err).Str("file", name).Msg("invalid rule")
		return rules
	}
	for _, r := range rules {
		if r.ID == rule.ID {
			stats.SkippedDuplicated++
			l.logger.Warn().Str("id", rule.ID).Str("file", name).Msg("duplicate rule id")
			return rules
		}
	}
	stats.Loaded++
	return append(rules, rule)
}

var (
	errUnsupportedLogsource = errors.New("logsource is not message")
	errComplexRule          = errors.New("rule is not a single-event rule")
)

// Parse compiles one rule document.
func (l *Loader) Parse(name string, raw []byte) (*Rule, error) {
	parsed, err := sigmago.ParseRule(raw)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", name, err)
	}
	if !isMessageLogsource(parsed) {
		return nil, errUnsupportedLogsource
	}
	if reason := complexity(parsed); reason != "" {
		return nil, fmt.Errorf("%w: %s", errComplexRule, reason)
	}
	return newRule(name, parsed), nil
}

// IsRuleFile reports whether path has a rule extension.
func IsRuleFile(path string) bool {
	lower := strings.ToLower(path)
	return strings.HasSuffix(lower, ".yml") || strings.HasSuffix(lower, ".yaml")
}

// Rules apply to logsource category "message"; an empty logsource is accepted.
func isMessageLogsource(rule sigmago.Rule) bool {
	category := strings.ToLower(strings.TrimSpace(rule.Logsource.Category))
	product := strings.ToLower(strings.TrimSpace(rule.Logsource.Product))
	if category != "" && category != "message" {
		return false
	}
	if product != "" && product != "honeyshield" {
		return false
	}
	return true
}

func complexity(rule sigmago.Rule) string {
	if rule.Detection.Timeframe > 0 {
		return "timeframe is not supported"
	}
	for _, cond := range rule.Detection.Conditions {
		if cond.Aggregation != nil {
			return "aggregation condition is not supported"
		}
		if !isSimpleSearchExpression(cond.Search) {
			return "complex condition expression is not supported"
		}
	}
	for name, search := range rule.Detection.Searches {
		if len(search.Keywords) > 0 {
			return "keyword search " + name + " is not supported"
		}
		if len(search.EventMatchers) == 0 {
			return "search " + name + " has no event matchers"
		}
	}
	return ""
}

func isSimpleSearchExpression(expr sigmago.SearchExpr) bool {
	switch e := expr.(type) {
	case sigmago.SearchIdentifier:
		return true
	case sigmago.And:
		for _, child := range e {
			if !isSimpleSearchExpression(child) {
				return false
			}
		}
		return true
	case sigmago.Or:
		for _, child := range e {
			if !isSimpleSearchExpression(child) {
				return false
			}
		}
		return true
	case sigmago.Not:
		return isSimpleSearchExpression(e.Expr)
	default:
		return false
	}
}

// TechniquesFromTags turns attack.tXXXX[.YYY] tags into technique ids.
func TechniquesFromTags(tags []string) []string {
	var out []string
	for _, raw := range tags {
		tag := strings.ToLower(strings.TrimSpace(raw))
		if !techniqueTagRegex.MatchString(tag) {
			continue
		}
		out = append(out, strings.ToUpper(strings.TrimPrefix(tag, "attack.")))
	}
	return out
}
