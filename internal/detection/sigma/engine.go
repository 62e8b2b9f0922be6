// Package sigma evaluates operator-authored Sigma rules against inbound
// messages.
package sigma

import (
	"context"
	"strings"
	"sync"
	"time"

	sigmago "github.com/bradleyjkemp/sigma-go"
	sigmaevaluator "github.com/bradleyjkemp/sigma-go/evaluator"

	"honeyshield/internal/domain/models"
	"honeyshield/internal/infrastructure/fswatch"
	"honeyshield/pkg/logger"
)

// Score bonus per rule level.
var levelBonus = map[string]int{
	"informational": 0,
	"low":           5,
	"medium":        10,
	"high":          20,
	"critical":      30,
}

// LevelBonus returns the score bonus for a Sigma level. Unknown levels count
// as medium.
func LevelBonus(level string) int {
	if b, ok := levelBonus[strings.ToLower(strings.TrimSpace(level))]; ok {
		return b
	}
	return levelBonus["medium"]
}

// Rule is a compiled message rule.
type Rule struct {
	ID         string   `json:"id"`
	Title      string   `json:"title"`
	Level      string   `json:"level"`
	Source     string   `json:"source"`
	Techniques []string `json:"techniques"`

	eval *sigmaevaluator.RuleEvaluator
}

func newRule(source string, parsed sigmago.Rule) *Rule {
	id := strings.TrimSpace(parsed.ID)
	if id == "" {
		id = strings.TrimSpace(parsed.Title)
	}
	level := strings.ToLower(strings.TrimSpace(parsed.Level))
	if level == "" {
		level = "medium"
	}
	return &Rule{
		ID:         id,
		Title:      strings.TrimSpace(parsed.Title),
		Level:      level,
		Source:     source,
		Techniques: TechniquesFromTags(parsed.Tags),
		eval:       sigmaevaluator.ForRule(parsed),
	}
}

// Event builds the field map a message is evaluated as.
func Event(msg *models.InboundMessage) map[string]interface{} {
	return map[string]interface{}{
		"content":            msg.Content,
		"sender_name":        msg.SenderName,
		"sender_profile_url": msg.SenderProfileURL,
		"platform":           string(msg.Platform),
		"source":             msg.SourceSlug,
	}
}

// Engine holds the active rule set. Builtin rules are always active; rules
// from the directory are replaced on Reload.
type Engine struct {
	loader *Loader
	dir    string
	logger *logger.Logger

	mu       sync.RWMutex
	builtin  []*Rule
	rules    []*Rule
	stats    LoadStats
	loadedAt time.Time
}

// NewEngine loads builtin rules and, when dir is set, the rules below it.
func NewEngine(dir string, includeBuiltin bool, log *logger.Logger) (*Engine, error) {
	e := &Engine{
		loader: NewLoader(log),
		dir:    dir,
		logger: log.WithComponent("sigma-engine"),
	}
	if includeBuiltin {
		builtin, _, err := e.loader.LoadBuiltinRules()
		if err != nil {
			return nil, err
		}
		e.builtin = builtin
	}
	if err := e.Reload(); err != nil {
		return nil, err
	}
	return e, nil
}

// Reload re-reads the rule directory. On error the previous rules stay active.
func (e *Engine) Reload() error {
	rules, stats, err := e.loader.LoadDirectory(e.dir)
	if err != nil {
		return err
	}
	e.mu.Lock()
	e.rules = rules
	e.stats = stats
	e.loadedAt = time.Now()
	e.mu.Unlock()
	return nil
}

// Watch reloads on changes to rule files until ctx is done.
func (e *Engine) Watch(ctx context.Context) error {
	return fswatch.NewDir(e.dir, []string{".yml", ".yaml"}, e.Reload, e.logger).Run(ctx)
}

// Match returns the rules that fire on msg. Evaluation errors skip the rule.
func (e *Engine) Match(ctx context.Context, msg *models.InboundMessage) []models.RuleMatch {
	if e == nil || msg == nil {
		return nil
	}
	e.mu.RLock()
	rules := make([]*Rule, 0, len(e.builtin)+len(e.rules))
	rules = append(rules, e.builtin...)
	rules = append(rules, e.rules...)
	e.mu.RUnlock()

	if len(rules) == 0 {
		return nil
	}
	event := Event(msg)
	var out []models.RuleMatch
	for _, r := range rules {
		res, err := r.eval.Matches(ctx, event)
		if err != nil {
			e.logger.Debug().Err(err).Str("rule", r.ID).Msg("rule evaluation failed")
			continue
		}
		if !res.Match {
			continue
		}
		out = append(out, models.RuleMatch{
			RuleID:     r.ID,
			Title:      r.Title,
			Level:      r.Level,
			Techniques: r.Techniques,
			Bonus:      LevelBonus(r.Level),
		})
	}
	return out
}

// Bonus sums the level bonus of matches.
func Bonus(matches []models.RuleMatch) int {
	total := 0
	for _, m := range matches {
		total += m.Bonus
	}
	return total
}

// Stats returns the last directory load stats.
func (e *Engine) Stats() (LoadStats, time.Time) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.stats, e.loadedAt
}

// RuleCount returns the number of active rules.
func (e *Engine) RuleCount() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.builtin) + len(e.rules)
}
