// Package tagengine assigns exactly one primary tag to a transaction via a
// strictly ordered pipeline: learned cache, user rules, tag auto-patterns,
// bank category mapping, AI classification, and a final fallback tag. The
// first layer to produce a candidate wins.
package tagengine

import (
	"context"
	"regexp"
	"strings"
	"sync"

	"github.com/honecore/core/internal/aiport"
	"github.com/honecore/core/internal/honeerr"
	"github.com/honecore/core/internal/models"
)

// Assignment is the tag engine's verdict for one transaction description.
type Assignment struct {
	TagID              string
	TagName            string
	Source             models.TagSource
	Confidence         *float64
	NormalizedMerchant *string
}

// Store is the persistence surface the tag engine needs. Satisfied by
// *store.Store.
type Store interface {
	GetLearnedMerchantTag(ctx context.Context, merchantKey string) (*models.Tag, float64, error)
	ListTagRules(ctx context.Context) ([]models.TagRule, error)
	ListTags(ctx context.Context) ([]models.Tag, error)
	ResolveTagByName(ctx context.Context, name string) (*models.Tag, error)
	GetTagByPath(ctx context.Context, path string) (*models.Tag, error)
}

// Engine assigns tags to transaction descriptions. It holds a per-session
// AI-classification cache so repeated descriptions within one import do not
// re-invoke the AI port.
type Engine struct {
	store Store
	ai    aiport.Port

	mu      sync.Mutex
	aiCache map[string]*Assignment
}

// New returns an Engine. ai may be nil, in which case layer 5 (AI
// classification) always defers and layer 6 (fallback) decides.
func New(store Store, ai aiport.Port) *Engine {
	return &Engine{store: store, ai: ai, aiCache: make(map[string]*Assignment)}
}

var ollamaCategoryToTagPath = map[string]string{
	"streaming":      "Subscriptions.Streaming",
	"music":          "Subscriptions.Streaming",
	"cloud_storage":  "Subscriptions.Cloud",
	"software":       "Subscriptions.Software",
	"home_security":  "Subscriptions.Software",
	"fitness":        "Personal.Fitness",
	"news":           "Subscriptions",
	"food_delivery":  "Dining",
	"shopping":       "Shopping",
	"utilities":      "Utilities",
	"groceries":      "Groceries",
	"transport":      "Transport",
	"gas":            "Transport",
	"rideshare":      "Transport",
	"entertainment":  "Entertainment",
	"travel":         "Travel",
	"hotel":          "Travel",
	"airline":        "Travel",
	"healthcare":     "Healthcare",
	"pharmacy":       "Healthcare",
	"dining":         "Dining",
	"restaurant":     "Dining",
	"income":         "Income",
	"salary":         "Income",
	"deposit":        "Income",
	"housing":        "Housing",
	"rent":           "Housing",
	"mortgage":       "Housing",
	"gifts":          "Gifts",
	"financial":      "Financial",
	"bank":           "Financial",
	"investment":     "Financial",
}

const fallbackTagName = "Other"

// Assign runs the full pipeline for one transaction and returns the winning
// candidate. It never returns an error for "no layer matched" — the
// fallback layer always produces a result — but does surface store errors
// encountered while resolving a candidate tag.
func (e *Engine) Assign(ctx context.Context, txn models.Transaction) (*Assignment, error) {
	if a, err, ok := e.tryLearned(ctx, txn.Description); ok {
		return a, err
	}
	if a, err, ok := e.tryRules(ctx, txn.Description); ok {
		return a, err
	}
	if a, err, ok := e.tryAutoPatterns(ctx, txn.Description); ok {
		return a, err
	}
	if a, err, ok := e.tryBankCategory(ctx, txn.Category); ok {
		return a, err
	}
	if a, err, ok := e.tryAI(ctx, txn.Description); ok {
		return a, err
	}
	return e.fallback(ctx)
}

func (e *Engine) tryLearned(ctx context.Context, description string) (*Assignment, error, bool) {
	key := normalizeMerchantKey(description)
	tag, confidence, err := e.store.GetLearnedMerchantTag(ctx, key)
	if err != nil {
		if honeerr.Is(err, honeerr.KindNotFound) {
			return nil, nil, false
		}
		return nil, err, true
	}
	c := confidence
	return &Assignment{TagID: tag.ID, TagName: tag.Name, Source: models.TagSourceLearned, Confidence: &c}, nil, true
}

func (e *Engine) tryRules(ctx context.Context, description string) (*Assignment, error, bool) {
	rules, err := e.store.ListTagRules(ctx)
	if err != nil {
		return nil, err, true
	}
	tags, err := e.tagsByID(ctx)
	if err != nil {
		return nil, err, true
	}
	for _, rule := range rules {
		if !patternMatches(description, rule.Pattern, rule.Kind) {
			continue
		}
		tag, ok := tags[rule.TagID]
		if !ok {
			continue
		}
		confidence := 1.0
		return &Assignment{TagID: rule.TagID, TagName: tag.Name, Source: models.TagSourceRule, Confidence: &confidence}, nil, true
	}
	return nil, nil, false
}

func (e *Engine) tryAutoPatterns(ctx context.Context, description string) (*Assignment, error, bool) {
	tags, err := e.store.ListTags(ctx)
	if err != nil {
		return nil, err, true
	}
	for _, tag := range tags {
		if tag.ParentID != nil || tag.AutoPatterns == nil {
			continue
		}
		if !patternMatches(description, *tag.AutoPatterns, models.PatternKindContains) {
			continue
		}
		confidence := 0.8
		return &Assignment{TagID: tag.ID, TagName: tag.Name, Source: models.TagSourcePattern, Confidence: &confidence}, nil, true
	}
	return nil, nil, false
}

func (e *Engine) tryBankCategory(ctx context.Context, category *string) (*Assignment, error, bool) {
	if category == nil {
		return nil, nil, false
	}
	path, ok := mapBankCategoryToTagPath(*category)
	if !ok {
		return nil, nil, false
	}
	tag, err := e.store.GetTagByPath(ctx, path)
	if err != nil {
		if honeerr.Is(err, honeerr.KindNotFound) {
			return nil, nil, false
		}
		return nil, err, true
	}
	confidence := 0.75
	return &Assignment{TagID: tag.ID, TagName: tag.Name, Source: models.TagSourceBankCategory, Confidence: &confidence}, nil, true
}

// tryAI calls the AI port's classify_merchant, translating its coarse
// category to an in-tree tag via ollamaCategoryToTagPath. Results —
// including misses — are cached per description for the Engine's lifetime
// so repeated descriptions within one import session never re-invoke the
// model.
func (e *Engine) tryAI(ctx context.Context, description string) (*Assignment, error, bool) {
	if e.ai == nil {
		return nil, nil, false
	}

	e.mu.Lock()
	cached, hit := e.aiCache[description]
	e.mu.Unlock()
	if hit {
		if cached == nil {
			return nil, nil, false
		}
		return cached, nil, true
	}

	classification, err := e.ai.ClassifyMerchant(ctx, description)
	if err != nil {
		e.cacheAI(description, nil)
		return nil, nil, false
	}

	path, ok := ollamaCategoryToTagPath[classification.Category]
	if !ok {
		e.cacheAI(description, nil)
		return nil, nil, false
	}
	tag, err := e.store.GetTagByPath(ctx, path)
	if err != nil {
		e.cacheAI(description, nil)
		if honeerr.Is(err, honeerr.KindNotFound) {
			return nil, nil, false
		}
		return nil, err, true
	}

	confidence := 0.7
	merchant := classification.Merchant
	assignment := &Assignment{
		TagID:              tag.ID,
		TagName:            tag.Name,
		Source:             models.TagSourceOllama,
		Confidence:         &confidence,
		NormalizedMerchant: &merchant,
	}
	e.cacheAI(description, assignment)
	return assignment, nil, true
}

func (e *Engine) cacheAI(description string, a *Assignment) {
	e.mu.Lock()
	e.aiCache[description] = a
	e.mu.Unlock()
}

// IsAICached reports whether description has already been classified (hit
// or miss) in this Engine's lifetime, for counting cache hits during
// backfill without incurring a model call.
func (e *Engine) IsAICached(description string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, ok := e.aiCache[description]
	return ok
}

func (e *Engine) fallback(ctx context.Context) (*Assignment, error) {
	tag, err := e.store.ResolveTagByName(ctx, fallbackTagName)
	if err != nil {
		return nil, err
	}
	confidence := 0.0
	return &Assignment{TagID: tag.ID, TagName: tag.Name, Source: models.TagSourcePattern, Confidence: &confidence}, nil
}

func (e *Engine) tagsByID(ctx context.Context) (map[string]models.Tag, error) {
	tags, err := e.store.ListTags(ctx)
	if err != nil {
		return nil, err
	}
	byID := make(map[string]models.Tag, len(tags))
	for _, t := range tags {
		byID[t.ID] = t
	}
	return byID, nil
}

func patternMatches(description, pattern string, kind models.PatternKind) bool {
	descUpper := strings.ToUpper(description)
	switch kind {
	case models.PatternKindContains:
		for _, p := range strings.Split(pattern, "|") {
			if strings.Contains(descUpper, strings.ToUpper(p)) {
				return true
			}
		}
		return false
	case models.PatternKindRegex:
		re, err := regexp.Compile(pattern)
		if err != nil {
			return false
		}
		return re.MatchString(description) || re.MatchString(descUpper)
	case models.PatternKindExact:
		return descUpper == strings.ToUpper(pattern)
	default:
		return false
	}
}

// normalizeMerchantKey is the lookup key into the learned-merchant-tag
// table: lowercased and trimmed so minor formatting differences in a raw
// description still hit the same learned entry.
func normalizeMerchantKey(description string) string {
	return strings.ToLower(strings.TrimSpace(description))
}
