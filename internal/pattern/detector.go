package pattern

import (
	"context"
	"errors"
	"time"

	"github.com/Veraticus/txnflow/internal/metrics"
	"github.com/Veraticus/txnflow/internal/model"
	"github.com/Veraticus/txnflow/internal/service"
	"go.uber.org/zap"
)

// Detector runs every rule and persists new matches through the store's
// atomic insert-if-absent.
type Detector struct {
	store   service.PatternStore
	metrics *metrics.Metrics
	logger  *zap.Logger
	now     func() time.Time
	rules   []Rule
}

// NewDetector creates a detector over rules.
func NewDetector(store service.PatternStore, rules []Rule, m *metrics.Metrics, logger *zap.Logger) *Detector {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Detector{
		store:   store,
		metrics: m,
		logger:  logger.Named("detector"),
		now:     time.Now,
		rules:   rules,
	}
}

// Detect evaluates each rule in order and returns how many detections were
// newly recorded. Identities already recorded are left alone, so a re-run
// without new qualifying data inserts nothing. A failing rule does not stop
// the others; the failures are joined into the returned error.
func (d *Detector) Detect(ctx context.Context, runStart time.Time) (int, error) {
	total := 0
	var errs []error

	for _, rule := range d.rules {
		if err := ctx.Err(); err != nil {
			return total, err
		}

		matches, err := rule.Evaluate(ctx, d.store)
		if err != nil {
			errs = append(errs, ruleError(rule, err))
			continue
		}

		detectedAt := d.now()
		inserted := 0
		for _, m := range matches {
			ok, err := d.store.InsertDetectionIfAbsent(ctx, &model.Detection{
				RunStartTime:  runStart,
				DetectionTime: detectedAt,
				PatternID:     rule.ID(),
				ActionType:    rule.ID().Action(),
				CustomerName:  m.CustomerName,
				MerchantID:    m.MerchantID,
			})
			if err != nil {
				errs = append(errs, ruleError(rule, err))
				break
			}
			if ok {
				inserted++
			}
		}

		d.metrics.DetectionsInserted(string(rule.ID()), inserted)
		if inserted > 0 {
			d.logger.Info("pattern detected",
				zap.String("pattern", string(rule.ID())),
				zap.String("action", string(rule.ID().Action())),
				zap.Int("new", inserted),
				zap.Int("qualifying", len(matches)))
		}
		total += inserted
	}

	return total, errors.Join(errs...)
}
