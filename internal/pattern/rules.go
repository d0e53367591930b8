package pattern

import (
	"context"
	"fmt"
	"sort"

	"github.com/Veraticus/txnflow/internal/config"
	"github.com/Veraticus/txnflow/internal/model"
	"github.com/Veraticus/txnflow/internal/service"
	"github.com/shopspring/decimal"
)

// UpgradeRule flags customers of high volume merchants who transact the most
// (count at or above the count percentile) while carrying the least
// importance (average weight at or below the weight percentile).
type UpgradeRule struct {
	MinMerchantTransactions int
	CountPercentile         float64
	WeightPercentile        float64
}

// ID implements Rule.
func (r UpgradeRule) ID() model.PatternID {
	return model.PatternUpgrade
}

// Evaluate implements Rule.
func (r UpgradeRule) Evaluate(ctx context.Context, store service.PatternStore) ([]Match, error) {
	stats, err := store.UpgradeCandidates(ctx, r.MinMerchantTransactions)
	if err != nil {
		return nil, err
	}

	byMerchant := make(map[string][]service.CustomerMerchantStat)
	var merchants []string
	for _, st := range stats {
		if _, ok := byMerchant[st.MerchantID]; !ok {
			merchants = append(merchants, st.MerchantID)
		}
		byMerchant[st.MerchantID] = append(byMerchant[st.MerchantID], st)
	}
	sort.Strings(merchants)

	var matches []Match
	seen := make(map[Match]struct{})
	for _, merchant := range merchants {
		group := byMerchant[merchant]
		counts := make([]float64, len(group))
		weights := make([]float64, len(group))
		for i, st := range group {
			counts[i] = float64(st.TransactionCount)
			weights[i] = st.AverageWeight
		}
		countCut := PercentileCont(counts, r.CountPercentile)
		weightCut := PercentileCont(weights, r.WeightPercentile)

		for _, st := range group {
			if float64(st.TransactionCount) < countCut || st.AverageWeight > weightCut {
				continue
			}
			m := Match{CustomerName: st.CustomerName, MerchantID: st.MerchantID}
			if _, dup := seen[m]; dup {
				continue
			}
			seen[m] = struct{}{}
			matches = append(matches, m)
		}
	}
	return matches, nil
}

// ChildRule flags (customer, merchant) pairs with many small transactions.
type ChildRule struct {
	MaxAverageAmount decimal.Decimal
	MinTransactions  int
}

// ID implements Rule.
func (r ChildRule) ID() model.PatternID {
	return model.PatternChild
}

// Evaluate implements Rule.
func (r ChildRule) Evaluate(ctx context.Context, store service.PatternStore) ([]Match, error) {
	groups, err := store.ChildCandidates(ctx, r.MinTransactions, r.MaxAverageAmount)
	if err != nil {
		return nil, err
	}
	matches := make([]Match, 0, len(groups))
	for _, g := range groups {
		matches = append(matches, Match{CustomerName: g.CustomerName, MerchantID: g.MerchantID})
	}
	return matches, nil
}

// DEIRule flags merchants with more than MinFemaleCustomers distinct female
// customers and still more distinct male customers.
type DEIRule struct {
	MinFemaleCustomers int
}

// ID implements Rule.
func (r DEIRule) ID() model.PatternID {
	return model.PatternDEINeeded
}

// Evaluate implements Rule.
func (r DEIRule) Evaluate(ctx context.Context, store service.PatternStore) ([]Match, error) {
	counts, err := store.MerchantGenderCounts(ctx, r.MinFemaleCustomers)
	if err != nil {
		return nil, err
	}
	matches := make([]Match, 0, len(counts))
	for _, c := range counts {
		if c.Female <= int64(r.MinFemaleCustomers) || c.Male <= c.Female {
			continue
		}
		matches = append(matches, Match{MerchantID: c.MerchantID})
	}
	return matches, nil
}

// RulesFromConfig builds the three rules with the configured thresholds.
func RulesFromConfig(cfg config.RulesConfig) []Rule {
	return []Rule{
		UpgradeRule{
			MinMerchantTransactions: cfg.UpgradeMinMerchantTransactions,
			CountPercentile:         cfg.UpgradeCountPercentile,
			WeightPercentile:        cfg.UpgradeWeightPercentile,
		},
		ChildRule{
			MinTransactions:  cfg.ChildMinTransactions,
			MaxAverageAmount: decimal.NewFromFloat(cfg.ChildMaxAverageAmount),
		},
		DEIRule{MinFemaleCustomers: cfg.DEIMinFemaleCustomers},
	}
}

// DefaultRules returns the rules with their standard thresholds.
func DefaultRules() []Rule {
	return RulesFromConfig(config.RulesConfig{
		UpgradeMinMerchantTransactions: 50000,
		UpgradeCountPercentile:         0.9,
		UpgradeWeightPercentile:        0.1,
		ChildMinTransactions:           80,
		ChildMaxAverageAmount:          23,
		DEIMinFemaleCustomers:          100,
	})
}

func ruleError(r Rule, err error) error {
	return fmt.Errorf("pattern %s: %w", r.ID(), err)
}
