package dues

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
)

// =============================================================================
// EXEMPTION GRANTS - Tagged union of yearly, quarterly and custom grants
// =============================================================================

type ExemptionKind string

const (
	ExemptionYearly    ExemptionKind = "yearly"
	ExemptionQuarterly ExemptionKind = "quarterly"
	ExemptionCustom    ExemptionKind = "custom"
)

// GrantScope is shared by every grant variant. Range is inclusive.
type GrantScope struct {
	ID     GrantID
	ClubID ClubID
	UserID UserID
	Range  YearMonthRange
}

func (s GrantScope) Scope() GrantScope { return s }

// ExemptionGrant is implemented only by the three variants in this file.
type ExemptionGrant interface {
	Kind() ExemptionKind
	Scope() GrantScope
	isExemptionGrant()
}

// YearlyExemption fully waives charges within its range.
type YearlyExemption struct{ GrantScope }

// QuarterlyExemption fully waives charges within its range.
type QuarterlyExemption struct{ GrantScope }

// CustomExemption carries a one-time credit applicable to CreditApply.
type CustomExemption struct {
	GrantScope
	CreditApply     YearMonth
	RemainingCredit Money
}

func (YearlyExemption) Kind() ExemptionKind    { return ExemptionYearly }
func (QuarterlyExemption) Kind() ExemptionKind { return ExemptionQuarterly }
func (CustomExemption) Kind() ExemptionKind    { return ExemptionCustom }

func (YearlyExemption) isExemptionGrant()    {}
func (QuarterlyExemption) isExemptionGrant() {}
func (CustomExemption) isExemptionGrant()    {}

// NewExemptionGrant builds a grant variant from its kind. Credit fields are
// ignored for yearly and quarterly grants.
func NewExemptionGrant(kind ExemptionKind, scope GrantScope, creditApply YearMonth, credit Money) (ExemptionGrant, error) {
	if !scope.Range.Valid() {
		return nil, fmt.Errorf("%w: range %s", ErrInvalidGrant, scope.Range)
	}
	switch kind {
	case ExemptionYearly:
		return YearlyExemption{GrantScope: scope}, nil
	case ExemptionQuarterly:
		return QuarterlyExemption{GrantScope: scope}, nil
	case ExemptionCustom:
		return CustomExemption{GrantScope: scope, CreditApply: creditApply, RemainingCredit: credit}, nil
	default:
		return nil, fmt.Errorf("%w: unknown kind %q", ErrInvalidGrant, kind)
	}
}

// =============================================================================
// RESOLVER
// =============================================================================

// Resolution is the outcome for one member and target month.
type Resolution struct {
	Exempt  bool
	Credit  Money
	GrantID GrantID
}

// ExemptionResolver decides full exemption or partial credit.
//
// ORDER (short-circuiting):
//  1. Any yearly grant covering the target: exempt
//  2. Any quarterly grant covering the target: exempt
//  3. First custom grant whose credit month is the target with remaining
//     credit: that credit (not an exemption)
//
// Overlapping grants of the same kind resolve by enumeration order.
type ExemptionResolver struct {
	Store ExemptionStore
}

func NewExemptionResolver(store ExemptionStore) *ExemptionResolver {
	return &ExemptionResolver{Store: store}
}

func (r *ExemptionResolver) Resolve(ctx context.Context, clubID ClubID, userID UserID, target YearMonth) (Resolution, error) {
	grants, err := r.Store.ListExemptions(ctx, clubID, userID)
	if err != nil {
		return Resolution{}, fmt.Errorf("list exemptions: %w", err)
	}
	return ResolveGrants(grants, target), nil
}

// ResolveGrants applies the resolution order to an already-loaded grant list.
func ResolveGrants(grants []ExemptionGrant, target YearMonth) Resolution {
	for _, kind := range []ExemptionKind{ExemptionYearly, ExemptionQuarterly} {
		for _, g := range grants {
			if g.Kind() == kind && g.Scope().Range.Contains(target) {
				return Resolution{Exempt: true, Credit: decimal.Zero, GrantID: g.Scope().ID}
			}
		}
	}

	for _, g := range grants {
		custom, ok := g.(CustomExemption)
		if !ok {
			continue
		}
		if custom.CreditApply == target && custom.RemainingCredit.IsPositive() {
			return Resolution{Credit: custom.RemainingCredit, GrantID: custom.ID}
		}
	}

	return Resolution{Credit: decimal.Zero}
}
