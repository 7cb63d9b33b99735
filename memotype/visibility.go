// ABOUTME: Field visibility table controlling which extracted fields feed each memo type.
// ABOUTME: FilterFacts strips fields that a memo type's generation agents should not see.
package memotype

import "sort"

// fieldVisibility maps section -> field -> memo type IDs the field is visible
// to. A nil slice means the field is visible to all memo types.
var fieldVisibility = map[string]map[string][]string{
	"identification": {
		"company_name":         nil,
		"business_description": nil,
		"company_location":     nil,
		"deal_context":         nil,
		"searcher_name":        {ShortSearchFund, FullSearchFund},
		"search_start_date":    {ShortSearchFund, FullSearchFund},
		"investor_nationality": {ShortSearchFund},
		"founding_year":        {FullPrimary, FullSecondary},
	},
	"transaction_structure": {
		"currency":                  nil,
		"stake_pct":                 nil,
		"ev_mm":                     nil,
		"equity_value_mm":           nil,
		"multiple_ev_ebitda":        nil,
		"multiple_reference_period": nil,
		"cash_payment_mm":           nil,
		"debt_equity_ratio":         nil,
		"investor_opinion":          {ShortSearchFund, ShortManager},
		"seller_note_mm":            {ShortSearchFund, ShortPrimary, ShortManager, FullPrimary},
		"seller_note_terms":         {ShortSearchFund, ShortPrimary, ShortManager, FullPrimary},
		"earnout_mm":                {ShortSearchFund, ShortPrimary, FullPrimary, FullSecondary},
		"earnout_conditions":        {ShortSearchFund, ShortPrimary, FullPrimary, FullSecondary},
		"multiple_with_earnout":     {ShortSearchFund, ShortPrimary, FullPrimary},
		"multiple_ev_fcf":           {ShortSecondary},
		"target_leverage":           {ShortSecondary},
		"acquisition_debt_mm":       {ShortSecondary},
	},
	"financials_history": {
		"revenue_current_mm":        nil,
		"revenue_cagr_pct":          nil,
		"revenue_cagr_period":       nil,
		"ebitda_current_mm":         nil,
		"ebitda_margin_current_pct": nil,
		"net_debt_mm":               nil,
		"leverage_net_debt_ebitda":  nil,
		"financials_commentary":     nil,
		"ebitda_cagr_pct":           {FullPrimary, FullSecondary},
		"cash_conversion_pct":       {ShortSearchFund, ShortManager, FullPrimary},
		"gross_margin_pct":          {ShortManager, FullPrimary, FullSecondary},
		"employees_count":           {ShortSearchFund, FullPrimary},
		"fcf_current_mm":            {ShortSecondary},
		"fcf_conversion_pct":        {ShortSecondary},
		"roic_pct":                  {ShortSecondary},
	},
	"returns": {
		"irr_pct":              nil,
		"moic":                 nil,
		"holding_period_years": nil,
		"entry_multiple":       nil,
		"returns_commentary":   nil,
		"fcf_yield_pct":        {ShortSecondary},
		"dividend_recaps":      {ShortSecondary},
	},
}

// FilterFacts returns a copy of the fact map with fields removed that are not
// visible to the given memo type. Sections without a visibility table pass
// through untouched; the original map is never mutated.
func FilterFacts(memoType string, facts map[string]map[string]any) map[string]map[string]any {
	filtered := make(map[string]map[string]any, len(facts))
	for section, fields := range facts {
		table, hasTable := fieldVisibility[section]
		out := make(map[string]any, len(fields))
		for field, value := range fields {
			if hasTable {
				allowed, known := table[field]
				if known && allowed != nil && !containsString(allowed, memoType) {
					continue
				}
			}
			out[field] = value
		}
		filtered[section] = out
	}
	return filtered
}

// SectionFields returns the field names of a section that are visible to the
// given memo type, sorted for stable prompts. Sections without a visibility
// table return nil, meaning the schema is open.
func SectionFields(memoType, sectionID string) []string {
	table, ok := fieldVisibility[sectionID]
	if !ok {
		return nil
	}
	fields := make([]string, 0, len(table))
	for field, allowed := range table {
		if allowed == nil || containsString(allowed, memoType) {
			fields = append(fields, field)
		}
	}
	sort.Strings(fields)
	return fields
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
