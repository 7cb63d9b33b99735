// ABOUTME: Built-in memo type definitions: sections, retrieval queries, and required fields.
// ABOUTME: Covers the short and full memo variants for direct, fund, and search-fund investments.
package memotype

// Memo type identifiers.
const (
	ShortSearchFund = "short-searchfund"
	ShortManager    = "short-manager"
	ShortPrimary    = "short-primary"
	ShortSecondary  = "short-secondary"
	FullPrimary     = "full-primary"
	FullSecondary   = "full-secondary"
	FullSearchFund  = "full-searchfund"
)

// Company-investment sections shared by most memo types.
var (
	secIdentification = Section{
		ID:       "identification",
		Query:    "company name description location founding history",
		Required: []string{"company_name"},
	}
	secTransaction = Section{
		ID:          "transaction_structure",
		Query:       "transaction enterprise value equity stake multiple payment",
		RequiredAny: []string{"ev_mm", "equity_value_mm"},
	}
	secFinancials = Section{
		ID:    "financials_history",
		Query: "revenue ebitda margin cagr net debt leverage history",
	}
	secExit = Section{
		ID:    "exit",
		Query: "exit projections revenue ebitda multiple growth drivers",
	}
	secReturns = Section{
		ID:    "returns",
		Query: "irr moic holding period entry multiple returns",
	}
	secQualitative = Section{
		ID:    "qualitative",
		Query: "business model competitive advantages risks management team",
	}
	secOpinions = Section{
		ID:    "opinions",
		Query: "investment thesis opinion merits concerns recommendation",
	}
)

// Fund-investment sections (primary fund commitments).
var (
	secManager = Section{
		ID:       "manager",
		Query:    "manager firm track record team assets under management",
		Required: []string{"manager_name"},
	}
	secFund = Section{
		ID:       "fund",
		Query:    "fund name size vintage target commitments terms",
		Required: []string{"fund_name"},
	}
	secStrategy = Section{
		ID:    "strategy",
		Query: "investment strategy sector focus ticket size value creation",
	}
	secFirmContext = Section{
		ID:    "firm_context",
		Query: "prior relationship commitments co-investments history with the manager",
	}
	secSecondaryPortfolio = Section{
		ID:    "secondary_portfolio",
		Query: "portfolio companies nav valuation remaining value secondary",
	}
	secProjections = Section{
		ID:    "projections_table",
		Query: "projected revenue ebitda margin capex scenario table",
	}
	secReturnsTable = Section{
		ID:    "returns_table",
		Query: "returns sensitivity table scenarios irr moic",
	}
	secBoardCapTable = Section{
		ID:    "board_cap_table",
		Query: "board composition governance cap table shareholders",
	}
)

// DefaultRegistry returns the registry of built-in memo types.
func DefaultRegistry() *Registry {
	return NewRegistry(
		&Spec{
			ID:   ShortSearchFund,
			Name: "Short Memo - Co-investment (Search Fund)",
			Sections: []Section{
				secIdentification, secTransaction, secFinancials,
				secExit, secReturns, secQualitative, secOpinions,
			},
			Structure: []string{
				"Introduction", "Transaction", "Financials", "Returns",
			},
		},
		&Spec{
			ID:   ShortManager,
			Name: "Short Memo - Co-investment (Manager)",
			Sections: []Section{
				secIdentification, secTransaction, secFinancials,
				secExit, secReturns, secQualitative, secOpinions,
			},
			Structure: []string{
				"Introduction", "Company", "Financials", "Market", "Track Record", "Risks",
			},
		},
		&Spec{
			ID:   ShortPrimary,
			Name: "Short Memo - Primary",
			Sections: []Section{
				secManager, secFund, secStrategy, secFirmContext, secOpinions,
			},
			Structure: []string{
				"Introduction", "Manager", "Current Fund", "Portfolio Strategy",
			},
		},
		&Spec{
			ID:   ShortSecondary,
			Name: "Short Memo - Secondary",
			Sections: []Section{
				secIdentification, secTransaction, secFinancials,
				secReturns, secQualitative, secOpinions, secSecondaryPortfolio,
			},
			Structure: []string{
				"Introduction", "Portfolio", "Transaction", "Returns",
			},
		},
		&Spec{
			ID:   FullPrimary,
			Name: "Memo - Primary",
			Sections: []Section{
				secIdentification, secTransaction, secFinancials,
				secExit, secReturns, secQualitative, secOpinions,
			},
			Structure: []string{
				"Introduction", "Company", "Transaction", "Financials",
				"Projections", "Returns", "Risks", "Conclusion",
			},
		},
		&Spec{
			ID:   FullSecondary,
			Name: "Memo - Secondary",
			Sections: []Section{
				secIdentification, secTransaction, secFinancials,
				secExit, secReturns, secQualitative, secOpinions,
			},
			Structure: []string{
				"Introduction", "Portfolio", "Transaction", "Financials",
				"Returns", "Risks", "Conclusion",
			},
		},
		&Spec{
			ID:   FullSearchFund,
			Name: "Memo - Co-investment (Search Fund)",
			Sections: []Section{
				secIdentification, secManager, secTransaction, secFinancials,
				secProjections, secReturnsTable, secBoardCapTable,
				secQualitative, secOpinions,
			},
			Structure: []string{
				"Introduction", "Manager", "Company", "Transaction", "Financials",
				"Projections", "Returns", "Board and Cap Table", "Risks", "Conclusion",
			},
		},
	)
}
