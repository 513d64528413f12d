package news

import "github.com/knoxfield/regimebot/internal/domain"

// keywordRule maps a headline phrase to its sentiment contribution and how
// market-moving it typically is. Phrases are matched case-insensitively
// against title and description.
type keywordRule struct {
	phrase    string
	sentiment float64 // [-1, 1], negative is risk-off
	impact    domain.ImpactLevel
}

// riskOffRules cover macro tightening, stress and crypto-specific blowups.
var riskOffRules = []keywordRule{
	{phrase: "rate hike", sentiment: -0.8, impact: domain.ImpactHigh},
	{phrase: "raises rates", sentiment: -0.8, impact: domain.ImpactHigh},
	{phrase: "hawkish", sentiment: -0.6, impact: domain.ImpactMedium},
	{phrase: "inflation surges", sentiment: -0.7, impact: domain.ImpactHigh},
	{phrase: "hot cpi", sentiment: -0.7, impact: domain.ImpactHigh},
	{phrase: "recession", sentiment: -0.6, impact: domain.ImpactMedium},
	{phrase: "bank failure", sentiment: -0.9, impact: domain.ImpactHigh},
	{phrase: "credit crisis", sentiment: -0.9, impact: domain.ImpactHigh},
	{phrase: "sell-off", sentiment: -0.5, impact: domain.ImpactMedium},
	{phrase: "liquidation", sentiment: -0.5, impact: domain.ImpactMedium},
	{phrase: "sec lawsuit", sentiment: -0.6, impact: domain.ImpactMedium},
	{phrase: "exchange hack", sentiment: -0.8, impact: domain.ImpactHigh},
	{phrase: "crackdown", sentiment: -0.5, impact: domain.ImpactMedium},
	{phrase: "ban", sentiment: -0.4, impact: domain.ImpactLow},
	{phrase: "default", sentiment: -0.6, impact: domain.ImpactMedium},
}

// riskOnRules cover easing, liquidity and adoption headlines.
var riskOnRules = []keywordRule{
	{phrase: "rate cut", sentiment: 0.8, impact: domain.ImpactHigh},
	{phrase: "cuts rates", sentiment: 0.8, impact: domain.ImpactHigh},
	{phrase: "dovish", sentiment: 0.6, impact: domain.ImpactMedium},
	{phrase: "inflation cools", sentiment: 0.7, impact: domain.ImpactHigh},
	{phrase: "soft cpi", sentiment: 0.7, impact: domain.ImpactHigh},
	{phrase: "soft landing", sentiment: 0.5, impact: domain.ImpactMedium},
	{phrase: "stimulus", sentiment: 0.6, impact: domain.ImpactMedium},
	{phrase: "quantitative easing", sentiment: 0.7, impact: domain.ImpactHigh},
	{phrase: "etf approval", sentiment: 0.8, impact: domain.ImpactHigh},
	{phrase: "etf inflows", sentiment: 0.5, impact: domain.ImpactMedium},
	{phrase: "institutional adoption", sentiment: 0.5, impact: domain.ImpactMedium},
	{phrase: "all-time high", sentiment: 0.4, impact: domain.ImpactLow},
	{phrase: "rally", sentiment: 0.3, impact: domain.ImpactLow},
	{phrase: "halving", sentiment: 0.3, impact: domain.ImpactLow},
}

// decoupledRules mark headlines where crypto trades on its own drivers
// rather than the macro tape.
var decoupledRules = []string{
	"bitcoin decouples",
	"crypto diverges",
	"despite stock",
	"defies market",
	"safe haven",
	"digital gold",
}
