package ledger

// DefaultCost is charged for model keys missing from the price table.
const DefaultCost int64 = 1

// Entry gates for starting a flow. They are hints shown before any input is
// collected; the binding check happens when the hold is reserved.
const (
	MinImageBalance int64 = 1
	MinVideoBalance int64 = 5
)

var prices = map[string]int64{
	"nanabanana":     1,
	"nanabanana_pro": 5,
	"seadream":       2,
	"kling_5":        5,
	"kling_10":       10,
}

// CostFor returns the credit price of one generation with modelKey.
func CostFor(modelKey string) int64 {
	if cost, ok := prices[modelKey]; ok {
		return cost
	}
	return DefaultCost
}
