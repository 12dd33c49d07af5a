package subscription

import "vpnstore/pkg/errutil"

const (
	// FreePlan is the implicit trial tier granted on first contact. It has
	// no price and no end date and is never purchasable.
	FreePlan = "FREE"
	// PromoPlan marks grants minted by admin promo codes.
	PromoPlan = "PROMO"
)

// Plan is a purchasable (price, duration) pair. Prices are integer
// minor-currency units.
type Plan struct {
	Key            string
	Price          int64
	DurationMonths int
}

var plans = map[string]Plan{
	"M1":  {Key: "M1", Price: 120, DurationMonths: 1},
	"M3":  {Key: "M3", Price: 330, DurationMonths: 3},
	"M6":  {Key: "M6", Price: 600, DurationMonths: 6},
	"M12": {Key: "M12", Price: 1080, DurationMonths: 12},
}

// LookupPlan resolves a purchasable plan key.
func LookupPlan(key string) (Plan, error) {
	plan, ok := plans[key]
	if !ok {
		return Plan{}, errutil.NotFound("plan not found: " + key)
	}
	if plan.Price <= 0 {
		return Plan{}, errutil.UnprocessableEntity("plan is not purchasable: " + key)
	}
	return plan, nil
}

// Plans returns the purchasable catalog.
func Plans() []Plan {
	out := make([]Plan, 0, len(plans))
	for _, p := range plans {
		out = append(out, p)
	}
	return out
}
