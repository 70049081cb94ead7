package service

import (
	"sort"

	"github.com/shopspring/decimal"
)

// Plan is a grove or per-tree subscription offering.
type Plan struct {
	Type         string
	TreeLimit    int
	MonthlyPrice decimal.Decimal
}

const SinglePlanType = "single"

var (
	grovePlans = []Plan{
		{Type: "seedling", TreeLimit: 1, MonthlyPrice: decimal.RequireFromString("4.99")},
		{Type: "family", TreeLimit: 5, MonthlyPrice: decimal.RequireFromString("9.99")},
		{Type: "heritage", TreeLimit: 25, MonthlyPrice: decimal.RequireFromString("24.99")},
	}
	singlePlan = Plan{Type: SinglePlanType, TreeLimit: 1, MonthlyPrice: decimal.RequireFromString("2.99")}
)

// GrovePlans returns the grove plans ordered by capacity.
func GrovePlans() []Plan {
	plans := append([]Plan(nil), grovePlans...)
	sort.Slice(plans, func(i, j int) bool { return plans[i].TreeLimit < plans[j].TreeLimit })
	return plans
}

// choosePlan returns the requested grove plan, or the smallest one that can
// hold at least minTrees when none is requested.
func choosePlan(planType string, minTrees int) (Plan, error) {
	plans := GrovePlans()
	if planType != "" {
		for _, p := range plans {
			if p.Type == planType {
				if p.TreeLimit < minTrees {
					return Plan{}, invalid("planType", "plan cannot hold this tree")
				}
				return p, nil
			}
		}
		return Plan{}, invalid("planType", "unknown plan "+planType)
	}
	for _, p := range plans {
		if p.TreeLimit >= minTrees {
			return p, nil
		}
	}
	return Plan{}, invalid("planType", "no plan is large enough")
}
