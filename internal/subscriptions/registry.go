// Package subscriptions holds the static catalog of subscription plans sold to individuals,
// agents, and builders.
package subscriptions

import "sort"

// UserType is the subscriber category a plan is sold to.
type UserType string

// Subscriber categories.
const (
	UserTypeIndividual UserType = "individual"
	UserTypeAgent      UserType = "agent"
	UserTypeBuilder    UserType = "builder"
)

// Plan describes one subscription plan.
type Plan struct {
	ID                string   `yaml:"id" json:"id"`
	Name              string   `yaml:"name" json:"name"`
	DurationMonths    int      `yaml:"duration" json:"duration"`
	Price             int      `yaml:"price" json:"price"`
	PropertiesAllowed int      `yaml:"properties_allowed" json:"properties_allowed"`
	UserType          UserType `yaml:"user_type" json:"user_type"`
}

// planCatalog holds the plans the platform currently sells.
var planCatalog = map[string]Plan{
	"ind_6m": {Name: "Individual 6 Months", DurationMonths: 6, Price: 400, PropertiesAllowed: 1, UserType: UserTypeIndividual},
}

// PlanByID returns the plan registered under identifier. The boolean is false for unknown identifiers.
func PlanByID(identifier string) (Plan, bool) {
	plan, found := planCatalog[identifier]
	if !found {
		return Plan{}, false
	}
	plan.ID = identifier
	return plan, true
}

// Plans lists every plan ordered by subscriber category, then duration.
func Plans() []Plan {
	plans := make([]Plan, 0, len(planCatalog))
	for identifier := range planCatalog {
		plan, _ := PlanByID(identifier)
		plans = append(plans, plan)
	}
	sort.Slice(plans, func(left int, right int) bool {
		if plans[left].UserType != plans[right].UserType {
			return userTypeRank(plans[left].UserType) < userTypeRank(plans[right].UserType)
		}
		return plans[left].DurationMonths < plans[right].DurationMonths
	})
	return plans
}

func userTypeRank(userType UserType) int {
	switch userType {
	case UserTypeIndividual:
		return 0
	case UserTypeAgent:
		return 1
	default:
		return 2
	}
}
