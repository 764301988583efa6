package quota

import (
	"strings"

	"expertresume/internal/database"
)

// Plan is a subscription plan definition: identity plus the quota ceilings
// it grants. A limit of -1 means unlimited.
type Plan struct {
	ID     string
	Name   string
	Limits database.QuotaLimits
}

// PlanRegistry resolves plan keys to definitions. It is the single source
// of truth for what each plan allows.
type PlanRegistry interface {
	// Resolve returns the plan for the given key, or false when the key
	// is unknown. Unknown keys are an error for quota initialization;
	// there is no safe default to fall back to.
	Resolve(key string) (Plan, bool)
}

type staticPlanRegistry struct {
	plans map[string]Plan
}

var planDefaults = []Plan{
	{
		ID:   "free_trial",
		Name: "Free Trial",
		Limits: database.QuotaLimits{
			MaxClients:       2,
			MaxResumeUploads: 3,
			MaxAtsChecks:     5,
			MaxJdResumes:     3,
			MaxTeamMembers:   0,
		},
	},
	{
		ID:   "starter_pro",
		Name: "Starter Pro",
		Limits: database.QuotaLimits{
			MaxClients:       10,
			MaxResumeUploads: 25,
			MaxAtsChecks:     50,
			MaxJdResumes:     25,
			MaxTeamMembers:   0,
		},
	},
	{
		ID:   "business_pro",
		Name: "Business Pro",
		Limits: database.QuotaLimits{
			MaxClients:       50,
			MaxResumeUploads: 100,
			MaxAtsChecks:     200,
			MaxJdResumes:     100,
			MaxTeamMembers:   3,
		},
	},
	{
		ID:   "enterprise_pro",
		Name: "Enterprise Pro",
		Limits: database.QuotaLimits{
			MaxClients:       -1,
			MaxResumeUploads: -1,
			MaxAtsChecks:     -1,
			MaxJdResumes:     -1,
			MaxTeamMembers:   10,
		},
	},
}

// NewStaticPlanRegistry returns the hardcoded production plan set.
func NewStaticPlanRegistry() PlanRegistry {
	m := make(map[string]Plan, len(planDefaults))
	for _, p := range planDefaults {
		m[p.ID] = p
	}
	return &staticPlanRegistry{plans: m}
}

// Resolve accepts both canonical keys ("starter_pro") and the upper-case
// aliases older clients send ("STARTER_PRO").
func (r *staticPlanRegistry) Resolve(key string) (Plan, bool) {
	p, ok := r.plans[strings.ToLower(strings.TrimSpace(key))]
	return p, ok
}
