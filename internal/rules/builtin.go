package rules

import "github.com/opensource-finance/riskview/internal/domain"

// BuiltinRules returns the risk factors scored by the development backend.
// Weights sum to 1 and the behavioral thresholds match domain.DefaultPolicy.
func BuiltinRules() []*domain.RiskRule {
	return []*domain.RiskRule{
		{
			ID:          "amount",
			Name:        "Transaction amount",
			Description: "Amount relative to a 5000 ceiling",
			Category:    domain.CategoryTransaction,
			Expression:  "amount >= 5000.0 ? 1.0 : amount / 5000.0",
			Weight:      0.30,
			Enabled:     true,
		},
		{
			ID:          "velocity",
			Name:        "Transaction velocity",
			Description: "Customer transactions in the velocity window",
			Category:    domain.CategoryTransaction,
			Expression:  "velocity_count >= 10 ? 1.0 : double(velocity_count) / 10.0",
			Weight:      0.20,
			Enabled:     true,
		},
		{
			ID:          "device_changes",
			Name:        "Device changes",
			Description: "More than 3 device changes",
			Category:    domain.CategoryDevice,
			Expression:  "device_changes > 3",
			Weight:      0.15,
			Enabled:     true,
		},
		{
			ID:          "os_changes",
			Name:        "OS version changes",
			Description: "More than 2 operating system changes",
			Category:    domain.CategoryDevice,
			Expression:  "os_changes > 2",
			Weight:      0.10,
			Enabled:     true,
		},
		{
			ID:          "weekly_logins",
			Name:        "Login burst",
			Description: "More than 20 logins in the last 7 days",
			Category:    domain.CategoryBehavioral,
			Expression:  "logins_7d > 20",
			Weight:      0.10,
			Enabled:     true,
		},
		{
			ID:          "login_shift",
			Name:        "Login frequency shift",
			Description: "Login frequency changed by more than 50%",
			Category:    domain.CategoryBehavioral,
			Expression:  "login_shift > 0.5 || login_shift < -0.5",
			Weight:      0.10,
			Enabled:     true,
		},
		{
			ID:          "night_activity",
			Name:        "Night activity",
			Description: "Transaction between midnight and 5am",
			Category:    domain.CategoryTemporal,
			Expression:  "hour >= 0 && hour < 5",
			Weight:      0.05,
			Enabled:     true,
		},
	}
}
