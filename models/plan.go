package models

import "time"

// Plan is a subscription tier. Limits come from config/plans.yaml; a
// DailyViewLimit of 0 means unlimited.
type Plan struct {
	ID             string `yaml:"id" json:"id"`
	Name           string `yaml:"name" json:"name"`
	DailyViewLimit int    `yaml:"daily_view_limit" json:"daily_view_limit"`
	DigestSize     int    `yaml:"digest_size" json:"digest_size"`
}

// Unlimited reports whether the plan has no daily view cap.
func (p Plan) Unlimited() bool {
	return p.DailyViewLimit <= 0
}

// QuotaDecision is the outcome of one checkAndConsume call.
type QuotaDecision struct {
	Allowed   bool      `json:"allowed"`
	Remaining int       `json:"remaining"`
	ResetAt   time.Time `json:"reset_at"`
}
