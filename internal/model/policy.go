package model

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	// PolicyPrice is the fixed insurance price.
	PolicyPrice = 100
	// PolicyCurrency is the currency of PolicyPrice.
	PolicyCurrency = "USD"
)

// PolicyRecord is built at issuance time and handed to the renderer.
type PolicyRecord struct {
	PolicyNumber    string
	IssueDate       time.Time
	ValidUntil      time.Time
	Price           int
	Currency        string
	PassportSummary string
	VehicleSummary  string
}

// NewPolicyNumber returns a short random policy number.
func NewPolicyNumber() string {
	return strings.ToUpper(uuid.NewString()[:8])
}

// NewPolicyRecord builds a one-year policy at the fixed price.
func NewPolicyRecord(p Passport, v Vehicle, now time.Time) PolicyRecord {
	now = now.UTC()
	return PolicyRecord{
		PolicyNumber:    NewPolicyNumber(),
		IssueDate:       now,
		ValidUntil:      now.AddDate(1, 0, 0),
		Price:           PolicyPrice,
		Currency:        PolicyCurrency,
		PassportSummary: p.Summary(),
		VehicleSummary:  v.Summary(),
	}
}

// FileName is the document name used when sending the policy.
func (r PolicyRecord) FileName() string {
	return "policy_" + r.PolicyNumber + ".pdf"
}
