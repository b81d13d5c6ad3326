package ltfrb

import "time"

// InsuranceStatus is the outcome of an insurance verification.
type InsuranceStatus string

const (
	InsuranceVerified InsuranceStatus = "verified"
	InsuranceExpired  InsuranceStatus = "expired"
)

// InsuranceVerification records that staff checked a vehicle's passenger
// insurance policy against the insurer's certificate.
type InsuranceVerification struct {
	ID           string
	VehicleID    string
	Provider     string
	PolicyNumber string
	CoverageEnd  time.Time
	Status       InsuranceStatus
	VerifiedBy   string
	VerifiedAt   time.Time
}
