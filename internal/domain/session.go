package domain

import (
	"time"
)

// Status values shared by sessions and exercises.
const (
	StatusPlanned    = "PLANIFIEE"
	StatusInProgress = "EN_COURS"
	StatusClosed     = "TERMINEE"
)

// MutualSession is one periodic meeting of the association (contributions,
// loans and repayments are recorded against it).
type MutualSession struct {
	SessionID  string    `json:"session_id" yaml:"session_id"`
	ExerciseID string    `json:"exercise_id" yaml:"exercise_id"`
	Name       string    `json:"name" yaml:"name"`
	Date       time.Time `json:"date" yaml:"date"`
	Status     string    `json:"status" yaml:"status"`
}

// Exercise is the accounting period that groups sessions.
type Exercise struct {
	ExerciseID string    `json:"exercise_id" yaml:"exercise_id"`
	Name       string    `json:"name" yaml:"name"`
	StartDate  time.Time `json:"start_date" yaml:"start_date"`
	EndDate    time.Time `json:"end_date" yaml:"end_date"`
	Status     string    `json:"status" yaml:"status"`
}

// IsCurrent reports whether the exercise covers the given instant.
func (e *Exercise) IsCurrent(at time.Time) bool {
	if e.Status == StatusClosed {
		return false
	}
	return !at.Before(e.StartDate) && (e.EndDate.IsZero() || !at.After(e.EndDate))
}

// MutualConfig holds the association's financial parameters.
type MutualConfig struct {
	EnrollmentFee          float64   `json:"enrollment_fee" yaml:"enrollment_fee"`
	SolidarityContribution float64   `json:"solidarity_contribution" yaml:"solidarity_contribution"`
	InterestRate           float64   `json:"interest_rate" yaml:"interest_rate"` // percent per loan
	LoanCoefficient        float64   `json:"loan_coefficient" yaml:"loan_coefficient"`
	ExerciseMonths         int       `json:"exercise_months" yaml:"exercise_months"`
	UpdatedAt              time.Time `json:"updated_at" yaml:"-"`
}

// Dashboard is the association-wide aggregate shown on the home screen.
type Dashboard struct {
	MemberCount      int     `json:"member_count"`
	ActiveLoans      int     `json:"active_loans"`
	TotalSavings     float64 `json:"total_savings"`
	TotalOutstanding float64 `json:"total_outstanding"`
	SolidarityFund   float64 `json:"solidarity_fund"`
	PendingBailouts  int     `json:"pending_bailouts"`
}
