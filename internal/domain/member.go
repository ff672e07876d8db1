package domain

import "time"

// MemberRecord is the financial position of one member for the current exercise.
// Amounts are in the association currency (FCFA).
type MemberRecord struct {
	MemberID string `json:"member_id" yaml:"member_id"`
	UserID   string `json:"user_id" yaml:"user_id"`

	EnrollmentPaid float64 `json:"enrollment_paid" yaml:"enrollment_paid"`
	EnrollmentDue  float64 `json:"enrollment_due" yaml:"enrollment_due"`

	SolidarityPaid float64 `json:"solidarity_paid" yaml:"solidarity_paid"`
	SolidarityDue  float64 `json:"solidarity_due" yaml:"solidarity_due"`

	SavingsTotal float64 `json:"savings_total" yaml:"savings_total"`

	LoanAmount  float64   `json:"loan_amount" yaml:"loan_amount"`
	LoanRepaid  float64   `json:"loan_repaid" yaml:"loan_repaid"`
	BailoutOwed float64   `json:"bailout_owed" yaml:"bailout_owed"`
	JoinedAt    time.Time `json:"joined_at" yaml:"joined_at"`
	UpdatedAt   time.Time `json:"updated_at" yaml:"-"`
}

// EnrollmentProgress returns the paid share of the enrollment fee in [0, 100].
func (m *MemberRecord) EnrollmentProgress() float64 {
	return percent(m.EnrollmentPaid, m.EnrollmentDue)
}

// EnrollmentComplete reports whether the enrollment fee is fully paid.
func (m *MemberRecord) EnrollmentComplete() bool {
	return m.EnrollmentDue <= 0 || m.EnrollmentPaid >= m.EnrollmentDue
}

// SolidarityUpToDate reports whether the solidarity contribution is settled.
func (m *MemberRecord) SolidarityUpToDate() bool {
	return m.SolidarityPaid >= m.SolidarityDue
}

// SolidarityRemaining returns what is still owed on the solidarity contribution.
func (m *MemberRecord) SolidarityRemaining() float64 {
	return remaining(m.SolidarityDue, m.SolidarityPaid)
}

// HasActiveLoan reports whether a loan is still being repaid.
func (m *MemberRecord) HasActiveLoan() bool {
	return m.LoanAmount > 0 && m.LoanRepaid < m.LoanAmount
}

// LoanRemaining returns the outstanding loan balance.
func (m *MemberRecord) LoanRemaining() float64 {
	return remaining(m.LoanAmount, m.LoanRepaid)
}

// LoanProgress returns the repaid share of the loan in [0, 100].
func (m *MemberRecord) LoanProgress() float64 {
	return percent(m.LoanRepaid, m.LoanAmount)
}

func percent(part, total float64) float64 {
	if total <= 0 {
		return 100
	}
	p := part / total * 100
	switch {
	case p < 0:
		return 0
	case p > 100:
		return 100
	}
	return p
}

func remaining(total, paid float64) float64 {
	if paid >= total {
		return 0
	}
	return total - paid
}
