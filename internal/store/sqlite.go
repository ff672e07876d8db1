package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/ashureev/mutuelle-assistant/internal/domain"
	"github.com/ashureev/mutuelle-assistant/internal/shared"
	_ "modernc.org/sqlite"
)

const (
	writeRetries    = 3
	writeRetryDelay = 50 * time.Millisecond
)

// SQLiteStore implements Repository using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite creates a new SQLite-backed repository.
func NewSQLite(dbPath string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	// WAL mode lets provider reads run while the CLI seeds.
	dsn := "file:" + dbPath + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err := store.initSchema(); err != nil {
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	return store, nil
}

func (s *SQLiteStore) initSchema() error {
	query := `
	CREATE TABLE IF NOT EXISTS users (
		user_id TEXT PRIMARY KEY,
		first_name TEXT NOT NULL,
		last_name TEXT NOT NULL DEFAULT '',
		email TEXT NOT NULL DEFAULT '',
		phone TEXT NOT NULL DEFAULT '',
		role TEXT NOT NULL,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS members (
		member_id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL UNIQUE,
		enrollment_paid REAL NOT NULL DEFAULT 0,
		enrollment_due REAL NOT NULL DEFAULT 0,
		solidarity_paid REAL NOT NULL DEFAULT 0,
		solidarity_due REAL NOT NULL DEFAULT 0,
		savings_total REAL NOT NULL DEFAULT 0,
		loan_amount REAL NOT NULL DEFAULT 0,
		loan_repaid REAL NOT NULL DEFAULT 0,
		bailout_owed REAL NOT NULL DEFAULT 0,
		joined_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS exercises (
		exercise_id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		start_date INTEGER NOT NULL,
		end_date INTEGER,
		status TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS mutual_sessions (
		session_id TEXT PRIMARY KEY,
		exercise_id TEXT NOT NULL DEFAULT '',
		name TEXT NOT NULL,
		date INTEGER NOT NULL,
		status TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_mutual_sessions_date ON mutual_sessions(date);

	CREATE TABLE IF NOT EXISTS mutual_config (
		id INTEGER PRIMARY KEY CHECK (id = 1),
		enrollment_fee REAL NOT NULL,
		solidarity_contribution REAL NOT NULL,
		interest_rate REAL NOT NULL,
		loan_coefficient REAL NOT NULL,
		exercise_months INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);
	`
	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// Ping verifies database connectivity.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close database: %w", err)
	}
	return nil
}

func (s *SQLiteStore) exec(ctx context.Context, query string, args ...any) error {
	return shared.RetryOnConflict(ctx, writeRetries, writeRetryDelay, func() error {
		_, err := s.db.ExecContext(ctx, query, args...)
		return err
	})
}

// GetUser retrieves a user by their user ID.
func (s *SQLiteStore) GetUser(ctx context.Context, userID string) (*domain.User, error) {
	query := `
		SELECT user_id, first_name, last_name, email, phone, role, created_at, updated_at
		FROM users WHERE user_id = ?`

	var user domain.User
	var role string
	var createdAt, updatedAt int64
	err := s.db.QueryRowContext(ctx, query, userID).Scan(
		&user.UserID, &user.FirstName, &user.LastName, &user.Email, &user.Phone,
		&role, &createdAt, &updatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan user row: %w", err)
	}

	user.Role = domain.Role(role)
	user.CreatedAt = time.Unix(createdAt, 0)
	user.UpdatedAt = time.Unix(updatedAt, 0)
	return &user, nil
}

// UpsertUser creates or updates a user record.
func (s *SQLiteStore) UpsertUser(ctx context.Context, user *domain.User) error {
	query := `
	INSERT INTO users (user_id, first_name, last_name, email, phone, role, created_at, updated_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(user_id) DO UPDATE SET
		first_name = excluded.first_name,
		last_name = excluded.last_name,
		email = excluded.email,
		phone = excluded.phone,
		role = excluded.role,
		updated_at = excluded.updated_at`

	now := time.Now()
	createdAt := user.CreatedAt
	if createdAt.IsZero() {
		createdAt = now
	}
	if err := s.exec(ctx, query,
		user.UserID, user.FirstName, user.LastName, user.Email, user.Phone,
		string(user.Role), createdAt.Unix(), now.Unix(),
	); err != nil {
		return fmt.Errorf("upsert user: %w", err)
	}
	return nil
}

// GetMemberByUser retrieves the financial record attached to a user.
func (s *SQLiteStore) GetMemberByUser(ctx context.Context, userID string) (*domain.MemberRecord, error) {
	query := `
		SELECT member_id, user_id, enrollment_paid, enrollment_due,
		       solidarity_paid, solidarity_due, savings_total,
		       loan_amount, loan_repaid, bailout_owed, joined_at, updated_at
		FROM members WHERE user_id = ?`

	var m domain.MemberRecord
	var joinedAt, updatedAt int64
	err := s.db.QueryRowContext(ctx, query, userID).Scan(
		&m.MemberID, &m.UserID, &m.EnrollmentPaid, &m.EnrollmentDue,
		&m.SolidarityPaid, &m.SolidarityDue, &m.SavingsTotal,
		&m.LoanAmount, &m.LoanRepaid, &m.BailoutOwed, &joinedAt, &updatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan member row: %w", err)
	}

	m.JoinedAt = time.Unix(joinedAt, 0)
	m.UpdatedAt = time.Unix(updatedAt, 0)
	return &m, nil
}

// UpsertMember creates or updates a member financial record.
func (s *SQLiteStore) UpsertMember(ctx context.Context, m *domain.MemberRecord) error {
	query := `
	INSERT INTO members (
		member_id, user_id, enrollment_paid, enrollment_due,
		solidarity_paid, solidarity_due, savings_total,
		loan_amount, loan_repaid, bailout_owed, joined_at, updated_at
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(member_id) DO UPDATE SET
		user_id = excluded.user_id,
		enrollment_paid = excluded.enrollment_paid,
		enrollment_due = excluded.enrollment_due,
		solidarity_paid = excluded.solidarity_paid,
		solidarity_due = excluded.solidarity_due,
		savings_total = excluded.savings_total,
		loan_amount = excluded.loan_amount,
		loan_repaid = excluded.loan_repaid,
		bailout_owed = excluded.bailout_owed,
		updated_at = excluded.updated_at`

	now := time.Now()
	joinedAt := m.JoinedAt
	if joinedAt.IsZero() {
		joinedAt = now
	}
	if err := s.exec(ctx, query,
		m.MemberID, m.UserID, m.EnrollmentPaid, m.EnrollmentDue,
		m.SolidarityPaid, m.SolidarityDue, m.SavingsTotal,
		m.LoanAmount, m.LoanRepaid, m.BailoutOwed, joinedAt.Unix(), now.Unix(),
	); err != nil {
		return fmt.Errorf("upsert member: %w", err)
	}
	return nil
}

// GetDashboard aggregates association-wide figures.
func (s *SQLiteStore) GetDashboard(ctx context.Context) (*domain.Dashboard, error) {
	query := `
		SELECT COUNT(*),
		       COALESCE(SUM(CASE WHEN loan_amount > loan_repaid THEN 1 ELSE 0 END), 0),
		       COALESCE(SUM(savings_total), 0),
		       COALESCE(SUM(CASE WHEN loan_amount > loan_repaid THEN loan_amount - loan_repaid ELSE 0 END), 0),
		       COALESCE(SUM(solidarity_paid), 0),
		       COALESCE(SUM(CASE WHEN bailout_owed > 0 THEN 1 ELSE 0 END), 0)
		FROM members`

	var d domain.Dashboard
	if err := s.db.QueryRowContext(ctx, query).Scan(
		&d.MemberCount, &d.ActiveLoans, &d.TotalSavings,
		&d.TotalOutstanding, &d.SolidarityFund, &d.PendingBailouts,
	); err != nil {
		return nil, fmt.Errorf("aggregate dashboard: %w", err)
	}
	return &d, nil
}

// GetCurrentSession returns the in-progress session, or the latest planned one.
func (s *SQLiteStore) GetCurrentSession(ctx context.Context) (*domain.MutualSession, error) {
	query := `
		SELECT session_id, exercise_id, name, date, status
		FROM mutual_sessions
		WHERE status != ?
		ORDER BY CASE status WHEN ? THEN 0 ELSE 1 END, date DESC
		LIMIT 1`

	var ms domain.MutualSession
	var date int64
	err := s.db.QueryRowContext(ctx, query, domain.StatusClosed, domain.StatusInProgress).Scan(
		&ms.SessionID, &ms.ExerciseID, &ms.Name, &date, &ms.Status,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan current session: %w", err)
	}
	ms.Date = time.Unix(date, 0)
	return &ms, nil
}

// UpsertSession creates or updates a session.
func (s *SQLiteStore) UpsertSession(ctx context.Context, ms *domain.MutualSession) error {
	query := `
	INSERT INTO mutual_sessions (session_id, exercise_id, name, date, status)
	VALUES (?, ?, ?, ?, ?)
	ON CONFLICT(session_id) DO UPDATE SET
		exercise_id = excluded.exercise_id,
		name = excluded.name,
		date = excluded.date,
		status = excluded.status`

	if err := s.exec(ctx, query, ms.SessionID, ms.ExerciseID, ms.Name, ms.Date.Unix(), ms.Status); err != nil {
		return fmt.Errorf("upsert session: %w", err)
	}
	return nil
}

// GetCurrentExercise returns the exercise that is not closed, latest first.
func (s *SQLiteStore) GetCurrentExercise(ctx context.Context) (*domain.Exercise, error) {
	query := `
		SELECT exercise_id, name, start_date, end_date, status
		FROM exercises
		WHERE status != ?
		ORDER BY CASE status WHEN ? THEN 0 ELSE 1 END, start_date DESC
		LIMIT 1`

	var e domain.Exercise
	var start int64
	var end sql.NullInt64
	err := s.db.QueryRowContext(ctx, query, domain.StatusClosed, domain.StatusInProgress).Scan(
		&e.ExerciseID, &e.Name, &start, &end, &e.Status,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan current exercise: %w", err)
	}
	e.StartDate = time.Unix(start, 0)
	if end.Valid {
		e.EndDate = time.Unix(end.Int64, 0)
	}
	return &e, nil
}

// UpsertExercise creates or updates an exercise.
func (s *SQLiteStore) UpsertExercise(ctx context.Context, e *domain.Exercise) error {
	query := `
	INSERT INTO exercises (exercise_id, name, start_date, end_date, status)
	VALUES (?, ?, ?, ?, ?)
	ON CONFLICT(exercise_id) DO UPDATE SET
		name = excluded.name,
		start_date = excluded.start_date,
		end_date = excluded.end_date,
		status = excluded.status`

	var end interface{}
	if !e.EndDate.IsZero() {
		end = e.EndDate.Unix()
	}
	if err := s.exec(ctx, query, e.ExerciseID, e.Name, e.StartDate.Unix(), end, e.Status); err != nil {
		return fmt.Errorf("upsert exercise: %w", err)
	}
	return nil
}

// GetMutualConfig returns the association parameters.
func (s *SQLiteStore) GetMutualConfig(ctx context.Context) (*domain.MutualConfig, error) {
	query := `
		SELECT enrollment_fee, solidarity_contribution, interest_rate,
		       loan_coefficient, exercise_months, updated_at
		FROM mutual_config WHERE id = 1`

	var c domain.MutualConfig
	var updatedAt int64
	err := s.db.QueryRowContext(ctx, query).Scan(
		&c.EnrollmentFee, &c.SolidarityContribution, &c.InterestRate,
		&c.LoanCoefficient, &c.ExerciseMonths, &updatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan mutual config: %w", err)
	}
	c.UpdatedAt = time.Unix(updatedAt, 0)
	return &c, nil
}

// SaveMutualConfig replaces the association parameters.
func (s *SQLiteStore) SaveMutualConfig(ctx context.Context, c *domain.MutualConfig) error {
	query := `
	INSERT INTO mutual_config (
		id, enrollment_fee, solidarity_contribution, interest_rate,
		loan_coefficient, exercise_months, updated_at
	) VALUES (1, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		enrollment_fee = excluded.enrollment_fee,
		solidarity_contribution = excluded.solidarity_contribution,
		interest_rate = excluded.interest_rate,
		loan_coefficient = excluded.loan_coefficient,
		exercise_months = excluded.exercise_months,
		updated_at = excluded.updated_at`

	if err := s.exec(ctx, query,
		c.EnrollmentFee, c.SolidarityContribution, c.InterestRate,
		c.LoanCoefficient, c.ExerciseMonths, time.Now().Unix(),
	); err != nil {
		return fmt.Errorf("save mutual config: %w", err)
	}
	slog.Debug("Mutual config saved", "exercise_months", c.ExerciseMonths)
	return nil
}

var _ Repository = (*SQLiteStore)(nil)
