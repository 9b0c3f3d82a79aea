package data

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/lendflow-in/credscore/pkg/score"
)

const (
	runTimeFormat = "2006-01-02T15:04:05Z"

	insertRunSQL = `INSERT INTO score_run (
			id, applicant, scored_at, score, probability, subscore,
			monthly_income, monthly_expense, months_covered,
			rows_skipped, prob_clamped, breakdown
		)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	selectRunSQL = `SELECT id, applicant, scored_at, score, probability, subscore,
			monthly_income, monthly_expense, months_covered,
			rows_skipped, prob_clamped, breakdown
		FROM score_run
		WHERE id = ?
	`

	selectRunsSQL = `SELECT id, applicant, scored_at, score, probability, subscore,
			monthly_income, monthly_expense, months_covered,
			rows_skipped, prob_clamped, breakdown
		FROM score_run
		WHERE applicant = COALESCE(?, applicant)
		ORDER BY scored_at DESC
		LIMIT ?
	`

	selectDistributionSQL = `SELECT FLOOR(score / 50) * 50 AS bucket, COUNT(*) AS cnt
		FROM score_run
		GROUP BY bucket
		ORDER BY bucket
	`
)

// Run is one persisted scoring run.
type Run struct {
	ID             string                `json:"id"`
	Applicant      string                `json:"applicant"`
	ScoredAt       string                `json:"scored_at"`
	Score          float64               `json:"score"`
	Probability    float64               `json:"probability"`
	Subscore       float64               `json:"subscore"`
	MonthlyIncome  float64               `json:"monthly_income"`
	MonthlyExpense float64               `json:"monthly_expense"`
	MonthsCovered  float64               `json:"months_covered"`
	RowsSkipped    int                   `json:"rows_skipped"`
	ProbClamped    bool                  `json:"prob_clamped"`
	Breakdown      []score.CategoryScore `json:"breakdown,omitempty"`
}

// Distribution is the score histogram (50-point buckets) used for fleet
// monitoring.
type Distribution struct {
	Labels []string `json:"labels"`
	Data   []int64  `json:"data"`
}

// SaveRun persists a scoring result and returns the run ID.
func (s *Store) SaveRun(r *score.Result) (string, error) {
	if s == nil || s.db == nil {
		return "", errStoreNotInitialized
	}
	if r == nil {
		return "", fmt.Errorf("result is required")
	}

	breakdown, err := json.Marshal(r.Categories)
	if err != nil {
		return "", fmt.Errorf("marshaling breakdown: %w", err)
	}

	id := uuid.NewString()
	clamped := 0
	if r.Blended.Clamped {
		clamped = 1
	}

	_, err = s.db.Exec(s.rebind(insertRunSQL),
		id,
		r.Applicant,
		r.ScoredAt.Format(runTimeFormat),
		r.Score,
		r.Blended.Probability,
		r.Subscore,
		r.Cashflow.MonthlyIncome,
		r.Cashflow.MonthlyExpense,
		r.Cashflow.MonthsCovered,
		r.RowsSkipped,
		clamped,
		string(breakdown),
	)
	if err != nil {
		return "", fmt.Errorf("inserting score run for %s: %w", r.Applicant, err)
	}
	return id, nil
}

// GetRun returns one run by ID, or nil when not found.
func (s *Store) GetRun(id string) (*Run, error) {
	if s == nil || s.db == nil {
		return nil, errStoreNotInitialized
	}

	row := s.db.QueryRow(s.rebind(selectRunSQL), id)
	r, err := scanRun(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("querying run %s: %w", id, err)
	}
	return r, nil
}

// ListRuns returns the most recent runs, optionally filtered by
// applicant (empty means all).
func (s *Store) ListRuns(applicant string, limit int) ([]*Run, error) {
	if s == nil || s.db == nil {
		return nil, errStoreNotInitialized
	}
	if limit <= 0 {
		limit = 50
	}

	var filter any
	if applicant != "" {
		filter = applicant
	}

	rows, err := s.db.Query(s.rebind(selectRunsSQL), filter, limit)
	if err != nil {
		return nil, fmt.Errorf("querying runs: %w", err)
	}
	defer rows.Close()

	list := make([]*Run, 0)
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning run: %w", err)
		}
		list = append(list, r)
	}
	return list, rows.Err()
}

// GetDistribution returns the score histogram across all runs.
func (s *Store) GetDistribution() (*Distribution, error) {
	if s == nil || s.db == nil {
		return nil, errStoreNotInitialized
	}

	rows, err := s.db.Query(selectDistributionSQL)
	if err != nil {
		return nil, fmt.Errorf("querying distribution: %w", err)
	}
	defer rows.Close()

	d := &Distribution{Labels: []string{}, Data: []int64{}}
	for rows.Next() {
		var bucket float64
		var cnt int64
		if err := rows.Scan(&bucket, &cnt); err != nil {
			return nil, fmt.Errorf("scanning distribution: %w", err)
		}
		d.Labels = append(d.Labels, fmt.Sprintf("%d-%d", int(bucket), int(bucket)+49))
		d.Data = append(d.Data, cnt)
	}
	return d, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (*Run, error) {
	var r Run
	var clamped int
	var breakdown string
	err := row.Scan(
		&r.ID, &r.Applicant, &r.ScoredAt, &r.Score, &r.Probability, &r.Subscore,
		&r.MonthlyIncome, &r.MonthlyExpense, &r.MonthsCovered,
		&r.RowsSkipped, &clamped, &breakdown,
	)
	if err != nil {
		return nil, err
	}
	r.ProbClamped = clamped == 1
	if breakdown != "" {
		if jsonErr := json.Unmarshal([]byte(breakdown), &r.Breakdown); jsonErr != nil {
			return nil, fmt.Errorf("unmarshaling breakdown: %w", jsonErr)
		}
	}
	return &r, nil
}

// ScoredAtTime parses the stored timestamp.
func (r *Run) ScoredAtTime() (time.Time, error) {
	return time.Parse(runTimeFormat, r.ScoredAt)
}
