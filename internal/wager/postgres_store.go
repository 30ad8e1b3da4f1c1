package wager

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore persists wagers in PostgreSQL. Every transition is an
// UPDATE guarded by the current status so concurrent writers race on
// rows-affected rather than on read-modify-write.
type PostgresStore struct {
	db *pgxpool.Pool
}

// NewPostgresStore builds a wager store backed by PostgreSQL.
func NewPostgresStore(db *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{db: db}
}

const wagerColumns = `id, creator, counter_party, visibility, course_code, term, assessment,
        lower_bound, upper_bound, stake_cents, note, status, outcome,
        creator_hold_id, acceptor_hold_id, created_at, expires_at, accepted_at`

// Create inserts a new wager record.
func (s *PostgresStore) Create(ctx context.Context, w Wager) error {
	outcome, err := encodeOutcome(w.Outcome)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(ctx, `INSERT INTO wagers (`+wagerColumns+`)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)`,
		w.ID, w.Creator, nullable(w.CounterParty), string(w.Visibility), w.CourseCode, w.Term, w.Assessment,
		w.Lower, w.Upper, w.StakeCents, w.Note, string(w.State), outcome,
		nullable(w.CreatorHoldID), nullable(w.AcceptorHoldID), w.CreatedAt.UTC(), w.ExpiresAt, w.AcceptedAt)
	return err
}

// Get fetches a wager by id.
func (s *PostgresStore) Get(ctx context.Context, id string) (Wager, error) {
	row := s.db.QueryRow(ctx, `SELECT `+wagerColumns+` FROM wagers WHERE id = $1`, id)
	w, err := scanWager(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Wager{}, ErrNotFound
		}
		return Wager{}, err
	}
	return w, nil
}

// ListByUser returns wagers the user participates in, newest last.
func (s *PostgresStore) ListByUser(ctx context.Context, username string, state *State) ([]Wager, error) {
	query := `SELECT ` + wagerColumns + ` FROM wagers WHERE (creator = $1 OR counter_party = $1)`
	args := []any{username}
	if state != nil {
		query += ` AND status = $2`
		args = append(args, string(*state))
	}
	query += ` ORDER BY created_at, id`
	return s.list(ctx, query, args...)
}

// ListOpenExcluding returns public open wagers from other users.
func (s *PostgresStore) ListOpenExcluding(ctx context.Context, username string) ([]Wager, error) {
	return s.list(ctx, `SELECT `+wagerColumns+` FROM wagers
        WHERE status = $1 AND visibility = $2 AND creator <> $3
        ORDER BY created_at, id`, string(StateOpen), string(VisibilityPublic), username)
}

// ListInState returns all wagers in the given state.
func (s *PostgresStore) ListInState(ctx context.Context, state State) ([]Wager, error) {
	return s.list(ctx, `SELECT `+wagerColumns+` FROM wagers WHERE status = $1
        ORDER BY created_at, id`, string(state))
}

// Accept claims an unmatched wager for the acceptor. Only the first
// writer to observe open/pending succeeds.
func (s *PostgresStore) Accept(ctx context.Context, id, acceptor, holdID string) (Wager, error) {
	now := time.Now().UTC()
	row := s.db.QueryRow(ctx, `UPDATE wagers
        SET status = $1, counter_party = $2, acceptor_hold_id = $3, accepted_at = $4
        WHERE id = $5 AND status = ANY($6)
        RETURNING `+wagerColumns,
		string(StateAccepted), acceptor, holdID, now, id,
		[]string{string(StateOpen), string(StatePending)})

	w, err := scanWager(row)
	if err == nil {
		return w, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return Wager{}, err
	}

	// CAS miss: distinguish missing, matched, terminal.
	current, getErr := s.Get(ctx, id)
	if getErr != nil {
		return Wager{}, getErr
	}
	if current.State == StateAccepted {
		return Wager{}, ErrAlreadyMatched
	}
	return Wager{}, ErrInvalidTransition
}

// Terminate moves a wager into a terminal state with its outcome,
// guarded by the allowed source states.
func (s *PostgresStore) Terminate(ctx context.Context, id string, to State, outcome Outcome, from ...State) (Wager, error) {
	encoded, err := encodeOutcome(&outcome)
	if err != nil {
		return Wager{}, err
	}
	allowed := make([]string, 0, len(from))
	for _, st := range from {
		allowed = append(allowed, string(st))
	}

	row := s.db.QueryRow(ctx, `UPDATE wagers SET status = $1, outcome = $2
        WHERE id = $3 AND status = ANY($4)
        RETURNING `+wagerColumns, string(to), encoded, id, allowed)

	w, err := scanWager(row)
	if err == nil {
		return w, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return Wager{}, err
	}

	current, getErr := s.Get(ctx, id)
	if getErr != nil {
		return Wager{}, getErr
	}
	if current.State == StateAccepted && !stateIn(StateAccepted, from) {
		return Wager{}, ErrAlreadyMatched
	}
	return Wager{}, ErrInvalidTransition
}

func (s *PostgresStore) list(ctx context.Context, query string, args ...any) ([]Wager, error) {
	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Wager
	for rows.Next() {
		w, err := scanWager(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, w)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanWager(row rowScanner) (Wager, error) {
	var (
		w              Wager
		counterParty   *string
		visibility     string
		status         string
		outcome        []byte
		creatorHoldID  *string
		acceptorHoldID *string
	)
	err := row.Scan(&w.ID, &w.Creator, &counterParty, &visibility, &w.CourseCode, &w.Term, &w.Assessment,
		&w.Lower, &w.Upper, &w.StakeCents, &w.Note, &status, &outcome,
		&creatorHoldID, &acceptorHoldID, &w.CreatedAt, &w.ExpiresAt, &w.AcceptedAt)
	if err != nil {
		return Wager{}, err
	}
	if counterParty != nil {
		w.CounterParty = *counterParty
	}
	if creatorHoldID != nil {
		w.CreatorHoldID = *creatorHoldID
	}
	if acceptorHoldID != nil {
		w.AcceptorHoldID = *acceptorHoldID
	}
	w.Visibility = Visibility(visibility)
	w.State = State(status)
	if len(outcome) > 0 {
		var o Outcome
		if err := json.Unmarshal(outcome, &o); err != nil {
			return Wager{}, err
		}
		w.Outcome = &o
	}
	return w, nil
}

func encodeOutcome(o *Outcome) ([]byte, error) {
	if o == nil {
		return nil, nil
	}
	return json.Marshal(o)
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
