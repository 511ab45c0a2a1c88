package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// DateLayout is the calendar-date format used for transaction and goal dates.
const DateLayout = "2006-01-02"

const (
	TypeExpense = "expense"
	TypeIncome  = "income"
)

var (
	// ErrNoUser is returned when a ledger is requested without a user ID.
	ErrNoUser = errors.New("storage: user ID required")

	// ErrInvalidTransaction is returned for a transaction the ledger refuses to store.
	ErrInvalidTransaction = errors.New("storage: invalid transaction")

	// ErrInvalidGoal is returned for a savings goal the ledger refuses to store.
	ErrInvalidGoal = errors.New("storage: invalid savings goal")
)

type Transaction struct {
	ID          string    `json:"id"`
	Type        string    `json:"type"`
	Amount      float64   `json:"amount"`
	Category    string    `json:"category"`
	Description string    `json:"description"`
	Date        string    `json:"date"`
	CreatedAt   time.Time `json:"createdAt"`
}

type SavingsGoal struct {
	ID            string    `json:"id"`
	Name          string    `json:"name"`
	TargetAmount  float64   `json:"targetAmount"`
	CurrentAmount float64   `json:"currentAmount"`
	Deadline      string    `json:"deadline,omitempty"`
	Completed     bool      `json:"completed"`
	CreatedAt     time.Time `json:"createdAt"`
}

// TransactionFilter narrows ListTransactions. Empty fields match everything;
// dates are inclusive YYYY-MM-DD bounds.
type TransactionFilter struct {
	StartDate string
	EndDate   string
	Type      string
	Limit     int
}

// Ledger is one user's view of the finance data. Every method only ever
// touches rows owned by that user.
type Ledger interface {
	UserID() string
	ListTransactions(ctx context.Context, filter TransactionFilter) ([]Transaction, error)
	// CreateTransaction stores tx once per callID. A repeated callID returns
	// the transaction stored the first time and created=false.
	CreateTransaction(ctx context.Context, tx Transaction, callID string) (stored Transaction, created bool, err error)
	ListGoals(ctx context.Context, includeCompleted bool) ([]SavingsGoal, error)
	CreateGoal(ctx context.Context, goal SavingsGoal) (SavingsGoal, error)
}

// Store is the SQLite-backed finance ledger shared by all users.
type Store struct {
	db *sql.DB
}

func NewStore(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// modernc sqlite serializes writers; one connection avoids SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	store := &Store{db: db}
	if err := store.initialize(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	return store, nil
}

func (s *Store) initialize() error {
	schema := `
	CREATE TABLE IF NOT EXISTS transactions (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		type TEXT NOT NULL,
		amount REAL NOT NULL,
		category TEXT NOT NULL,
		description TEXT NOT NULL,
		date TEXT NOT NULL,
		created_at DATETIME NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_transactions_user_date ON transactions(user_id, date);

	CREATE TABLE IF NOT EXISTS savings_goals (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		name TEXT NOT NULL,
		target_amount REAL NOT NULL,
		current_amount REAL NOT NULL DEFAULT 0,
		deadline TEXT,
		completed INTEGER NOT NULL DEFAULT 0,
		created_at DATETIME NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_goals_user ON savings_goals(user_id);
	`

	if _, err := s.db.Exec(schema); err != nil {
		return err
	}

	if err := s.migrateSchema(); err != nil {
		return fmt.Errorf("schema migration failed: %w", err)
	}

	return nil
}

// migrateSchema adds columns introduced after the first release.
func (s *Store) migrateSchema() error {
	hasCallID, err := s.columnExists("transactions", "call_id")
	if err != nil {
		return fmt.Errorf("failed to check for call_id column: %w", err)
	}

	if !hasCallID {
		if _, err := s.db.Exec(`ALTER TABLE transactions ADD COLUMN call_id TEXT`); err != nil {
			return fmt.Errorf("failed to add call_id column: %w", err)
		}
	}

	// NULL call IDs (manual entries) never collide.
	_, err = s.db.Exec(`CREATE UNIQUE INDEX IF NOT EXISTS idx_transactions_call ON transactions(user_id, call_id)`)
	return err
}

func (s *Store) columnExists(tableName, columnName string) (bool, error) {
	rows, err := s.db.Query(fmt.Sprintf("PRAGMA table_info(%s)", tableName))
	if err != nil {
		return false, err
	}
	defer rows.Close()

	for rows.Next() {
		var (
			cid          int
			name         string
			dataType     string
			notNull      int
			defaultValue any
			pk           int
		)
		if err := rows.Scan(&cid, &name, &dataType, &notNull, &defaultValue, &pk); err != nil {
			return false, err
		}
		if name == columnName {
			return true, nil
		}
	}

	return false, rows.Err()
}

// ForUser returns the ledger scoped to userID.
func (s *Store) ForUser(userID string) (Ledger, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, ErrNoUser
	}
	return &userLedger{db: s.db, userID: userID}, nil
}

func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

type userLedger struct {
	db     *sql.DB
	userID string
}

func (l *userLedger) UserID() string {
	return l.userID
}

func (l *userLedger) ListTransactions(ctx context.Context, filter TransactionFilter) ([]Transaction, error) {
	query := `
	SELECT id, type, amount, category, description, date, created_at
	FROM transactions
	WHERE user_id = ?`
	args := []any{l.userID}

	if filter.StartDate != "" {
		query += ` AND date >= ?`
		args = append(args, filter.StartDate)
	}
	if filter.EndDate != "" {
		query += ` AND date <= ?`
		args = append(args, filter.EndDate)
	}
	if filter.Type != "" {
		query += ` AND type = ?`
		args = append(args, filter.Type)
	}
	query += ` ORDER BY date DESC, created_at DESC`
	if filter.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, filter.Limit)
	}

	rows, err := l.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query transactions: %w", err)
	}
	defer rows.Close()

	transactions := []Transaction{}
	for rows.Next() {
		var tx Transaction
		if err := rows.Scan(&tx.ID, &tx.Type, &tx.Amount, &tx.Category, &tx.Description, &tx.Date, &tx.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		transactions = append(transactions, tx)
	}

	return transactions, rows.Err()
}

func (l *userLedger) CreateTransaction(ctx context.Context, tx Transaction, callID string) (Transaction, bool, error) {
	if err := validateTransaction(tx); err != nil {
		return Transaction{}, false, err
	}

	tx.ID = uuid.New().String()
	tx.CreatedAt = time.Now().UTC()

	var call sql.NullString
	if callID != "" {
		call = sql.NullString{String: callID, Valid: true}
	}

	// The unique (user_id, call_id) index makes a replayed call a no-op even
	// when two executions race; the loser reads back the winner's row.
	res, err := l.db.ExecContext(ctx, `
	INSERT INTO transactions (id, user_id, type, amount, category, description, date, created_at, call_id)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(user_id, call_id) DO NOTHING`,
		tx.ID, l.userID, tx.Type, tx.Amount, tx.Category, tx.Description, tx.Date, tx.CreatedAt, call,
	)
	if err != nil {
		return Transaction{}, false, fmt.Errorf("failed to insert transaction: %w", err)
	}

	inserted, err := res.RowsAffected()
	if err != nil {
		return Transaction{}, false, fmt.Errorf("failed to insert transaction: %w", err)
	}
	if inserted == 1 {
		return tx, true, nil
	}

	existing, err := l.transactionByCallID(ctx, callID)
	if err != nil {
		return Transaction{}, false, err
	}
	if existing == nil {
		return Transaction{}, false, fmt.Errorf("transaction for call %s was not stored", callID)
	}
	return *existing, false, nil
}

func (l *userLedger) transactionByCallID(ctx context.Context, callID string) (*Transaction, error) {
	var tx Transaction
	err := l.db.QueryRowContext(ctx, `
	SELECT id, type, amount, category, description, date, created_at
	FROM transactions
	WHERE user_id = ? AND call_id = ?`, l.userID, callID,
	).Scan(&tx.ID, &tx.Type, &tx.Amount, &tx.Category, &tx.Description, &tx.Date, &tx.CreatedAt)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up transaction by call ID: %w", err)
	}
	return &tx, nil
}

func validateTransaction(tx Transaction) error {
	switch {
	case tx.Type != TypeExpense && tx.Type != TypeIncome:
		return fmt.Errorf("%w: type %q", ErrInvalidTransaction, tx.Type)
	case tx.Amount <= 0:
		return fmt.Errorf("%w: amount must be positive", ErrInvalidTransaction)
	case strings.TrimSpace(tx.Category) == "":
		return fmt.Errorf("%w: category is empty", ErrInvalidTransaction)
	}
	if _, err := time.Parse(DateLayout, tx.Date); err != nil {
		return fmt.Errorf("%w: date %q", ErrInvalidTransaction, tx.Date)
	}
	return nil
}

func (l *userLedger) ListGoals(ctx context.Context, includeCompleted bool) ([]SavingsGoal, error) {
	query := `
	SELECT id, name, target_amount, current_amount, COALESCE(deadline, ''), completed, created_at
	FROM savings_goals
	WHERE user_id = ?`
	if !includeCompleted {
		query += ` AND completed = 0`
	}
	query += ` ORDER BY created_at ASC`

	rows, err := l.db.QueryContext(ctx, query, l.userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query savings goals: %w", err)
	}
	defer rows.Close()

	goals := []SavingsGoal{}
	for rows.Next() {
		var g SavingsGoal
		if err := rows.Scan(&g.ID, &g.Name, &g.TargetAmount, &g.CurrentAmount, &g.Deadline, &g.Completed, &g.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan savings goal: %w", err)
		}
		goals = append(goals, g)
	}

	return goals, rows.Err()
}

func (l *userLedger) CreateGoal(ctx context.Context, goal SavingsGoal) (SavingsGoal, error) {
	goal.Name = strings.TrimSpace(goal.Name)
	switch {
	case goal.Name == "":
		return SavingsGoal{}, fmt.Errorf("%w: name is empty", ErrInvalidGoal)
	case goal.TargetAmount <= 0:
		return SavingsGoal{}, fmt.Errorf("%w: target amount must be positive", ErrInvalidGoal)
	case goal.CurrentAmount < 0:
		return SavingsGoal{}, fmt.Errorf("%w: current amount must not be negative", ErrInvalidGoal)
	}
	if goal.Deadline != "" {
		if _, err := time.Parse(DateLayout, goal.Deadline); err != nil {
			return SavingsGoal{}, fmt.Errorf("%w: deadline %q", ErrInvalidGoal, goal.Deadline)
		}
	}

	goal.ID = uuid.New().String()
	goal.CreatedAt = time.Now().UTC()

	var deadline sql.NullString
	if goal.Deadline != "" {
		deadline = sql.NullString{String: goal.Deadline, Valid: true}
	}

	_, err := l.db.ExecContext(ctx, `
	INSERT INTO savings_goals (id, user_id, name, target_amount, current_amount, deadline, completed, created_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		goal.ID, l.userID, goal.Name, goal.TargetAmount, goal.CurrentAmount, deadline, goal.Completed, goal.CreatedAt,
	)
	if err != nil {
		return SavingsGoal{}, fmt.Errorf("failed to insert savings goal: %w", err)
	}

	return goal, nil
}
