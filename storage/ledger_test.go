package storage

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := NewStore(filepath.Join(t.TempDir(), "finance.db"))
	if err != nil {
		t.Fatalf("NewStore() error = %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func mustLedger(t *testing.T, store *Store, userID string) Ledger {
	t.Helper()
	l, err := store.ForUser(userID)
	if err != nil {
		t.Fatalf("ForUser(%q) error = %v", userID, err)
	}
	return l
}

func TestStore_ForUserRequiresID(t *testing.T) {
	store := newTestStore(t)
	for _, id := range []string{"", "   "} {
		if _, err := store.ForUser(id); !errors.Is(err, ErrNoUser) {
			t.Errorf("ForUser(%q) = %v, want ErrNoUser", id, err)
		}
	}
}

func TestLedger_CreateAndFilterTransactions(t *testing.T) {
	ctx := context.Background()
	ledger := mustLedger(t, newTestStore(t), "ana")

	seed := []Transaction{
		{Type: TypeExpense, Amount: 45.5, Category: "Alimentación", Description: "Almuerzo", Date: "2026-03-02"},
		{Type: TypeIncome, Amount: 2000, Category: "Salario", Description: "Nómina", Date: "2026-03-01"},
		{Type: TypeExpense, Amount: 30, Category: "Transporte", Description: "Abono", Date: "2026-02-20"},
	}
	for _, tx := range seed {
		if _, created, err := ledger.CreateTransaction(ctx, tx, ""); err != nil || !created {
			t.Fatalf("CreateTransaction() created=%v err=%v", created, err)
		}
	}

	tests := []struct {
		name   string
		filter TransactionFilter
		want   int
	}{
		{"all", TransactionFilter{}, 3},
		{"expenses", TransactionFilter{Type: TypeExpense}, 2},
		{"march", TransactionFilter{StartDate: "2026-03-01", EndDate: "2026-03-31"}, 2},
		{"inclusive end", TransactionFilter{EndDate: "2026-02-20"}, 1},
		{"limit", TransactionFilter{Limit: 1}, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ledger.ListTransactions(ctx, tt.filter)
			if err != nil {
				t.Fatal(err)
			}
			if len(got) != tt.want {
				t.Errorf("got %d transactions, want %d", len(got), tt.want)
			}
		})
	}

	latest, _ := ledger.ListTransactions(ctx, TransactionFilter{Limit: 1})
	if latest[0].Date != "2026-03-02" {
		t.Errorf("expected newest first, got %s", latest[0].Date)
	}
}

func TestLedger_DeduplicatesByCallID(t *testing.T) {
	ctx := context.Background()
	ledger := mustLedger(t, newTestStore(t), "ana")
	tx := Transaction{Type: TypeExpense, Amount: 12, Category: "Alimentación", Description: "Café", Date: "2026-03-02"}

	first, created, err := ledger.CreateTransaction(ctx, tx, "call_1")
	if err != nil || !created {
		t.Fatalf("first insert: created=%v err=%v", created, err)
	}

	second, created, err := ledger.CreateTransaction(ctx, tx, "call_1")
	if err != nil {
		t.Fatal(err)
	}
	if created {
		t.Error("repeated call ID must not insert again")
	}
	if second.ID != first.ID {
		t.Errorf("expected original transaction %s, got %s", first.ID, second.ID)
	}

	all, _ := ledger.ListTransactions(ctx, TransactionFilter{})
	if len(all) != 1 {
		t.Errorf("expected 1 stored transaction, got %d", len(all))
	}
}

func TestLedger_ConcurrentReplaysStoreOnce(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	ledger := mustLedger(t, store, "ana")
	tx := Transaction{Type: TypeExpense, Amount: 30, Category: "Transporte", Description: "Billete de tren", Date: "2026-03-02"}

	const workers = 8
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		ids     = map[string]bool{}
		created int
		errs    []error
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			stored, isNew, err := ledger.CreateTransaction(ctx, tx, "call_race")
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				errs = append(errs, err)
				return
			}
			ids[stored.ID] = true
			if isNew {
				created++
			}
		}()
	}
	wg.Wait()

	if len(errs) > 0 {
		t.Fatalf("replays must not fail: %v", errs)
	}
	if created != 1 || len(ids) != 1 {
		t.Errorf("expected one insert shared by all callers, got created=%d ids=%d", created, len(ids))
	}

	// The same call ID belongs to each user separately.
	other, isNew, err := mustLedger(t, store, "luis").CreateTransaction(ctx, tx, "call_race")
	if err != nil || !isNew {
		t.Fatalf("other user: created=%v err=%v", isNew, err)
	}
	if ids[other.ID] {
		t.Error("other user must get their own transaction")
	}

	all, _ := ledger.ListTransactions(ctx, TransactionFilter{})
	if len(all) != 1 {
		t.Errorf("expected 1 stored transaction, got %d", len(all))
	}
}

func TestLedger_IsolatesUsers(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	ana := mustLedger(t, store, "ana")
	luis := mustLedger(t, store, "luis")

	tx := Transaction{Type: TypeExpense, Amount: 10, Category: "Otros", Description: "x", Date: "2026-03-02"}
	if _, _, err := ana.CreateTransaction(ctx, tx, "call_shared"); err != nil {
		t.Fatal(err)
	}
	// Same call ID for another user is an independent write.
	if _, created, err := luis.CreateTransaction(ctx, tx, "call_shared"); err != nil || !created {
		t.Fatalf("luis insert: created=%v err=%v", created, err)
	}
	if _, err := ana.CreateGoal(ctx, SavingsGoal{Name: "Viaje", TargetAmount: 1000}); err != nil {
		t.Fatal(err)
	}

	luisTx, _ := luis.ListTransactions(ctx, TransactionFilter{})
	luisGoals, _ := luis.ListGoals(ctx, true)
	if len(luisTx) != 1 || len(luisGoals) != 0 {
		t.Errorf("luis sees %d transactions and %d goals", len(luisTx), len(luisGoals))
	}
}

func TestLedger_RejectsInvalidTransactions(t *testing.T) {
	ctx := context.Background()
	ledger := mustLedger(t, newTestStore(t), "ana")

	tests := []struct {
		name string
		tx   Transaction
	}{
		{"bad type", Transaction{Type: "transfer", Amount: 1, Category: "Otros", Date: "2026-03-02"}},
		{"zero amount", Transaction{Type: TypeExpense, Amount: 0, Category: "Otros", Date: "2026-03-02"}},
		{"no category", Transaction{Type: TypeExpense, Amount: 1, Date: "2026-03-02"}},
		{"bad date", Transaction{Type: TypeExpense, Amount: 1, Category: "Otros", Date: "02/03/2026"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, _, err := ledger.CreateTransaction(ctx, tt.tx, ""); !errors.Is(err, ErrInvalidTransaction) {
				t.Errorf("expected ErrInvalidTransaction, got %v", err)
			}
		})
	}
}

func TestLedger_ListGoalsActiveOnly(t *testing.T) {
	ctx := context.Background()
	ledger := mustLedger(t, newTestStore(t), "ana")

	if _, err := ledger.CreateGoal(ctx, SavingsGoal{Name: "Fondo de emergencia", TargetAmount: 3000, CurrentAmount: 1200, Deadline: "2026-12-31"}); err != nil {
		t.Fatal(err)
	}
	if _, err := ledger.CreateGoal(ctx, SavingsGoal{Name: "Bicicleta", TargetAmount: 400, CurrentAmount: 400, Completed: true}); err != nil {
		t.Fatal(err)
	}

	active, err := ledger.ListGoals(ctx, false)
	if err != nil {
		t.Fatal(err)
	}
	if len(active) != 1 || active[0].Name != "Fondo de emergencia" {
		t.Fatalf("unexpected active goals %+v", active)
	}
	if active[0].Deadline != "2026-12-31" {
		t.Errorf("deadline lost: %q", active[0].Deadline)
	}

	all, _ := ledger.ListGoals(ctx, true)
	if len(all) != 2 {
		t.Errorf("expected 2 goals including completed, got %d", len(all))
	}
}

func TestStore_ReopenKeepsData(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "finance.db")

	store, err := NewStore(path)
	if err != nil {
		t.Fatal(err)
	}
	ledger := mustLedger(t, store, "ana")
	tx := Transaction{Type: TypeIncome, Amount: 50, Category: "Otros", Description: "Venta", Date: "2026-03-02"}
	if _, _, err := ledger.CreateTransaction(ctx, tx, "call_9"); err != nil {
		t.Fatal(err)
	}
	store.Close()

	reopened, err := NewStore(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()

	_, created, err := mustLedger(t, reopened, "ana").CreateTransaction(ctx, tx, "call_9")
	if err != nil || created {
		t.Errorf("dedup must survive a restart: created=%v err=%v", created, err)
	}
}

func TestLedger_CreateGoalValidates(t *testing.T) {
	ledger := mustLedger(t, newTestStore(t), "ana")

	tests := []struct {
		name    string
		goal    SavingsGoal
		wantErr bool
	}{
		{"valid", SavingsGoal{Name: " Vacaciones ", TargetAmount: 1200, Deadline: "2026-08-01"}, false},
		{"no name", SavingsGoal{TargetAmount: 100}, true},
		{"zero target", SavingsGoal{Name: "Coche"}, true},
		{"negative progress", SavingsGoal{Name: "Coche", TargetAmount: 100, CurrentAmount: -5}, true},
		{"bad deadline", SavingsGoal{Name: "Coche", TargetAmount: 100, Deadline: "01/08/2026"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			goal, err := ledger.CreateGoal(context.Background(), tt.goal)
			if (err != nil) != tt.wantErr {
				t.Fatalf("CreateGoal() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrInvalidGoal) {
				t.Errorf("expected ErrInvalidGoal, got %v", err)
			}
			if err == nil && goal.Name != "Vacaciones" {
				t.Errorf("name not trimmed: %q", goal.Name)
			}
		})
	}
}
