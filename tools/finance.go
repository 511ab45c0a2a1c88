package tools

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"finassist/storage"

	"github.com/mark3labs/mcp-go/mcp"
)

const (
	transactionListLimit = 50
	topCategoryCount     = 5
)

// FinanceOptions configures the finance tool set.
type FinanceOptions struct {
	Currency   string
	Categories []string
}

// NewFinanceRegistry registers the five finance tools in the order the
// assistant sees them.
func NewFinanceRegistry(opts FinanceOptions) (*Registry, error) {
	f := &financeTools{categories: opts.Categories}
	return NewRegistry(
		Bind(getTransactionsTool(), f.getTransactions),
		Bind(createTransactionTool(opts), f.createTransaction),
		Bind(getBudgetSummaryTool(), f.getBudgetSummary),
		Bind(getSavingsGoalsTool(), f.getSavingsGoals),
		Bind(analyzeSpendingTool(), f.analyzeSpending),
	)
}

type financeTools struct {
	categories []string
}

func positive() mcp.PropertyOption {
	return func(schema map[string]any) {
		schema["exclusiveMinimum"] = 0
	}
}

func transactionType() mcp.PropertyOption {
	return mcp.Enum(storage.TypeExpense, storage.TypeIncome)
}

// get_transactions

type getTransactionsArgs struct {
	StartDate string `json:"startDate"`
	EndDate   string `json:"endDate"`
	Type      string `json:"type"`
}

type TransactionList struct {
	Transactions  []storage.Transaction `json:"transactions"`
	Count         int                   `json:"count"`
	TotalIncome   float64               `json:"totalIncome"`
	TotalExpenses float64               `json:"totalExpenses"`
}

func getTransactionsTool() mcp.Tool {
	return mcp.NewTool("get_transactions",
		mcp.WithDescription("Lista las transacciones del usuario (las 50 más recientes), opcionalmente filtradas por rango de fechas y tipo."),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithString("startDate",
			mcp.Description("Fecha inicial incluida, formato YYYY-MM-DD"),
			dateFormat(),
		),
		mcp.WithString("endDate",
			mcp.Description("Fecha final incluida, formato YYYY-MM-DD"),
			dateFormat(),
		),
		mcp.WithString("type",
			mcp.Description("expense para gastos, income para ingresos"),
			transactionType(),
		),
	)
}

func (f *financeTools) getTransactions(ctx context.Context, env Env, args getTransactionsArgs) (TransactionList, error) {
	if args.StartDate != "" && args.EndDate != "" && args.StartDate > args.EndDate {
		return TransactionList{}, &ArgumentError{Field: "startDate", Reason: "must not be after endDate"}
	}

	txs, err := env.Ledger.ListTransactions(ctx, storage.TransactionFilter{
		StartDate: args.StartDate,
		EndDate:   args.EndDate,
		Type:      args.Type,
		Limit:     transactionListLimit,
	})
	if err != nil {
		return TransactionList{}, err
	}

	income, expenses := totals(txs)
	return TransactionList{
		Transactions:  txs,
		Count:         len(txs),
		TotalIncome:   income,
		TotalExpenses: expenses,
	}, nil
}

// create_transaction

type createTransactionArgs struct {
	Type        string  `json:"type"`
	Amount      float64 `json:"amount"`
	Category    string  `json:"category"`
	Description string  `json:"description"`
	Date        string  `json:"date"`
}

type CreatedTransaction struct {
	Success         bool                `json:"success"`
	Transaction     storage.Transaction `json:"transaction"`
	AlreadyRecorded bool                `json:"alreadyRecorded,omitempty"`
}

func createTransactionTool(opts FinanceOptions) mcp.Tool {
	currency := opts.Currency
	if currency == "" {
		currency = "EUR"
	}
	categoryHint := "Categoría del movimiento"
	if len(opts.Categories) > 0 {
		categoryHint += ": " + strings.Join(opts.Categories, ", ")
	}

	return mcp.NewTool("create_transaction",
		mcp.WithDescription("Registra un nuevo gasto o ingreso del usuario."),
		mcp.WithString("type",
			mcp.Required(),
			mcp.Description("expense para gastos, income para ingresos"),
			transactionType(),
		),
		mcp.WithNumber("amount",
			mcp.Required(),
			mcp.Description(fmt.Sprintf("Importe positivo en %s", currency)),
			positive(),
		),
		mcp.WithString("category",
			mcp.Required(),
			mcp.Description(categoryHint),
		),
		mcp.WithString("description",
			mcp.Required(),
			mcp.Description("Descripción breve, por ejemplo \"Almuerzo\""),
		),
		mcp.WithString("date",
			mcp.Description("Fecha YYYY-MM-DD; hoy si se omite"),
			dateFormat(),
		),
	)
}

func (f *financeTools) createTransaction(ctx context.Context, env Env, args createTransactionArgs) (CreatedTransaction, error) {
	if strings.TrimSpace(args.Description) == "" {
		return CreatedTransaction{}, &ArgumentError{Field: "description", Reason: "must not be empty"}
	}
	if strings.TrimSpace(args.Category) == "" {
		return CreatedTransaction{}, &ArgumentError{Field: "category", Reason: "must not be empty"}
	}

	date := args.Date
	if date == "" {
		date = env.Now.Format(storage.DateLayout)
	}

	tx, created, err := env.Ledger.CreateTransaction(ctx, storage.Transaction{
		Type:        args.Type,
		Amount:      roundCents(args.Amount),
		Category:    NormalizeCategory(args.Category, f.categories),
		Description: strings.TrimSpace(args.Description),
		Date:        date,
	}, env.CallID)
	if err != nil {
		return CreatedTransaction{}, err
	}

	return CreatedTransaction{Success: true, Transaction: tx, AlreadyRecorded: !created}, nil
}

// get_budget_summary

type noArgs struct{}

type BudgetSummary struct {
	Period           string  `json:"period"`
	StartDate        string  `json:"startDate"`
	EndDate          string  `json:"endDate"`
	TotalIncome      float64 `json:"totalIncome"`
	TotalExpenses    float64 `json:"totalExpenses"`
	Balance          float64 `json:"balance"`
	TransactionCount int     `json:"transactionCount"`
}

func getBudgetSummaryTool() mcp.Tool {
	return mcp.NewTool("get_budget_summary",
		mcp.WithDescription("Resumen del mes en curso: ingresos, gastos, balance y número de transacciones."),
		mcp.WithReadOnlyHintAnnotation(true),
	)
}

func (f *financeTools) getBudgetSummary(ctx context.Context, env Env, _ noArgs) (BudgetSummary, error) {
	start := time.Date(env.Now.Year(), env.Now.Month(), 1, 0, 0, 0, 0, env.Now.Location())
	end := start.AddDate(0, 1, -1)

	txs, err := env.Ledger.ListTransactions(ctx, storage.TransactionFilter{
		StartDate: start.Format(storage.DateLayout),
		EndDate:   end.Format(storage.DateLayout),
	})
	if err != nil {
		return BudgetSummary{}, err
	}

	income, expenses := totals(txs)
	return BudgetSummary{
		Period:           start.Format("2006-01"),
		StartDate:        start.Format(storage.DateLayout),
		EndDate:          end.Format(storage.DateLayout),
		TotalIncome:      income,
		TotalExpenses:    expenses,
		Balance:          roundCents(income - expenses),
		TransactionCount: len(txs),
	}, nil
}

// get_savings_goals

type GoalProgress struct {
	ID            string  `json:"id"`
	Name          string  `json:"name"`
	TargetAmount  float64 `json:"targetAmount"`
	CurrentAmount float64 `json:"currentAmount"`
	Remaining     float64 `json:"remaining"`
	Progress      float64 `json:"progress"`
	Deadline      string  `json:"deadline,omitempty"`
}

type GoalList struct {
	Goals []GoalProgress `json:"goals"`
	Count int            `json:"count"`
}

func getSavingsGoalsTool() mcp.Tool {
	return mcp.NewTool("get_savings_goals",
		mcp.WithDescription("Lista las metas de ahorro activas con su progreso."),
		mcp.WithReadOnlyHintAnnotation(true),
	)
}

func (f *financeTools) getSavingsGoals(ctx context.Context, env Env, _ noArgs) (GoalList, error) {
	goals, err := env.Ledger.ListGoals(ctx, false)
	if err != nil {
		return GoalList{}, err
	}

	out := GoalList{Goals: make([]GoalProgress, 0, len(goals))}
	for _, g := range goals {
		progress := 0.0
		if g.TargetAmount > 0 {
			progress = math.Min(100, roundTenths(g.CurrentAmount/g.TargetAmount*100))
		}
		out.Goals = append(out.Goals, GoalProgress{
			ID:            g.ID,
			Name:          g.Name,
			TargetAmount:  g.TargetAmount,
			CurrentAmount: g.CurrentAmount,
			Remaining:     roundCents(math.Max(0, g.TargetAmount-g.CurrentAmount)),
			Progress:      progress,
			Deadline:      g.Deadline,
		})
	}
	out.Count = len(out.Goals)
	return out, nil
}

// analyze_spending

type analyzeSpendingArgs struct {
	Period string `json:"period"`
}

type CategorySpend struct {
	Category   string  `json:"category"`
	Amount     float64 `json:"amount"`
	Count      int     `json:"count"`
	Percentage float64 `json:"percentage"`
}

type SpendingAnalysis struct {
	Period           string          `json:"period"`
	StartDate        string          `json:"startDate"`
	EndDate          string          `json:"endDate"`
	TotalSpent       float64         `json:"totalSpent"`
	TransactionCount int             `json:"transactionCount"`
	TopCategories    []CategorySpend `json:"topCategories"`
}

func analyzeSpendingTool() mcp.Tool {
	return mcp.NewTool("analyze_spending",
		mcp.WithDescription("Analiza los gastos de la última semana, mes o año y devuelve las categorías con más gasto."),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithString("period",
			mcp.Required(),
			mcp.Description("Ventana de análisis hasta hoy"),
			mcp.Enum("week", "month", "year"),
		),
	)
}

// spendingWindow returns the inclusive rolling window ending today. A week is
// today and the six days before it.
func spendingWindow(period string, now time.Time) (time.Time, time.Time) {
	switch period {
	case "week":
		return now.AddDate(0, 0, -6), now
	case "year":
		return now.AddDate(-1, 0, 0), now
	default:
		return now.AddDate(0, -1, 0), now
	}
}

func (f *financeTools) analyzeSpending(ctx context.Context, env Env, args analyzeSpendingArgs) (SpendingAnalysis, error) {
	start, end := spendingWindow(args.Period, env.Now)

	txs, err := env.Ledger.ListTransactions(ctx, storage.TransactionFilter{
		StartDate: start.Format(storage.DateLayout),
		EndDate:   end.Format(storage.DateLayout),
		Type:      storage.TypeExpense,
	})
	if err != nil {
		return SpendingAnalysis{}, err
	}

	byCategory := map[string]*CategorySpend{}
	total := 0.0
	for _, tx := range txs {
		cs, ok := byCategory[tx.Category]
		if !ok {
			cs = &CategorySpend{Category: tx.Category}
			byCategory[tx.Category] = cs
		}
		cs.Amount += tx.Amount
		cs.Count++
		total += tx.Amount
	}

	ranked := make([]CategorySpend, 0, len(byCategory))
	for _, cs := range byCategory {
		cs.Amount = roundCents(cs.Amount)
		if total > 0 {
			cs.Percentage = roundTenths(cs.Amount / total * 100)
		}
		ranked = append(ranked, *cs)
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].Amount != ranked[j].Amount {
			return ranked[i].Amount > ranked[j].Amount
		}
		return ranked[i].Category < ranked[j].Category
	})
	if len(ranked) > topCategoryCount {
		ranked = ranked[:topCategoryCount]
	}

	return SpendingAnalysis{
		Period:           args.Period,
		StartDate:        start.Format(storage.DateLayout),
		EndDate:          end.Format(storage.DateLayout),
		TotalSpent:       roundCents(total),
		TransactionCount: len(txs),
		TopCategories:    ranked,
	}, nil
}

func totals(txs []storage.Transaction) (income, expenses float64) {
	for _, tx := range txs {
		switch tx.Type {
		case storage.TypeIncome:
			income += tx.Amount
		case storage.TypeExpense:
			expenses += tx.Amount
		}
	}
	return roundCents(income), roundCents(expenses)
}

func roundCents(v float64) float64 {
	return math.Round(v*100) / 100
}

func roundTenths(v float64) float64 {
	return math.Round(v*10) / 10
}
