package main

import (
	"context"
	"log/slog"
	"os"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/joho/godotenv"

	"github.com/MrJamesThe3rd/autoescrow/cmd/tui/internal/view"
	"github.com/MrJamesThe3rd/autoescrow/internal/config"
	"github.com/MrJamesThe3rd/autoescrow/internal/database"
	"github.com/MrJamesThe3rd/autoescrow/internal/dispute"
	disputeStore "github.com/MrJamesThe3rd/autoescrow/internal/dispute/store"
	"github.com/MrJamesThe3rd/autoescrow/internal/logging"
	"github.com/MrJamesThe3rd/autoescrow/internal/payment"
	paymentStore "github.com/MrJamesThe3rd/autoescrow/internal/payment/store"
	"github.com/MrJamesThe3rd/autoescrow/internal/transaction"
	txStore "github.com/MrJamesThe3rd/autoescrow/internal/transaction/store"
)

type model struct {
	common view.CommonModel

	txService      *transaction.Service
	paymentService *payment.Service
	disputeService *dispute.Service

	currentView View

	transactionsView view.TransactionsModel
	paymentsView     view.PaymentsModel
	disputesView     view.DisputesModel
}

type View int

const (
	ViewMenu         View = 0
	ViewTransactions View = 1
	ViewPayments     View = 2
	ViewDisputes     View = 3
)

func initialModel() model {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	// The screen belongs to the console; logs go to stderr.
	logging.New(os.Stderr, cfg.Log.Level, cfg.Log.Format)

	adminID, err := cfg.ConsoleAdmin()
	if err != nil {
		slog.Error("invalid console identity", "error", err)
		os.Exit(1)
	}

	db, err := database.New(cfg.ConnectionString())
	if err != nil {
		slog.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}

	if cfg.DB.Migrate {
		if err := database.Migrate(context.Background(), db); err != nil {
			slog.Error("failed to migrate database", "error", err)
			os.Exit(1)
		}
	}

	common := view.CommonModel{Admin: transaction.Actor{ID: adminID, Admin: true}}

	txSvc := transaction.NewService(txStore.New(db))
	paymentSvc := payment.NewService(paymentStore.New(db))
	disputeSvc := dispute.NewService(disputeStore.New(db))

	return model{
		common:           common,
		txService:        txSvc,
		paymentService:   paymentSvc,
		disputeService:   disputeSvc,
		currentView:      ViewMenu,
		transactionsView: view.NewTransactionsModel(common, txSvc),
		paymentsView:     view.NewPaymentsModel(common, paymentSvc),
		disputesView:     view.NewDisputesModel(common, disputeSvc),
	}
}

func (m model) Init() tea.Cmd {
	return nil
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		if m.currentView == ViewMenu {
			switch msg.String() {
			case "ctrl+c", "q":
				return m, tea.Quit
			case "1":
				m.currentView = ViewTransactions
				m.transactionsView = view.NewTransactionsModel(m.common, m.txService)

				return m, m.transactionsView.Init()
			case "2":
				m.currentView = ViewPayments
				m.paymentsView = view.NewPaymentsModel(m.common, m.paymentService)

				return m, m.paymentsView.Init()
			case "3":
				m.currentView = ViewDisputes
				m.disputesView = view.NewDisputesModel(m.common, m.disputeService)

				return m, m.disputesView.Init()
			}
		}
	case view.BackMsg:
		m.currentView = ViewMenu
		return m, nil
	}

	switch m.currentView {
	case ViewTransactions:
		var newModel tea.Model
		newModel, cmd = m.transactionsView.Update(msg)
		m.transactionsView = newModel.(view.TransactionsModel)
	case ViewPayments:
		var newModel tea.Model
		newModel, cmd = m.paymentsView.Update(msg)
		m.paymentsView = newModel.(view.PaymentsModel)
	case ViewDisputes:
		var newModel tea.Model
		newModel, cmd = m.disputesView.Update(msg)
		m.disputesView = newModel.(view.DisputesModel)
	}

	return m, cmd
}

func (m model) View() string {
	switch m.currentView {
	case ViewMenu:
		return lipgloss.NewStyle().Padding(2).Render(
			"Autoescrow Admin Console\n\n" +
				"1. Transactions\n" +
				"2. Payments\n" +
				"3. Disputes\n\n" +
				"q. Quit",
		)
	case ViewTransactions:
		return m.transactionsView.View() + "\n" + helpLine(m.transactionsView)
	case ViewPayments:
		return m.paymentsView.View() + "\n" + helpLine(m.paymentsView)
	case ViewDisputes:
		return m.disputesView.View() + "\n" + helpLine(m.disputesView)
	}

	return "Unknown View"
}

func helpLine(v view.View) string {
	return lipgloss.NewStyle().Faint(true).PaddingLeft(2).Render(v.Title() + " | " + v.ShortHelp())
}

func main() {
	p := tea.NewProgram(initialModel())
	if _, err := p.Run(); err != nil {
		slog.Error("failed to run TUI", "error", err)
		os.Exit(1)
	}
}
