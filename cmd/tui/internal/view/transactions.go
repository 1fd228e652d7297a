package view

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"

	"github.com/MrJamesThe3rd/autoescrow/internal/transaction"
)

type txState int

const (
	txStateBrowse txState = iota
	txStateAction
)

// transitionForm holds the values bound to the action form. It lives behind a
// pointer so the bindings survive the model being copied by Update.
type transitionForm struct {
	target     transaction.Status
	inspection string
	reason     string
}

type TransactionsModel struct {
	CommonModel
	txService *transaction.Service

	state txState
	table table.Model
	txs   []*transaction.Transaction
	form  *huh.Form
	bind  *transitionForm

	statusFilterIdx int
	filter          transaction.ListFilter

	loading bool
	err     error
	status  string
}

func NewTransactionsModel(common CommonModel, txSvc *transaction.Service) TransactionsModel {
	return TransactionsModel{
		CommonModel: common,
		txService:   txSvc,
		table: newTable([]table.Column{
			{Title: "Code", Width: 16},
			{Title: "Status", Width: 22},
			{Title: "Amount", Width: 14},
			{Title: "Buyer", Width: 10},
			{Title: "Seller", Width: 10},
			{Title: "Created", Width: 12},
		}),
		loading: true,
	}
}

func (m TransactionsModel) Title() string { return "Transactions" }
func (m TransactionsModel) ShortHelp() string {
	if m.state == txStateAction {
		return "Navigate form | Esc: cancel"
	}

	return "Esc: back | a: act | s: status filter | r: refresh"
}

func (m TransactionsModel) Init() tea.Cmd {
	return m.loadCmd()
}

func (m TransactionsModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case loadTransactionsMsg:
		m.loading = false
		if msg.err != nil {
			m.err = msg.err
			return m, nil
		}

		m.err = nil
		m.txs = msg.txs
		m.refreshTable()

		return m, nil

	case transitionDoneMsg:
		if msg.err != nil {
			m.status = fmt.Sprintf("Error: %v", msg.err)
		} else {
			m.status = fmt.Sprintf("%s is now %s", msg.tx.Code, msg.tx.Status)
		}

		m.state = txStateBrowse
		m.form = nil
		m.table.Focus()

		return m, m.loadCmd()

	case tea.WindowSizeMsg:
		m.table.SetHeight(msg.Height - 10)
		return m, nil
	}

	if m.state == txStateAction {
		return m.updateAction(msg)
	}

	return m.updateBrowse(msg)
}

func (m TransactionsModel) updateBrowse(msg tea.Msg) (tea.Model, tea.Cmd) {
	if keyMsg, ok := msg.(tea.KeyMsg); ok {
		switch keyMsg.String() {
		case "esc":
			return m, Back
		case "r":
			m.loading = true
			return m, m.loadCmd()
		case "a":
			return m.enterAction()
		case "s":
			m.statusFilterIdx = (m.statusFilterIdx + 1) % (len(transaction.Statuses) + 1)
			m.filter.Status = nil

			if m.statusFilterIdx > 0 {
				m.filter.Status = new(transaction.Statuses[m.statusFilterIdx-1])
			}

			return m, m.loadCmd()
		}
	}

	var cmd tea.Cmd
	m.table, cmd = m.table.Update(msg)

	return m, cmd
}

func (m TransactionsModel) selected() *transaction.Transaction {
	idx := m.table.Cursor()
	if idx < 0 || idx >= len(m.txs) {
		return nil
	}

	return m.txs[idx]
}

func (m TransactionsModel) enterAction() (tea.Model, tea.Cmd) {
	tx := m.selected()
	if tx == nil {
		return m, nil
	}

	targets := transaction.Transitions(tx, m.Admin)
	if len(targets) == 0 {
		m.status = fmt.Sprintf("%s is %s, nothing to do", tx.Code, tx.Status)
		return m, nil
	}

	bind := &transitionForm{target: targets[0]}

	m.form = huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[transaction.Status]().
				Title("Move to").
				Options(huh.NewOptions(targets...)...).
				Value(&bind.target),

			huh.NewInput().
				Title("Inspection date").
				Placeholder("YYYY-MM-DD HH:MM").
				Description("Required when scheduling an inspection").
				Value(&bind.inspection).
				Validate(func(s string) error {
					if strings.TrimSpace(s) == "" {
						return nil
					}

					_, err := ParseInspectionDate(strings.TrimSpace(s))

					return err
				}),

			huh.NewInput().
				Title("Reason").
				Description("Recorded on cancellation").
				Value(&bind.reason),
		),
	).WithWidth(48).WithShowHelp(false)

	m.bind = bind
	m.state = txStateAction
	m.table.Blur()

	return m, m.form.Init()
}

func (m TransactionsModel) updateAction(msg tea.Msg) (tea.Model, tea.Cmd) {
	if keyMsg, ok := msg.(tea.KeyMsg); ok && keyMsg.Type == tea.KeyEsc {
		m.state = txStateBrowse
		m.form = nil
		m.table.Focus()

		return m, nil
	}

	form, cmd := m.form.Update(msg)
	if f, ok := form.(*huh.Form); ok {
		m.form = f
	}

	if m.form.State != huh.StateCompleted {
		return m, cmd
	}

	return m, m.transitionCmd()
}

func (m TransactionsModel) View() string {
	if m.loading {
		return lipgloss.NewStyle().Padding(2).Render("Loading transactions...")
	}

	if m.err != nil {
		return lipgloss.NewStyle().Padding(2).Render(fmt.Sprintf("Error: %v", m.err))
	}

	label := "All"
	if m.filter.Status != nil {
		label = string(*m.filter.Status)
	}

	content := lipgloss.JoinVertical(lipgloss.Left,
		lipgloss.NewStyle().PaddingBottom(1).Render("Filter: [s] Status: "+activeStyle(label)),
		framed(m.table.View()),
	)

	if tx := m.selected(); tx != nil {
		details := describeTransaction(tx)
		if m.state == txStateAction && m.form != nil {
			details += "\n" + m.form.View()
		}

		content = lipgloss.JoinHorizontal(lipgloss.Top, content, panel(details))
	}

	if m.status != "" {
		content = lipgloss.NewStyle().Faint(true).Render(m.status) + "\n" + content
	}

	return lipgloss.NewStyle().Padding(1).Render(content)
}

func describeTransaction(tx *transaction.Transaction) string {
	var b strings.Builder

	fmt.Fprintf(&b, "%s  %s\n\n", tx.Code, activeStyle(string(tx.Status)))
	fmt.Fprintf(&b, "Amount:      %s\n", FormatAmount(tx.Amount, tx.Currency))
	fmt.Fprintf(&b, "Service fee: %s\n", FormatAmount(tx.ServiceFee, tx.Currency))
	fmt.Fprintf(&b, "Escrow:      %s (%s)\n\n", tx.EscrowAccount, tx.EscrowCountry)
	fmt.Fprintf(&b, "Requested:   %s\n", FormatStamp(tx.PaymentRequestedAt))
	fmt.Fprintf(&b, "Verified:    %s\n", FormatStamp(tx.PaymentVerifiedAt))
	fmt.Fprintf(&b, "Inspection:  %s\n", FormatStamp(tx.InspectionDate))
	fmt.Fprintf(&b, "Completed:   %s\n", FormatStamp(tx.CompletedAt))

	if tx.CancelledAt != nil {
		fmt.Fprintf(&b, "Cancelled:   %s %s\n", FormatStamp(tx.CancelledAt), tx.CancellationReason)
	}

	return b.String()
}

func (m *TransactionsModel) refreshTable() {
	rows := make([]table.Row, 0, len(m.txs))
	for _, tx := range m.txs {
		rows = append(rows, table.Row{
			tx.Code,
			string(tx.Status),
			FormatAmount(tx.Amount, tx.Currency),
			tx.BuyerID.String()[:8],
			tx.SellerID.String()[:8],
			FormatDate(tx.CreatedAt),
		})
	}

	m.table.SetRows(rows)
}

// Messages

type loadTransactionsMsg struct {
	txs []*transaction.Transaction
	err error
}

func (m TransactionsModel) loadCmd() tea.Cmd {
	filter := m.filter

	return func() tea.Msg {
		ctx, cancel := DbCtx()
		defer cancel()

		txs, err := m.txService.List(ctx, filter)

		return loadTransactionsMsg{txs: txs, err: err}
	}
}

type transitionDoneMsg struct {
	tx  *transaction.Transaction
	err error
}

func (m TransactionsModel) transitionCmd() tea.Cmd {
	tx := m.selected()
	if tx == nil || m.bind == nil {
		return nil
	}

	req := transaction.TransitionRequest{
		Target: m.bind.target,
		Actor:  m.Admin,
		Reason: strings.TrimSpace(m.bind.reason),
	}

	if s := strings.TrimSpace(m.bind.inspection); s != "" {
		date, err := ParseInspectionDate(s)
		if err != nil {
			return func() tea.Msg { return transitionDoneMsg{err: err} }
		}

		req.InspectionDate = &date
	}

	id := tx.ID

	return func() tea.Msg {
		ctx, cancel := DbCtx()
		defer cancel()

		next, err := m.txService.AttemptTransition(ctx, id, req)

		return transitionDoneMsg{tx: next, err: err}
	}
}
