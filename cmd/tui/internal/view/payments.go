package view

import (
	"context"
	"fmt"

	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/google/uuid"

	"github.com/MrJamesThe3rd/autoescrow/internal/payment"
	"github.com/MrJamesThe3rd/autoescrow/internal/transaction"
)

var paymentQueues = []payment.Status{payment.StatusPending, payment.StatusVerified}

type PaymentsModel struct {
	CommonModel
	paymentService *payment.Service

	table    table.Model
	payments []*payment.Payment
	queueIdx int

	// Rejection reason, active while rejecting.
	reasonInput textinput.Model
	rejecting   bool

	loading bool
	status  string
}

func NewPaymentsModel(common CommonModel, paymentSvc *payment.Service) PaymentsModel {
	ti := textinput.New()
	ti.Placeholder = "Reason for rejection"
	ti.Width = 50

	return PaymentsModel{
		CommonModel:    common,
		paymentService: paymentSvc,
		table: newTable([]table.Column{
			{Title: "Payment", Width: 10},
			{Title: "Transaction", Width: 12},
			{Title: "Amount", Width: 14},
			{Title: "Method", Width: 14},
			{Title: "Reference", Width: 20},
			{Title: "Recorded", Width: 18},
		}),
		reasonInput: ti,
		loading:     true,
	}
}

func (m PaymentsModel) Title() string { return "Payments" }
func (m PaymentsModel) ShortHelp() string {
	if m.rejecting {
		return "Enter: reject | Esc: cancel"
	}

	return "Esc: back | v: verify | x: reject | p: mark paid | f: queue | r: refresh"
}

func (m PaymentsModel) Init() tea.Cmd {
	return m.loadCmd()
}

func (m PaymentsModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case loadPaymentsMsg:
		m.loading = false
		if msg.err != nil {
			m.status = fmt.Sprintf("Error loading payments: %v", msg.err)
			return m, nil
		}

		m.payments = msg.payments
		m.refreshTable()

		return m, nil

	case paymentDoneMsg:
		if msg.err != nil {
			m.status = fmt.Sprintf("Error: %v", msg.err)
		} else {
			m.status = fmt.Sprintf("Payment %s is now %s", msg.payment.ID.String()[:8], msg.payment.Status)
		}

		return m, m.loadCmd()

	case tea.KeyMsg:
		if m.rejecting {
			return m.updateReject(msg)
		}

		switch msg.String() {
		case "esc":
			return m, Back
		case "r":
			m.loading = true
			return m, m.loadCmd()
		case "f":
			m.queueIdx = (m.queueIdx + 1) % len(paymentQueues)
			m.loading = true

			return m, m.loadCmd()
		case "v":
			if p := m.selected(); p != nil {
				return m, m.actCmd(p, m.paymentService.Verify)
			}
		case "p":
			if p := m.selected(); p != nil {
				return m, m.actCmd(p, m.paymentService.MarkPaid)
			}
		case "x":
			if m.selected() != nil {
				m.rejecting = true
				m.reasonInput.SetValue("")
				m.reasonInput.Focus()
				m.table.Blur()

				return m, textinput.Blink
			}
		}
	}

	var cmd tea.Cmd
	m.table, cmd = m.table.Update(msg)

	return m, cmd
}

func (m PaymentsModel) updateReject(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyEsc:
		m.rejecting = false
		m.reasonInput.Blur()
		m.table.Focus()

		return m, nil
	case tea.KeyEnter:
		p := m.selected()
		reason := m.reasonInput.Value()

		m.rejecting = false
		m.reasonInput.Blur()
		m.table.Focus()

		if p == nil {
			return m, nil
		}

		return m, func() tea.Msg {
			ctx, cancel := DbCtx()
			defer cancel()

			next, err := m.paymentService.Reject(ctx, p.ID, m.Admin, reason)

			return paymentDoneMsg{payment: next, err: err}
		}
	}

	var cmd tea.Cmd
	m.reasonInput, cmd = m.reasonInput.Update(msg)

	return m, cmd
}

func (m PaymentsModel) selected() *payment.Payment {
	idx := m.table.Cursor()
	if idx < 0 || idx >= len(m.payments) {
		return nil
	}

	return m.payments[idx]
}

func (m PaymentsModel) View() string {
	if m.loading {
		return lipgloss.NewStyle().Padding(2).Render("Loading payments...")
	}

	header := "Queue: [f] " + activeStyle(string(paymentQueues[m.queueIdx]))

	var body string
	if len(m.payments) == 0 {
		body = "Nothing in this queue."
	} else {
		body = framed(m.table.View())
	}

	content := lipgloss.JoinVertical(lipgloss.Left,
		lipgloss.NewStyle().PaddingBottom(1).Render(header),
		body,
	)

	if m.rejecting {
		content += "\n\n" + panel("Reject payment\n\n"+m.reasonInput.View())
	}

	if m.status != "" {
		content = lipgloss.NewStyle().Faint(true).Render(m.status) + "\n" + content
	}

	return lipgloss.NewStyle().Padding(1).Render(content)
}

func (m *PaymentsModel) refreshTable() {
	rows := make([]table.Row, 0, len(m.payments))
	for _, p := range m.payments {
		rows = append(rows, table.Row{
			p.ID.String()[:8],
			p.TransactionID.String()[:8],
			FormatAmount(p.Amount, p.Currency),
			string(p.Method),
			p.Reference,
			FormatStamp(&p.CreatedAt),
		})
	}

	m.table.SetRows(rows)
}

// Messages

type loadPaymentsMsg struct {
	payments []*payment.Payment
	err      error
}

func (m PaymentsModel) loadCmd() tea.Cmd {
	status := paymentQueues[m.queueIdx]

	return func() tea.Msg {
		ctx, cancel := DbCtx()
		defer cancel()

		ps, err := m.paymentService.List(ctx, payment.ListFilter{Status: &status})

		return loadPaymentsMsg{payments: ps, err: err}
	}
}

type paymentDoneMsg struct {
	payment *payment.Payment
	err     error
}

type paymentAction func(ctx context.Context, id uuid.UUID, actor transaction.Actor) (*payment.Payment, error)

func (m PaymentsModel) actCmd(p *payment.Payment, action paymentAction) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := DbCtx()
		defer cancel()

		next, err := action(ctx, p.ID, m.Admin)

		return paymentDoneMsg{payment: next, err: err}
	}
}
