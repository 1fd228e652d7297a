package view

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"

	"github.com/MrJamesThe3rd/autoescrow/internal/dispute"
)

var disputeQueues = []dispute.Status{dispute.StatusOpen, dispute.StatusInReview}

type disputeFormKind int

const (
	formResolve disputeFormKind = iota
	formClose
)

type resolutionForm struct {
	kind       disputeFormKind
	resolution dispute.ResolutionType
	text       string
}

type DisputesModel struct {
	CommonModel
	disputeService *dispute.Service

	table    table.Model
	disputes []*dispute.Dispute
	queueIdx int

	form *huh.Form
	bind *resolutionForm

	loading bool
	status  string
}

func NewDisputesModel(common CommonModel, disputeSvc *dispute.Service) DisputesModel {
	return DisputesModel{
		CommonModel:    common,
		disputeService: disputeSvc,
		table: newTable([]table.Column{
			{Title: "Dispute", Width: 10},
			{Title: "Transaction", Width: 12},
			{Title: "Type", Width: 20},
			{Title: "Reason", Width: 34},
			{Title: "Raised", Width: 18},
		}),
		loading: true,
	}
}

func (m DisputesModel) Title() string { return "Disputes" }
func (m DisputesModel) ShortHelp() string {
	if m.form != nil {
		return "Navigate form | Esc: cancel"
	}

	return "Esc: back | r: review | enter: resolve | c: close | f: queue | ctrl+r: refresh"
}

func (m DisputesModel) Init() tea.Cmd {
	return m.loadCmd()
}

func (m DisputesModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case loadDisputesMsg:
		m.loading = false
		if msg.err != nil {
			m.status = fmt.Sprintf("Error loading disputes: %v", msg.err)
			return m, nil
		}

		m.disputes = msg.disputes
		m.refreshTable()

		return m, nil

	case disputeDoneMsg:
		if msg.err != nil {
			m.status = fmt.Sprintf("Error: %v", msg.err)
		} else {
			m.status = fmt.Sprintf("Dispute %s is now %s", msg.dispute.ID.String()[:8], msg.dispute.Status)
		}

		m.form = nil
		m.table.Focus()

		return m, m.loadCmd()
	}

	if m.form != nil {
		return m.updateForm(msg)
	}

	if keyMsg, ok := msg.(tea.KeyMsg); ok {
		switch keyMsg.String() {
		case "esc":
			return m, Back
		case "ctrl+r":
			m.loading = true
			return m, m.loadCmd()
		case "f":
			m.queueIdx = (m.queueIdx + 1) % len(disputeQueues)
			m.loading = true

			return m, m.loadCmd()
		case "r":
			if d := m.selected(); d != nil {
				return m, m.reviewCmd(d)
			}
		case "enter":
			if m.selected() != nil {
				return m.openForm(formResolve)
			}
		case "c":
			if m.selected() != nil {
				return m.openForm(formClose)
			}
		}
	}

	var cmd tea.Cmd
	m.table, cmd = m.table.Update(msg)

	return m, cmd
}

func (m DisputesModel) openForm(kind disputeFormKind) (tea.Model, tea.Cmd) {
	bind := &resolutionForm{kind: kind, resolution: dispute.ResolutionRefundBuyer}

	notEmpty := func(s string) error {
		if strings.TrimSpace(s) == "" {
			return fmt.Errorf("an explanation is required")
		}

		return nil
	}

	var fields []huh.Field
	if kind == formResolve {
		fields = append(fields, huh.NewSelect[dispute.ResolutionType]().
			Title("Outcome").
			Options(huh.NewOptions(
				dispute.ResolutionRefundBuyer,
				dispute.ResolutionReleaseSeller,
				dispute.ResolutionPartialRefund,
			)...).
			Value(&bind.resolution))
	}

	fields = append(fields, huh.NewText().
		Title("Explanation").
		Value(&bind.text).
		Validate(notEmpty))

	m.form = huh.NewForm(huh.NewGroup(fields...)).WithWidth(48).WithShowHelp(false)
	m.bind = bind
	m.table.Blur()

	return m, m.form.Init()
}

func (m DisputesModel) updateForm(msg tea.Msg) (tea.Model, tea.Cmd) {
	if keyMsg, ok := msg.(tea.KeyMsg); ok && keyMsg.Type == tea.KeyEsc {
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

	return m, m.settleCmd()
}

func (m DisputesModel) selected() *dispute.Dispute {
	idx := m.table.Cursor()
	if idx < 0 || idx >= len(m.disputes) {
		return nil
	}

	return m.disputes[idx]
}

func (m DisputesModel) View() string {
	if m.loading {
		return lipgloss.NewStyle().Padding(2).Render("Loading disputes...")
	}

	header := "Queue: [f] " + activeStyle(string(disputeQueues[m.queueIdx]))

	var body string
	if len(m.disputes) == 0 {
		body = "Nothing in this queue."
	} else {
		body = framed(m.table.View())
	}

	content := lipgloss.JoinVertical(lipgloss.Left,
		lipgloss.NewStyle().PaddingBottom(1).Render(header),
		body,
	)

	if d := m.selected(); d != nil {
		details := fmt.Sprintf("%s\n\n%s\n\n%s", activeStyle(string(d.Type)), d.Reason, d.Description)
		if m.form != nil {
			details += "\n\n" + m.form.View()
		}

		content = lipgloss.JoinHorizontal(lipgloss.Top, content, panel(details))
	}

	if m.status != "" {
		content = lipgloss.NewStyle().Faint(true).Render(m.status) + "\n" + content
	}

	return lipgloss.NewStyle().Padding(1).Render(content)
}

func (m *DisputesModel) refreshTable() {
	rows := make([]table.Row, 0, len(m.disputes))
	for _, d := range m.disputes {
		rows = append(rows, table.Row{
			d.ID.String()[:8],
			d.TransactionID.String()[:8],
			string(d.Type),
			d.Reason,
			FormatStamp(&d.CreatedAt),
		})
	}

	m.table.SetRows(rows)
}

// Messages

type loadDisputesMsg struct {
	disputes []*dispute.Dispute
	err      error
}

func (m DisputesModel) loadCmd() tea.Cmd {
	status := disputeQueues[m.queueIdx]

	return func() tea.Msg {
		ctx, cancel := DbCtx()
		defer cancel()

		ds, err := m.disputeService.List(ctx, dispute.ListFilter{Status: &status})

		return loadDisputesMsg{disputes: ds, err: err}
	}
}

type disputeDoneMsg struct {
	dispute *dispute.Dispute
	err     error
}

func (m DisputesModel) reviewCmd(d *dispute.Dispute) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := DbCtx()
		defer cancel()

		next, err := m.disputeService.StartReview(ctx, d.ID, m.Admin)

		return disputeDoneMsg{dispute: next, err: err}
	}
}

func (m DisputesModel) settleCmd() tea.Cmd {
	d := m.selected()
	if d == nil || m.bind == nil {
		return nil
	}

	bind := *m.bind

	return func() tea.Msg {
		ctx, cancel := DbCtx()
		defer cancel()

		var (
			next *dispute.Dispute
			err  error
		)

		if bind.kind == formClose {
			next, err = m.disputeService.Close(ctx, d.ID, m.Admin, bind.text)
		} else {
			next, err = m.disputeService.Resolve(ctx, d.ID, m.Admin, bind.resolution, bind.text)
		}

		return disputeDoneMsg{dispute: next, err: err}
	}
}
