package main

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/vctt94/pokertablesync/pkg/actions"
	"github.com/vctt94/pokertablesync/pkg/client"
	"github.com/vctt94/pokertablesync/pkg/countdown"
	"github.com/vctt94/pokertablesync/pkg/history"
	"github.com/vctt94/pokertablesync/pkg/session"
	"github.com/vctt94/pokertablesync/pkg/table"
	"github.com/vctt94/pokertablesync/pkg/uimode"
	"github.com/vctt94/pokertablesync/pkg/utils"
)

var (
	focusedStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("205"))
	blurredStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	titleStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("39")).Bold(true).MarginLeft(2)
	gameInfoStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("140")).MarginTop(1)
	helpStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("241")).Margin(1, 0)
	heroStyle     = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("229"))
	actorStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	warnStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
)

// Model contains all the state for our UI.
type Model struct {
	ctx      context.Context
	tc       *client.TableClient
	playerID string

	view client.TableView
	conn session.ConnState
	turn countdown.Snapshot
	vote countdown.Snapshot

	// lastAnim is the most recent animation in flight.
	lastAnim string

	message string
	err     error

	// Amount entry for bet/raise.
	entering    table.ActionType
	amountInput string

	showHistory bool
	hands       []history.Hand
}

func initialModel(ctx context.Context, tc *client.TableClient, playerID string) Model {
	return Model{
		ctx:      ctx,
		tc:       tc,
		playerID: playerID,
		conn:     session.StateDisconnected,
	}
}

// Custom message types for commands.
type errorMsg error
type uiNtfnMsg client.UINotification
type actionDoneMsg struct {
	action table.ActionType
	err    error
}
type handsMsg []history.Hand

func waitForUpdateCmd(ctx context.Context, ch <-chan tea.Msg) tea.Cmd {
	return func() tea.Msg {
		select {
		case msg := <-ch:
			return msg
		case <-ctx.Done():
			return nil
		}
	}
}

func waitForErrorCmd(ctx context.Context, ch <-chan error) tea.Cmd {
	return func() tea.Msg {
		select {
		case err := <-ch:
			return errorMsg(err)
		case <-ctx.Done():
			return nil
		}
	}
}

func submitCmd(ctx context.Context, tc *client.TableClient, action table.ActionType, amount *int64) tea.Cmd {
	return func() tea.Msg {
		return actionDoneMsg{action: action, err: tc.SubmitAction(ctx, action, amount)}
	}
}

func loadHandsCmd(tc *client.TableClient) tea.Cmd {
	return func() tea.Msg {
		hands, err := tc.RecentHands(10)
		if err != nil {
			return errorMsg(err)
		}
		return handsMsg(hands)
	}
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(
		waitForUpdateCmd(m.ctx, m.tc.UpdatesCh),
		waitForErrorCmd(m.ctx, m.tc.ErrorsCh),
	)
}

func (m Model) allowed() *actions.AllowedActionSet {
	if m.view.Allowed == nil {
		return &actions.AllowedActionSet{}
	}
	return m.view.Allowed
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		if m.entering != "" {
			return m.updateAmountEntry(msg)
		}
		allowed := m.allowed()
		switch msg.String() {
		case "ctrl+c", "q":
			return m, tea.Quit
		case "f":
			cmds = append(cmds, submitCmd(m.ctx, m.tc, table.ActionFold, nil))
		case "c":
			switch {
			case allowed.Has(table.ActionCheck):
				cmds = append(cmds, submitCmd(m.ctx, m.tc, table.ActionCheck, nil))
			default:
				cmds = append(cmds, submitCmd(m.ctx, m.tc, table.ActionCall, nil))
			}
		case "b", "r":
			action := table.ActionRaise
			if allowed.Has(table.ActionBet) {
				action = table.ActionBet
			}
			m.entering = action
			m.amountInput = strconv.FormatInt(allowed.MinRaiseTo, 10)
		case "a":
			cmds = append(cmds, submitCmd(m.ctx, m.tc, table.ActionAllIn, nil))
		case "y":
			cmds = append(cmds, submitCmd(m.ctx, m.tc, table.ActionReady, nil))
		case "h":
			m.showHistory = !m.showHistory
			if m.showHistory {
				cmds = append(cmds, loadHandsCmd(m.tc))
			}
		}
		return m, tea.Batch(cmds...)

	case client.StateUpdatedMsg:
		m.view = client.TableView(msg)
		m.conn = m.view.Conn
		if m.showHistory && m.view.State != nil && m.view.State.HandResult != nil {
			cmds = append(cmds, loadHandsCmd(m.tc))
		}
		cmds = append(cmds, waitForUpdateCmd(m.ctx, m.tc.UpdatesCh))

	case client.ConnStateMsg:
		m.conn = msg.To
		cmds = append(cmds, waitForUpdateCmd(m.ctx, m.tc.UpdatesCh))

	case client.CountdownMsg:
		switch msg.Kind {
		case client.TurnCountdown:
			m.turn = msg.Snapshot
		case client.VoteCountdown:
			m.vote = msg.Snapshot
		}
		cmds = append(cmds, waitForUpdateCmd(m.ctx, m.tc.UpdatesCh))

	case client.AnimationMsg:
		if msg.Done {
			m.lastAnim = ""
		} else {
			m.lastAnim = fmt.Sprintf("%s %s", msg.Event.Type, msg.Event.Target)
		}
		cmds = append(cmds, waitForUpdateCmd(m.ctx, m.tc.UpdatesCh))

	case uiNtfnMsg:
		m.message = msg.Text

	case actionDoneMsg:
		if msg.err != nil {
			m.message = describeActionError(msg.action, msg.err)
		} else {
			m.message = fmt.Sprintf("Sent %s", msg.action)
		}

	case handsMsg:
		m.hands = msg

	case errorMsg:
		if msg != nil {
			m.err = msg
			m.message = fmt.Sprintf("Error: %v", msg)
		}
		cmds = append(cmds, waitForErrorCmd(m.ctx, m.tc.ErrorsCh))
	}

	return m, tea.Batch(cmds...)
}

func (m Model) updateAmountEntry(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyEsc:
		m.entering = ""
		m.amountInput = ""
	case tea.KeyBackspace:
		if len(m.amountInput) > 0 {
			m.amountInput = m.amountInput[:len(m.amountInput)-1]
		}
	case tea.KeyEnter:
		action := m.entering
		m.entering = ""
		amount, err := strconv.ParseInt(m.amountInput, 10, 64)
		if err != nil {
			m.message = "Invalid amount"
			return m, nil
		}
		return m, submitCmd(m.ctx, m.tc, action, &amount)
	case tea.KeyRunes:
		for _, r := range msg.Runes {
			if r >= '0' && r <= '9' {
				m.amountInput += string(r)
			}
		}
	case tea.KeyCtrlC:
		return m, tea.Quit
	}
	return m, nil
}

func describeActionError(action table.ActionType, err error) string {
	var rej *actions.RejectedError
	switch {
	case errors.Is(err, actions.ErrBelowMinimum), errors.Is(err, actions.ErrAboveMaximum):
		return fmt.Sprintf("%s: amount out of range", action)
	case errors.Is(err, actions.ErrNoLegalAction):
		return fmt.Sprintf("%s is not available now", action)
	case errors.Is(err, actions.ErrUnauthorized):
		return "Session expired, reconnect with a new token"
	case errors.As(err, &rej):
		return fmt.Sprintf("Server rejected %s: %s", action, rej.Detail)
	default:
		return fmt.Sprintf("%s failed: %v", action, err)
	}
}

func progressBar(p float64, width int) string {
	filled := int(p * float64(width))
	filled = max(0, min(width, filled))
	return strings.Repeat("█", filled) + strings.Repeat("░", width-filled)
}

func (m Model) View() string {
	var s string
	st := m.view.State

	title := "Table"
	if st != nil {
		title = fmt.Sprintf("Table %s", st.TableID)
	}
	s += titleStyle.Render(title) + "\n"

	connLine := fmt.Sprintf("Connection: %s • Mode: %s", m.conn, m.view.UI.Mode)
	if m.conn != session.StateLive {
		s += warnStyle.Render(connLine) + "\n"
	} else {
		s += gameInfoStyle.Render(connLine) + "\n"
	}

	if st == nil {
		s += "\nWaiting for the table snapshot...\n"
		return s + helpStyle.Render("q: Quit")
	}

	s += gameInfoStyle.Render(fmt.Sprintf("Hand: %s • Street: %s • Pot: %d • Current Bet: %d",
		st.HandID, st.Street, st.Pot, st.CurrentBet)) + "\n"
	s += fmt.Sprintf("Board: %s\n", utils.FormatCards(st.CommunityCards))
	if len(st.HoleCards) > 0 {
		s += fmt.Sprintf("Your cards: %s\n", utils.FormatCards(st.HoleCards))
	}
	s += "\n"

	for _, seat := range st.Seats {
		line := fmt.Sprintf("%d. %s - Stack: %d Bet: %d", seat.Position, seatName(seat), seat.Stack, seat.Bet)
		if seat.IsButton {
			line += " (D)"
		}
		if !seat.InHand {
			line += " (Out)"
		}
		switch {
		case seat.UserID == m.playerID && m.view.UI.HeroSeatScale >= uimode.FullHeroScale:
			s += heroStyle.Render("> "+line) + "\n"
		case seat.UserID == m.playerID:
			s += focusedStyle.Render("  "+line) + "\n"
		case seat.UserID == st.CurrentActorID:
			s += actorStyle.Render("  "+line+" (Acting)") + "\n"
		default:
			s += blurredStyle.Render("  "+line) + "\n"
		}
	}
	s += "\n"

	if m.turn.Seconds > 0 && st.CurrentActorID != "" {
		bar := progressBar(m.turn.Progress/100, 20)
		line := fmt.Sprintf("Turn: %s %s", bar, utils.FormatSeconds(m.turn.Seconds))
		if m.turn.Seconds <= 5 {
			line = warnStyle.Render(line)
		}
		s += line + "\n"
	}
	if m.vote.Seconds > 0 && st.IsInterHand() {
		s += fmt.Sprintf("Next hand vote: %s\n", utils.FormatSeconds(m.vote.Seconds))
	}
	if hr := st.HandResult; hr != nil {
		for _, w := range hr.Winners {
			s += gameInfoStyle.Render(fmt.Sprintf("%s wins %d %s", w.PlayerID, w.Amount, w.HandDescription)) + "\n"
		}
	}
	if m.lastAnim != "" {
		s += blurredStyle.Render("~ "+m.lastAnim) + "\n"
	}

	s += m.viewActionBar()

	if m.showHistory {
		s += "\nRecent hands:\n"
		for _, h := range m.hands {
			var winners []string
			for _, w := range h.Winners {
				winners = append(winners, fmt.Sprintf("%s +%d", w.PlayerID, w.Amount))
			}
			s += fmt.Sprintf("  %s [%s] %s\n", h.HandID, utils.FormatCards(h.Board), strings.Join(winners, ", "))
		}
	}

	if m.message != "" {
		s += gameInfoStyle.Render(m.message) + "\n"
	}
	return s
}

func (m Model) viewActionBar() string {
	if m.entering != "" {
		a := m.allowed()
		return focusedStyle.Render(fmt.Sprintf("%s to: %s_ (min %d, max %d) • Enter: Send • Esc: Cancel",
			m.entering, m.amountInput, a.MinRaiseTo, a.MaxRaiseTo)) + "\n"
	}

	a := m.allowed()
	if m.view.UI.ActionBarMinimal {
		if a.Has(table.ActionReady) {
			return "\n" + helpStyle.Render("y: Ready • h: History • q: Quit")
		}
		if m.view.UI.ShowWaitingToast {
			return "\n" + helpStyle.Render("Waiting for "+m.view.State.CurrentActorID+" • h: History • q: Quit")
		}
		return "\n" + helpStyle.Render("h: History • q: Quit")
	}

	var keys []string
	for _, act := range a.Actions {
		switch act {
		case table.ActionFold:
			keys = append(keys, "f: Fold")
		case table.ActionCheck:
			keys = append(keys, "c: Check")
		case table.ActionCall:
			keys = append(keys, fmt.Sprintf("c: Call %d", a.CallAmount))
		case table.ActionBet:
			keys = append(keys, "b: Bet")
		case table.ActionRaise:
			keys = append(keys, fmt.Sprintf("r: Raise %d-%d", a.MinRaiseTo, a.MaxRaiseTo))
		case table.ActionAllIn:
			keys = append(keys, "a: All-in")
		}
	}
	keys = append(keys, "q: Quit")
	return "\n" + focusedStyle.Render("Your turn! ") + helpStyle.Render(strings.Join(keys, " • "))
}

func seatName(seat table.PlayerSeat) string {
	if seat.DisplayName != "" {
		return seat.DisplayName
	}
	return seat.UserID
}

// runUI starts the Bubble Tea UI and stops it when ctx is done.
func runUI(ctx context.Context, tc *client.TableClient, ntfns *client.NotificationManager) error {
	p := tea.NewProgram(initialModel(ctx, tc, tc.PlayerID()), tea.WithAltScreen())
	reg := ntfns.Register(client.OnUINotification(func(n client.UINotification) {
		p.Send(uiNtfnMsg(n))
	}))
	defer reg.Unregister()

	go func() {
		<-ctx.Done()
		p.Quit()
	}()

	_, err := p.Run()
	return err
}
