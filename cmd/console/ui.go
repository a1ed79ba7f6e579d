package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/reflow/wordwrap"

	"github.com/jwebster45206/npc-quest-engine/pkg/state"
)

const PlaceHolderText = "Say something, or /help..."

type entryKind int

const (
	entryUser entryKind = iota
	entryNPC
	entrySystem
	entryDecision
	entryInfo
	entryError
)

type entry struct {
	kind    entryKind
	speaker string
	text    string
}

// ConsoleUI is the bubbletea model: transcript on the left, the player's
// interaction and engine counters on the right.
type ConsoleUI struct {
	session      *Session
	quests       []string
	npcs         []string
	transcript   []entry
	interaction  *state.Interaction
	chatViewport viewport.Model
	metaViewport viewport.Model
	textarea     textarea.Model
	ready        bool
	width        int
	height       int
	busy         bool

	// Quest picker state: first a quest, then the NPC giving it
	showPicker  bool
	pickingNPC  bool
	selected    int
	pickedQuest string
	pickerErr   error

	showQuitModal bool
}

type turnMsg struct {
	turn Turn
}

type interactionMsg struct {
	interaction *state.Interaction
	info        string
	err         error
}

// Forest palette: moss for the player, amber for NPCs, fern for system lines.
var (
	chatPaneStyle = lipgloss.NewStyle().Padding(2, 0, 1, 3)
	sidePaneStyle = lipgloss.NewStyle().Padding(2, 2, 0, 0)

	headingStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("179")).Bold(true)
	npcStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("172")).Bold(true)
	playerStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("108"))
	hintStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("114")).Italic(true)
	decisionStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("144"))
	failStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("167"))
	mutedStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("242"))

	boxStyle    = lipgloss.NewStyle().Border(lipgloss.DoubleBorder()).BorderForeground(lipgloss.Color("64")).Padding(1, 3)
	itemStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("252"))
	cursorStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("232")).Background(lipgloss.Color("179")).Bold(true)
)

const helpText = `Commands:
• /start QUEST NPC - begin a quest conversation
• /quest - pick a quest from the catalog
• /react EMOJI - react to the last NPC message
• /channel NAME - move to another channel (digits are a channel id)
• /state - refresh the interaction panel
• /reset - drop the current interaction
• /help - show this help
• Ctrl+C - quit`

// NewConsoleUI opens on the quest picker.
func NewConsoleUI(session *Session, quests, npcs []string) ConsoleUI {
	input := textarea.New()
	input.Placeholder = PlaceHolderText
	input.Prompt = mutedStyle.Render("> ")
	input.ShowLineNumbers = false
	input.CharLimit = 500
	input.SetHeight(2)
	input.Focus()

	chat := viewport.New(0, 0)
	chat.MouseWheelEnabled = true

	return ConsoleUI{
		session:      session,
		quests:       quests,
		npcs:         npcs,
		textarea:     input,
		chatViewport: chat,
		metaViewport: viewport.New(0, 0),
		showPicker:   true,
	}
}

func (m ConsoleUI) Init() tea.Cmd {
	return textarea.Blink
}

// panes splits the terminal: two thirds chat, the rest for the side panel.
func (m ConsoleUI) panes() (chat, side int) {
	chat = m.width*2/3 - 3
	return chat, m.width - chat - 5
}

func (m *ConsoleUI) resize(msg tea.WindowSizeMsg) {
	m.width, m.height = msg.Width, msg.Height

	chat, side := m.panes()
	m.chatViewport.Width = chat - 2
	m.chatViewport.Height = m.height - 6
	m.metaViewport.Width = side - 2
	m.metaViewport.Height = m.height - 4
	m.textarea.SetWidth(chat - 4)
}

func (m *ConsoleUI) push(e entry) {
	m.transcript = append(m.transcript, e)
}

// writeChatContent renders the transcript for the current viewport width
func (m *ConsoleUI) writeChatContent() {
	chatWidth := m.chatViewport.Width - 6
	if chatWidth < 20 {
		chatWidth = 20
	}

	lines := []string{
		headingStyle.Render("~ npc quest console ~"),
		mutedStyle.Render(fmt.Sprintf("you are <@%s> · /help lists commands", m.session.userID)),
		mutedStyle.Render(strings.Repeat("·", chatWidth-6)),
	}
	for _, e := range m.transcript {
		lines = append(lines, formatEntry(e, chatWidth))
	}

	m.chatViewport.SetContent(strings.Join(lines, "\n\n"))
	m.chatViewport.GotoBottom()
}

func formatEntry(e entry, width int) string {
	switch e.kind {
	case entryUser:
		return playerStyle.Render("You: ") + wordwrap.String(e.text, width-5)
	case entryNPC:
		prefix := e.speaker + ": "
		return npcStyle.Render(prefix) + wordwrap.String(e.text, width-len(prefix))
	case entrySystem:
		return hintStyle.Render(wordwrap.String(e.text, width))
	case entryDecision:
		return decisionStyle.Render("→ " + e.text)
	case entryError:
		return failStyle.Render("! " + wordwrap.String(e.text, width-2))
	default:
		return mutedStyle.Render(wordwrap.String(e.text, width))
	}
}

func (m *ConsoleUI) writeMetadata() {
	var content strings.Builder
	content.WriteString(headingStyle.Render("Interaction") + "\n\n")

	ch := m.session.Channel()
	content.WriteString("Channel:\n")
	if ch.ID != "" {
		content.WriteString(fmt.Sprintf("#%s (%s)\n\n", ch.Name, ch.ID))
	} else {
		content.WriteString("#" + ch.Name + "\n\n")
	}

	content.WriteString(describe(m.interaction))

	stats := m.session.engine.Stats()
	content.WriteString("\nDecisions:\n")
	content.WriteString(fmt.Sprintf("• ignored: %d\n", stats.Ignored))
	content.WriteString(fmt.Sprintf("• awaiting: %d\n", stats.RepliedAwaitingReaction))
	content.WriteString(fmt.Sprintf("• advanced: %d\n", stats.Advanced))
	content.WriteString(fmt.Sprintf("• completed: %d\n", stats.Completed))

	m.metaViewport.SetContent(content.String())
}

func (m ConsoleUI) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	if m.showQuitModal {
		return m.updateQuitModal(msg)
	}
	if m.showPicker {
		return m.updatePicker(msg)
	}

	var (
		tiCmd tea.Cmd
		vpCmd tea.Cmd
	)

	switch msg := msg.(type) {
	case tea.MouseMsg:
		m.chatViewport, vpCmd = m.chatViewport.Update(msg)
		return m, vpCmd

	case tea.WindowSizeMsg:
		m.resize(msg)
		m.ready = true
		m.writeChatContent()
		m.writeMetadata()

	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEsc:
			m.showQuitModal = true
			return m, nil
		case tea.KeyEnter:
			if m.busy {
				return m, nil
			}
			input := strings.TrimSpace(m.textarea.Value())
			if input == "" {
				return m, nil
			}
			m.textarea.Reset()

			if strings.HasPrefix(input, "/") {
				return m.handleCommand(input)
			}

			m.busy = true
			m.push(entry{kind: entryUser, text: input})
			m.writeChatContent()
			return m, m.say(input)
		}

	case turnMsg:
		m.busy = false
		for _, d := range msg.turn.Deliveries {
			switch d.Kind {
			case "npc":
				m.push(entry{kind: entryNPC, speaker: d.NPC, text: d.Text})
			default:
				m.push(entry{kind: entrySystem, text: d.Text})
			}
		}
		m.push(entry{kind: entryDecision, text: msg.turn.Decision.String()})
		m.writeChatContent()
		return m, m.refresh("")

	case interactionMsg:
		if msg.err != nil {
			m.push(entry{kind: entryError, text: msg.err.Error()})
		} else {
			m.interaction = msg.interaction
			if msg.info != "" {
				m.push(entry{kind: entryInfo, text: msg.info})
			}
		}
		m.writeChatContent()
		m.writeMetadata()
	}

	m.textarea, tiCmd = m.textarea.Update(msg)
	m.chatViewport, vpCmd = m.chatViewport.Update(msg)

	return m, tea.Batch(tiCmd, vpCmd)
}

func (m ConsoleUI) handleCommand(input string) (tea.Model, tea.Cmd) {
	fields := strings.Fields(input)
	cmd, args := strings.ToLower(fields[0]), fields[1:]

	switch cmd {
	case "/help":
		m.push(entry{kind: entryInfo, text: helpText})

	case "/quest":
		m.showPicker = true
		m.pickingNPC = false
		m.selected = 0
		m.pickerErr = nil
		return m, nil

	case "/start":
		if len(args) < 2 {
			m.push(entry{kind: entryError, text: "usage: /start QUEST NPC"})
			break
		}
		return m, m.start(args[0], strings.Join(args[1:], " "))

	case "/react":
		if len(args) == 0 {
			m.push(entry{kind: entryError, text: "usage: /react EMOJI"})
			break
		}
		m.busy = true
		m.push(entry{kind: entryUser, text: "reacted " + args[0]})
		m.writeChatContent()
		return m, m.react(args[0])

	case "/channel":
		if len(args) == 0 {
			m.push(entry{kind: entryError, text: "usage: /channel NAME"})
			break
		}
		m.session.SetChannel(args[0])
		m.push(entry{kind: entryInfo, text: "Moved to #" + strings.TrimPrefix(args[0], "#")})
		m.writeMetadata()

	case "/state":
		return m, m.refresh("")

	case "/reset":
		return m, m.reset()

	default:
		m.push(entry{kind: entryError, text: "unknown command " + cmd + ", try /help"})
	}

	m.writeChatContent()
	return m, nil
}

func (m ConsoleUI) say(text string) tea.Cmd {
	return func() tea.Msg {
		return turnMsg{turn: m.session.Say(context.Background(), text)}
	}
}

func (m ConsoleUI) react(emoji string) tea.Cmd {
	return func() tea.Msg {
		return turnMsg{turn: m.session.React(context.Background(), emoji)}
	}
}

func (m ConsoleUI) start(questID, npcName string) tea.Cmd {
	return func() tea.Msg {
		in, err := m.session.Start(context.Background(), questID, npcName)
		if err != nil {
			return interactionMsg{err: err}
		}
		return interactionMsg{interaction: in, info: fmt.Sprintf("Started %s with %s", in.QuestID, in.NPCName)}
	}
}

func (m ConsoleUI) refresh(info string) tea.Cmd {
	return func() tea.Msg {
		in, err := m.session.State(context.Background())
		return interactionMsg{interaction: in, info: info, err: err}
	}
}

func (m ConsoleUI) reset() tea.Cmd {
	return func() tea.Msg {
		if err := m.session.Reset(context.Background()); err != nil {
			return interactionMsg{err: err}
		}
		return interactionMsg{info: "Interaction cleared"}
	}
}

func (m ConsoleUI) updatePicker(msg tea.Msg) (tea.Model, tea.Cmd) {
	items := m.quests
	if m.pickingNPC {
		items = m.npcs
	}

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.resize(msg)

	case interactionMsg:
		if msg.err != nil {
			m.pickerErr = msg.err
			m.pickingNPC = false
			m.selected = 0
			return m, nil
		}
		m.showPicker = false
		m.interaction = msg.interaction
		m.push(entry{kind: entryInfo, text: msg.info})
		m.ready = m.width > 0
		m.writeChatContent()
		m.writeMetadata()
		m.textarea.Focus()
		return m, textarea.Blink

	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC:
			m.showQuitModal = true
			return m, nil
		case tea.KeyEsc:
			// Skip picking; the player can /start later
			m.showPicker = false
			m.ready = m.width > 0
			m.writeChatContent()
			m.writeMetadata()
			return m, textarea.Blink
		case tea.KeyUp:
			if m.selected > 0 {
				m.selected--
			}
		case tea.KeyDown:
			if m.selected < len(items)-1 {
				m.selected++
			}
		case tea.KeyEnter:
			if len(items) == 0 {
				return m, nil
			}
			if !m.pickingNPC {
				m.pickedQuest = items[m.selected]
				m.pickingNPC = true
				m.selected = 0
				return m, nil
			}
			return m, m.start(m.pickedQuest, items[m.selected])
		}
	}

	return m, nil
}

func (m ConsoleUI) updateQuitModal(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.resize(msg)
	case tea.KeyMsg:
		switch strings.ToLower(msg.String()) {
		case "y", "enter", "ctrl+c", "esc":
			return m, tea.Quit
		case "n":
			m.showQuitModal = false
			if m.showPicker {
				return m, nil
			}
			m.textarea.Focus()
			return m, textarea.Blink
		}
	}
	return m, nil
}

// modal centers a boxed dialog on the screen.
func (m ConsoleUI) modal(width int, title string, body ...string) string {
	if m.width == 0 || m.height == 0 {
		return "Loading..."
	}
	parts := append([]string{headingStyle.Render(title), ""}, body...)
	box := boxStyle.Width(width).Render(strings.Join(parts, "\n"))
	return lipgloss.Place(m.width, m.height, lipgloss.Center, lipgloss.Center, box)
}

func (m ConsoleUI) renderQuitModal() string {
	return m.modal(48, "Leave the console?",
		"Interactions live in memory and are lost on exit.",
		"",
		mutedStyle.Render("y / enter: quit    n: stay"))
}

func (m ConsoleUI) renderPicker() string {
	items, title := m.quests, "Choose a quest"
	if m.pickingNPC {
		items, title = m.npcs, "Which NPC gives "+m.pickedQuest+"?"
	}

	var body []string
	if m.pickerErr != nil {
		body = append(body, failStyle.Render(fmt.Sprintf("Could not start: %v", m.pickerErr)), "")
	}
	for i, item := range items {
		if i == m.selected {
			body = append(body, cursorStyle.Render(" "+item+" "))
		} else {
			body = append(body, itemStyle.Render(" "+item))
		}
	}
	body = append(body, "", mutedStyle.Render("arrows move · enter picks · esc skips"))

	return m.modal(56, title, body...)
}

func (m ConsoleUI) View() string {
	if m.showQuitModal {
		return m.renderQuitModal()
	}
	if m.showPicker {
		return m.renderPicker()
	}
	if !m.ready {
		return "\n  Initializing..."
	}

	chatWidth, sideWidth := m.panes()
	chat := chatPaneStyle.Width(chatWidth).Height(m.height - 3).Render(lipgloss.JoinVertical(lipgloss.Left,
		m.chatViewport.View(),
		mutedStyle.Render(strings.Repeat("·", max(chatWidth-4, 0))),
		m.textarea.View(),
	))
	side := sidePaneStyle.Width(sideWidth).Height(m.height - 2).Render(m.metaViewport.View())

	return lipgloss.JoinHorizontal(lipgloss.Top, chat, side)
}
