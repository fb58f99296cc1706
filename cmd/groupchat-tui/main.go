// Command groupchat-tui is a terminal client for the chat server.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/joho/godotenv"

	"groupchat/pkg/chat"
	"groupchat/pkg/client"
	"groupchat/pkg/config"
	"groupchat/pkg/history"
	"groupchat/pkg/logger"
	"groupchat/pkg/models"
)

var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("212"))
	userStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("39"))
	aiNameStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("42"))
	errStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	dimStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	helpStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("241")).Italic(true)
)

type messagesMsg []models.Message

type cycleDoneMsg struct{ err error }

type model struct {
	viewport viewport.Model
	input    textinput.Model
	spin     spinner.Model

	session *chat.Session
	orch    *chat.Orchestrator
	bridge  *history.Bridge
	roster  *config.Roster
	group   models.Group
	updates chan []models.Message

	messages []models.Message
	sending  bool
	cancel   context.CancelFunc
	status   string
	ready    bool
}

func newModel(session *chat.Session, orch *chat.Orchestrator, bridge *history.Bridge, roster *config.Roster, group models.Group, updates chan []models.Message) model {
	ti := textinput.New()
	ti.Placeholder = "说点什么... (/mute 名字, /clear, /quit)"
	ti.Focus()
	ti.CharLimit = 2000

	sp := spinner.New()
	sp.Spinner = spinner.Dot

	return model{
		input:   ti,
		spin:    sp,
		session: session,
		orch:    orch,
		bridge:  bridge,
		roster:  roster,
		group:   group,
		updates: updates,
	}
}

func (m model) waitForUpdate() tea.Cmd {
	return func() tea.Msg {
		return messagesMsg(<-m.updates)
	}
}

func (m model) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, m.spin.Tick, m.waitForUpdate())
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		headerH, footerH := 2, 3
		if !m.ready {
			m.viewport = viewport.New(msg.Width, msg.Height-headerH-footerH)
			m.ready = true
		} else {
			m.viewport.Width = msg.Width
			m.viewport.Height = msg.Height - headerH - footerH
		}
		m.viewport.SetContent(m.render())
		m.viewport.GotoBottom()

	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC:
			if m.sending && m.cancel != nil {
				m.cancel()
				m.status = "已取消"
				return m, nil
			}
			return m, tea.Quit
		case tea.KeyEnter:
			if cmd := m.submit(); cmd != nil {
				cmds = append(cmds, cmd)
			}
		}

	case messagesMsg:
		m.messages = msg
		m.bridge.MirrorLocal(msg)
		m.viewport.SetContent(m.render())
		m.viewport.GotoBottom()
		cmds = append(cmds, m.waitForUpdate())

	case cycleDoneMsg:
		m.sending = false
		m.cancel = nil
		if msg.err != nil && !errors.Is(msg.err, context.Canceled) {
			m.status = errStyle.Render(msg.err.Error())
		}

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spin, cmd = m.spin.Update(msg)
		cmds = append(cmds, cmd)
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	cmds = append(cmds, cmd)
	m.viewport, cmd = m.viewport.Update(msg)
	cmds = append(cmds, cmd)

	return m, tea.Batch(cmds...)
}

func (m *model) submit() tea.Cmd {
	text := strings.TrimSpace(m.input.Value())
	if text == "" {
		return nil
	}
	m.input.Reset()
	m.status = ""

	if strings.HasPrefix(text, "/") {
		return m.command(text)
	}
	if m.sending {
		m.status = "上一轮还没结束"
		return nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	m.sending = true
	m.cancel = cancel
	orch := m.orch
	return func() tea.Msg {
		defer cancel()
		return cycleDoneMsg{err: orch.Send(ctx, text)}
	}
}

func (m *model) command(text string) tea.Cmd {
	fields := strings.Fields(text)
	switch fields[0] {
	case "/quit":
		return tea.Quit
	case "/clear":
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := m.bridge.Clear(ctx); err != nil {
			m.status = errStyle.Render("清除失败: " + err.Error())
			return nil
		}
		m.session.Clear()
		m.orch.ResetHistory()
		m.status = "已清除聊天记录"
	case "/mute", "/unmute":
		if len(fields) < 2 {
			m.status = "用法: " + fields[0] + " 名字"
			return nil
		}
		p, ok := m.roster.PersonaByName(fields[1])
		if !ok {
			m.status = "没有这个成员: " + fields[1]
			return nil
		}
		if fields[0] == "/mute" {
			m.orch.Mute(p.ID)
			m.status = p.Name + " 已静音"
		} else {
			m.orch.Unmute(p.ID)
			m.status = p.Name + " 已取消静音"
		}
	default:
		m.status = "未知命令: " + fields[0]
	}
	return nil
}

func (m model) render() string {
	var b strings.Builder
	for _, msg := range m.messages {
		name := msg.Sender.Name
		if msg.Sender.Avatar != "" {
			name = msg.Sender.Avatar + " " + name
		}
		switch {
		case msg.Cancelled:
			b.WriteString(dimStyle.Render(name+"： "+msg.Content+"（已取消）") + "\n\n")
		case msg.IsError:
			b.WriteString(aiNameStyle.Render(name) + "\n" + errStyle.Render(msg.Content) + "\n\n")
		case msg.IsAI && msg.Content == "":
			b.WriteString(aiNameStyle.Render(name) + "\n" + dimStyle.Render("正在思考...") + "\n\n")
		case msg.IsAI:
			b.WriteString(aiNameStyle.Render(name) + "\n" + msg.Content + "\n\n")
		default:
			b.WriteString(userStyle.Render(name) + "\n" + msg.Content + "\n\n")
		}
	}
	return b.String()
}

func (m model) View() string {
	if !m.ready {
		return "载入中..."
	}
	header := titleStyle.Render(m.group.Name)
	if m.sending {
		header += "  " + m.spin.View() + dimStyle.Render("对方正在输入...")
	}
	footer := m.input.View()
	if m.status != "" {
		footer += "\n" + helpStyle.Render(m.status)
	} else {
		footer += "\n" + helpStyle.Render("Enter 发送  Ctrl+C 取消/退出")
	}
	return header + "\n" + m.viewport.View() + "\n" + footer
}

// rosterResponse mirrors GET /api/roster.
type rosterResponse struct {
	Personas []models.Persona `json:"personas"`
	Groups   []models.Group   `json:"groups"`
}

func main() {
	_ = godotenv.Load()

	cfg := config.Default()
	config.LoadEnvOverrides(cfg)

	server := flag.String("server", "http://localhost:8080", "chat server URL")
	groupID := flag.String("group", "default", "group id")
	userName := flag.String("user", cfg.Chat.UserName, "display name of the local user")
	cacheDefault := cfg.Chat.LocalDir
	if cacheDefault == "" {
		cacheDefault = defaultCacheDir()
	}
	cacheDir := flag.String("cache", cacheDefault, "local transcript cache dir")
	flag.Parse()

	logger.InitWithLevel(cfg.Logging.Level)

	httpc := client.New(*server)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var rr rosterResponse
	if err := httpc.GetJSON(ctx, "/api/roster", &rr); err != nil {
		fmt.Fprintf(os.Stderr, "fetch roster from %s: %v\n", *server, err)
		os.Exit(1)
	}
	roster := &config.Roster{Personas: rr.Personas, Groups: rr.Groups}
	group, ok := roster.Group(*groupID)
	if !ok {
		fmt.Fprintf(os.Stderr, "unknown group %q\n", *groupID)
		os.Exit(1)
	}

	name := *userName
	if name == "" {
		name = "我"
	}

	local, err := history.NewLocal(*cacheDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "open cache: %v\n", err)
		os.Exit(1)
	}
	bridge := history.NewBridge(httpc, local, roster, group.ID)

	session := chat.NewSession()
	updates := make(chan []models.Message, 16)
	// drop the oldest snapshot when the UI falls behind; only the
	// latest list matters
	session.OnChange(func(msgs []models.Message) {
		for {
			select {
			case updates <- msgs:
				return
			default:
				select {
				case <-updates:
				default:
				}
			}
		}
	})

	// the scheduler endpoint is non-streaming, so it gets a hard timeout
	schedc := client.New(*server, client.WithTimeout(30*time.Second))
	orch := chat.NewOrchestrator(session, httpc, chat.NewHTTPScheduler(schedc), roster, group, chat.Options{
		UserName:    name,
		TurnDelay:   time.Duration(cfg.Chat.TurnDelayMS) * time.Millisecond,
		ReadTimeout: time.Duration(cfg.Chat.ReadTimeoutMS) * time.Millisecond,
		OnCycleEnd:  bridge.Sync,
	})

	hydrated := bridge.Hydrate(ctx)
	if len(hydrated) > 0 {
		session.Replace(hydrated)
		orch.SeedHistory(models.Project(hydrated))
	}

	p := tea.NewProgram(
		newModel(session, orch, bridge, roster, group, updates),
		tea.WithAltScreen(),
	)
	if _, err := p.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "tui: %v\n", err)
		os.Exit(1)
	}
}

func defaultCacheDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".groupchat"
	}
	return filepath.Join(home, ".groupchat", "cache")
}
