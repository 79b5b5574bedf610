// cluster-tui is a terminal dashboard over the volcluster HTTP API: one row
// per bot, refreshed on a timer.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/joho/godotenv"

	"github.com/volbot/volcluster/internal/domain"
)

var (
	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("15")).
			Background(lipgloss.Color("62")).
			Padding(0, 1)

	activeStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("2"))
	expiredStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("1"))
	dimStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))

	borderStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("238")).
			Padding(0, 1)
)

type botsMsg struct {
	bots []domain.Bot
	err  error
}

type tickMsg time.Time

type model struct {
	baseURL  string
	interval time.Duration

	bots      []domain.Bot
	err       error
	refreshed time.Time
}

func (m model) Init() tea.Cmd {
	return tea.Batch(fetchBots(m.baseURL), tick(m.interval))
}

func tick(d time.Duration) tea.Cmd {
	return tea.Tick(d, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func fetchBots(baseURL string) tea.Cmd {
	return func() tea.Msg {
		client := &http.Client{Timeout: 5 * time.Second}
		resp, err := client.Get(baseURL + "/api/volume-bots")
		if err != nil {
			return botsMsg{err: err}
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return botsMsg{err: fmt.Errorf("server returned %s", resp.Status)}
		}
		var out struct {
			Bots []domain.Bot `json:"bots"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
			return botsMsg{err: err}
		}
		return botsMsg{bots: out.Bots}
	}
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		case "r":
			return m, fetchBots(m.baseURL)
		}
	case tickMsg:
		return m, tea.Batch(fetchBots(m.baseURL), tick(m.interval))
	case botsMsg:
		m.err = msg.err
		if msg.err == nil {
			m.bots = msg.bots
			m.refreshed = time.Now()
		}
	}
	return m, nil
}

func (m model) View() string {
	var b strings.Builder
	b.WriteString(headerStyle.Render("VOLUME BOT CLUSTER"))
	b.WriteString("\n\n")

	if m.err != nil {
		b.WriteString(expiredStyle.Render(fmt.Sprintf("fetch error: %v", m.err)))
		b.WriteString("\n\n")
	}

	if len(m.bots) == 0 {
		b.WriteString(dimStyle.Render("no bots"))
		b.WriteString("\n")
	} else {
		rows := []string{fmt.Sprintf("%-38s %-6s %-12s %9s %10s %8s %-19s",
			"ID", "PLAN", "STATUS", "VOLUME", "PROFIT", "WALLETS", "LAST TRADE")}
		for _, bot := range m.bots {
			status := string(bot.Status)
			switch bot.Status {
			case domain.BotStatusActive:
				status = activeStyle.Render(status)
			case domain.BotStatusExpired, domain.BotStatusFailed:
				status = expiredStyle.Render(status)
			}
			lastTrade := "-"
			if bot.LastTradeAt != nil {
				lastTrade = bot.LastTradeAt.Local().Format("2006-01-02 15:04:05")
			}
			rows = append(rows, fmt.Sprintf("%-38s %-6s %-12s %9.2f %10.6f %8d %-19s",
				bot.ID, bot.PlanID, status, bot.TotalVolumeGenerated, bot.Profit, bot.WalletCount, lastTrade))
		}
		b.WriteString(borderStyle.Render(strings.Join(rows, "\n")))
		b.WriteString("\n")
	}

	footer := fmt.Sprintf("refreshed %s  |  r refresh  q quit", m.refreshed.Format("15:04:05"))
	if m.refreshed.IsZero() {
		footer = "loading...  |  q quit"
	}
	b.WriteString("\n")
	b.WriteString(dimStyle.Render(footer))
	b.WriteString("\n")
	return b.String()
}

func main() {
	_ = godotenv.Load()

	getenv := func(key, def string) string {
		if v := os.Getenv(key); v != "" {
			return v
		}
		return def
	}

	var (
		baseURL  = flag.String("server", getenv("VOLCLUSTER_SERVER", "http://127.0.0.1:8080"), "volcluster server base URL")
		interval = flag.Duration("interval", 2*time.Second, "refresh interval")
	)
	flag.Parse()

	m := model{
		baseURL:  strings.TrimSuffix(*baseURL, "/"),
		interval: *interval,
	}
	if _, err := tea.NewProgram(m, tea.WithAltScreen()).Run(); err != nil {
		fmt.Fprintf(os.Stderr, "tui error: %v\n", err)
		os.Exit(1)
	}
}
