package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"math/big"
	"os"
	"sort"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/betbot/godex/internal/book"
	"github.com/betbot/godex/internal/ledger"
	"github.com/betbot/godex/internal/session"
	"github.com/betbot/godex/pkg/config"
	"github.com/betbot/godex/pkg/etherconv"
	"github.com/betbot/godex/pkg/logger"
	"github.com/betbot/godex/pkg/wallet"
)

const (
	bookDepth     = 5
	eventFeedRows = 8
	// Balances and the book are re-pulled from the node on this cadence.
	refreshEvery = 10 * time.Second
)

var (
	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("15")).
			Background(lipgloss.Color("62")).
			Padding(0, 1)

	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("15"))

	askStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("1"))

	bidStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("2"))

	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("244"))

	borderStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("238")).
			Padding(0, 1)
)

type model struct {
	cfg    *config.Config
	symbol string

	sess      *session.Session
	connected bool
	err       error

	lastRefresh time.Time
	refreshErr  error

	ctx    context.Context
	cancel context.CancelFunc
}

type tickMsg time.Time

type connectedMsg struct {
	sess *session.Session
}

type refreshDoneMsg struct {
	at  time.Time
	err error
}

func initialModel(cfg *config.Config, symbol string) model {
	ctx, cancel := context.WithCancel(context.Background())
	return model{
		cfg:    cfg,
		symbol: symbol,
		ctx:    ctx,
		cancel: cancel,
	}
}

func (m model) Init() tea.Cmd {
	return tea.Batch(
		tickCmd(),
		connectCmd(m.ctx, m.cfg),
	)
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			if m.sess != nil {
				m.sess.Close()
			}
			m.cancel()
			return m, tea.Quit
		case "r":
			if m.connected {
				return m, refreshCmd(m.ctx, m.sess, m.symbol)
			}
		}

	case tickMsg:
		if m.connected && time.Since(m.lastRefresh) > refreshEvery {
			m.lastRefresh = time.Now()
			return m, tea.Batch(tickCmd(), refreshCmd(m.ctx, m.sess, m.symbol))
		}
		return m, tickCmd()

	case connectedMsg:
		m.sess = msg.sess
		m.connected = true
		m.lastRefresh = time.Now()
		return m, refreshCmd(m.ctx, m.sess, m.symbol)

	case refreshDoneMsg:
		m.lastRefresh = msg.at
		m.refreshErr = msg.err
		return m, nil

	case error:
		m.err = msg
		return m, nil
	}

	return m, nil
}

func (m model) View() string {
	if m.err != nil {
		return fmt.Sprintf("error: %v\n\npress q to quit", m.err)
	}
	if !m.connected {
		return "connecting to node...\n\npress q to quit"
	}

	var s strings.Builder

	account, _ := m.sess.Account()
	header := fmt.Sprintf("godex | %s | chain %d | %s",
		shortAddr(account.Hex()), m.cfg.Network.ChainID, m.symbol)
	if m.refreshErr != nil {
		header += " | refresh failed: " + m.refreshErr.Error()
	}
	s.WriteString(headerStyle.Render(header))
	s.WriteString("\n\n")

	balances := renderBalances(m.sess)
	orderBook := renderBook(m.sess.Books.Last(m.symbol))
	s.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, balances, "  ", orderBook))
	s.WriteString("\n\n")

	s.WriteString(renderEvents(m.sess))
	s.WriteString("\n")

	if last, ok := m.sess.LastStatus(); ok {
		s.WriteString(dimStyle.Render(fmt.Sprintf("[%s] %s", last.Time.Format("15:04:05"), last.Message)))
		s.WriteString("\n")
	}
	footer := "r refresh | q quit"
	if logFile := logger.CurrentLogFile(); logFile != "" {
		footer += " | logs: " + logFile
	}
	s.WriteString(dimStyle.Render(footer))

	return s.String()
}

func renderBalances(sess *session.Session) string {
	var s strings.Builder
	s.WriteString(titleStyle.Render("Balances"))
	s.WriteString("\n\n")

	snapshot, err := sess.BalanceSnapshot()
	if err != nil {
		s.WriteString("identity unavailable\n")
		return borderStyle.Render(s.String())
	}
	if len(snapshot) == 0 {
		s.WriteString("loading...\n")
		return borderStyle.Render(s.String())
	}

	assets := make([]string, 0, len(snapshot))
	for asset := range snapshot {
		assets = append(assets, asset)
	}
	sort.Strings(assets)

	for _, asset := range assets {
		s.WriteString(fmt.Sprintf("%-14s %s\n", assetLabel(asset), renderAmount(asset, snapshot[asset])))
	}
	return borderStyle.Render(s.String())
}

func assetLabel(asset string) string {
	if asset == session.NativeAsset {
		return "exchange ETH"
	}
	if strings.HasSuffix(asset, "@wallet") {
		return strings.TrimSuffix(asset, "@wallet") + " (wallet)"
	}
	return asset
}

func renderAmount(asset string, amount *big.Int) string {
	if asset == session.NativeAsset {
		return etherconv.FormatWei(amount)
	}
	return amount.String()
}

func renderBook(view *book.View) string {
	var s strings.Builder
	s.WriteString(titleStyle.Render("Order Book"))
	s.WriteString("\n\n")

	if view == nil {
		s.WriteString("loading...\n")
		return borderStyle.Render(s.String())
	}

	s.WriteString(askStyle.Render("Asks"))
	s.WriteString("\n")
	s.WriteString(renderLevels(view.Asks))
	s.WriteString("\n")
	s.WriteString(bidStyle.Render("Bids"))
	s.WriteString("\n")
	s.WriteString(renderLevels(view.Bids))
	s.WriteString("\n")
	s.WriteString(dimStyle.Render("fetched " + view.FetchedAt.Format("15:04:05")))
	s.WriteString("\n")

	return borderStyle.Render(s.String())
}

func renderLevels(levels []book.Level) string {
	if len(levels) == 0 {
		return "  --\n"
	}
	var s strings.Builder
	for i := 0; i < len(levels) && i < bookDepth; i++ {
		l := levels[i]
		s.WriteString(fmt.Sprintf("  %10s  %s\n", l.Volume.String(), etherconv.FormatWei(l.Price)))
	}
	return s.String()
}

func renderEvents(sess *session.Session) string {
	var s strings.Builder
	s.WriteString(titleStyle.Render("Events"))
	s.WriteString("\n\n")

	events := sess.RecentEvents()
	if len(events) == 0 {
		s.WriteString("no events yet\n")
		return borderStyle.Render(s.String())
	}

	start := 0
	if len(events) > eventFeedRows {
		start = len(events) - eventFeedRows
	}
	for _, e := range events[start:] {
		s.WriteString(fmt.Sprintf("[%s] %-8s %-24s block=%d\n",
			e.Time.Format("15:04:05"), e.Source, e.Event.Kind, e.Event.ID.Block))
	}
	return borderStyle.Render(s.String())
}

func shortAddr(hex string) string {
	if len(hex) > 12 {
		return hex[:8] + ".." + hex[len(hex)-4:]
	}
	return hex
}

// Commands

func tickCmd() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func connectCmd(ctx context.Context, cfg *config.Config) tea.Cmd {
	return func() tea.Msg {
		w, err := buildWallet(cfg)
		if err != nil {
			return err
		}

		sess, err := session.Dial(ctx, cfg, w)
		if err != nil {
			return fmt.Errorf("connect %s: %w", cfg.Network.RPCURL, err)
		}

		// Event feeds fill the session ring; the View reads it each frame.
		if _, err := sess.WatchExchangeEvents(ctx, func(ledger.Event) {}); err != nil {
			sess.Close()
			return err
		}
		if _, err := sess.WatchTokenEvents(ctx, func(ledger.Event) {}); err != nil {
			sess.Close()
			return err
		}

		return connectedMsg{sess: sess}
	}
}

func refreshCmd(ctx context.Context, sess *session.Session, symbol string) tea.Cmd {
	return func() tea.Msg {
		refreshCtx, cancel := context.WithTimeout(ctx, 8*time.Second)
		defer cancel()

		err := sess.RefreshBalances(refreshCtx, symbol)
		if _, bookErr := sess.OrderBook(refreshCtx, symbol); err == nil {
			err = bookErr
		}
		return refreshDoneMsg{at: time.Now(), err: err}
	}
}

func buildWallet(cfg *config.Config) (*wallet.Wallet, error) {
	switch {
	case cfg.Wallet.PrivateKey != "":
		return wallet.FromPrivateKey(cfg.Wallet.PrivateKey)
	case cfg.Wallet.Mnemonic != "":
		path := cfg.Wallet.DerivationPath
		if path == "" {
			path = wallet.DefaultDerivationPath
		}
		return wallet.FromMnemonic(cfg.Wallet.Mnemonic, path)
	default:
		return nil, fmt.Errorf("no signing identity configured, set PRIVATE_KEY or MNEMONIC")
	}
}

func main() {
	var (
		configPath = flag.String("config", "godex.yaml", "config file path")
		symbol     = flag.String("symbol", "FIXED", "token symbol")
	)
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	// Terminal belongs to the TUI; logs go to file only.
	cfg.Log.OutputFile = "logs/godex-tui.log"
	if err := logger.Init(logger.Config{
		Level:      cfg.Log.Level,
		OutputFile: cfg.Log.OutputFile,
		MaxSize:    cfg.Log.MaxSize,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAge:     cfg.Log.MaxAge,
		Compress:   cfg.Log.Compress,
		FileOnly:   true,
	}); err != nil {
		log.Fatalf("init logger: %v", err)
	}

	p := tea.NewProgram(initialModel(cfg, *symbol), tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
