package main

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"net/netip"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/wippyai/wasync"
	"github.com/wippyai/wasync/errors"
	"github.com/wippyai/wasync/executor"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4")).
			Padding(0, 1)

	labelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#98FB98"))

	valueStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#87CEEB"))

	resultStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#90EE90"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF6B6B"))

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#666666"))
)

const (
	refreshInterval = 500 * time.Millisecond
	probeTimeout    = 2 * time.Second
	maxProbes       = 5
	maxLogLines     = 8
)

type monitorModel struct {
	err       error
	rt        *wasync.Runtime
	cancel    context.CancelFunc
	listening <-chan netip.AddrPort
	done      <-chan error
	probes    []probeMsg
	logs      []string
	input     textinput.Model
	stats     executor.Stats
	addr      netip.AddrPort
	resources int
	finished  bool
}

type listeningMsg netip.AddrPort

type serveDoneMsg struct {
	err error
}

type tickMsg time.Time

type probeMsg struct {
	err   error
	sent  string
	reply string
}

func newMonitorModel(rt *wasync.Runtime, cancel context.CancelFunc, listening <-chan netip.AddrPort, done <-chan error) *monitorModel {
	input := textinput.New()
	input.Placeholder = "line to echo"
	input.Prompt = "probe> "
	input.CharLimit = 256
	input.Focus()

	return &monitorModel{
		rt:        rt,
		cancel:    cancel,
		listening: listening,
		done:      done,
		input:     input,
	}
}

func (m *monitorModel) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, m.waitListening, m.waitDone, tick())
}

func (m *monitorModel) waitListening() tea.Msg {
	ap, ok := <-m.listening
	if !ok {
		return nil
	}
	return listeningMsg(ap)
}

func (m *monitorModel) waitDone() tea.Msg {
	return serveDoneMsg{err: <-m.done}
}

func tick() tea.Cmd {
	return tea.Tick(refreshInterval, func(t time.Time) tea.Msg { return tickMsg(t) })
}

// probe sends one line to the echo server from outside the runtime.
func probe(addr netip.AddrPort, line string) tea.Cmd {
	return func() tea.Msg {
		msg := probeMsg{sent: line}
		c, err := net.DialTimeout("tcp", addr.String(), probeTimeout)
		if err != nil {
			msg.err = err
			return msg
		}
		defer c.Close()
		_ = c.SetDeadline(time.Now().Add(probeTimeout))
		if _, err := c.Write([]byte(line + "\n")); err != nil {
			msg.err = err
			return msg
		}
		reply, err := bufio.NewReader(c).ReadString('\n')
		msg.reply = strings.TrimSuffix(reply, "\n")
		msg.err = err
		return msg
	}
}

func (m *monitorModel) refresh() {
	m.stats = m.rt.Executor().Stats()
	m.resources = m.rt.Host().Resources.Len()
	lines := strings.Split(strings.TrimRight(string(m.rt.Stderr()), "\n"), "\n")
	if len(lines) > maxLogLines {
		lines = lines[len(lines)-maxLogLines:]
	}
	if len(lines) == 1 && lines[0] == "" {
		lines = nil
	}
	m.logs = lines
}

func (m *monitorModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "esc":
			m.cancel()
			return m, tea.Quit

		case "enter":
			line := strings.TrimSpace(m.input.Value())
			if line == "" || !m.addr.IsValid() || m.finished {
				return m, nil
			}
			m.input.Reset()
			return m, probe(m.addr, line)
		}

	case listeningMsg:
		m.addr = netip.AddrPort(msg)
		m.refresh()
		return m, nil

	case serveDoneMsg:
		m.finished = true
		m.err = msg.err
		m.refresh()
		return m, nil

	case tickMsg:
		m.refresh()
		return m, tick()

	case probeMsg:
		m.probes = append(m.probes, msg)
		if len(m.probes) > maxProbes {
			m.probes = m.probes[len(m.probes)-maxProbes:]
		}
		return m, nil
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m *monitorModel) View() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("wasync monitor"))
	b.WriteString(" ")
	switch {
	case m.addr.IsValid():
		b.WriteString("echo server on " + m.addr.String())
	case !m.finished:
		b.WriteString("starting...")
	}
	b.WriteString("\n\n")

	row := func(label string, value any) {
		b.WriteString(labelStyle.Render(fmt.Sprintf("%-10s", label)))
		b.WriteString(valueStyle.Render(fmt.Sprint(value)))
		b.WriteString("\n")
	}
	row("tasks", fmt.Sprintf("%d spawned, %d completed, %d failed",
		m.stats.Spawned, m.stats.Completed, m.stats.Failed))
	row("running", m.stats.Running)
	row("waiting", m.stats.Waiting)
	row("polls", m.stats.Polls)
	row("resources", m.resources)
	b.WriteString("\n")

	for _, p := range m.probes {
		b.WriteString(p.sent + " -> ")
		if p.err != nil {
			b.WriteString(errorStyle.Render(fmt.Sprintf("Error: %v", p.err)))
		} else {
			b.WriteString(resultStyle.Render(p.reply))
		}
		b.WriteString("\n")
	}
	if len(m.probes) > 0 {
		b.WriteString("\n")
	}

	if len(m.logs) > 0 {
		b.WriteString(helpStyle.Render(strings.Join(m.logs, "\n")))
		b.WriteString("\n\n")
	}

	if m.finished {
		if m.err != nil {
			b.WriteString(errorStyle.Render(fmt.Sprintf("Error: %v", m.err)))
		} else {
			b.WriteString("server stopped")
		}
		b.WriteString("\n\n")
		b.WriteString(helpStyle.Render("esc quit"))
		return b.String()
	}

	b.WriteString(m.input.View())
	b.WriteString("\n\n")
	b.WriteString(helpStyle.Render("enter send • esc quit"))
	return b.String()
}

// runMonitor serves on addr in the background and shows the runtime's
// progress until the user quits or ctx ends.
func runMonitor(ctx context.Context, rt *wasync.Runtime, addr string) error {
	ap, err := netip.ParseAddrPort(addr)
	if err != nil {
		return errors.New(errors.PhaseNetwork, errors.KindInvalidInput).
			Op("serve").Cause(err).Build()
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	listening := make(chan netip.AddrPort, 1)
	done := make(chan error, 1)
	go func() {
		done <- rt.Run(ctx, func(ctx context.Context) error {
			return serve(ctx, rt, ap, func(_ context.Context, l netip.AddrPort) error {
				listening <- l
				return nil
			})
		})
		close(listening)
	}()

	m := newMonitorModel(rt, cancel, listening, done)
	p := tea.NewProgram(m, tea.WithAltScreen())
	go func() {
		<-ctx.Done()
		p.Quit()
	}()

	final, err := p.Run()
	cancel()
	if fm, ok := final.(*monitorModel); ok && fm.finished {
		return errors.Join(err, fm.err)
	}
	return errors.Join(err, <-done)
}
