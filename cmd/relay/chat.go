package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/tokmz/relay/pkg/config"
	"github.com/tokmz/relay/pkg/logger"
	"github.com/tokmz/relay/pkg/metrics"
	"github.com/tokmz/relay/pkg/protocol"
	"github.com/tokmz/relay/pkg/wsclient"
)

const chatHelp = `commands:
  /name <new name>  change display name
  /reconnect        reconnect now (also resumes after giving up)
  /status           connection status and reconnect counters
  /quit             leave
`

func chatCmd(configFile *string) *cobra.Command {
	var (
		url  string
		name string
	)

	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Join a relay from the terminal",
		Long: `Join a relay from the terminal.

Lines typed are sent as chat messages. The client reconnects with
exponential backoff (client.base_delay, client.max_delay) and gives up
after client.max_attempts failures until /reconnect is typed.

Examples:
  relay chat
  relay chat --url=ws://relay.local:8080/ws --name=alice`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runChat(cmd.Context(), *configFile, url, name, os.Stdin, cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringVarP(&url, "url", "u", "", "Relay WebSocket URL (default from client.url)")
	cmd.Flags().StringVarP(&name, "name", "n", "", "Display name to take after joining")

	return cmd
}

func runChat(ctx context.Context, configFile, url, name string, in io.Reader, out io.Writer) error {
	_, s, err := config.LoadSettings(configFile)
	if err != nil {
		return err
	}
	if url != "" {
		s.Client.URL = url
	}

	log, err := chatLogger(s.Log)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	t := newTerminal(out, name)
	t.ctrl = wsclient.New(s.Client.URL,
		wsclient.WithPolicy(s.Client.Policy()),
		wsclient.WithLogger(log),
		wsclient.WithMetrics(metrics.NewClient(metrics.WithRegistry(t.reg))),
		wsclient.OnState(t.onState),
		wsclient.OnEvent(t.onEvent),
	)
	defer t.ctrl.Close()

	t.printf("connecting to %s\n%s", s.Client.URL, chatHelp)
	if err := t.ctrl.Start(); err != nil {
		return err
	}

	lines := make(chan string)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(in)
		for sc.Scan() {
			lines <- sc.Text()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok || t.handleLine(line) {
				return nil
			}
		}
	}
}

// chatLogger 终端占用标准输出，只在配置了 log.file 时记录日志
func chatLogger(s config.LogSettings) (logger.Logger, error) {
	if s.File == "" {
		return logger.NewNop(), nil
	}
	level, err := logger.ParseLevel(s.Level)
	if err != nil {
		return nil, err
	}
	return logger.NewWithOptions(
		logger.WithLevel(level),
		logger.WithFormat(logger.Format(s.Format)),
		logger.WithRotateOutput(&logger.RotateConfig{Filename: s.File}),
	)
}

// terminal 把控制器的状态与事件渲染到终端
type terminal struct {
	ctrl *wsclient.Controller
	reg  *prometheus.Registry

	mu   sync.Mutex
	out  io.Writer
	want string // 加入后要使用的显示名
	self string // 当前会话 ID
	name string // 当前显示名
}

func newTerminal(out io.Writer, want string) *terminal {
	return &terminal{
		out:  out,
		want: strings.TrimSpace(want),
		reg:  prometheus.NewRegistry(),
	}
}

func (t *terminal) printf(format string, args ...any) {
	t.mu.Lock()
	defer t.mu.Unlock()
	fmt.Fprintf(t.out, format, args...)
}

func (t *terminal) onState(state wsclient.State, reason error) {
	switch {
	case state == wsclient.StateClosed && t.ctrl.GaveUp():
		t.printf("* %s: gave up reconnecting (%v), type /reconnect to try again\n", state.Status(), reason)
	case reason != nil && !errors.Is(reason, wsclient.ErrClosedByUser):
		t.printf("* %s (%v)\n", state.Status(), reason)
	default:
		t.printf("* %s\n", state.Status())
	}
}

func (t *terminal) onEvent(evt protocol.Event) {
	t.mu.Lock()
	switch evt.Type {
	case protocol.TypeWelcome:
		t.self, t.name = evt.SessionID, evt.Name
	case protocol.TypeRenamed:
		if evt.SessionID == t.self {
			t.name = evt.NewName
		}
	}
	self := t.self
	want := t.want
	t.mu.Unlock()

	if line := render(evt, self); line != "" {
		t.printf("%s\n", line)
	}

	// 每次重新加入都会分配新身份，需要重新改名
	if evt.Type == protocol.TypeWelcome && want != "" && want != evt.Name {
		if err := t.ctrl.Rename(want); err != nil {
			t.printf("* rename failed: %v\n", err)
		}
	}
}

// handleLine 处理一行输入，返回 true 表示退出
func (t *terminal) handleLine(line string) bool {
	line = strings.TrimSpace(line)
	if line == "" {
		return false
	}

	cmd, arg, _ := strings.Cut(line, " ")
	switch cmd {
	case "/quit", "/exit":
		t.ctrl.Disconnect()
		return true
	case "/reconnect":
		if err := t.ctrl.Reconnect(); err != nil {
			t.printf("* reconnect failed: %v\n", err)
		}
	case "/name":
		name := strings.TrimSpace(arg)
		t.mu.Lock()
		t.want = name
		t.mu.Unlock()
		if err := t.ctrl.Rename(name); err != nil {
			t.printf("* rename failed: %v\n", err)
		}
	case "/status":
		t.printf("* %s, attempt %d, gave up: %v\n%s", t.ctrl.Status(), t.ctrl.Attempt(), t.ctrl.GaveUp(), t.counters())
	case "/help":
		t.printf("%s", chatHelp)
	default:
		if err := t.ctrl.Chat(line); err != nil {
			t.printf("* not sent: %v\n", err)
			return false
		}
		t.mu.Lock()
		name := t.name
		t.mu.Unlock()
		t.printf("%s (you): %s\n", name, line)
	}
	return false
}

// counters 客户端指标的计数器值
func (t *terminal) counters() string {
	families, err := t.reg.Gather()
	if err != nil {
		return ""
	}

	var lines []string
	for _, mf := range families {
		for _, m := range mf.GetMetric() {
			if c := m.GetCounter(); c != nil {
				lines = append(lines, fmt.Sprintf("  %s %g\n", mf.GetName(), c.GetValue()))
			}
		}
	}
	sort.Strings(lines)
	return strings.Join(lines, "")
}

// render 单个事件的终端文本，不需要展示的事件返回空串
func render(evt protocol.Event, self string) string {
	switch evt.Type {
	case protocol.TypeWelcome:
		return fmt.Sprintf("* joined as %s (%d online)", evt.Name, evt.OnlineCount())
	case protocol.TypeJoined:
		return fmt.Sprintf("* %s joined (%d online)", evt.Name, evt.OnlineCount())
	case protocol.TypeLeft:
		return fmt.Sprintf("* %s left (%d online)", evt.Name, evt.OnlineCount())
	case protocol.TypeRenamed:
		if evt.SessionID == self {
			return fmt.Sprintf("* you are now %s", evt.NewName)
		}
		return fmt.Sprintf("* %s is now %s", evt.OldName, evt.NewName)
	case protocol.TypeChat:
		return fmt.Sprintf("[%s] %s: %s", clock(evt.Timestamp), evt.Name, evt.Text)
	default:
		return ""
	}
}

// clock 取 RFC3339 时间戳中的时分秒
func clock(ts string) string {
	if _, rest, ok := strings.Cut(ts, "T"); ok && len(rest) >= 8 {
		return rest[:8]
	}
	return ts
}
