// ABOUTME: Terminal chat client for the skillforge marketplace
// ABOUTME: Wires a session from config and credential, then runs a readline-style loop

package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/joho/godotenv"

	"github.com/skillforge/skillforge-client/internal/auth"
	"github.com/skillforge/skillforge-client/internal/config"
	"github.com/skillforge/skillforge-client/internal/messages"
	"github.com/skillforge/skillforge-client/internal/model"
	"github.com/skillforge/skillforge-client/internal/session"
)

var version = "dev"

const banner = `
   ███ █ █ █ █   █   ███ ███ ███ ███ ███
   █   █ █ █ █   █   █   █ █ █ █ █   █
   ███ ██  █ █   █   ██  █ █ ██  █ █ ██
     █ █ █ █ █   █   █   █ █ █ █ █ █ █
   ███ █ █ █ ███ ███ █   ███ █ █ ███ ███  chat
`

// getConfigPath returns the path to the client config file.
// Priority: SKILLFORGE_CONFIG env var > XDG_CONFIG_HOME/skillforge/chat.yaml > ~/.config/skillforge/chat.yaml
func getConfigPath() string {
	if envPath := os.Getenv("SKILLFORGE_CONFIG"); envPath != "" {
		return envPath
	}

	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "chat.yaml" // fallback
		}
		configDir = filepath.Join(homeDir, ".config")
	}

	return filepath.Join(configDir, "skillforge", "chat.yaml")
}

// getToken returns the bearer credential from SKILLFORGE_TOKEN or
// ~/.config/skillforge/token.
func getToken() string {
	if token := os.Getenv("SKILLFORGE_TOKEN"); token != "" {
		return token
	}

	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return ""
		}
		configDir = filepath.Join(homeDir, ".config")
	}

	tokenPath := filepath.Join(configDir, "skillforge", "token")
	data, err := os.ReadFile(tokenPath)
	if err != nil {
		return ""
	}

	return strings.TrimSpace(string(data))
}

func main() {
	// Load .env if present; absence is fine.
	_ = godotenv.Load()

	configPath := flag.String("config", getConfigPath(), "Path to config file")
	flag.Parse()

	cyan := color.New(color.FgCyan)
	gray := color.New(color.FgHiBlack)
	cyan.Print(banner)
	gray.Printf("    version: %s\n\n", version)

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: loading config: %v\n", err)
		os.Exit(1)
	}

	logger := setupLogger(cfg.Logging)

	token := getToken()
	if token == "" {
		fmt.Fprintln(os.Stderr, "Error: no credential (set SKILLFORGE_TOKEN or write ~/.config/skillforge/token)")
		os.Exit(1)
	}
	cred, err := auth.ParseCredential(token)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	s, err := session.New(cfg, cred, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer s.Close()

	if err := s.Start(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	green := color.New(color.FgGreen)
	green.Print("    ▶ ")
	fmt.Printf("Signed in: %s\n", cred.DisplayName())
	green.Print("    ▶ ")
	if s.Channel.Connected() {
		fmt.Println("Channel:   connected")
	} else {
		fmt.Println("Channel:   offline (REST only)")
	}
	green.Print("    ▶ ")
	fmt.Printf("Unread:    %d notifications\n\n", s.Notifications.Unread())
	fmt.Println("Type a message and press Enter. /help for commands. Ctrl+C to quit.")
	fmt.Println()

	if err := run(ctx, s); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("\nGoodbye!")
}

// ui renders store changes as they happen, between prompts.
type ui struct {
	s *session.Session

	mu       sync.Mutex
	suppress bool                           // /open renders the history itself
	rendered int                            // timeline entries already printed
	statuses map[string]model.MessageStatus // TempID -> last printed status
	typists  string
}

func newUI(s *session.Session) *ui {
	return &ui{s: s, statuses: make(map[string]model.MessageStatus)}
}

// onMessages prints timeline entries added since the last render, plus
// status flips of already-printed optimistic entries (the failed marker).
func (u *ui) onMessages() {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.suppress {
		return
	}

	msgs := u.s.Messages.Messages()
	if len(msgs) < u.rendered {
		// Timeline was reset by a conversation switch.
		u.rendered = 0
		u.statuses = make(map[string]model.MessageStatus)
	}

	for _, msg := range msgs[:u.rendered] {
		if msg.TempID == "" {
			continue
		}
		if prev, ok := u.statuses[msg.TempID]; ok && prev != msg.Status {
			u.statuses[msg.TempID] = msg.Status
			if msg.Status == model.StatusFailed {
				color.Red("  ✗ failed to send: %s", msg.Text)
			}
		}
	}

	for _, msg := range msgs[u.rendered:] {
		printMessage(msg, u.s.UserID())
		if msg.TempID != "" {
			u.statuses[msg.TempID] = msg.Status
		}
	}
	u.rendered = len(msgs)

	u.promptIfIntentLocked(msgs)
}

// promptIfIntentLocked surfaces the booking prompt when the timeline tail
// looks like session planning and it has not been dismissed.
func (u *ui) promptIfIntentLocked(msgs []model.Message) {
	convID := u.s.Messages.ActiveConversation()
	if convID == "" {
		return
	}
	if u.s.Intent.ShouldPrompt(convID, msgs) {
		color.Yellow("  ★ Planning a session? Book it from your sessions page. (/dismiss to hide)")
	}
}

// onTyping reprints the typing line when the set of typists changes.
func (u *ui) onTyping() {
	convID := u.s.Messages.ActiveConversation()
	if convID == "" {
		return
	}
	line := strings.Join(u.s.Typing.Typists(convID), ", ")

	u.mu.Lock()
	defer u.mu.Unlock()
	if line == u.typists {
		return
	}
	u.typists = line
	if line != "" {
		color.New(color.FgHiBlack, color.Italic).Printf("  %s is typing…\n", line)
	}
}

func printMessage(msg model.Message, selfID string) {
	ts := msg.CreatedAt.Local().Format("15:04")
	switch {
	case msg.SenderID == selfID && msg.Status == model.StatusPending:
		color.New(color.FgHiBlack).Printf("  %s you: %s ⋯\n", ts, msg.Text)
	case msg.SenderID == selfID:
		fmt.Printf("  %s you: %s\n", ts, msg.Text)
	default:
		name := msg.SenderName
		if name == "" {
			name = msg.SenderID
		}
		fmt.Printf("  %s %s: %s\n", ts, color.CyanString(name), msg.Text)
	}
}

func run(ctx context.Context, s *session.Session) error {
	u := newUI(s)
	defer s.Messages.OnChange(u.onMessages)()
	defer s.Typing.OnChange(u.onTyping)()
	defer s.Notifications.OnChange(func() {
		color.Yellow("  ● %d unread notifications", s.Notifications.Unread())
	})()

	scanner := bufio.NewScanner(os.Stdin)

	for {
		if active := s.Conversations.ActiveID(); active != "" {
			if conv, ok := s.Conversations.Get(active); ok {
				fmt.Printf("[%s]> ", conv.ParticipantName)
			} else {
				fmt.Printf("[%s]> ", active)
			}
		} else {
			fmt.Print("> ")
		}

		inputCh := make(chan string, 1)
		errCh := make(chan error, 1)

		go func() {
			if scanner.Scan() {
				inputCh <- scanner.Text()
			} else {
				if err := scanner.Err(); err != nil {
					errCh <- err
				} else {
					errCh <- io.EOF
				}
			}
		}()

		var input string
		select {
		case <-ctx.Done():
			return nil
		case err := <-errCh:
			if err == io.EOF {
				return nil
			}
			return fmt.Errorf("reading input: %w", err)
		case input = <-inputCh:
		}

		input = strings.TrimSpace(input)
		if input == "" {
			continue
		}

		if input == "/quit" || input == "/exit" || input == "/q" {
			return nil
		}

		if err := handleInput(ctx, s, u, input); err != nil {
			fmt.Printf("[error] %v\n", err)
		}
	}
}

func handleInput(ctx context.Context, s *session.Session, u *ui, input string) error {
	switch {
	case input == "/help":
		printHelp()
		return nil

	case input == "/conversations":
		return listConversations(s)

	case strings.HasPrefix(input, "/open"):
		arg := strings.TrimSpace(strings.TrimPrefix(input, "/open"))
		if arg == "" {
			return fmt.Errorf("usage: /open <conversation-id or name>")
		}
		return openConversation(ctx, s, u, arg)

	case input == "/notifications":
		return listNotifications(s)

	case strings.HasPrefix(input, "/read "):
		id := strings.TrimSpace(strings.TrimPrefix(input, "/read "))
		return s.Notifications.MarkRead(ctx, id)

	case input == "/read-all":
		return s.Notifications.MarkAllRead(ctx)

	case input == "/dismiss":
		convID := s.Messages.ActiveConversation()
		if convID == "" {
			return fmt.Errorf("no open conversation")
		}
		s.Intent.Dismiss(convID, s.Messages.Messages())
		return nil

	case strings.HasPrefix(input, "/"):
		return fmt.Errorf("unknown command %q, try /help", strings.Fields(input)[0])

	default:
		convID := s.Conversations.ActiveID()
		if convID == "" {
			return fmt.Errorf("no open conversation, use /open first")
		}
		s.Typing.StopLocal()
		s.Messages.SendOptimistic(ctx, convID, input)
		return nil
	}
}

// openConversation resolves the argument as an ID or a participant name,
// selects it and prints the history grouped by day.
func openConversation(ctx context.Context, s *session.Session, u *ui, arg string) error {
	convID := arg
	if _, ok := s.Conversations.Get(convID); !ok {
		for _, conv := range s.Conversations.Conversations() {
			if strings.EqualFold(conv.ParticipantName, arg) {
				convID = conv.ID
				break
			}
		}
	}
	if _, ok := s.Conversations.Get(convID); !ok {
		return fmt.Errorf("no conversation %q", arg)
	}

	// The history render below replaces the incremental one the store
	// change notifications would produce.
	u.mu.Lock()
	u.suppress = true
	u.mu.Unlock()

	if err := s.Select(ctx, convID); err != nil {
		fmt.Printf("[warn] history unavailable: %v\n", err)
	}

	u.mu.Lock()
	defer u.mu.Unlock()
	msgs := s.Messages.Messages()
	for _, group := range messages.GroupByDate(msgs, time.Local) {
		color.New(color.FgHiBlack).Printf("  ── %s ──\n", group.Date.Format("Mon, Jan 2"))
		for _, msg := range group.Messages {
			printMessage(msg, s.UserID())
		}
	}
	u.rendered = len(msgs)
	u.statuses = make(map[string]model.MessageStatus)
	for _, msg := range msgs {
		if msg.TempID != "" {
			u.statuses[msg.TempID] = msg.Status
		}
	}
	u.suppress = false
	u.promptIfIntentLocked(msgs)
	return nil
}

func listConversations(s *session.Session) error {
	convs := s.Conversations.Conversations()
	if len(convs) == 0 {
		fmt.Println("No conversations yet")
		return nil
	}
	for _, conv := range convs {
		marker := " "
		if conv.Presence == model.PresenceOnline {
			marker = color.GreenString("●")
		}
		line := fmt.Sprintf("  %s %-20s %s", marker, conv.ParticipantName, conv.LastMessageText)
		if conv.UnreadCount > 0 {
			line += color.YellowString("  (%d unread)", conv.UnreadCount)
		}
		fmt.Printf("%s  %s\n", line, color.HiBlackString(conv.ID))
	}
	return nil
}

func listNotifications(s *session.Session) error {
	ns := s.Notifications.Notifications()
	if len(ns) == 0 {
		fmt.Println("No notifications")
		return nil
	}
	for _, n := range ns {
		marker := " "
		if !n.Read {
			marker = color.YellowString("●")
		}
		fmt.Printf("  %s %s — %s  %s\n", marker, n.Title, n.Message, color.HiBlackString(n.ID))
	}
	return nil
}

func printHelp() {
	fmt.Println("Commands:")
	fmt.Println("  /conversations   List conversations with unread counts and presence")
	fmt.Println("  /open <id|name>  Open a conversation and load its history")
	fmt.Println("  /notifications   List notifications")
	fmt.Println("  /read <id>       Mark one notification read")
	fmt.Println("  /read-all        Mark everything read")
	fmt.Println("  /dismiss         Hide the session booking prompt for this conversation")
	fmt.Println("  /help            Show this help")
	fmt.Println("  /quit            Exit")
	fmt.Println("Anything else is sent as a message to the open conversation.")
}

func setupLogger(cfg config.LoggingConfig) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelWarn
	}

	opts := &slog.HandlerOptions{
		Level: level,
	}

	if cfg.Format == "json" {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(&colorHandler{level: level})
}

// colorHandler provides colorized log output with thread-safe writes.
// Logs go to stderr so they never garble the prompt line.
type colorHandler struct {
	mu     sync.Mutex
	level  slog.Level
	attrs  []slog.Attr
	groups []string
}

func (h *colorHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level
}

func (h *colorHandler) Handle(_ context.Context, r slog.Record) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	var buf strings.Builder

	buf.WriteString(color.HiBlackString(r.Time.Format("15:04:05") + " "))

	switch r.Level {
	case slog.LevelDebug:
		buf.WriteString(color.MagentaString("DBG "))
	case slog.LevelInfo:
		buf.WriteString(color.CyanString("INF "))
	case slog.LevelWarn:
		buf.WriteString(color.YellowString("WRN "))
	case slog.LevelError:
		buf.WriteString(color.New(color.FgRed, color.Bold).Sprint("ERR "))
	default:
		buf.WriteString("??? ")
	}

	buf.WriteString(r.Message)

	for _, a := range h.attrs {
		buf.WriteString(color.HiBlackString(" " + a.Key + "="))
		buf.WriteString(a.Value.String())
	}
	r.Attrs(func(a slog.Attr) bool {
		buf.WriteString(color.HiBlackString(" " + a.Key + "="))
		buf.WriteString(a.Value.String())
		return true
	})

	buf.WriteString("\n")
	fmt.Fprint(os.Stderr, buf.String())
	return nil
}

func (h *colorHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	newAttrs := make([]slog.Attr, len(h.attrs), len(h.attrs)+len(attrs))
	copy(newAttrs, h.attrs)
	newAttrs = append(newAttrs, attrs...)
	return &colorHandler{
		level:  h.level,
		attrs:  newAttrs,
		groups: h.groups,
	}
}

func (h *colorHandler) WithGroup(name string) slog.Handler {
	newGroups := make([]string, len(h.groups), len(h.groups)+1)
	copy(newGroups, h.groups)
	newGroups = append(newGroups, name)
	return &colorHandler{
		level:  h.level,
		attrs:  h.attrs,
		groups: newGroups,
	}
}
