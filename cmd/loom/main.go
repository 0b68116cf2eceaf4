// ABOUTME: Command line client for session-authenticated conversation backends
// ABOUTME: Streams turns over SSE, lists history, and manages the stored credential

package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"

	"github.com/loomchat/loom/internal/auth"
	"github.com/loomchat/loom/internal/client"
	"github.com/loomchat/loom/internal/config"
	"github.com/loomchat/loom/internal/store"
	"github.com/loomchat/loom/internal/stream"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	cfg, err := loadConfig()
	if err != nil {
		color.Red("Error: %v\n", err)
		os.Exit(1)
	}

	logger, closeLog := config.SetupLogger(cfg.Logging)
	defer closeLog()
	slog.SetDefault(logger)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cmd := os.Args[1]
	args := os.Args[2:]

	switch cmd {
	case "send":
		err = cmdSend(ctx, cfg, args)
	case "list":
		err = cmdList(ctx, cfg, args)
	case "show":
		err = cmdShow(ctx, cfg, args)
	case "models":
		err = cmdModels(ctx, cfg)
	case "login":
		err = cmdLogin(ctx, cfg)
	case "logout":
		err = cmdLogout(cfg)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", cmd)
		printUsage()
		os.Exit(1)
	}

	if err != nil {
		color.Red("Error: %v\n", err)
		os.Exit(1)
	}
}

func printUsage() {
	cyan := color.New(color.FgCyan)
	yellow := color.New(color.FgYellow)

	cyan.Println("loom - streaming conversation client")
	fmt.Println()
	fmt.Println("Usage: loom <command> [args]")
	fmt.Println()
	yellow.Println("Commands:")
	fmt.Println("  send [flags] <text>     Send a message and stream the reply")
	fmt.Println("    -conversation <id>      Continue an existing conversation")
	fmt.Println("    -model <slug>           Target model (default: backend picks)")
	fmt.Println("  list                    List recent conversations")
	fmt.Println("    -offset <n> -limit <n>  Paging window (default 0/20)")
	fmt.Println("  show <id>               Print a conversation with its messages")
	fmt.Println("  models                  List available models")
	fmt.Println("  login                   Force a fresh interactive login")
	fmt.Println("  logout                  Discard the stored credential")
	fmt.Println()
	fmt.Println("Config: ~/.loom/config.yaml, or set LOOM_CONFIG")
}

// loadConfig reads the config file named by LOOM_CONFIG or the default
// location, falling back to built-in defaults when no file exists.
func loadConfig() (*config.Config, error) {
	path := os.Getenv("LOOM_CONFIG")
	if path == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return config.Default(), nil
		}
		path = filepath.Join(home, ".loom", "config.yaml")
	}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return config.Default(), nil
	}
	return config.Load(path)
}

// newClient wires the credential store, repository, and backend client.
// The returned cleanup closes the repository.
func newClient(cfg *config.Config) (*client.Client, func(), error) {
	creds := auth.NewStore(
		newTerminalAuthenticator(cfg),
		cfg.Credential.Path,
		auth.WithLoginTimeout(cfg.Credential.LoginTimeout),
	)

	repo, err := store.NewSQLiteRepository(cfg.Cache.Path)
	if err != nil {
		return nil, nil, fmt.Errorf("opening conversation cache: %w", err)
	}

	c := client.New(cfg.Backend.BaseURL, creds,
		client.WithRepository(repo),
		client.WithHTTPClient(&http.Client{Timeout: cfg.Backend.Timeout}),
	)
	return c, func() { repo.Close() }, nil
}

func cmdSend(ctx context.Context, cfg *config.Config, args []string) error {
	fs := flag.NewFlagSet("send", flag.ExitOnError)
	conversationID := fs.String("conversation", "", "conversation id to continue")
	model := fs.String("model", "", "model slug")
	fs.Parse(args)

	text := strings.TrimSpace(strings.Join(fs.Args(), " "))
	if text == "" {
		return fmt.Errorf("send requires a message")
	}

	c, cleanup, err := newClient(cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	done := make(chan error, 1)
	d, err := c.SendConversation(ctx, client.SendParams{
		Text:           text,
		ConversationID: *conversationID,
		Model:          *model,
	}, stream.HandlerFuncs{
		Complete: func(detail *store.ConversationDetail) {
			printReply(detail)
			done <- nil
		},
		Error: func(err error) {
			done <- err
		},
	})
	if err != nil {
		return err
	}

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		d.Abandon()
		return fmt.Errorf("interrupted")
	}
}

// printReply prints the assistant's latest message plus the conversation id
// so the user can continue the thread.
func printReply(detail *store.ConversationDetail) {
	green := color.New(color.FgGreen)

	for i := len(detail.Messages) - 1; i >= 0; i-- {
		if detail.Messages[i].Role == store.RoleAssistant {
			green.Println(detail.Messages[i].Text())
			break
		}
	}
	fmt.Println()
	fmt.Printf("conversation: %s\n", detail.ID)
}

func cmdList(ctx context.Context, cfg *config.Config, args []string) error {
	fs := flag.NewFlagSet("list", flag.ExitOnError)
	offset := fs.Int("offset", 0, "paging offset")
	limit := fs.Int("limit", 20, "page size")
	fs.Parse(args)

	c, cleanup, err := newClient(cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	page, err := c.GetConversationHistory(ctx, *offset, *limit)
	if err != nil {
		return err
	}

	if len(page.Items) == 0 {
		fmt.Println("No conversations.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tCREATED\tTITLE")
	for _, s := range page.Items {
		title := s.Title
		if title == "" {
			title = "(untitled)"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\n", s.ID, s.CreatedAt.Local().Format("2006-01-02 15:04"), title)
	}
	w.Flush()

	fmt.Printf("\nShowing %d-%d of %d\n", *offset+1, *offset+len(page.Items), page.Total)
	return nil
}

func cmdShow(ctx context.Context, cfg *config.Config, args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("show requires a conversation id")
	}

	c, cleanup, err := newClient(cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	detail, err := c.GetConversationByID(ctx, args[0])
	if err != nil {
		return err
	}

	cyan := color.New(color.FgCyan)
	green := color.New(color.FgGreen)
	yellow := color.New(color.FgYellow)

	title := detail.Title
	if title == "" {
		title = "(untitled)"
	}
	cyan.Printf("%s\n", title)
	fmt.Printf("%s, %d messages\n\n", detail.CreatedAt.Local().Format("2006-01-02 15:04"), len(detail.Messages))

	for _, m := range detail.Messages {
		switch m.Role {
		case store.RoleUser:
			yellow.Println("you:")
		default:
			green.Printf("%s:\n", m.Role)
		}
		fmt.Println(m.Text())
		fmt.Println()
	}
	return nil
}

func cmdModels(ctx context.Context, cfg *config.Config) error {
	c, cleanup, err := newClient(cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	models, err := c.GetModels(ctx)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "SLUG\tMAX TOKENS\tTITLE")
	for _, m := range models {
		fmt.Fprintf(w, "%s\t%d\t%s\n", m.Slug, m.MaxTokens, m.Title)
	}
	return w.Flush()
}

func cmdLogin(ctx context.Context, cfg *config.Config) error {
	creds := auth.NewStore(
		newTerminalAuthenticator(cfg),
		cfg.Credential.Path,
		auth.WithLoginTimeout(cfg.Credential.LoginTimeout),
	)
	creds.Invalidate()

	if _, err := creds.Get(ctx); err != nil {
		return err
	}
	color.Green("Logged in.")
	return nil
}

func cmdLogout(cfg *config.Config) error {
	creds := auth.NewStore(nil, cfg.Credential.Path)
	creds.Invalidate()
	fmt.Println("Credential discarded.")
	return nil
}

// terminalAuthenticator implements the interactive login on a terminal. It
// points the user at the backend's login page and reads the pasted session
// token from stdin.
type terminalAuthenticator struct {
	loginURL         string
	keepLoginVisible bool
}

func newTerminalAuthenticator(cfg *config.Config) *terminalAuthenticator {
	return &terminalAuthenticator{
		loginURL:         strings.TrimSuffix(cfg.Backend.BaseURL, "/backend-api"),
		keepLoginVisible: cfg.Credential.KeepLoginVisible,
	}
}

func (a *terminalAuthenticator) PresentLogin(ctx context.Context) (*auth.Credential, error) {
	yellow := color.New(color.FgYellow)
	yellow.Println("Authentication required.")
	fmt.Printf("Sign in at %s and copy your session token.\n", a.loginURL)
	fmt.Print("Paste token (empty to cancel): ")

	line := make(chan string, 1)
	readErr := make(chan error, 1)
	go func() {
		r := bufio.NewReader(os.Stdin)
		s, err := r.ReadString('\n')
		if err != nil {
			readErr <- err
			return
		}
		line <- strings.TrimSpace(s)
	}()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case err := <-readErr:
		return nil, fmt.Errorf("reading token: %w", err)
	case token := <-line:
		if token == "" {
			return nil, auth.ErrLoginCancelled
		}
		if a.keepLoginVisible {
			fmt.Println("Keeping login page instructions above for debugging.")
		}
		return &auth.Credential{Token: token, IssuedAt: time.Now().UTC()}, nil
	}
}
