package commands

import (
	"bufio"
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/spf13/cobra"

	"github.com/valuin/radikari-chat-widget/internal/chat"
	"github.com/valuin/radikari-chat-widget/internal/config"
	"github.com/valuin/radikari-chat-widget/internal/logging"
	"github.com/valuin/radikari-chat-widget/internal/store"
)

var (
	chatTenant    string
	chatBaseURL   string
	chatMarkdown  bool
	chatVerbose   bool
	chatNoColor   bool
	chatEphemeral bool
	chatWatch     bool
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Start an interactive chat session",
	Long: `Chat opens a streaming conversation with the configured tenant's
assistant. Thread state persists across runs, so the conversation picks
up where it left off until the server expires the thread.`,
	RunE: runChat,
}

func init() {
	chatCmd.Flags().StringVar(&chatTenant, "tenant", "", "Tenant id (overrides config)")
	chatCmd.Flags().StringVar(&chatBaseURL, "base-url", "", "API base URL (overrides config)")
	chatCmd.Flags().BoolVar(&chatMarkdown, "markdown", false, "Render completed replies as markdown")
	chatCmd.Flags().BoolVar(&chatVerbose, "verbose", false, "Print thread lifecycle notices")
	chatCmd.Flags().BoolVar(&chatNoColor, "no-color", false, "Disable colored output")
	chatCmd.Flags().BoolVar(&chatEphemeral, "ephemeral", false, "Keep thread state in memory only")
	chatCmd.Flags().BoolVar(&chatWatch, "watch", false, "Reload config files on change")
}

func runChat(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if chatTenant != "" {
		cfg.TenantID = chatTenant
	}
	if chatBaseURL != "" {
		cfg.BaseURL = chatBaseURL
	}
	initLogging(cmd, cfg)

	if cfg.TenantID == "" || cfg.BaseURL == "" {
		return fmt.Errorf("tenant id and base URL are required; set them in a config file, RADIKARI_TENANT/RADIKARI_BASE_URL, or via --tenant/--base-url")
	}

	if err := preflight(cmd.Context(), cfg.BaseURL); err != nil {
		return fmt.Errorf("cannot reach %s: %w", cfg.BaseURL, err)
	}

	st := buildStore(cfg)
	ctrl := chat.New(chat.Config{
		TenantID: cfg.TenantID,
		BaseURL:  cfg.BaseURL,
		Lang:     cfg.Lang,
		Inline:   cfg.IsInline(),
	}, chat.WithStore(st))
	defer ctrl.Close()

	renderer := NewRenderer(chatMarkdown, chatVerbose, chatNoColor)
	detach := renderer.Attach(ctrl.Bus())
	defer detach()

	ctx, stopWatch := context.WithCancel(cmd.Context())
	defer stopWatch()
	if chatWatch {
		go watchConfig(ctx, ctrl, renderer)
	}

	// Ctrl-C aborts the in-flight reply instead of the whole session.
	interrupts := make(chan os.Signal, 1)
	signal.Notify(interrupts, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(interrupts)
	go func() {
		for range interrupts {
			ctrl.Cancel()
			renderer.Notice("\ninterrupted, partial reply kept (/exit to quit)")
		}
	}()

	return runRepl(ctx, ctrl, st, renderer)
}

// buildStore picks the thread store: the state file from config unless
// the session is ephemeral.
func buildStore(cfg *config.Config) store.Store {
	if chatEphemeral {
		return store.NewMemory()
	}
	path := cfg.StateFile
	if path == "" {
		path = config.DefaultStateFile()
	}
	return store.NewFile(path)
}

// preflight probes the API host with exponential backoff so the REPL
// does not start against a dead endpoint. Any HTTP response counts as
// reachable; only connection failures retry.
func preflight(ctx context.Context, baseURL string) error {
	log := logging.Component("preflight")

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = 200 * time.Millisecond
	policy.MaxElapsedTime = 10 * time.Second

	return backoff.Retry(func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL, nil)
		if err != nil {
			return backoff.Permanent(err)
		}
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			log.Debug().Err(err).Msg("probe failed, retrying")
			return err
		}
		resp.Body.Close()
		return nil
	}, backoff.WithContext(policy, ctx))
}

// watchConfig re-resolves configuration on file changes and pushes it
// into the controller. The update applies to future submissions only.
func watchConfig(ctx context.Context, ctrl *chat.Controller, renderer *Renderer) {
	cwd, err := os.Getwd()
	if err != nil {
		return
	}
	_ = config.Watch(ctx, cwd, func(cfg *config.Config) {
		if chatTenant != "" {
			cfg.TenantID = chatTenant
		}
		if chatBaseURL != "" {
			cfg.BaseURL = chatBaseURL
		}
		ctrl.UpdateConfig(chat.Config{
			TenantID: cfg.TenantID,
			BaseURL:  cfg.BaseURL,
			Lang:     cfg.Lang,
			Inline:   cfg.IsInline(),
		})
		renderer.Notice("config reloaded")
	})
}

// readMultiline reads one submission. A trailing backslash continues the
// input on the next line.
func readMultiline(reader *bufio.Reader, renderer *Renderer) (string, error) {
	var lines []string
	for {
		prompt := renderer.UserPrompt()
		if len(lines) > 0 {
			prompt = "... "
		}
		fmt.Print(prompt)
		line, err := reader.ReadString('\n')
		if err != nil {
			if len(lines) == 0 {
				return "", err
			}
			return strings.Join(lines, "\n"), nil
		}
		line = strings.TrimRight(line, "\r\n")
		if strings.HasSuffix(line, "\\") {
			lines = append(lines, strings.TrimSuffix(line, "\\"))
			continue
		}
		lines = append(lines, line)
		return strings.Join(lines, "\n"), nil
	}
}

func runRepl(ctx context.Context, ctrl *chat.Controller, st store.Store, renderer *Renderer) error {
	cfg := ctrl.Config()
	renderer.Banner(cfg.BaseURL, cfg.TenantID)
	reader := bufio.NewReader(os.Stdin)

	for {
		line, err := readMultiline(reader, renderer)
		if err != nil {
			// EOF leaves the loop cleanly.
			fmt.Println()
			return nil
		}
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}

		if strings.HasPrefix(trimmed, "/") {
			switch trimmed {
			case "/exit", "/quit":
				return nil
			case "/help":
				renderer.Help()
			case "/reset":
				st.Clear(ctrl.Config().TenantID)
				renderer.Notice("thread forgotten, the next message starts fresh")
			default:
				renderer.Notice("unknown command " + trimmed)
				renderer.Help()
			}
			continue
		}

		ctrl.Submit(ctx, trimmed)
	}
}
