package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"

	"github.com/chzyer/readline"
	"github.com/spf13/cobra"

	"github.com/michaelbrown/aether/internal/client"
)

var (
	urlFlag    string
	keyFlag    string
	streamFlag bool
)

var replCmd = &cobra.Command{
	Use:   "repl",
	Short: "Interactive client for a running gateway",
	Long: `Send Python snippets to a running AETHER gateway. Each snippet runs in its
own sandbox, so nothing is shared between snippets.

A line ending in ':' starts a block; finish it with an empty line.

Examples:
  aether repl
  aether repl --url https://aether.example.com --key sk_live_...`,
	RunE: runREPL,
}

func init() {
	replCmd.Flags().StringVar(&urlFlag, "url", "http://localhost:8000", "Gateway URL")
	replCmd.Flags().StringVar(&keyFlag, "key", "", "API key (default: configured master key)")
	replCmd.Flags().BoolVar(&streamFlag, "stream", true, "Stream output as it is produced")
	rootCmd.AddCommand(replCmd)
}

func runREPL(cmd *cobra.Command, args []string) error {
	key := keyFlag
	if key == "" {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		key = cfg.Auth.MasterKey
	}

	c := client.New(urlFlag, key)

	h, err := c.Health(context.Background())
	if err != nil {
		return fmt.Errorf("gateway at %s is not reachable: %w", urlFlag, err)
	}
	fmt.Printf("%s | %s | %s\n", h.System, h.Location, h.Status)
	fmt.Printf("Type /help for commands, /quit to exit\n\n")

	home, _ := os.UserHomeDir()
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "\033[36m>>>\033[0m ",
		HistoryFile:     filepath.Join(home, ".aether", "repl_history"),
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		return fmt.Errorf("readline: %w", err)
	}
	defer rl.Close()

	// Ctrl+C while a snippet runs cancels it; the sandbox is still destroyed
	// by the gateway.
	var running snippetCancel
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		for range sigCh {
			running.cancel()
		}
	}()

	stream := streamFlag
	var block []string

	for {
		line, err := rl.Readline()
		if err != nil {
			if err == readline.ErrInterrupt && len(block) > 0 {
				block = nil
				rl.SetPrompt("\033[36m>>>\033[0m ")
				continue
			}
			if err == readline.ErrInterrupt || err == io.EOF {
				fmt.Println("\nGoodbye!")
				return nil
			}
			return err
		}

		if len(block) > 0 {
			if strings.TrimSpace(line) != "" {
				block = append(block, line)
				continue
			}
			line = strings.Join(block, "\n")
			block = nil
			rl.SetPrompt("\033[36m>>>\033[0m ")
		} else {
			trimmed := strings.TrimSpace(line)
			if trimmed == "" {
				continue
			}
			if strings.HasPrefix(trimmed, "/") {
				if quit := handleREPLCommand(trimmed, c, &stream); quit {
					return nil
				}
				continue
			}
			if strings.HasSuffix(trimmed, ":") {
				block = []string{line}
				rl.SetPrompt("\033[36m...\033[0m ")
				continue
			}
		}

		reqCtx, done := running.start(context.Background())
		runSnippet(reqCtx, c, line, stream)
		done()
	}
}

// snippetCancel holds the cancel func of the snippet in flight. The read loop
// sets it and the signal goroutine fires it.
type snippetCancel struct {
	mu sync.Mutex
	fn context.CancelFunc
}

// start derives a cancelable context for one snippet. The returned func
// releases it and must be called when the snippet finishes.
func (s *snippetCancel) start(parent context.Context) (context.Context, func()) {
	ctx, cancel := context.WithCancel(parent)
	s.mu.Lock()
	s.fn = cancel
	s.mu.Unlock()
	return ctx, func() {
		s.mu.Lock()
		s.fn = nil
		s.mu.Unlock()
		cancel()
	}
}

// cancel aborts the snippet in flight, if any.
func (s *snippetCancel) cancel() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fn != nil {
		s.fn()
	}
}

func runSnippet(ctx context.Context, c *client.Client, code string, stream bool) {
	var (
		res *client.Result
		err error
	)
	if stream {
		res, err = c.Stream(ctx, code, 0, func(f client.Frame) {
			if f.Type == "stderr" {
				fmt.Printf("\033[33m%s\033[0m\n", f.Content)
			} else {
				fmt.Println(f.Content)
			}
		})
	} else {
		res, err = c.Execute(ctx, code, 0)
	}

	switch {
	case ctx.Err() != nil:
		fmt.Println("(interrupted)")
	case errors.Is(err, client.ErrUnauthorized):
		fmt.Printf("\033[31m%s\033[0m\n", err)
	case err != nil:
		fmt.Printf("\033[31merror: %s\033[0m\n", err)
	case !res.OK():
		fmt.Printf("\033[31merror: %s\033[0m\n", res.Message)
	default:
		if !stream {
			if res.Stdout != "" {
				fmt.Println(res.Stdout)
			}
			if res.Stderr != "" {
				fmt.Printf("\033[33m%s\033[0m\n", res.Stderr)
			}
		}
		fmt.Printf("\033[90m[%s]\033[0m\n", res.SandboxID)
	}
}

func handleREPLCommand(input string, c *client.Client, stream *bool) (quit bool) {
	switch strings.ToLower(strings.Fields(input)[0]) {
	case "/quit", "/exit", "/q":
		fmt.Println("Goodbye!")
		return true
	case "/health":
		h, err := c.Health(context.Background())
		if err != nil {
			fmt.Printf("\033[31merror: %s\033[0m\n", err)
		} else {
			fmt.Printf("%s | %s | %s\n", h.System, h.Location, h.Status)
		}
	case "/stream":
		*stream = !*stream
		fmt.Printf("Streaming %s.\n", map[bool]string{true: "on", false: "off"}[*stream])
	case "/help":
		fmt.Println("Commands:")
		fmt.Println("  /help     - Show this help")
		fmt.Println("  /health   - Show gateway status")
		fmt.Println("  /stream   - Toggle streaming output")
		fmt.Println("  /quit     - Exit")
	default:
		fmt.Printf("Unknown command: %s (try /help)\n", input)
	}
	fmt.Println()
	return false
}
