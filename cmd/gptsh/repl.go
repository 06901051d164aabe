package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/liliang-cn/gptsh/pkg/config"
	"github.com/liliang-cn/gptsh/pkg/domain"
	"github.com/liliang-cn/gptsh/pkg/llm"
)

// doubleInterruptWindow is how quickly a second Ctrl-C must follow the
// first to quit the REPL instead of just cancelling the current turn.
const doubleInterruptWindow = 1500 * time.Millisecond

var (
	promptAgentStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("5")).Bold(true)
	promptModelStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("4"))
	hintStyle        = lipgloss.NewStyle().Faint(true)
)

func (a *app) promptString() string {
	return fmt.Sprintf("%s|%s> ",
		promptAgentStyle.Render(a.agentName),
		promptModelStyle.Render(a.model))
}

func (a *app) runREPL(ctx context.Context) error {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	fmt.Fprintln(os.Stderr, hintStyle.Render("gptsh interactive mode, /help for commands, Ctrl-C twice to exit"))

	var lastInterrupt time.Time
	for {
		a.reporter.IO(func() {
			fmt.Fprint(os.Stderr, a.promptString())
		})
		// One outstanding request at most; stdin stays free during turns
		// so approval prompts can read their answer.
		a.stdin.Request()

		var line string
		select {
		case <-ctx.Done():
			return nil
		case err := <-a.stdin.Errs():
			// EOF ends the REPL cleanly; anything else is a real failure.
			if !errors.Is(err, io.EOF) {
				return err
			}
			fmt.Fprintln(os.Stderr)
			return nil
		case <-sigCh:
			now := time.Now()
			if now.Sub(lastInterrupt) < doubleInterruptWindow {
				fmt.Fprintln(os.Stderr)
				return nil
			}
			lastInterrupt = now
			fmt.Fprintln(os.Stderr, hintStyle.Render("\npress Ctrl-C again to exit"))
			continue
		case line = <-a.stdin.Lines():
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, "/") {
			if quit := a.handleCommand(line, os.Stderr); quit {
				return nil
			}
			continue
		}

		if err := a.replTurn(ctx, sigCh, &lastInterrupt, line); err != nil {
			return err
		}
	}
}

// replTurn runs one turn with Ctrl-C cancelling just the turn; two
// interrupts in quick succession abort the REPL.
func (a *app) replTurn(ctx context.Context, sigCh chan os.Signal, lastInterrupt *time.Time, prompt string) error {
	turnCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	done := make(chan struct{})
	go func() {
		for {
			select {
			case <-done:
				return
			case <-sigCh:
				now := time.Now()
				cancel()
				if now.Sub(*lastInterrupt) < doubleInterruptWindow {
					return
				}
				*lastInterrupt = now
			}
		}
	}()

	err := a.runTurn(turnCtx, prompt, nil)
	close(done)
	if err != nil {
		if errors.Is(err, domain.ErrInterrupted) || errors.Is(err, context.Canceled) {
			fmt.Fprintln(os.Stderr, hintStyle.Render("interrupted"))
			return nil
		}
		// Provider errors do not kill the REPL.
		fmt.Fprintln(os.Stderr, "gptsh:", err)
	}
	return nil
}

// handleCommand processes a slash command; returning true quits the REPL.
func (a *app) handleCommand(line string, out io.Writer) bool {
	cmd, arg, _ := strings.Cut(line, " ")
	arg = strings.TrimSpace(arg)

	switch cmd {
	case "/exit", "/quit":
		return true
	case "/help":
		fmt.Fprint(out, `Commands:
  /model <name>             switch model for subsequent turns
  /agent <name>             switch agent preset (keeps history)
  /reasoning_effort <level> set reasoning effort (minimal, low, medium, high)
  /no-tools                 toggle tool advertising and execution
  /info                     show session, model, and token usage
  /exit, /quit              leave the REPL
`)
	case "/model":
		if arg == "" {
			fmt.Fprintln(out, "current model:", a.model)
			break
		}
		a.model = arg
		opts := a.sess.Options()
		opts.Model = arg
		a.sess.SetOptions(opts)
	case "/agent":
		if arg == "" {
			fmt.Fprintln(out, "current agent:", a.agentName)
			break
		}
		if err := a.switchAgent(arg); err != nil {
			fmt.Fprintln(out, "gptsh:", err)
		}
	case "/reasoning_effort":
		opts := a.sess.Options()
		opts.ReasoningEffort = arg
		a.sess.SetOptions(opts)
	case "/no-tools":
		opts := a.sess.Options()
		opts.NoTools = !opts.NoTools
		a.sess.SetOptions(opts)
		if opts.NoTools {
			fmt.Fprintln(out, "tools disabled")
		} else {
			fmt.Fprintln(out, "tools enabled")
		}
	case "/info":
		a.printInfo(out)
	default:
		fmt.Fprintln(out, "unknown command:", cmd)
	}
	return false
}

// printInfo reports the active configuration and the usage accumulated
// over this process's turns.
func (a *app) printInfo(out io.Writer) {
	fmt.Fprintf(out, "agent:    %s\n", a.agentName)
	fmt.Fprintf(out, "provider: %s\n", a.providerName)
	fmt.Fprintf(out, "model:    %s\n", a.model)
	if a.sess.Options().NoTools {
		fmt.Fprintln(out, "tools:    disabled")
	}
	if a.doc != nil {
		fmt.Fprintf(out, "session:  %s\n", a.doc.ID)
		if a.doc.Title != "" {
			fmt.Fprintf(out, "title:    %s\n", a.doc.Title)
		}
	}
	fmt.Fprintf(out, "messages: %d\n", len(a.sess.History()))
	u := a.sess.Usage()
	fmt.Fprintf(out, "tokens:   %d prompt, %d completion, %d total\n",
		u.Tokens.Prompt, u.Tokens.Completion, u.Tokens.Total)
	if u.Tokens.ReasoningTokens > 0 || u.Tokens.CachedTokens > 0 {
		fmt.Fprintf(out, "          %d reasoning, %d cached\n",
			u.Tokens.ReasoningTokens, u.Tokens.CachedTokens)
	}
	if u.Cost > 0 {
		fmt.Fprintf(out, "cost:     $%.4f\n", u.Cost)
	}
}

// switchAgent re-resolves the agent preset and rebuilds the turn options
// while keeping the conversation history.
func (a *app) switchAgent(name string) error {
	agentName, agent, err := a.cfg.ResolveAgent(name)
	if err != nil {
		return err
	}
	providerName, provider, err := a.cfg.ResolveProvider(agent)
	if err != nil {
		return err
	}

	model := a.cfg.Model(agent, provider)
	if model == "" {
		model = a.model
	}

	if providerName != a.providerName {
		var priceIn, priceOut float64
		if provider.Pricing != nil {
			priceIn, priceOut = provider.Pricing.Input, provider.Pricing.Output
		}
		client := llm.NewOpenAI(llm.Options{
			APIKey:       provider.APIKey,
			BaseURL:      provider.BaseURL,
			PriceInPerM:  priceIn,
			PriceOutPerM: priceOut,
		})
		a.client = client
		a.sess.SetClient(client)
	}

	opts := a.sess.Options()
	opts.Model = model
	opts.SystemPrompt = config.SystemPrompt(agent)
	opts.Temperature = agent.Temperature
	opts.MaxTokens = agent.MaxTokens
	opts.ReasoningEffort = agent.ReasoningEffort
	opts.ToolChoice = agent.ToolChoice
	opts.NoTools = a.flags.noTools || agent.NoTools
	a.sess.SetOptions(opts)

	a.agentName = agentName
	a.providerName = providerName
	a.model = model
	a.modelSmall = a.cfg.ModelSmall(agent, provider)
	return nil
}
