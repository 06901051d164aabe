package main

import (
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/liliang-cn/gptsh/pkg/approval"
	"github.com/liliang-cn/gptsh/pkg/chat"
	"github.com/liliang-cn/gptsh/pkg/config"
	"github.com/liliang-cn/gptsh/pkg/domain"
	"github.com/liliang-cn/gptsh/pkg/llm"
	"github.com/liliang-cn/gptsh/pkg/log"
	"github.com/liliang-cn/gptsh/pkg/mcp"
	"github.com/liliang-cn/gptsh/pkg/progress"
	"github.com/liliang-cn/gptsh/pkg/sessions"
)

type rootFlags struct {
	configFile string
	model      string
	agent      string
	provider   string
	output     string
	attach     []string
	resume     string
	noStream   bool
	noTools    bool
	noProgress bool
	yes        bool
	debug      bool
}

func newRootCmd() *cobra.Command {
	flags := &rootFlags{}

	cmd := &cobra.Command{
		Use:   "gptsh [prompt...]",
		Short: "Chat with LLMs from the shell, with MCP tool calling",
		Long: `gptsh sends a prompt to an OpenAI-compatible model and executes the
tool calls it makes through configured MCP servers, including the builtin
shell and time servers. Without a prompt it starts an interactive REPL.`,
		Args:          cobra.ArbitraryArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := newApp(flags)
			if err != nil {
				return err
			}
			defer app.shutdown()

			prompt := strings.Join(args, " ")
			piped := !term.IsTerminal(int(os.Stdin.Fd()))
			if piped {
				data, err := io.ReadAll(os.Stdin)
				if err != nil {
					return fmt.Errorf("reading stdin: %w", err)
				}
				if text := strings.TrimSpace(string(data)); text != "" {
					if prompt == "" {
						prompt = text
					} else {
						prompt = prompt + "\n\n" + text
					}
				}
			}

			if prompt == "" && len(flags.attach) == 0 {
				if piped {
					return fmt.Errorf("%w: no prompt given", domain.ErrInvalidInput)
				}
				return app.runREPL(cmd.Context())
			}
			return app.runOnce(cmd.Context(), prompt)
		},
	}

	cmd.PersistentFlags().StringVar(&flags.configFile, "config", "", "config file (default ~/.config/gptsh/config.yaml, ./.gptsh/config.yaml)")
	cmd.Flags().StringVarP(&flags.model, "model", "m", "", "model override")
	cmd.Flags().StringVarP(&flags.agent, "agent", "a", "", "agent preset")
	cmd.Flags().StringVar(&flags.provider, "provider", "", "provider override")
	cmd.Flags().StringVarP(&flags.output, "output", "o", "", "output mode: markdown or text")
	cmd.Flags().StringArrayVar(&flags.attach, "attach", nil, "attach a file to the prompt (repeatable)")
	cmd.Flags().StringVarP(&flags.resume, "resume", "r", "", "resume a session by index, id, or id prefix")
	cmd.Flags().BoolVar(&flags.noStream, "no-stream", false, "print the full reply at once")
	cmd.Flags().BoolVar(&flags.noTools, "no-tools", false, "disable tool advertising and execution")
	cmd.Flags().BoolVar(&flags.noProgress, "no-progress", false, "disable the progress spinner")
	cmd.Flags().BoolVarP(&flags.yes, "yes", "y", false, "auto-approve every tool call")
	cmd.Flags().BoolVar(&flags.debug, "debug", false, "enable debug logging")

	cmd.AddCommand(newSessionsCmd(flags))
	return cmd
}

// app holds the wired pieces of one invocation.
type app struct {
	flags    *rootFlags
	cfg      *config.Config
	client   llm.Client
	manager  *mcp.Manager
	reporter progress.Reporter
	policy   approval.Policy
	store    *sessions.Store
	doc      *domain.Session
	sess     *chat.Session
	stdin    *stdinSource
	tty      *os.File

	agentName    string
	providerName string
	model        string
	modelSmall   string
	output       string
	stream       bool
}

func newApp(flags *rootFlags) (*app, error) {
	var paths []string
	if flags.configFile != "" {
		paths = []string{flags.configFile}
	}
	cfg, err := config.Load(paths...)
	if err != nil {
		return nil, err
	}
	if flags.debug || cfg.Debug {
		log.SetDebug(true)
	}

	agentName, agent, err := cfg.ResolveAgent(flags.agent)
	if err != nil {
		return nil, err
	}
	if flags.provider != "" {
		agent.Provider = flags.provider
	}
	providerName, provider, err := cfg.ResolveProvider(agent)
	if err != nil {
		return nil, err
	}

	model := cfg.Model(agent, provider)
	if flags.model != "" {
		model = flags.model
	}
	if model == "" {
		return nil, fmt.Errorf("%w: no model configured", domain.ErrConfigInvalid)
	}

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

	a := &app{
		flags:        flags,
		cfg:          cfg,
		client:       client,
		store:        sessions.NewStore(cfg.Sessions.Dir),
		agentName:    agentName,
		providerName: providerName,
		model:        model,
		modelSmall:   cfg.ModelSmall(agent, provider),
		output:       cfg.Output,
		stream:       cfg.StreamEnabled() && !flags.noStream,
	}
	if flags.output != "" {
		a.output = flags.output
	}

	a.reporter = progress.NoOp{}
	if cfg.ProgressEnabled() && !flags.noProgress && term.IsTerminal(int(os.Stderr.Fd())) {
		a.reporter = progress.NewSpinner(os.Stderr)
	}
	// The REPL and the approval prompt share one line source so neither
	// swallows input meant for the other.
	a.stdin = newStdinSource(os.Stdin)

	manager, err := a.buildManager(agent)
	if err != nil {
		return nil, err
	}
	a.manager = manager
	a.policy = a.buildPolicy(agent)

	temp := agent.Temperature
	if temp == nil {
		temp = provider.Temperature
	}
	maxTokens := agent.MaxTokens
	if maxTokens == 0 {
		maxTokens = provider.MaxTokens
	}
	a.sess = chat.NewSession(client, manager, a.policy, a.reporter, chat.Options{
		Model:           model,
		SystemPrompt:    config.SystemPrompt(agent),
		Temperature:     temp,
		MaxTokens:       maxTokens,
		ReasoningEffort: agent.ReasoningEffort,
		ToolChoice:      agent.ToolChoice,
		NoTools:         flags.noTools || agent.NoTools,
	})

	if err := a.openSession(agent); err != nil {
		return nil, err
	}
	return a, nil
}

func (a *app) buildManager(agent *config.AgentConfig) (*mcp.Manager, error) {
	paths := a.cfg.MCP.ServersFiles
	if len(paths) == 0 {
		paths = mcp.DefaultServersPaths()
	}
	servers, err := mcp.LoadServers(paths...)
	if err != nil {
		return nil, err
	}
	allowed := a.cfg.MCP.AllowedServers
	if len(agent.AllowedServers) > 0 {
		allowed = agent.AllowedServers
	}
	servers = mcp.FilterServers(servers, allowed)

	return mcp.NewManager(servers, mcp.ManagerOptions{
		Timeout: time.Duration(a.cfg.MCP.TimeoutSeconds) * time.Second,
	}), nil
}

func (a *app) buildPolicy(agent *config.AgentConfig) approval.Policy {
	if a.flags.yes {
		return approval.AllowAll{}
	}

	allowed := a.manager.AutoApprove()
	for server, tools := range agent.AutoApprove {
		allowed[server] = append(allowed[server], tools...)
	}
	rules := approval.NewRules(allowed)

	in := approval.LineReader(a.stdin)
	if !term.IsTerminal(int(os.Stdin.Fd())) {
		tty := approval.OpenTTY()
		if tty == nil {
			// No terminal to ask on: only auto-approved tools may run.
			return approval.DenyUnlisted{Rules: rules}
		}
		a.tty = tty
		in = approval.NewLineReader(tty)
	}
	return approval.NewInteractive(rules, in, os.Stderr, a.reporter)
}

func (a *app) openSession(agent *config.AgentConfig) error {
	if a.flags.resume != "" {
		id, err := a.store.Resolve(a.flags.resume)
		if err != nil {
			return err
		}
		doc, err := a.store.Load(id)
		if err != nil {
			return err
		}
		a.doc = doc
		a.sess.SetHistory(doc.Messages)
		return nil
	}

	a.doc = a.store.New(
		domain.SessionAgent{
			Name:         a.agentName,
			Model:        a.model,
			ModelSmall:   a.modelSmall,
			PromptSystem: config.SystemPrompt(agent),
		},
		domain.SessionProvider{Name: a.providerName},
	)
	a.doc.Output = a.output
	return nil
}

func (a *app) shutdown() {
	if a.manager != nil {
		if err := a.manager.Stop(); err != nil {
			log.Debugf("mcp shutdown: %v", err)
		}
	}
	a.reporter.Stop()
	if a.tty != nil {
		a.tty.Close()
	}
}

// runTurn executes one chat turn, renders its output, and persists the
// session afterwards.
func (a *app) runTurn(ctx context.Context, prompt string, attachments []chat.Attachment) error {
	if err := a.manager.Start(ctx); err != nil {
		return err
	}

	caps := llm.ModelCapabilities(a.model)
	userMsg := chat.BuildUserMessage(prompt, attachments, caps)

	r := newRenderer(os.Stdout, a.output, a.reporter, a.stream)
	before := len(a.sess.History())
	usageBefore := a.sess.Usage()

	err := a.sess.RunTurn(ctx, userMsg, r.OnText)
	r.Finish()
	if err != nil {
		return err
	}

	delta := a.sess.History()[before:]
	usage := a.sess.Usage()
	usage.Tokens.Prompt -= usageBefore.Tokens.Prompt
	usage.Tokens.Completion -= usageBefore.Tokens.Completion
	usage.Tokens.Total -= usageBefore.Tokens.Total
	usage.Tokens.ReasoningTokens -= usageBefore.Tokens.ReasoningTokens
	usage.Tokens.CachedTokens -= usageBefore.Tokens.CachedTokens
	usage.Cost -= usageBefore.Cost

	if _, err := a.store.AppendMessages(a.doc, delta, usage); err != nil {
		log.Warnf("saving session: %v", err)
		return nil
	}
	hadTitle := a.doc.Title != ""
	sessions.EnsureTitle(ctx, a.client, a.modelSmall, a.doc)
	if !hadTitle && a.doc.Title != "" {
		if _, err := a.store.Save(a.doc); err != nil {
			log.Warnf("saving session title: %v", err)
		}
	}
	return nil
}

func (a *app) runOnce(ctx context.Context, prompt string) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	attachments, err := loadAttachments(a.flags.attach)
	if err != nil {
		return err
	}
	return a.runTurn(ctx, prompt, attachments)
}

// loadAttachments reads the files given to --attach, sniffing their MIME
// type from the extension and contents.
func loadAttachments(paths []string) ([]chat.Attachment, error) {
	var out []chat.Attachment
	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("%w: attachment %s: %v", domain.ErrInvalidInput, path, err)
		}
		mimeType := mime.TypeByExtension(filepath.Ext(path))
		if mimeType == "" {
			mimeType = http.DetectContentType(data)
		}
		if idx := strings.Index(mimeType, ";"); idx > 0 {
			mimeType = mimeType[:idx]
		}
		kind := "file"
		switch {
		case strings.HasPrefix(mimeType, "image/"):
			kind = "image"
		case mimeType == "application/pdf":
			kind = "pdf"
		}
		out = append(out, chat.Attachment{Type: kind, MIME: mimeType, Data: data})
	}
	return out, nil
}

// renderer routes streamed text through the markdown or line buffer and
// prints finished blocks without fighting the spinner.
type renderer struct {
	out      io.Writer
	reporter progress.Reporter
	stream   bool
	md       *chat.MarkdownBuffer
	line     *chat.LineBuffer
	held     strings.Builder
}

func newRenderer(out io.Writer, output string, reporter progress.Reporter, stream bool) *renderer {
	r := &renderer{out: out, reporter: reporter, stream: stream}
	if output == "text" {
		r.line = &chat.LineBuffer{}
	} else {
		r.md = chat.NewMarkdownBuffer(0)
	}
	return r
}

func (r *renderer) OnText(s string) {
	if !r.stream {
		r.held.WriteString(s)
		return
	}
	var blocks []string
	if r.md != nil {
		blocks = r.md.Push(s)
	} else {
		blocks = r.line.Push(s)
	}
	if len(blocks) > 0 {
		r.reporter.IO(func() {
			for _, b := range blocks {
				fmt.Fprint(r.out, b)
			}
		})
	}
}

func (r *renderer) Finish() {
	var tail string
	if !r.stream {
		tail = r.held.String()
	} else if r.md != nil {
		tail = r.md.Flush()
	} else {
		tail = r.line.Flush()
	}
	r.reporter.IO(func() {
		fmt.Fprint(r.out, tail)
		if tail != "" && !strings.HasSuffix(tail, "\n") {
			fmt.Fprintln(r.out)
		}
	})
}
