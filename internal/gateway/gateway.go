package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/cexll/agentsdk-go/pkg/api"
	"github.com/cexll/agentsdk-go/pkg/model"
	"github.com/cexll/agentsdk-go/pkg/tool"

	"github.com/stellarlinkco/taskclaw/internal/analyze"
	"github.com/stellarlinkco/taskclaw/internal/bus"
	"github.com/stellarlinkco/taskclaw/internal/channel"
	"github.com/stellarlinkco/taskclaw/internal/config"
	"github.com/stellarlinkco/taskclaw/internal/digest"
	"github.com/stellarlinkco/taskclaw/internal/dispatch"
	"github.com/stellarlinkco/taskclaw/internal/persona"
	"github.com/stellarlinkco/taskclaw/internal/scheduler"
	"github.com/stellarlinkco/taskclaw/internal/store"
	"github.com/stellarlinkco/taskclaw/internal/task"
)

// Runtime interface for agent runtime (allows mocking in tests)
type Runtime interface {
	Run(ctx context.Context, req api.Request) (*api.Response, error)
	Close()
}

// runtimeAdapter wraps api.Runtime to implement Runtime interface
type runtimeAdapter struct {
	rt *api.Runtime
}

func (r *runtimeAdapter) Run(ctx context.Context, req api.Request) (*api.Response, error) {
	return r.rt.Run(ctx, req)
}

func (r *runtimeAdapter) Close() {
	r.rt.Close()
}

// RuntimeFactory creates a Runtime instance
type RuntimeFactory func(cfg *config.Config, sysPrompt string, tools []tool.Tool) (Runtime, error)

// Options for creating a Gateway
type Options struct {
	RuntimeFactory RuntimeFactory
	SignalChan     chan os.Signal   // for testing signal handling
	Now            func() time.Time // for testing clock-sensitive paths
}

// DefaultRuntimeFactory creates the default agentsdk-go runtime
func DefaultRuntimeFactory(cfg *config.Config, sysPrompt string, tools []tool.Tool) (Runtime, error) {
	return newRuntime(cfg, sysPrompt, tools)
}

func newRuntime(cfg *config.Config, sysPrompt string, tools []tool.Tool) (Runtime, error) {
	var provider api.ModelFactory
	switch cfg.Provider.Type {
	case "openai":
		provider = &model.OpenAIProvider{
			APIKey:    cfg.Provider.APIKey,
			BaseURL:   cfg.Provider.BaseURL,
			ModelName: cfg.Agent.Model,
			MaxTokens: cfg.Agent.MaxTokens,
		}
	default: // "anthropic" or empty
		provider = &model.AnthropicProvider{
			APIKey:    cfg.Provider.APIKey,
			BaseURL:   cfg.Provider.BaseURL,
			ModelName: cfg.Agent.Model,
			MaxTokens: cfg.Agent.MaxTokens,
		}
	}

	rt, err := api.New(context.Background(), api.Options{
		ProjectRoot:         cfg.Agent.Workspace,
		ModelFactory:        provider,
		SystemPrompt:        sysPrompt,
		MaxIterations:       cfg.Agent.MaxToolIterations,
		EnabledBuiltinTools: []string{},
		CustomTools:         tools,
	})
	if err != nil {
		return nil, fmt.Errorf("create runtime: %w", err)
	}
	return &runtimeAdapter{rt: rt}, nil
}

type Gateway struct {
	cfg        *config.Config
	bus        *bus.MessageBus
	runtime    Runtime
	channels   *channel.ChannelManager
	db         *store.SQLite
	tasks      *task.Store
	dispatcher *dispatch.Dispatcher
	scheduler  *scheduler.Scheduler
	digest     *digest.Service
	rec        *recorder
	owner      string
	signalChan chan os.Signal
	now        func() time.Time
}

// New creates a Gateway with default options
func New(cfg *config.Config) (*Gateway, error) {
	return NewWithOptions(cfg, Options{})
}

// NewWithOptions creates a Gateway with custom options for testing
func NewWithOptions(cfg *config.Config, opts Options) (*Gateway, error) {
	g := &Gateway{cfg: cfg, owner: cfg.Agent.Owner}
	if g.owner == "" {
		g.owner = config.DefaultOwner
	}

	g.now = opts.Now
	if g.now == nil {
		g.now = time.Now
	}

	// Message bus
	g.bus = bus.NewMessageBus(config.DefaultBufSize)

	// Durable store and in-memory task list
	dbPath := strings.TrimSpace(cfg.Store.DBPath)
	if dbPath == "" {
		dbPath = filepath.Join(config.ConfigDir(), "data", "tasks.db")
	}
	db, err := store.Open(dbPath)
	if err != nil {
		return nil, fmt.Errorf("open task store: %w", err)
	}
	g.db = db

	g.tasks = task.NewStore(db)
	if err := g.tasks.Load(g.owner); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("load tasks: %w", err)
	}
	log.Printf("[gateway] loaded %d tasks for %s", g.tasks.Len(), g.owner)

	// Dispatcher with the productivity analyzer behind it
	analyzer := analyze.NewService(analyze.NewSummarizer(cfg))
	g.dispatcher = dispatch.New(g.tasks, g.owner, analyzer)

	// Reminder scheduler
	var schedOpts []scheduler.Option
	if cfg.Reminders.PollIntervalSec > 0 {
		schedOpts = append(schedOpts, scheduler.WithPollInterval(time.Duration(cfg.Reminders.PollIntervalSec)*time.Second))
	}
	if cfg.Reminders.SnoozeMinutes > 0 {
		schedOpts = append(schedOpts, scheduler.WithSnoozeDuration(time.Duration(cfg.Reminders.SnoozeMinutes)*time.Minute))
	}
	g.scheduler = scheduler.New(g.tasks, g.owner, g.bus, schedOpts...)

	// Morning digest
	g.digest = digest.New(cfg.Digest, g.tasks, g.owner, g.bus)

	// Build system prompt
	sysPrompt, err := g.buildSystemPrompt()
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	// Create runtime using factory (allows injection for testing)
	g.rec = &recorder{}
	tools := assistantTools(g.rec)
	factory := opts.RuntimeFactory
	var rt Runtime
	if factory == nil {
		rt, err = newRuntime(cfg, sysPrompt, tools)
	} else {
		rt, err = factory(cfg, sysPrompt, tools)
	}
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	g.runtime = rt

	// Signal channel for testing
	g.signalChan = opts.SignalChan

	// Channels (with gateway config for WebUI port)
	chMgr, err := channel.NewChannelManager(cfg.Channels, cfg.Gateway, g.bus)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create channel manager: %w", err)
	}
	g.channels = chMgr

	return g, nil
}

const basePrompt = `You are taskclaw, a personal task assistant. You manage the
user's task list through the provided tools. When the user asks to add,
change, schedule, analyze or remove tasks, call the matching tool; do not
describe the change in prose instead of calling it. For anything else,
answer conversationally.`

func (g *Gateway) buildSystemPrompt() (string, error) {
	var sb strings.Builder
	sb.WriteString(basePrompt)

	dir := g.cfg.Persona.Dir
	if dir == "" {
		dir = filepath.Join(config.ConfigDir(), "persona")
	}
	packs, err := persona.Load(dir)
	if err != nil {
		return "", fmt.Errorf("load persona packs: %w", err)
	}
	if merged := persona.Merge(packs); merged != "" {
		sb.WriteString("\n\n")
		sb.WriteString(merged)
	}

	return sb.String(), nil
}

// buildPrompt prepends the clock and current task list so the model
// resolves relative dates and task references against fresh state.
func (g *Gateway) buildPrompt(content string, now time.Time) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Current time: %s\n", now.Format("2006-01-02T15:04:05"))

	tasks := g.tasks.ListByOwner(g.owner)
	if len(tasks) == 0 {
		sb.WriteString("The task list is empty.\n")
	} else {
		data, err := json.Marshal(tasks)
		if err != nil {
			log.Printf("[gateway] marshal task snapshot warning: %v", err)
		} else {
			sb.WriteString("Current tasks:\n")
			sb.Write(data)
			sb.WriteString("\n")
		}
	}

	sb.WriteString("\n")
	sb.WriteString(content)
	return sb.String()
}

func (g *Gateway) runAgent(ctx context.Context, prompt, sessionID string) (string, error) {
	resp, err := g.runtime.Run(ctx, api.Request{
		Prompt:    prompt,
		SessionID: sessionID,
	})
	if err != nil {
		return "", err
	}
	if resp == nil || resp.Result == nil {
		return "", nil
	}
	return resp.Result.Output, nil
}

func (g *Gateway) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	go g.bus.DispatchOutbound(ctx)

	if err := g.channels.StartAll(ctx); err != nil {
		return fmt.Errorf("start channels: %w", err)
	}
	log.Printf("[gateway] channels started: %v", g.channels.EnabledChannels())

	go g.scheduler.Run(ctx)

	if err := g.digest.Start(); err != nil {
		log.Printf("[gateway] digest start warning: %v", err)
	}

	go g.processLoop(ctx)
	go g.notifyLoop(ctx)

	log.Printf("[gateway] running on %s:%d", g.cfg.Gateway.Host, g.cfg.Gateway.Port)

	// Use injected signal channel for testing, or create default
	sigCh := g.signalChan
	if sigCh == nil {
		sigCh = make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	}
	<-sigCh

	log.Printf("[gateway] shutting down...")
	return g.Shutdown()
}

func (g *Gateway) processLoop(ctx context.Context) {
	for {
		select {
		case msg := <-g.bus.Inbound:
			log.Printf("[gateway] inbound from %s/%s: %s", msg.Channel, msg.SenderID, truncate(msg.Content, 80))

			reply := g.handleInbound(ctx, msg)
			if reply != "" {
				g.bus.Outbound <- bus.OutboundMessage{
					Channel: msg.Channel,
					ChatID:  msg.ChatID,
					Content: reply,
				}
			}
		case <-ctx.Done():
			return
		}
	}
}

func (g *Gateway) handleInbound(ctx context.Context, msg bus.InboundMessage) string {
	// Reminder shortcuts bypass the model entirely.
	if cmd, ok := msg.Metadata["command"].(string); ok {
		return g.handleCommand(cmd)
	}

	now := g.now()
	g.logMessage("user", msg.Content, now)

	result, err := g.runAgent(ctx, g.buildPrompt(msg.Content, now), msg.SessionKey())
	calls := g.rec.take()
	if err != nil {
		log.Printf("[gateway] agent error: %v", err)
		return dispatch.FriendlyError(err)
	}

	reply := g.dispatcher.Dispatch(ctx, calls, result, now)
	if reply != "" {
		g.logMessage("assistant", reply, g.now())
	}
	return reply
}

// Ask runs one conversational turn outside any channel. The CLI uses
// this; replies go back to the caller instead of the bus.
func (g *Gateway) Ask(ctx context.Context, content string) string {
	return g.handleInbound(ctx, bus.InboundMessage{
		Channel:   "cli",
		SenderID:  g.owner,
		ChatID:    "cli",
		Content:   content,
		Timestamp: g.now(),
	})
}

// handleCommand acts on the active surfaced notification.
func (g *Gateway) handleCommand(cmd string) string {
	active := g.scheduler.Active()
	if active == nil {
		return "There's no reminder waiting on you right now."
	}

	switch cmd {
	case "done":
		if g.scheduler.MarkDone(active.TaskID) {
			return fmt.Sprintf("Nice, %q is done.", active.TaskText)
		}
		return "There's no reminder waiting on you right now."
	case "snooze":
		g.scheduler.Snooze(active.TaskID)
		return fmt.Sprintf("Snoozed %q. I'll nudge you again shortly.", active.TaskText)
	case "dismiss":
		g.scheduler.Dismiss()
		return fmt.Sprintf("Dismissed the reminder for %q.", active.TaskText)
	default:
		return ""
	}
}

func (g *Gateway) notifyLoop(ctx context.Context) {
	for {
		select {
		case n := <-g.bus.Notifications:
			log.Printf("[gateway] reminder fired for %q at %s", n.TaskText, n.Instant.Format(time.RFC3339))
			g.channels.NotifyAll(n)
		case <-ctx.Done():
			return
		}
	}
}

func (g *Gateway) logMessage(role, content string, now time.Time) {
	err := g.db.PutMessage(store.Message{
		ID:      store.NewMessageID(now),
		Owner:   g.owner,
		Role:    role,
		Content: content,
	})
	if err != nil {
		log.Printf("[gateway] message log warning: %v", err)
	}
}

func (g *Gateway) Shutdown() error {
	g.digest.Stop()
	_ = g.channels.StopAll()
	g.tasks.Flush()
	if g.db != nil {
		if err := g.db.Close(); err != nil {
			log.Printf("[gateway] close store warning: %v", err)
		}
	}
	if g.runtime != nil {
		g.runtime.Close()
	}
	log.Printf("[gateway] shutdown complete")
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
