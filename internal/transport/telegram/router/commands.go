package router

import (
	"context"
	"runtime"
	"runtime/debug"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"rotabot/internal/runtime/supervisor"
	kit "rotabot/internal/transport"
	logx "rotabot/pkg/logx"
)

type Access int

const (
	AccessEveryone Access = iota
	AccessOwnerOnly
)

type Command struct {
	// Route is a space-separated command path, e.g.:
	//   "turn"
	//   "roster add"
	Route       string
	Aliases     []string // root-level aliases, e.g. ["who"]
	Description string
	Usage       string
	Access      Access

	Timeout time.Duration // optional per-command override
	Handle  HandlerFunc
}

type Request struct {
	Update  kit.Update
	Chat    kit.ChatTarget
	From    kit.User
	ReplyTo *kit.User // author of the replied-to message, if any
	IsGroup bool
	IsOwner bool

	Path    []string // matched command path tokens
	Command string
	Args    []string

	RawArgs   []string
	Flags     map[string]string
	BoolFlags map[string]bool
	ReqID     string

	Sender kit.Sender
	Logger logx.Logger
}

// Reply sends HTML text to the chat and thread the command came from.
func (r *Request) Reply(ctx context.Context, text string) error {
	_, err := r.Sender.SendText(ctx, r.Chat, text, &kit.SendOptions{ParseMode: "HTML", DisablePreview: true})
	return err
}

type Options struct {
	// Workers is the size of the handler pool; zero means NumCPU (min 2).
	Workers   int
	QueueSize int
	// Timeout applies to commands without their own.
	Timeout time.Duration
	IsOwner func(userID int64) bool
	// Registry, when set, exposes the dispatcher's supervisor for /status.
	Registry *SupervisorRegistry
}

type CommandManager struct {
	mu    sync.RWMutex
	root  *cmdNode
	alias map[string]*cmdNode // alias -> leaf node
	mw    []Middleware

	log     logx.Logger
	sender  kit.Sender
	isOwner func(int64) bool
	reg     *SupervisorRegistry
	workers int
	timeout atomic.Int64

	runMu   sync.Mutex
	running bool
	sup     *supervisor.Supervisor

	jobs chan func()
}

func NewCommandManager(log logx.Logger, sender kit.Sender, opt Options) *CommandManager {
	if log.IsZero() {
		log = logx.Nop()
	}
	if opt.IsOwner == nil {
		opt.IsOwner = func(int64) bool { return false }
	}
	if opt.Workers <= 0 {
		opt.Workers = max(runtime.NumCPU(), 2)
	}
	if opt.QueueSize <= 0 {
		opt.QueueSize = 256
	}
	m := &CommandManager{
		root:    newRoot(),
		alias:   map[string]*cmdNode{},
		log:     log.With(logx.String("comp", "telegram.router")),
		sender:  sender,
		isOwner: opt.IsOwner,
		reg:     opt.Registry,
		workers: opt.Workers,
		jobs:    make(chan func(), opt.QueueSize),
	}
	m.timeout.Store(int64(opt.Timeout))
	return m
}

// Use appends middleware that wraps every command after the access check.
// Call it before DispatchLoop.
func (m *CommandManager) Use(mw ...Middleware) {
	m.mu.Lock()
	m.mw = append(m.mw, mw...)
	m.mu.Unlock()
}

// SetTimeout changes the default command timeout; safe during hot-reload.
func (m *CommandManager) SetTimeout(d time.Duration) { m.timeout.Store(int64(d)) }

// Supervisor returns the dispatcher's supervisor, or nil when not running.
func (m *CommandManager) Supervisor() *supervisor.Supervisor {
	m.runMu.Lock()
	defer m.runMu.Unlock()
	if !m.running {
		return nil
	}
	return m.sup
}

func (m *CommandManager) setSupervisor(sup *supervisor.Supervisor, running bool) {
	m.runMu.Lock()
	m.sup = sup
	m.running = running
	m.runMu.Unlock()
}

// tryEnqueue reports false when the queue is full or already closed.
func (m *CommandManager) tryEnqueue(fn func()) (ok bool) {
	if fn == nil {
		return false
	}
	defer func() {
		if r := recover(); r != nil {
			ok = false
		}
	}()
	select {
	case m.jobs <- fn:
		return true
	default:
		return false
	}
}

// SetRegistry replaces the command tree. /help is always added.
func (m *CommandManager) SetRegistry(cmds []Command) {
	helper := Command{
		Route:       "help",
		Aliases:     []string{"h", "start"},
		Description: "show help",
		Usage:       "/help [cmd] [sub...]",
		Access:      AccessEveryone,
		Handle: func(ctx context.Context, req *Request) error {
			return req.Reply(ctx, m.helpText(req.Args))
		},
	}
	cmds = append(cmds, helper)

	root := newRoot()
	alias := map[string]*cmdNode{}
	menuCandidates := make([]Command, 0, len(cmds))

	for _, c := range cmds {
		route := splitRoute(c.Route)
		if len(route) == 0 || c.Handle == nil {
			continue
		}
		root.add(route, c)
		menuCandidates = append(menuCandidates, c)

		leaf := root.find(route)
		// Multi-token routes get a /a_b alias for the Telegram menu. The
		// single token itself is never an alias, or "/roster add" would
		// stop at "roster".
		if menu, ok := telegramCommandNameFromRoute(route); ok {
			if len(route) > 1 || menu != route[0] {
				if _, exists := alias[menu]; !exists {
					alias[menu] = leaf
				}
			}
		}
		for _, a := range c.Aliases {
			a = strings.ToLower(strings.TrimSpace(a))
			if a == "" || strings.Contains(a, " ") {
				continue
			}
			alias[a] = leaf
			if sa := sanitizeTelegramCommand(a); sa != "" {
				if _, exists := alias[sa]; !exists {
					alias[sa] = leaf
				}
			}
		}
	}

	m.mu.Lock()
	m.root = root
	m.alias = alias
	m.mu.Unlock()

	if up, ok := m.sender.(kit.CommandMenuUpdater); ok {
		menu := buildTelegramMenuCommands(root, menuCandidates)
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := up.UpdateMenuCommands(ctx, menu); err != nil {
				m.log.Warn("menu update failed", logx.Err(err))
			}
		}()
	}
}

// DispatchLoop routes updates to the worker pool until ctx ends or
// updates is closed.
func (m *CommandManager) DispatchLoop(ctx context.Context, updates <-chan kit.Update) error {
	sup := supervisor.New(ctx, supervisor.WithLogger(m.log))
	m.setSupervisor(sup, true)
	if m.reg != nil {
		m.reg.Set("telegram.router", sup)
	}
	m.log.Info("command dispatcher started", logx.Int("workers", m.workers), logx.Int("job_queue_cap", cap(m.jobs)))

	var closeOnce sync.Once
	closeJobs := func() {
		closeOnce.Do(func() {
			m.setSupervisor(sup, false)
			close(m.jobs)
		})
	}

	for i := 0; i < m.workers; i++ {
		idx := i
		sup.GoRestart("command.worker."+strconv.Itoa(idx), func(c context.Context) error {
			for {
				select {
				case <-c.Done():
					return nil
				case job, ok := <-m.jobs:
					if !ok {
						return nil
					}
					m.runJob(idx, job)
				}
			}
		}, supervisor.WithRestartBackoff(200*time.Millisecond, 5*time.Second))
	}

	defer func() {
		closeJobs()
		// Queued jobs get a short window to drain.
		wctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		_ = sup.Wait(wctx)
		_ = sup.Stop(wctx)
		cancel()
		if m.reg != nil {
			m.reg.Delete("telegram.router")
		}
		m.setSupervisor(nil, false)
		m.log.Info("command dispatcher stopped")
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case up, ok := <-updates:
			if !ok {
				return nil
			}
			m.routeUpdate(ctx, up)
		}
	}
}

func (m *CommandManager) runJob(worker int, job func()) {
	if job == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			m.log.Error("panic in command job", logx.Int("worker", worker), logx.Any("panic", r), logx.Stack(string(debug.Stack())))
		}
	}()
	job()
}

func (m *CommandManager) routeUpdate(root context.Context, up kit.Update) {
	if up.Kind == kit.UpdateMessage {
		m.routeMessage(root, up)
	}
}

func (m *CommandManager) routeMessage(root context.Context, up kit.Update) {
	msg := up.Message
	if msg == nil {
		return
	}
	text := strings.TrimSpace(msg.Text)
	if !strings.HasPrefix(text, "/") {
		return
	}

	parts := tokenizeCommandLine(text)
	if len(parts) == 0 {
		return
	}
	word := strings.ToLower(strings.TrimPrefix(parts[0], "/"))
	addressed := false
	if i := strings.IndexByte(word, '@'); i >= 0 {
		word = word[:i]
		addressed = true
	}
	args := parts[1:]
	chat := kit.ChatTarget{ChatID: msg.ChatID, ThreadID: msg.ThreadID}

	m.mu.RLock()
	rootNode := m.root
	aliasMap := m.alias
	m.mu.RUnlock()

	if leaf, ok := aliasMap[word]; ok && leaf != nil && leaf.cmd != nil {
		cmd := *leaf.cmd
		m.enqueueCommand(root, up, cmd, splitRoute(cmd.Route), args)
		return
	}

	cur, ok := rootNode.child(word)
	if !ok {
		// Groups see commands meant for other bots; stay quiet there.
		if !msg.IsGroup || addressed {
			_, _ = m.sender.SendText(root, chat, "Unknown command. Try /help", nil)
		}
		return
	}
	path := []string{word}
	for len(args) > 0 {
		nxt := args[0]
		if strings.HasPrefix(nxt, "-") {
			break
		}
		child, ok := cur.child(nxt)
		if !ok {
			break
		}
		cur = child
		path = append(path, child.name)
		args = args[1:]
	}

	if cur.cmd == nil {
		_, _ = m.sender.SendText(root, chat, m.helpText(path), &kit.SendOptions{DisablePreview: true, ParseMode: "HTML"})
		return
	}
	m.enqueueCommand(root, up, *cur.cmd, path, args)
}

func (m *CommandManager) enqueueCommand(root context.Context, up kit.Update, cmd Command, path []string, raw []string) {
	msg := up.Message
	chat := kit.ChatTarget{ChatID: msg.ChatID, ThreadID: msg.ThreadID}

	owner := m.isOwner(msg.From.ID)
	if cmd.Access == AccessOwnerOnly && !owner {
		_, _ = m.sender.SendText(root, chat, "This command is for bot owners only.", nil)
		return
	}

	rid := newReqID()
	reqLog := m.log.With(
		logx.String("rid", rid),
		logx.Int64("chat_id", msg.ChatID),
		logx.Int("thread_id", msg.ThreadID),
		logx.Int64("from_id", msg.From.ID),
		logx.String("cmd", cmd.Route),
	)

	pos, flags, bools := parseFlags(raw)
	req := &Request{
		Update:    up,
		Chat:      chat,
		From:      msg.From,
		ReplyTo:   msg.ReplyTo,
		IsGroup:   msg.IsGroup,
		IsOwner:   owner,
		Path:      path,
		Command:   cmd.Route,
		Args:      pos,
		RawArgs:   raw,
		Flags:     flags,
		BoolFlags: bools,
		ReqID:     rid,
		Sender:    m.sender,
		Logger:    reqLog,
	}

	timeout := cmd.Timeout
	if timeout <= 0 {
		timeout = time.Duration(m.timeout.Load())
	}

	m.mu.RLock()
	extra := m.mw
	m.mu.RUnlock()
	chain := append([]Middleware{MWRequestLog(m.log), MWPanicRecover(m.log), MWTimeout(timeout)}, extra...)
	final := Chain(cmd.Handle, chain...)

	if !m.tryEnqueue(func() { _ = final(root, req) }) {
		_, _ = m.sender.SendText(root, chat, "Busy, try again in a moment.", nil)
	}
}
