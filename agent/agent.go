package agent

import (
	"context"
	"io"
	"log/slog"
	"time"

	"github.com/m4xw311/superagent/errors"
	"github.com/m4xw311/superagent/history"
	"github.com/m4xw311/superagent/llm"
	"github.com/m4xw311/superagent/parser"
	"github.com/m4xw311/superagent/prompt"
	"github.com/m4xw311/superagent/tools"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"
)

type Mode string

const (
	ModeAuto   Mode = "auto"
	ModePrompt Mode = "prompt"
)

type State int

const (
	StateInit State = iota
	StateRunning
	StateAwaitingUser
	StateCompleted
	StateFailed
	StateAborted
)

func (s State) String() string {
	switch s {
	case StateInit:
		return "init"
	case StateRunning:
		return "running"
	case StateAwaitingUser:
		return "awaiting_user"
	case StateCompleted:
		return "completed"
	case StateFailed:
		return "failed"
	case StateAborted:
		return "aborted"
	}
	return "unknown"
}

var (
	ErrIterationLimit = errors.Sentinel("iteration limit reached")
	ErrParseRetries   = errors.Sentinel("too many consecutive unparsable replies")
)

const nudge = "No tool was used. Respond with exactly one tool block; call attempt_completion when the task is done."

// Callbacks lets an interaction mode observe the run. Every field is
// optional.
type Callbacks struct {
	OnStateChange func(from, to State)
	OnThought     func(text string)
	OnToolCall    func(action parser.Action)
	OnToolResult  func(action parser.Action, result tools.Result)
	OnWarning     func(warning string)
}

type Options struct {
	MaxIterations     int
	MaxParseRetries   int
	TokenBudget       int
	LLMRetries        int
	RetryBackoff      time.Duration // multiplied by the attempt number
	RequestsPerMinute int           // 0 disables rate limiting
}

// Config carries the collaborators of one run. Session is closed on every
// exit path of Run.
type Config struct {
	Client    llm.LLMClient
	Parser    *parser.Parser
	Registry  *tools.Registry
	Prompt    *prompt.Builder
	History   *history.Manager
	Session   io.Closer
	Options   Options
	Callbacks Callbacks
	Logger    *slog.Logger
}

type Agent struct {
	client    llm.LLMClient
	parser    *parser.Parser
	registry  *tools.Registry
	prompt    *prompt.Builder
	history   *history.Manager
	session   io.Closer
	opts      Options
	callbacks Callbacks
	logger    *slog.Logger
	limiter   *rate.Limiter
	tracer    trace.Tracer
	state     State
}

// Outcome is the terminal result of a run.
type Outcome struct {
	State  State
	Result string
	Turns  int
	Err    error
}

// ExitCode maps the terminal state to the process exit status.
func (o Outcome) ExitCode() int {
	switch o.State {
	case StateCompleted:
		return 0
	case StateAborted:
		return 2
	}
	return 1
}

func New(cfg Config) (*Agent, error) {
	if cfg.Client == nil || cfg.Parser == nil || cfg.Registry == nil || cfg.Prompt == nil {
		return nil, errors.New("agent requires an LLM client, a parser, a tool registry and a prompt builder")
	}
	if cfg.Options.MaxIterations <= 0 || cfg.Options.MaxParseRetries <= 0 || cfg.Options.TokenBudget <= 0 {
		return nil, errors.New("agent limits must be positive: %+v", cfg.Options)
	}
	if cfg.History == nil {
		cfg.History = history.New(nil)
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	a := &Agent{
		client:    cfg.Client,
		parser:    cfg.Parser,
		registry:  cfg.Registry,
		prompt:    cfg.Prompt,
		history:   cfg.History,
		session:   cfg.Session,
		opts:      cfg.Options,
		callbacks: cfg.Callbacks,
		logger:    cfg.Logger,
		tracer:    otel.Tracer("github.com/m4xw311/superagent/agent"),
	}
	if rpm := cfg.Options.RequestsPerMinute; rpm > 0 {
		a.limiter = rate.NewLimiter(rate.Limit(float64(rpm)/60.0), 1)
	}
	return a, nil
}

// History returns the context log of the run.
func (a *Agent) History() *history.Manager {
	return a.history
}

func (a *Agent) State() State {
	return a.state
}

// Run drives the task to a terminal state. It never returns an Outcome in a
// non-terminal state.
func (a *Agent) Run(ctx context.Context, task string) (out Outcome) {
	defer a.closeSession()
	defer func() {
		a.setState(out.State)
		a.logger.Info("agent finished", "state", out.State, "turns", out.Turns, "error", out.Err)
	}()

	ctx, span := a.tracer.Start(ctx, "agent.run")
	defer span.End()

	a.history.Pin(history.Entry{Role: history.RoleSystem, Content: a.prompt.System()})
	a.history.Pin(history.Entry{Role: history.RoleTask, Content: task})
	a.setState(StateRunning)

	failures := 0
	for turn := 1; ; turn++ {
		if err := ctx.Err(); err != nil {
			return Outcome{State: StateAborted, Turns: turn - 1, Err: err}
		}
		if turn > a.opts.MaxIterations {
			return Outcome{
				State: StateAborted,
				Turns: turn - 1,
				Err:   errors.Wrapf(ErrIterationLimit, "stopped after %d turns", a.opts.MaxIterations),
			}
		}
		if out, done := a.turn(ctx, turn, &failures); done {
			if out.Err != nil {
				span.SetStatus(codes.Error, out.Err.Error())
			}
			return out
		}
	}
}

func (a *Agent) turn(ctx context.Context, n int, failures *int) (Outcome, bool) {
	ctx, span := a.tracer.Start(ctx, "agent.turn", trace.WithAttributes(attribute.Int("turn", n)))
	defer span.End()

	aborted := func(err error) (Outcome, bool) {
		return Outcome{State: StateAborted, Turns: n, Err: err}, true
	}

	if a.limiter != nil {
		if err := a.limiter.Wait(ctx); err != nil {
			return aborted(err)
		}
	}

	entries := a.history.Render(a.opts.TokenBudget)
	if dropped := a.history.Len() - len(entries); dropped > 0 {
		a.logger.Debug("context entries dropped", "turn", n, "dropped", dropped, "kept", len(entries))
	}

	reply, err := a.chat(ctx, a.prompt.Build(entries))
	if err != nil {
		if ctx.Err() != nil {
			return aborted(ctx.Err())
		}
		return Outcome{State: StateFailed, Turns: n, Err: errors.Wrapf(err, "LLM chat failed")}, true
	}

	a.history.Append(history.Entry{Role: history.RoleThought, Content: reply.Content})
	if a.callbacks.OnThought != nil {
		a.callbacks.OnThought(reply.Content)
	}

	switch r := a.parser.Parse(reply.Content).(type) {
	case parser.Failure:
		*failures++
		span.SetAttributes(attribute.String("parse", "failure"))
		a.observe("", "Your reply could not be parsed: "+r.Error()+". Respond with exactly one well-formed tool block.")
		a.warn("unparsable reply: " + r.Error())
		if *failures >= a.opts.MaxParseRetries {
			return Outcome{
				State: StateFailed,
				Turns: n,
				Err:   errors.Wrapf(ErrParseRetries, "%d in a row, last: %s", *failures, r.Error()),
			}, true
		}

	case parser.PlainThought:
		span.SetAttributes(attribute.String("parse", "thought"))
		a.observe("", nudge)

	case parser.Action:
		*failures = 0
		span.SetAttributes(attribute.String("tool", r.ToolName))
		a.history.Append(history.Entry{Role: history.RoleAction, Content: r.String(), ToolName: r.ToolName})

		result := a.dispatch(ctx, r)
		if ctx.Err() != nil {
			return aborted(ctx.Err())
		}
		a.observe(r.ToolName, result.Observation())

		if result.Fatal {
			return Outcome{State: StateFailed, Turns: n, Err: errors.Wrapf(result.Err, "%s failed", r.ToolName)}, true
		}
		if tool, ok := a.registry.GetTool(r.ToolName); ok && tool.Kind() == tools.KindCompletion && result.OK {
			return Outcome{State: StateCompleted, Result: result.Output, Turns: n}, true
		}
	}
	return Outcome{}, false
}

func (a *Agent) dispatch(ctx context.Context, action parser.Action) tools.Result {
	ctx, span := a.tracer.Start(ctx, "tool.dispatch", trace.WithAttributes(attribute.String("tool", action.ToolName)))
	defer span.End()

	if a.callbacks.OnToolCall != nil {
		a.callbacks.OnToolCall(action)
	}

	awaiting := false
	if tool, ok := a.registry.GetTool(action.ToolName); ok && tool.Kind() == tools.KindAskUser {
		awaiting = true
		a.setState(StateAwaitingUser)
	}
	result := a.registry.Dispatch(ctx, action)
	if awaiting {
		a.setState(StateRunning)
	}

	span.SetAttributes(attribute.Bool("ok", result.OK), attribute.String("error_kind", result.Error.String()))
	if !result.OK {
		span.SetStatus(codes.Error, result.Error.String())
	}
	if a.callbacks.OnToolResult != nil {
		a.callbacks.OnToolResult(action, result)
	}
	return result
}

// chat calls the model, retrying transient failures with a linear backoff.
func (a *Agent) chat(ctx context.Context, messages []llm.Message) (*llm.Message, error) {
	for attempt := 0; ; attempt++ {
		reply, err := a.client.Chat(ctx, messages)
		if err == nil {
			return reply, nil
		}
		if ctx.Err() != nil || attempt >= a.opts.LLMRetries {
			return nil, err
		}

		wait := time.Duration(attempt+1) * a.opts.RetryBackoff
		a.logger.Warn("LLM call failed, retrying", "attempt", attempt+1, "backoff", wait, "error", err)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(wait):
		}
	}
}

func (a *Agent) observe(tool, content string) {
	a.history.Append(history.Entry{Role: history.RoleObservation, Content: content, ToolName: tool})
}

func (a *Agent) warn(msg string) {
	a.logger.Warn(msg)
	if a.callbacks.OnWarning != nil {
		a.callbacks.OnWarning(msg)
	}
}

func (a *Agent) setState(s State) {
	if s == a.state {
		return
	}
	from := a.state
	a.state = s
	a.logger.Debug("agent state", "from", from, "to", s)
	if a.callbacks.OnStateChange != nil {
		a.callbacks.OnStateChange(from, s)
	}
}

func (a *Agent) closeSession() {
	if a.session == nil {
		return
	}
	if err := a.session.Close(); err != nil {
		a.logger.Warn("failed to close command session", "error", err)
	}
}
