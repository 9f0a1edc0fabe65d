package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/hackgods/clinic-booking-agent/internal/llm"
	"github.com/hackgods/clinic-booking-agent/internal/observability"
	"github.com/hackgods/clinic-booking-agent/internal/registry"
	"github.com/hackgods/clinic-booking-agent/internal/session"
)

var ErrEmptyMessage = errors.New("message is required")

const (
	DefaultTimeout       = 30 * time.Second
	DefaultMaxToolRounds = 5

	// ApologyReply is sent when the language model cannot be reached.
	ApologyReply = "Desculpe, estou com dificuldades para responder agora. Por favor, tente novamente em instantes."

	exhaustedReply = "Desculpe, não consegui concluir sua solicitação. Pode reformular o pedido?"
)

type Reply struct {
	SessionID string   `json:"session_id"`
	Text      string   `json:"reply"`
	Degraded  bool     `json:"degraded"`
	ToolsUsed []string `json:"tools_used,omitempty"`
}

// Orchestrator runs one conversational exchange: it renders the session
// context, lets the model call tools, and records the finished turn.
type Orchestrator struct {
	client    llm.Client
	sessions  session.Store
	executor  *Executor
	timeout   time.Duration
	maxRounds int
	maxTokens int32
	now       func() time.Time
	loc       *time.Location
	logger    zerolog.Logger
	metrics   *observability.Metrics
	tracer    trace.Tracer
}

type Option func(*Orchestrator)

// WithTimeout bounds the whole model exchange of one Handle call.
func WithTimeout(d time.Duration) Option {
	return func(o *Orchestrator) {
		if d > 0 {
			o.timeout = d
		}
	}
}

// WithMaxToolRounds caps how many tool-calling round trips one message may use.
func WithMaxToolRounds(n int) Option {
	return func(o *Orchestrator) {
		if n > 0 {
			o.maxRounds = n
		}
	}
}

func WithMaxTokens(n int32) Option {
	return func(o *Orchestrator) { o.maxTokens = n }
}

func WithClock(now func() time.Time, loc *time.Location) Option {
	return func(o *Orchestrator) {
		if now != nil {
			o.now = now
		}
		if loc != nil {
			o.loc = loc
		}
	}
}

func WithLogger(logger zerolog.Logger) Option {
	return func(o *Orchestrator) { o.logger = logger }
}

func WithMetrics(m *observability.Metrics) Option {
	return func(o *Orchestrator) { o.metrics = m }
}

func NewOrchestrator(client llm.Client, sessions session.Store, executor *Executor, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		client:    client,
		sessions:  sessions,
		executor:  executor,
		timeout:   DefaultTimeout,
		maxRounds: DefaultMaxToolRounds,
		maxTokens: 1024,
		now:       time.Now,
		loc:       time.UTC,
		logger:    zerolog.Nop(),
		tracer:    otel.Tracer("clinic.internal.agent"),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Handle answers message within sessionID. An empty sessionID starts a new
// session whose id is returned in the reply. When the model fails the reply
// is a fixed apology marked Degraded and the session is left untouched.
func (o *Orchestrator) Handle(ctx context.Context, sessionID, message string) (*Reply, error) {
	message = strings.TrimSpace(message)
	if message == "" {
		return nil, ErrEmptyMessage
	}
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		sessionID = uuid.NewString()
	}

	ctx, span := o.tracer.Start(ctx, "agent.handle", trace.WithAttributes(
		attribute.String("session.id", sessionID),
	))
	defer span.End()
	logger := observability.LoggerFromContext(ctx, o.logger).With().Str("session_id", sessionID).Logger()

	if _, err := o.sessions.GetOrCreate(ctx, sessionID); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("load session: %w", err)
	}
	history, err := o.sessions.RenderContext(ctx, sessionID)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("render session: %w", err)
	}

	text, tools, err := o.converse(ctx, history, message)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "collaborator failure")
		logger.Error().Err(err).Strs("tools_used", tools).Msg("language model exchange failed")
		return &Reply{SessionID: sessionID, Text: ApologyReply, Degraded: true, ToolsUsed: tools}, nil
	}

	// The turn is only recorded once the reply is complete.
	if err := o.sessions.AppendTurn(ctx, sessionID, message, text); err != nil {
		span.RecordError(err)
		logger.Error().Err(err).Msg("failed to record conversation turn")
	}

	span.SetAttributes(attribute.Int("agent.tools_used", len(tools)))
	logger.Info().Strs("tools_used", tools).Msg("message handled")
	return &Reply{SessionID: sessionID, Text: text, ToolsUsed: tools}, nil
}

// converse runs the tool loop. Tools execute on the caller's context so a
// model timeout never interrupts a booking already in progress.
func (o *Orchestrator) converse(ctx context.Context, history, message string) (string, []string, error) {
	llmCtx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()

	req := llm.Request{
		System:    []string{o.systemPrompt()},
		Messages:  []llm.Message{{Role: llm.RoleUser, Content: buildPrompt(history, message)}},
		Tools:     Tools(),
		MaxTokens: o.maxTokens,
	}

	var used []string
	for round := 0; round < o.maxRounds; round++ {
		resp, err := o.client.Complete(llmCtx, req)
		if err != nil {
			return "", used, fmt.Errorf("%w: %v", llm.ErrCollaboratorFailure, err)
		}
		if len(resp.ToolCalls) == 0 {
			if resp.Text == "" {
				return exhaustedReply, used, nil
			}
			return resp.Text, used, nil
		}

		results := make([]llm.ToolResult, 0, len(resp.ToolCalls))
		for _, call := range resp.ToolCalls {
			used = append(used, call.Name)
			results = append(results, o.runTool(ctx, call))
		}
		req.Messages = append(req.Messages,
			llm.Message{Role: llm.RoleAssistant, Content: resp.Text, ToolCalls: resp.ToolCalls},
			llm.Message{Role: llm.RoleUser, ToolResults: results},
		)
	}

	return exhaustedReply, used, nil
}

func (o *Orchestrator) runTool(ctx context.Context, call llm.ToolCall) llm.ToolResult {
	op, err := Decode(call)
	if err != nil {
		o.metrics.ObserveToolCall(call.Name, "invalid")
		return llm.ToolResult{
			CallID:  call.ID,
			Name:    call.Name,
			Content: fmt.Sprintf("Chamada inválida: %v. Corrija os argumentos e tente novamente.", err),
			IsError: true,
		}
	}

	res := o.executor.Execute(ctx, op)
	return llm.ToolResult{CallID: call.ID, Name: call.Name, Content: res.Content, IsError: res.IsError}
}

var weekdays = [...]string{"domingo", "segunda-feira", "terça-feira", "quarta-feira", "quinta-feira", "sexta-feira", "sábado"}

func (o *Orchestrator) systemPrompt() string {
	today := o.now().In(o.loc)
	return fmt.Sprintf(`Você é o assistente virtual de uma rede de clínicas médicas.
Hoje é %s, %s.
Ajude o paciente a encontrar médicos, agendar, consultar e cancelar consultas e a solicitar autorização de procedimentos.
Use sempre as ferramentas disponíveis; nunca invente médicos, horários ou protocolos.
Antes de agendar, confirme o médico, a data, o horário e o nome completo do paciente.
Consultas só podem ser agendadas de hoje até um mês a partir de hoje.
Ao concluir um agendamento ou uma solicitação de autorização, informe o protocolo ao paciente.
Responda em português, de forma breve e cordial.`,
		weekdays[today.Weekday()], today.Format(registry.DateLayout))
}

func buildPrompt(history, message string) string {
	if history == "" {
		return message
	}
	return "Histórico da conversa:\n" + history + "\nNova mensagem do paciente:\n" + message
}
