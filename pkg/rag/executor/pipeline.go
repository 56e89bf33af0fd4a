package executor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"safebot-be/internal/pkg/logger"
	"safebot-be/pkg/events"
	"safebot-be/pkg/rag/classifier"
	"safebot-be/pkg/rag/query"
	"safebot-be/pkg/rag/response"
	"safebot-be/pkg/rag/retriever"
	"safebot-be/pkg/store"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// FailurePolicy decides what a stage error does to the turn.
type FailurePolicy int

const (
	// FailClosed ends the turn; the caller answers with the safety reply.
	FailClosed FailurePolicy = iota
	// FailSoft runs the edge's Recover and continues.
	FailSoft
)

func (p FailurePolicy) String() string {
	if p == FailSoft {
		return "fail_soft"
	}
	return "fail_closed"
}

type StageFunc func(ctx context.Context, t *Turn) error

// Edge moves the turn from one state to the next by running Stage.
type Edge struct {
	From    State
	To      State
	Stage   StageFunc
	Policy  FailurePolicy
	Timeout time.Duration
	Recover func(t *Turn, err error)
}

// Router may send the turn from a reached state straight to a later one.
type Router func(t *Turn) (State, bool)

var ErrNoEdge = errors.New("pipeline has no edge from state")

type Config struct {
	ClassifyTimeout        time.Duration
	QueryTimeout           time.Duration
	RetrieveTimeout        time.Duration
	RespondTimeout         time.Duration
	TopK                   int
	SkipRetrievalSmallTalk bool
}

// Pipeline runs Classifier, QuerySynthesizer, Retriever and ResponseGenerator
// over a turn, in the order given by its edge table.
type Pipeline struct {
	classifier  *classifier.Classifier
	synthesizer *query.Synthesizer
	retriever   *retriever.Retriever
	generator   *response.Generator
	config      Config
	logger      logger.ILogger
	tracer      trace.Tracer

	edges  map[State]Edge
	routes map[State]Router
}

func NewPipeline(
	c *classifier.Classifier,
	s *query.Synthesizer,
	r *retriever.Retriever,
	g *response.Generator,
	config Config,
	logger logger.ILogger,
) *Pipeline {
	p := &Pipeline{
		classifier:  c,
		synthesizer: s,
		retriever:   r,
		generator:   g,
		config:      config,
		logger:      logger,
		tracer:      otel.Tracer("safebot-be/pipeline"),
		routes:      make(map[State]Router),
	}

	p.edges = make(map[State]Edge)
	for _, e := range p.table() {
		p.edges[e.From] = e
	}
	if config.SkipRetrievalSmallTalk {
		p.routes[StateClassified] = skipSmallTalk
	}
	return p
}

func (p *Pipeline) table() []Edge {
	return []Edge{
		{From: StateStart, To: StateClassified, Stage: p.classify, Policy: FailClosed, Timeout: p.config.ClassifyTimeout},
		{From: StateClassified, To: StateQuerySynthesized, Stage: p.synthesize, Policy: FailSoft, Timeout: p.config.QueryTimeout, Recover: p.fallbackQuery},
		{From: StateQuerySynthesized, To: StateRetrieved, Stage: p.retrieve, Policy: FailSoft, Timeout: p.config.RetrieveTimeout, Recover: retrievalUnavailable},
		{From: StateRetrieved, To: StateResponded, Stage: p.respond, Policy: FailSoft, Timeout: p.config.RespondTimeout, Recover: p.supportMessage},
	}
}

// Run walks the table from StateStart to StateResponded. On a FailClosed error
// the turn is answered with the safety reply and the error is returned wrapped;
// the working copy is still meant to be persisted.
func (p *Pipeline) Run(ctx context.Context, t *Turn) error {
	state := StateStart
	t.Visited = append(t.Visited[:0], state)

	for state != StateResponded {
		if route, ok := p.routes[state]; ok {
			if next, jump := route(t); jump {
				p.logger.Info("Pipeline", "Routed", map[string]interface{}{
					"thread_id": t.Conversation.ThreadId,
					"from":      state,
					"to":        next,
				})
				state = next
				t.Visited = append(t.Visited, state)
				continue
			}
		}

		edge, ok := p.edges[state]
		if !ok {
			return fmt.Errorf("%w %s", ErrNoEdge, state)
		}

		if err := p.runStage(ctx, edge, t); err != nil {
			if edge.Policy == FailClosed {
				p.logger.Error("Pipeline", "Stage failed closed", map[string]interface{}{
					"thread_id": t.Conversation.ThreadId,
					"stage":     edge.To,
					"error":     err.Error(),
				})
				t.abort(abortReason(err))
				return fmt.Errorf("stage %s: %w", edge.To, err)
			}
			p.logger.Warn("Pipeline", "Stage degraded", map[string]interface{}{
				"thread_id": t.Conversation.ThreadId,
				"stage":     edge.To,
				"error":     err.Error(),
			})
			if edge.Recover != nil {
				edge.Recover(t, err)
			}
		}

		state = edge.To
		t.Visited = append(t.Visited, state)
	}
	return nil
}

func (p *Pipeline) runStage(ctx context.Context, edge Edge, t *Turn) error {
	ctx, span := p.tracer.Start(ctx, "pipeline."+string(edge.To))
	defer span.End()
	span.SetAttributes(
		attribute.String("thread_id", t.Conversation.ThreadId),
		attribute.String("failure_policy", edge.Policy.String()),
	)

	if edge.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, edge.Timeout)
		defer cancel()
	}

	start := time.Now()
	err := edge.Stage(ctx, t)
	span.SetAttributes(attribute.Int64("duration_ms", time.Since(start).Milliseconds()))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}

func (p *Pipeline) classify(ctx context.Context, t *Turn) error {
	profile, err := p.classifier.Classify(ctx, t.Message)
	if err != nil {
		return err
	}

	if t.previous != nil && profile.Risk.Severity() < t.previous.Risk.Severity() {
		p.logger.Warn("Pipeline", "Risk downgraded", map[string]interface{}{
			"thread_id": t.Conversation.ThreadId,
			"from":      t.previous.Risk,
			"to":        profile.Risk,
		})
		t.review(events.TypeRiskDowngrade, map[string]interface{}{
			"from": string(t.previous.Risk),
			"to":   string(profile.Risk),
			"role": string(profile.Role),
		})
	}

	t.Profile = profile
	t.Conversation.Profile = &profile
	return nil
}

func (p *Pipeline) synthesize(ctx context.Context, t *Turn) error {
	q, err := p.synthesizer.Synthesize(ctx, t.Profile.Role, t.Profile.Summary)
	if err != nil {
		return err
	}
	t.Query = q
	t.Conversation.SearchQuery = q
	return nil
}

func (p *Pipeline) fallbackQuery(t *Turn, _ error) {
	t.Query = query.Fallback(t.Profile.Role, t.Profile.Summary)
	t.Conversation.SearchQuery = t.Query
}

func (p *Pipeline) retrieve(ctx context.Context, t *Turn) error {
	rc, err := p.retriever.Retrieve(ctx, t.Query, p.config.TopK)
	if err != nil {
		return err
	}
	setContext(t, rc)
	return nil
}

func retrievalUnavailable(t *Turn, _ error) {
	setContext(t, store.UnavailableContext())
}

func setContext(t *Turn, rc store.RetrievedContext) {
	t.Context = rc
	stored := rc
	t.Conversation.Context = &stored
}

func (p *Pipeline) respond(ctx context.Context, t *Turn) error {
	reply, err := p.generator.Generate(ctx, response.Request{
		History:   t.earlierHistory(),
		Profile:   t.Profile,
		Context:   t.Context,
		Message:   t.Message,
		FirstTurn: t.FirstTurn,
	})
	if err != nil {
		return err
	}

	if reply.Fallback {
		rules := make([]string, len(reply.Violations))
		for i, v := range reply.Violations {
			rules[i] = string(v.Rule)
		}
		t.review(events.TypeGenerationFallback, map[string]interface{}{
			"reason": "rewrites_exhausted",
			"rules":  rules,
			"role":   string(t.Profile.Role),
			"risk":   string(t.Profile.Risk),
		})
		t.respond(reply.Text, OutcomeTemplate)
		return nil
	}

	t.respond(reply.Text, OutcomeModel)
	return nil
}

func (p *Pipeline) supportMessage(t *Turn, err error) {
	t.review(events.TypeGenerationFallback, map[string]interface{}{
		"reason": "generation_failure",
		"role":   string(t.Profile.Role),
		"risk":   string(t.Profile.Risk),
	})
	t.respond(response.SupportMessage(t.Profile.Risk), OutcomeSupport)
}

func abortReason(err error) string {
	switch {
	case errors.Is(err, classifier.ErrSchemaViolation):
		return "schema_violation"
	case errors.Is(err, classifier.ErrUnavailable):
		return "classifier_unavailable"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	}
	return "stage_failure"
}

// skipSmallTalk sends {other, low} turns straight to Retrieved with the
// no-relevant sentinel.
func skipSmallTalk(t *Turn) (State, bool) {
	if t.Profile.Role != store.RoleOther || t.Profile.Risk != store.RiskLow {
		return "", false
	}
	t.Query = ""
	t.Conversation.SearchQuery = ""
	setContext(t, store.NoRelevantContext())
	return StateRetrieved, true
}
