package chat

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/echolens/listening-gateway/internal/model"
	"github.com/echolens/listening-gateway/pkg/logger"
	"github.com/echolens/listening-gateway/pkg/metrics"
)

var tracer = otel.Tracer("listening-gateway/chat")

// Agent opens one streaming exchange per call, pushing events in arrival
// order. Implemented by agent.Client.
type Agent interface {
	Stream(ctx context.Context, req *model.ChatRequest, fn func(*model.StreamEvent) error) error
}

// SourceSelector reports the collections currently selected as analysis scope.
type SourceSelector interface {
	SelectedIDs() []string
}

// Hooks are the side effects the orchestrator triggers for recognized tool
// results. Either may be nil.
type Hooks struct {
	// OpenCollectionSetup surfaces an agent-proposed collection configuration
	// to the user for confirmation.
	OpenCollectionSetup func(ctx context.Context, config map[string]any)

	// SaveArtifact archives a finished insight report.
	SaveArtifact func(ctx context.Context, artifact *model.Artifact)
}

// Turn outcomes, recorded in metrics and traces.
const (
	outcomeDone           = "done"
	outcomeAgentError     = "agent_error"
	outcomeTransportError = "transport_error"
	outcomeCancelled      = "cancelled"
	outcomePrematureClose = "premature_close"
)

// Orchestrator is the only component that starts and stops turns. It enforces
// at-most-one in-flight turn per conversation and guarantees every turn leaves
// its agent message in a terminal (non-streaming) state.
type Orchestrator struct {
	store   *Store
	agent   Agent
	sources SourceSelector
	hooks   Hooks
	logger  *logger.Logger

	mu          sync.Mutex
	cancel      context.CancelFunc
	activeMsgID string
}

// NewOrchestrator creates a turn orchestrator over a transcript store.
func NewOrchestrator(store *Store, ag Agent, sources SourceSelector, hooks Hooks, log *logger.Logger) *Orchestrator {
	if log == nil {
		log = logger.NewNop()
	}
	return &Orchestrator{
		store:   store,
		agent:   ag,
		sources: sources,
		hooks:   hooks,
		logger:  log,
	}
}

// turn captures one request/response exchange after it has been admitted.
type turn struct {
	ctx      context.Context
	msgID    string
	req      *model.ChatRequest
	selected []string
}

// SendMessage runs one full turn: it supersedes any in-flight turn, records
// the user message, streams the agent response into the transcript, and blocks
// until the turn reaches a terminal state. It returns the agent message id.
//
// The turn runs on a context derived from ctx with cancellation detached, so
// the HTTP request that started the turn may complete while the stream is
// still open; only supersession or an explicit cancel ends it early. No error
// is returned: every failure mode resolves into transcript state.
func (o *Orchestrator) SendMessage(ctx context.Context, text string) string {
	t := o.begin(ctx, text)
	o.run(t)
	return t.msgID
}

// SendMessageAsync admits the turn synchronously (so the transcript already
// shows the user message and the streaming agent message) and runs the
// exchange in the background. It returns the agent message id.
func (o *Orchestrator) SendMessageAsync(ctx context.Context, text string) string {
	t := o.begin(ctx, text)
	go o.run(t)
	return t.msgID
}

// begin supersedes any in-flight turn, appends the user and agent messages,
// and gathers the request context. At most one turn is in flight afterwards.
func (o *Orchestrator) begin(ctx context.Context, text string) *turn {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.cancel != nil {
		o.cancel()
	}
	turnCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	o.cancel = cancel

	o.store.AddUserMessage(text)
	msgID := o.store.StartAgentMessage()
	o.activeMsgID = msgID

	req := &model.ChatRequest{
		Message:   text,
		SessionID: o.store.SessionID(),
	}
	if o.sources != nil {
		req.SelectedSources = o.sources.SelectedIDs()
	}

	return &turn{ctx: turnCtx, msgID: msgID, req: req, selected: req.SelectedSources}
}

func (o *Orchestrator) run(t *turn) {
	turnCtx, span := tracer.Start(t.ctx, "chat.turn")
	defer span.End()
	span.SetAttributes(attribute.String("chat.message_id", t.msgID))

	start := time.Now()
	outcome := outcomePrematureClose

	err := o.agent.Stream(turnCtx, t.req, func(ev *model.StreamEvent) error {
		// A superseding turn may have cancelled us between the decoder read
		// and this dispatch; its transcript must not receive our deltas.
		if turnCtx.Err() != nil {
			return turnCtx.Err()
		}
		o.dispatch(turnCtx, t.msgID, t.selected, ev, &outcome)
		return nil
	})

	switch {
	case err == nil:
		// Terminal events set the outcome; an EOF without done or error is a
		// premature close and the partial transcript stands as-is.
	case errors.Is(err, context.Canceled):
		outcome = outcomeCancelled
	default:
		outcome = outcomeTransportError
		o.store.AppendText(t.msgID, "\n\nConnection error: "+err.Error())
		o.logger.Warn("turn failed", zap.String("message_id", t.msgID), zap.Error(err))
	}

	// Whatever happened, the message must not be left streaming.
	o.store.FinalizeMessage(t.msgID)

	span.SetAttributes(attribute.String("chat.outcome", outcome))
	metrics.RecordTurn(outcome, time.Since(start).Seconds())
	o.logger.Info("turn finished",
		zap.String("message_id", t.msgID),
		zap.String("outcome", outcome),
		zap.Duration("duration", time.Since(start)),
	)
}

// CancelStream cancels the in-flight turn, if any, and finalizes its message.
func (o *Orchestrator) CancelStream() {
	o.mu.Lock()
	cancel, msgID := o.cancel, o.activeMsgID
	o.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if msgID != "" {
		o.store.FinalizeMessage(msgID)
	}
}

func (o *Orchestrator) dispatch(ctx context.Context, msgID string, selected []string, ev *model.StreamEvent, outcome *string) {
	metrics.StreamEventsTotal.WithLabelValues(string(ev.Type)).Inc()

	switch ev.Type {
	case model.EventTypeText:
		o.store.AppendText(msgID, ev.Content)

	case model.EventTypeToolCall:
		if ev.Metadata == nil {
			return
		}
		name := ev.Metadata.Name
		o.store.AddToolCall(msgID, name, ToolDisplayText(name))
		metrics.ToolCallsTotal.WithLabelValues(name).Inc()

	case model.EventTypeToolResult:
		if ev.Metadata == nil {
			return
		}
		o.store.ResolveToolCall(msgID, ev.Metadata.Name)
		o.handleToolResult(ctx, msgID, selected, ev.Metadata.Name, ev.Metadata.Result)

	case model.EventTypeDone:
		o.store.SetSessionID(ev.SessionID)
		o.store.FinalizeMessage(msgID)
		*outcome = outcomeDone

	case model.EventTypeError:
		o.store.AppendText(msgID, "\n\nError: "+ev.Content)
		o.store.FinalizeMessage(msgID)
		*outcome = outcomeAgentError

	default:
		o.logger.Debug("ignoring unknown stream event", zap.String("event_type", string(ev.Type)))
	}
}

// handleToolResult inspects recognized tool/result shapes and surfaces cards
// and side effects. Unrecognized results only resolve their indicator.
func (o *Orchestrator) handleToolResult(ctx context.Context, msgID string, selected []string, name string, result map[string]any) {
	switch {
	case IsResearchDesignResult(name, result):
		o.store.AddCard(msgID, model.Card{Type: model.CardResearchDesign, Data: result})
		if o.hooks.OpenCollectionSetup != nil {
			config, _ := result["config"].(map[string]any)
			o.hooks.OpenCollectionSetup(ctx, config)
		}

	case IsInsightResult(name, result):
		o.store.AddCard(msgID, model.Card{Type: model.CardInsightSummary, Data: result})
		if o.hooks.SaveArtifact != nil {
			narrative, _ := result["narrative"].(string)
			data, _ := result["data"].(map[string]any)
			o.hooks.SaveArtifact(ctx, &model.Artifact{
				Type:      model.ArtifactTypeInsightReport,
				Title:     "Insight Report",
				Narrative: narrative,
				Data:      data,
				SourceIDs: selected,
				CreatedAt: time.Now(),
			})
		}

	case IsProgressResult(name, result):
		o.store.AddCard(msgID, model.Card{Type: model.CardProgress, Data: result})

	case IsDataExportResult(name, result):
		o.store.AddCard(msgID, model.Card{Type: model.CardDataExport, Data: result})
	}
}
