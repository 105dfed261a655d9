// Package conversation drives one manager session end to end: the manager
// speaks through talk_to_ai, the dispatcher decides where each message goes,
// and the answers flow back to the manager until it stops.
package conversation

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"talkbot/internal/ai"
	"talkbot/internal/ai/tools"
	"talkbot/internal/config"
	"talkbot/internal/dispatch"
	"talkbot/internal/logger"
)

// Human is the person on the other end of a transport.
type Human interface {
	Deliver(ctx context.Context, msg dispatch.RoutedMessage) error
	// Await blocks until the human replies to the last delivered message.
	Await(ctx context.Context) (string, error)
}

// SummaryReceiver is implemented by transports that render the final report
// differently from regular messages.
type SummaryReceiver interface {
	DeliverSummary(ctx context.Context, report string) error
}

type Worker interface {
	Deliver(ctx context.Context, msg dispatch.RoutedMessage) (string, error)
}

// Manager is the agent that produces talk_to_ai calls. *ai.Manager is the
// production implementation.
type Manager interface {
	Begin(purpose string)
	Next(ctx context.Context) (ai.Call, error)
	Observe(call ai.Call, result string)
	Summarize(ctx context.Context) (string, error)
}

// Result describes how a session ended.
type Result struct {
	SessionID string
	State     dispatch.ConversationState
	Reason    string
	Summary   string
}

// Runner runs sessions against a shared Dispatcher. It is safe to call Run
// from many goroutines; every run gets its own manager.
type Runner struct {
	Dispatcher *dispatch.Dispatcher
	// Registry holds the functions the manager may call.
	Registry   *tools.ToolRegistry
	NewManager func() Manager
	Worker     Worker
	Dialogue   config.DialogueConfig
}

// NewRunner wires the production agents from the config.
func NewRunner(cfg *config.Config, d *dispatch.Dispatcher, p ai.Provider, registry *tools.ToolRegistry) *Runner {
	managerSettings := ai.ManagerSettings(cfg)
	return &Runner{
		Dispatcher: d,
		Registry:   registry,
		NewManager: func() Manager {
			return ai.NewManager(p, managerSettings, registry)
		},
		Worker:   ai.NewWorker(p, ai.WorkerSettings(cfg)),
		Dialogue: cfg.Dialogue,
	}
}

// Run holds a whole conversation about purpose with human. The returned
// Result is filled in as far as the session got, even on error.
func (r *Runner) Run(ctx context.Context, human Human, purpose string) (Result, error) {
	purpose = strings.TrimSpace(purpose)
	if purpose == "" {
		return Result{}, errors.New("purpose is empty")
	}

	id := dispatch.NewSessionID()
	state, err := r.Dispatcher.Open(id)
	if err != nil {
		return Result{}, err
	}
	defer r.Dispatcher.Forget(id) //nolint:errcheck

	res := Result{SessionID: id, State: state}
	logger.Infof("Session %s started: %s", id, truncate(purpose, 80))

	mgr := r.NewManager()
	mgr.Begin(purpose)

	res.Reason, err = r.loop(ctx, id, mgr, human)
	if st, stErr := r.Dispatcher.State(id); stErr == nil {
		res.State = st
	}
	if err != nil {
		logger.Errorf("Session %s failed: %v", id, err)
		return res, err
	}

	if r.Dialogue.Summarize {
		report, err := mgr.Summarize(ctx)
		if err != nil {
			return res, fmt.Errorf("summary: %w", err)
		}
		res.Summary = report
		logger.Noticef("Session %s summary ready (%d chars)", id, len(report))
		if err := deliverSummary(ctx, human, report, res.State); err != nil {
			return res, fmt.Errorf("deliver summary: %w", err)
		}
	}

	logger.Successf("Session %s finished after %d turns (%s)", id, res.State.TurnCount, res.Reason)
	return res, nil
}

// loop returns the reason the session closed.
func (r *Runner) loop(ctx context.Context, id string, mgr Manager, human Human) (string, error) {
	violations := 0

	for {
		if err := ctx.Err(); err != nil {
			r.abandon(id, dispatch.ReasonShutdown)
			return dispatch.ReasonShutdown, err
		}

		state, err := r.Dispatcher.State(id)
		if err != nil {
			return dispatch.ReasonFailure, err
		}
		if r.Dialogue.MaxTurns > 0 && state.TurnCount >= r.Dialogue.MaxTurns {
			logger.Warnf("Session %s reached the limit of %d turns", id, r.Dialogue.MaxTurns)
			r.abandon(id, dispatch.ReasonTurnLimit)
			return dispatch.ReasonTurnLimit, nil
		}

		call, err := mgr.Next(ctx)
		if err != nil {
			r.abandon(id, failureReason(ctx))
			return failureReason(ctx), fmt.Errorf("manager: %w", err)
		}

		var out dispatch.Outcome
		if _, lookupErr := r.Registry.GetTool(call.Name); lookupErr != nil {
			err = fmt.Errorf("%w: %v", dispatch.ErrSchemaViolation, lookupErr)
		} else {
			out, err = r.Dispatcher.HandleJSON(id, []byte(call.Arguments))
		}
		if err != nil {
			if !errors.Is(err, dispatch.ErrSchemaViolation) {
				return dispatch.ReasonFailure, err
			}
			violations++
			logger.Warnf("Session %s: rejected call %d/%d: %v", id, violations, r.Dialogue.MaxViolations, err)
			mgr.Observe(call, violationFeedback(err))
			if r.Dialogue.MaxViolations > 0 && violations >= r.Dialogue.MaxViolations {
				r.abandon(id, dispatch.ReasonViolation)
				return dispatch.ReasonViolation, nil
			}
			continue
		}
		violations = 0

		feedback, err := r.deliver(ctx, human, call, out)
		if err != nil {
			r.abandon(id, failureReason(ctx))
			return failureReason(ctx), err
		}
		mgr.Observe(call, feedback)

		if !out.State.Active {
			return dispatch.ReasonCompleted, nil
		}
	}
}

// deliver sends a routed message to its recipient and returns the text the
// manager gets back as the call result.
func (r *Runner) deliver(ctx context.Context, human Human, call ai.Call, out dispatch.Outcome) (string, error) {
	var msg dispatch.RoutedMessage
	switch {
	case !out.Skipped():
		msg = *out.Routed
	case !out.State.Active:
		return "Conversation closed.", nil
	case strings.TrimSpace(call.Text) != "":
		// A continuation-only call has no payload; any text next to it is the task.
		msg = dispatch.RoutedMessage{To: dispatch.RecipientAI, Message: strings.TrimSpace(call.Text), Turn: out.State.TurnCount}
	default:
		return "Nothing was routed. Call talk_to_ai with a payload to reach HUMAN or AI.", nil
	}

	switch msg.To {
	case dispatch.RecipientAI:
		answer, err := r.Worker.Deliver(ctx, msg)
		if err != nil {
			return "", fmt.Errorf("worker: %w", err)
		}
		return "AI> " + answer, nil
	case dispatch.RecipientHuman:
		if err := human.Deliver(ctx, msg); err != nil {
			return "", fmt.Errorf("deliver to human: %w", err)
		}
		if !out.State.Active {
			return "Conversation closed.", nil
		}
		reply, err := human.Await(ctx)
		if err != nil {
			return "", fmt.Errorf("await human: %w", err)
		}
		return "Human> " + strings.TrimSpace(reply), nil
	default:
		return "", fmt.Errorf("unroutable recipient %s", msg.To)
	}
}

func (r *Runner) abandon(id, reason string) {
	if _, err := r.Dispatcher.Abandon(id, reason); err != nil && !errors.Is(err, dispatch.ErrSessionClosed) {
		logger.Errorf("Failed to abandon session %s: %v", id, err)
	}
}

func deliverSummary(ctx context.Context, human Human, report string, state dispatch.ConversationState) error {
	if s, ok := human.(SummaryReceiver); ok {
		return s.DeliverSummary(ctx, report)
	}
	return human.Deliver(ctx, dispatch.RoutedMessage{
		To:      dispatch.RecipientHuman,
		Message: report,
		Turn:    state.TurnCount,
	})
}

func violationFeedback(err error) string {
	return fmt.Sprintf("Error: %v. Call talk_to_ai again with valid arguments.", err)
}

func failureReason(ctx context.Context) string {
	if ctx.Err() != nil {
		return dispatch.ReasonShutdown
	}
	return dispatch.ReasonFailure
}

func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n]) + "..."
}
