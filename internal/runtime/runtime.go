package runtime

import (
	"context"
	"fmt"
	"time"

	"concierge/internal/audit"
	"concierge/internal/backend"
	"concierge/internal/config"
	"concierge/internal/guardrails"
	"concierge/internal/kb"
	"concierge/internal/llm"
	"concierge/internal/logging"
	"concierge/internal/validate"
)

// Backend is the slice of the backend API the actions use.
type Backend interface {
	CreateBooking(ctx context.Context, booking map[string]any) backend.Result
	GetBooking(ctx context.Context, bookingID string) backend.Result
	CancelBooking(ctx context.Context, bookingID string) backend.Result
	RescheduleBooking(ctx context.Context, bookingID string, change map[string]any) backend.Result
	CheckAvailability(ctx context.Context, date, service string) backend.Result
	ScheduleMeeting(ctx context.Context, meeting map[string]any) backend.Result
	GetAvailableMeetingTimes(ctx context.Context, date, duration string) backend.Result
	RequestCallback(ctx context.Context, callback map[string]any) backend.Result
}

// Configs yields the task configuration snapshots.
type Configs interface {
	Booking(ctx context.Context) config.BookingTaskConfig
	Meeting(ctx context.Context) config.MeetingTaskConfig
	Cancel(ctx context.Context) config.CancelTaskConfig
	Reschedule(ctx context.Context) config.RescheduleTaskConfig
	Check(ctx context.Context) config.CheckTaskConfig
	Bot(ctx context.Context) config.BotConfig
	LLM(ctx context.Context) config.LLMConfig
}

// Searcher retrieves knowledge base chunks.
type Searcher interface {
	SearchAll(ctx context.Context, query string, opts kb.SearchOptions) ([]kb.Result, error)
}

// Generator produces LLM replies.
type Generator interface {
	Generate(ctx context.Context, userMessage, kbContext string) llm.Result
}

// Auditor records action and interaction events.
type Auditor interface {
	LogAction(ctx context.Context, event audit.Event)
	LogInteraction(ctx context.Context, in audit.Interaction)
}

// ActionFunc runs one named action against the current turn.
type ActionFunc func(ctx context.Context, tc *TurnContext) (Output, error)

// Runtime wires the actions to their dependencies and dispatches by name.
type Runtime struct {
	configs Configs
	backend Backend
	kb      Searcher
	guard   *guardrails.Evaluator
	llm     Generator
	audit   Auditor
	log     logging.Logger
	now     func() time.Time

	actions map[string]ActionFunc
}

// Options carries the runtime dependencies.
type Options struct {
	Configs   Configs
	Backend   Backend
	Knowledge Searcher
	Guard     *guardrails.Evaluator
	LLM       Generator
	Audit     Auditor
	Now       func() time.Time
}

// New creates the runtime and registers every action.
func New(opts Options) *Runtime {
	rt := &Runtime{
		configs: opts.Configs,
		backend: opts.Backend,
		kb:      opts.Knowledge,
		guard:   opts.Guard,
		llm:     opts.LLM,
		audit:   opts.Audit,
		log:     logging.NewComponentLogger("runtime"),
		now:     opts.Now,
	}
	if rt.now == nil {
		rt.now = time.Now
	}
	if rt.guard == nil {
		rt.guard = guardrails.NewEvaluator(guardrails.DefaultThresholds())
	}
	rt.registerActions()
	return rt
}

func (rt *Runtime) register(name string, fn ActionFunc) {
	if rt.actions == nil {
		rt.actions = make(map[string]ActionFunc)
	}
	if _, exists := rt.actions[name]; exists {
		panic(fmt.Sprintf("action %s registered twice", name))
	}
	rt.actions[name] = fn
}

func (rt *Runtime) registerActions() {
	rt.register("action_book_service", rt.bookService)
	rt.register("action_check_availability", rt.checkAvailability)
	rt.register("action_cancel_booking", rt.cancelBooking)
	rt.register("action_reschedule_booking", rt.rescheduleBooking)
	rt.register("action_check_booking_status", rt.checkBookingStatus)
	rt.register("action_schedule_meeting", rt.scheduleMeeting)
	rt.register("action_get_available_meeting_times", rt.availableMeetingTimes)
	rt.register("action_answer_question", rt.answerQuestion)
	rt.register("action_search_knowledge_base", rt.searchKnowledgeBase)
	rt.register("action_llm_response", rt.llmResponse)
	rt.register("action_llm_fallback", rt.llmFallback)
	rt.register("action_handoff_to_human", rt.handoffToHuman)
	rt.register("action_reset_slots", rt.resetSlots)
	rt.register("action_extract_date", rt.extractDate)
	rt.register("action_extract_time", rt.extractTime)
	rt.register("action_log_interaction", rt.logInteraction)
	rt.register("action_collect_callback_info", rt.collectCallbackInfo)
	rt.register("validate_book_service_form", rt.validateBookingForm)
	rt.register("validate_schedule_meeting_form", rt.validateMeetingForm)
}

// ActionNames lists the registered actions, used by the webhook for
// discovery responses.
func (rt *Runtime) ActionNames() []string {
	names := make([]string, 0, len(rt.actions))
	for name := range rt.actions {
		names = append(names, name)
	}
	return names
}

// Dispatch runs the named action. Action panics and errors degrade to an
// apology so one bad turn never kills the conversation.
func (rt *Runtime) Dispatch(ctx context.Context, name string, tc *TurnContext) (Output, error) {
	fn, ok := rt.actions[name]
	if !ok {
		return Output{}, fmt.Errorf("unknown action %q", name)
	}

	out, err := fn(ctx, tc)
	if err != nil {
		rt.log.Error("action %s failed: %v", name, err)
		rt.auditEvent(ctx, audit.Event{
			Action:         name,
			ConversationID: tc.SenderID,
			Status:         audit.StatusException,
			Error:          err.Error(),
		})
		out.Reply("Sorry, something went wrong on our side. Please try again in a moment.")
		return out, nil
	}
	return out, nil
}

func (rt *Runtime) auditEvent(ctx context.Context, event audit.Event) {
	if rt.audit != nil {
		rt.audit.LogAction(ctx, event)
	}
}

// taskDisabledMessage is sent when a gated task is switched off.
const taskDisabledMessage = "This feature is currently unavailable. Is there anything else I can help you with?"

// outsideHoursMessage is sent when a gated task is asked for outside the
// configured service window.
const outsideHoursMessage = "I'm sorry, this service is not available right now. Please try during our business hours or contact us directly."

// serviceOpen reports whether the local clock falls inside the configured
// window. Unset or malformed hours never block the task.
func (rt *Runtime) serviceOpen(hours config.BusinessHours) bool {
	if hours.Start == "" || hours.End == "" {
		return true
	}
	if _, _, err := validate.ParseClock(hours.Start); err != nil {
		return true
	}
	if _, _, err := validate.ParseClock(hours.End); err != nil {
		return true
	}
	now := rt.now()
	return validate.WithinBusinessHours(now.Hour(), now.Minute(), hours.Start, hours.End)
}

// gateBooking checks the booking task switch and service window.
func (rt *Runtime) gateBooking(ctx context.Context, out *Output) bool {
	cfg := rt.configs.Booking(ctx)
	if !cfg.Enabled {
		out.Reply(taskDisabledMessage)
		return false
	}
	if !rt.serviceOpen(cfg.Hours) {
		out.Reply(outsideHoursMessage)
		return false
	}
	return true
}

func (rt *Runtime) gateMeeting(ctx context.Context, out *Output) bool {
	cfg := rt.configs.Meeting(ctx)
	if !cfg.Enabled {
		out.Reply(taskDisabledMessage)
		return false
	}
	if !rt.serviceOpen(cfg.Hours) {
		out.Reply(outsideHoursMessage)
		return false
	}
	return true
}
