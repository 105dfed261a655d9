package dispatch

// Phase is the lifecycle position of a session.
type Phase uint8

const (
	PhaseInit Phase = iota
	PhaseActive
	PhaseClosed
)

func (p Phase) String() string {
	switch p {
	case PhaseInit:
		return "INIT"
	case PhaseActive:
		return "ACTIVE"
	case PhaseClosed:
		return "CLOSED"
	default:
		return "UNKNOWN"
	}
}

// ConversationState is owned by the Dispatcher for the lifetime of a session.
type ConversationState struct {
	Active    bool `json:"active"`
	TurnCount int  `json:"turnCount"`
}

// NewConversationState returns the INIT state of a fresh session.
func NewConversationState() ConversationState {
	return ConversationState{Active: true}
}

func (s ConversationState) Phase() Phase {
	switch {
	case !s.Active:
		return PhaseClosed
	case s.TurnCount == 0:
		return PhaseInit
	default:
		return PhaseActive
	}
}

// RoutedMessage is a message the Dispatcher decided to deliver. Turn is the
// turn number the carrying call was accepted as.
type RoutedMessage struct {
	To      Recipient `json:"to"`
	Message string    `json:"message"`
	Turn    int       `json:"turn"`
}

// Route picks the destination for a validated call. The second result is
// false when the call carries no payload and nothing is routed.
func Route(call ToolCall, state ConversationState) (RoutedMessage, bool) {
	if call.Payload == nil {
		return RoutedMessage{}, false
	}
	return RoutedMessage{
		To:      call.Payload.To,
		Message: call.Payload.Message,
		Turn:    state.TurnCount + 1,
	}, true
}

// Advance applies an accepted call to the state.
func Advance(call ToolCall, state ConversationState) ConversationState {
	return ConversationState{
		Active:    call.Continue,
		TurnCount: state.TurnCount + 1,
	}
}
