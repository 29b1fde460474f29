package model

import (
	"encoding/json"
	"fmt"

	"github.com/huddleworks/livesession/internal/bus"
)

// ErrUnknownEventType is returned by Decode for event types outside the
// catalog. The channel may carry foreign traffic; unknown types are a
// normal drop, not a fault.
type ErrUnknownEventType struct {
	Type string
}

func (e *ErrUnknownEventType) Error() string {
	return fmt.Sprintf("unknown event type %q", e.Type)
}

// Encode wraps an event into a wire envelope tagged with the sender role.
func Encode(ev Event, sender Role) (bus.Message, error) {
	payload, err := json.Marshal(ev)
	if err != nil {
		return bus.Message{}, fmt.Errorf("encode %s: %w", ev.EventType(), err)
	}
	return bus.Message{
		Type:    ev.EventType(),
		Sender:  string(sender),
		Payload: payload,
	}, nil
}

// Decode parses a wire envelope into its catalog event.
func Decode(msg bus.Message) (Event, error) {
	var ev Event
	switch msg.Type {
	case TypeSessionStart:
		ev = &SessionStart{}
	case TypeSessionPause:
		ev = &SessionPause{}
	case TypeSessionResume:
		ev = &SessionResume{}
	case TypeTimerSync:
		ev = &TimerSync{}
	case TypeRateChangeRequest:
		ev = &RateChangeRequest{}
	case TypeMultiplierChangeRequest:
		ev = &MultiplierChangeRequest{}
	case TypePricingChange:
		ev = &PricingChange{}
	case TypeMultiplierChange:
		ev = &MultiplierChange{}
	case TypeRateChangeResponse:
		ev = &RateChangeResponse{}
	case TypeMultiplierChangeResponse:
		ev = &MultiplierChangeResponse{}
	case TypeRequestCurrentValues:
		ev = &RequestCurrentValues{}
	case TypeScreenShareStarted:
		ev = &ScreenShareStarted{}
	case TypeScreenShareStopped:
		ev = &ScreenShareStopped{}
	case TypeScreenShareRequest:
		ev = &ScreenShareRequest{}
	case TypeSessionApprovalRequest:
		ev = &SessionApprovalRequest{}
	case TypePaymentCompleted:
		ev = &PaymentCompleted{}
	case TypeFileUploaded:
		ev = &FileUploaded{}
	case TypeFileDownloaded:
		ev = &FileDownloaded{}
	case TypeSessionCompleteShowReview:
		ev = &SessionCompleteShowReview{}
	case TypeRatingCompleted:
		ev = &RatingCompleted{}
	case TypeSessionEnd:
		ev = &SessionEnd{}
	case TypeSessionEnded:
		ev = &SessionEnded{}
	default:
		return nil, &ErrUnknownEventType{Type: msg.Type}
	}

	if len(msg.Payload) > 0 {
		if err := json.Unmarshal(msg.Payload, ev); err != nil {
			return nil, fmt.Errorf("decode %s: %w", msg.Type, err)
		}
	}
	return ev, nil
}
