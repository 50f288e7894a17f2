package domain

import "time"

// EventType names a lifecycle event sent to telemetry.
type EventType string

const (
	EventMarketDiscovered    EventType = "market_discovered"
	EventCheckpointCaptured  EventType = "checkpoint_captured"
	EventEligibilityDecided  EventType = "eligibility_decided"
	EventPhaseChanged        EventType = "phase_changed"
	EventOrderPlaced         EventType = "order_placed"
	EventOrderFilled         EventType = "order_filled"
	EventOrderCancelled      EventType = "order_cancelled"
	EventPositionOpened      EventType = "position_opened"
	EventPositionClosed      EventType = "position_closed"
	EventBankrollChanged     EventType = "bankroll_changed"
	EventAdmissionRejected   EventType = "admission_rejected"
	EventReconcileUnresolved EventType = "reconcile_unresolved"
)

// Event is one lifecycle record. Telemetry consumers never feed it back
// into trading decisions.
type Event struct {
	Type   EventType      `json:"type"`
	Ticker string         `json:"ticker"`
	At     time.Time      `json:"at"`
	Data   map[string]any `json:"data,omitempty"`
}
