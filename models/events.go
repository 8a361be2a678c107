package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// EventType names a business event kind the engine reacts to. One trigger
// façade function exists per type.
type EventType string

const (
	EventReturnFiled       EventType = "return_filed"
	EventLogin             EventType = "login"
	EventReferralCreated   EventType = "referral_created"
	EventReferralConverted EventType = "referral_converted"
	EventDocumentUploaded  EventType = "document_uploaded"
	EventMessageSent       EventType = "message_sent"
	EventLinkCreated       EventType = "link_created"
	EventContestEnded      EventType = "contest_ended"
	EventProfileUpdated    EventType = "profile_updated"
	EventCommissionEarned  EventType = "commission_earned"
	EventMaterialShared    EventType = "material_shared"
	EventSatisfactionRated EventType = "satisfaction_rated"
	// EventRecalculate carries no payload; it re-runs every standing query.
	EventRecalculate EventType = "recalculate"
)

// FilingEvent describes a tax return marked FILED.
type FilingEvent struct {
	ClientID string
	// FilingTimeMs is how long preparation took, in milliseconds.
	FilingTimeMs *int64
	// DaysBeforeDeadline is how far ahead of the filing deadline this was.
	DaysBeforeDeadline *int
	FiledAt            time.Time
}

// LoginEvent describes a user login. Hour defaults to the hour of the
// evaluation instant when the caller does not supply one.
type LoginEvent struct {
	Hour *int // 0..23
}

// ContestEvent describes a finished contest placement.
type ContestEvent struct {
	ContestID string
	Position  int
	Score     int64
}

// CommissionEvent describes an earned commission amount.
type CommissionEvent struct {
	Amount decimal.Decimal
	Source string
}

// Event is the typed event-data bag handed to the orchestrator. Exactly one
// payload pointer is set, matching Type; standing-query criteria ignore it.
type Event struct {
	Type       EventType
	Filing     *FilingEvent
	Login      *LoginEvent
	Contest    *ContestEvent
	Commission *CommissionEvent
}
