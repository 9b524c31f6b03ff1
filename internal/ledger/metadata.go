package ledger

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// Metadata is the reason-specific correlation payload of an entry. Each
// reason has exactly one shape.
type Metadata interface {
	Reason() Reason
	Validate() error
}

type JobRequestMetadata struct {
	TicketID uuid.UUID `json:"ticketId"`
	JobType  string    `json:"jobType,omitempty"`
}

func (JobRequestMetadata) Reason() Reason { return ReasonJobRequestCreated }

func (m JobRequestMetadata) Validate() error {
	if m.TicketID == uuid.Nil {
		return &ValidationError{Field: "metadata.ticketId", Msg: "required"}
	}
	return nil
}

type PayoutMetadata struct {
	TicketID  uuid.UUID `json:"ticketId"`
	CompanyID uuid.UUID `json:"companyId"`
}

func (PayoutMetadata) Reason() Reason { return ReasonDesignerJobPayout }

func (m PayoutMetadata) Validate() error {
	if m.TicketID == uuid.Nil {
		return &ValidationError{Field: "metadata.ticketId", Msg: "required"}
	}
	if m.CompanyID == uuid.Nil {
		return &ValidationError{Field: "metadata.companyId", Msg: "required"}
	}
	return nil
}

type SubscriptionMetadata struct {
	Renewal           bool       `json:"-"`
	PlanID            *uuid.UUID `json:"planId,omitempty"`
	ProviderEventID   string     `json:"providerEventId,omitempty"`
	ProviderInvoiceID string     `json:"providerInvoiceId,omitempty"`
}

func (m SubscriptionMetadata) Reason() Reason {
	if m.Renewal {
		return ReasonSubscriptionRenewal
	}
	return ReasonSubscriptionInitialCredit
}

func (m SubscriptionMetadata) Validate() error {
	if strings.TrimSpace(m.ProviderEventID) == "" {
		return &ValidationError{Field: "metadata.providerEventId", Msg: "required"}
	}
	return nil
}

type WithdrawalMetadata struct {
	Paid         bool      `json:"-"`
	WithdrawalID uuid.UUID `json:"withdrawalId"`
	ActorID      string    `json:"actorId,omitempty"`
}

func (m WithdrawalMetadata) Reason() Reason {
	if m.Paid {
		return ReasonWithdrawalPaid
	}
	return ReasonWithdraw
}

func (m WithdrawalMetadata) Validate() error {
	if m.WithdrawalID == uuid.Nil {
		return &ValidationError{Field: "metadata.withdrawalId", Msg: "required"}
	}
	return nil
}

type AdjustmentMetadata struct {
	ActorID string `json:"actorId"`
	Ref     string `json:"ref,omitempty"`
}

func (AdjustmentMetadata) Reason() Reason { return ReasonAdminAdjustment }

func (m AdjustmentMetadata) Validate() error {
	if strings.TrimSpace(m.ActorID) == "" {
		return &ValidationError{Field: "metadata.actorId", Msg: "required"}
	}
	return nil
}

func EncodeMetadata(m Metadata) ([]byte, error) {
	if m == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(m)
}

func DecodeMetadata(reason Reason, raw []byte) (Metadata, error) {
	if len(raw) == 0 {
		raw = []byte("{}")
	}
	var (
		m   Metadata
		err error
	)
	switch reason {
	case ReasonJobRequestCreated:
		var v JobRequestMetadata
		err = json.Unmarshal(raw, &v)
		m = v
	case ReasonDesignerJobPayout:
		var v PayoutMetadata
		err = json.Unmarshal(raw, &v)
		m = v
	case ReasonSubscriptionInitialCredit, ReasonSubscriptionRenewal:
		var v SubscriptionMetadata
		err = json.Unmarshal(raw, &v)
		v.Renewal = reason == ReasonSubscriptionRenewal
		m = v
	case ReasonWithdraw, ReasonWithdrawalPaid:
		var v WithdrawalMetadata
		err = json.Unmarshal(raw, &v)
		v.Paid = reason == ReasonWithdrawalPaid
		m = v
	case ReasonAdminAdjustment:
		var v AdjustmentMetadata
		err = json.Unmarshal(raw, &v)
		m = v
	default:
		return nil, &ValidationError{Field: "reason", Msg: "unknown reason code " + string(reason)}
	}
	if err != nil {
		return nil, fmt.Errorf("decode %s metadata: %w", reason, err)
	}
	return m, nil
}
