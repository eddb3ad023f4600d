package transport

import (
	"time"

	"marine_leads_backend/internal/crmsync/advisor"
	"marine_leads_backend/internal/crmsync/domain"
)

type SyncAttempt struct {
	AttemptNumber           int                `json:"attemptNumber"`
	Operation               string             `json:"operation"`
	Endpoint                string             `json:"endpoint"`
	Payload                 map[string]any     `json:"payload"`
	ResponseStatus          int                `json:"responseStatus"`
	ErrorText               string             `json:"errorText,omitempty"`
	CorrectedPayloadApplied bool               `json:"correctedPayloadApplied"`
	Diagnosis               *advisor.Diagnosis `json:"diagnosis,omitempty"`
	AttemptedAt             time.Time          `json:"attemptedAt"`
}

type SyncAttemptsResponse struct {
	Items []SyncAttempt `json:"items"`
}

func ToSyncAttempts(items []domain.Attempt) SyncAttemptsResponse {
	out := make([]SyncAttempt, 0, len(items))
	for _, a := range items {
		out = append(out, SyncAttempt{
			AttemptNumber:           a.AttemptNumber,
			Operation:               a.Operation,
			Endpoint:                a.Endpoint,
			Payload:                 a.Payload,
			ResponseStatus:          a.ResponseStatus,
			ErrorText:               a.ErrorText,
			CorrectedPayloadApplied: a.CorrectedPayloadApplied,
			Diagnosis:               a.Diagnosis,
			AttemptedAt:             a.AttemptedAt,
		})
	}
	return SyncAttemptsResponse{Items: out}
}
