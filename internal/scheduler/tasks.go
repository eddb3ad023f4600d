package scheduler

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

const TaskLeadReroute = "leads.reroute"

const TaskLeadResume = "leads.resume"

const TaskLeadReconcile = "leads.reconcile"

// LeadPayload identifies one lead for the reroute and resume tasks.
type LeadPayload struct {
	LeadID   string `json:"leadId"`
	TenantID string `json:"tenantId"`
}

func NewLeadRerouteTask(payload LeadPayload) (*asynq.Task, error) {
	return newLeadTask(TaskLeadReroute, payload)
}

func NewLeadResumeTask(payload LeadPayload) (*asynq.Task, error) {
	return newLeadTask(TaskLeadResume, payload)
}

func NewLeadReconcileTask() *asynq.Task {
	return asynq.NewTask(TaskLeadReconcile, nil)
}

func newLeadTask(typename string, payload LeadPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(typename, data), nil
}

func ParseLeadPayload(task *asynq.Task) (LeadPayload, error) {
	var payload LeadPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return LeadPayload{}, err
	}
	return payload, nil
}
