package email

const (
	subjectSyncFailedFmt    = "Lead %s could not be delivered to the CRM"
	subjectRoutingFailedFmt = "Lead %s has no vendor"
	subjectAlertFmt         = "Lead %s needs attention"
)
