package worker

import (
	"github.com/spec-kit/report-router/internal/service"
)

// StartAuditWorker registers the audit handlers on the event dispatcher.
func StartAuditWorker(auditService *service.AuditService) {
	if auditService == nil {
		return
	}
	auditService.RegisterHandlers()
}
