package ports

import "github.com/venatrix/threatlens/internal/core/domain"

// AlertNotifier receives new high-severity report events after a pipeline
// run. Implementations must not block the pipeline: failures are logged by
// the caller and otherwise ignored.
type AlertNotifier interface {
	NotifyHighSeverityReport(report domain.Report) error
}
