package cmdlog

import (
	"deltabot/internal/logging"
	"deltabot/internal/metrics"
)

// Run wraps one CLI command with run/error metrics and a closing log line.
func Run(cmd string, f func() error) error {
	metrics.CommandRuns.WithLabelValues(cmd).Inc()
	err := f()
	if err != nil {
		metrics.CommandErrors.WithLabelValues(cmd).Inc()
		logging.Error(cmd+"_error", map[string]any{"error": err.Error()})
	} else {
		logging.Info(cmd+"_ok", nil)
	}
	return err
}
