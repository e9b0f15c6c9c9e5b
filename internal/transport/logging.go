// SPDX-License-Identifier: MIT
package transport

import (
	applog "genre/internal/log"
)

var logger = applog.For("Transport")

// LoggingTransport implements the Transport interface by logging results.
type LoggingTransport struct{}

// NewLoggingTransport creates a new LoggingTransport instance.
func NewLoggingTransport() *LoggingTransport {
	logger.Debugf("Using LoggingTransport")
	return &LoggingTransport{}
}

// Send logs the received data. Results get a one-line summary; anything else
// is logged at debug level.
func (lt *LoggingTransport) Send(data any) error {
	switch r := data.(type) {
	case Result:
		lt.logResult(&r)
	case *Result:
		lt.logResult(r)
	default:
		logger.Debugf("Received (%T): %+v", data, data)
	}
	return nil
}

func (lt *LoggingTransport) logResult(r *Result) {
	if r.Error != "" {
		logger.Warnf("%s: %s", r.Source, r.Error)
		return
	}
	if len(r.Probabilities) > 0 {
		top := r.Probabilities.Top()
		logger.Infof("%s: %s (%.1f%%) in %v", r.Source, r.Label, 100*top.P, r.Elapsed)
		return
	}
	logger.Infof("%s: %s in %v", r.Source, r.Label, r.Elapsed)
}

// Close is a no-op for LoggingTransport.
func (lt *LoggingTransport) Close() error {
	return nil
}

// Ensure LoggingTransport satisfies the interface at compile time.
var _ Transport = (*LoggingTransport)(nil)
