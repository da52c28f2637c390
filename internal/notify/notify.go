// Package notify implements the notification taxonomy: every recoverable
// condition the buffer hits (eviction, split, detachment, save progress) is
// surfaced as a typed, severity-tagged event instead of a log line, so a
// host editor can route it to a status bar, toast, or log file.
package notify

import (
	"log/slog"
	"time"

	"gopkg.in/yaml.v3"
)

type Severity string

const (
	SeverityInfo    Severity = "info"
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
	SeverityDebug   Severity = "debug"
)

type Type string

const (
	BufferContentLoaded Type = "buffer_content_loaded"
	FileModifiedOnDisk  Type = "file_modified_on_disk"
	SaveSkipped         Type = "save_skipped"
	AtomicSaveStarted   Type = "atomic_save_started"
	SaveCompleted       Type = "save_completed"
	DetachedSaveSummary Type = "detached_save_summary"
	BufferDetached      Type = "buffer_detached"
	PageSplit           Type = "page_split"
	PageMerged          Type = "page_merged"
	PageEvicted         Type = "page_evicted"
	StorageError        Type = "storage_error"
	PageDataUnavailable Type = "page_data_unavailable"
	EmergencyMissing    Type = "emergency_missing_data"
	TempCleanup         Type = "temp_cleanup"
	TempCleanupFailed   Type = "temp_cleanup_failed"
)

// Notification is one entry in the taxonomy above.
type Notification struct {
	Type      Type
	Severity  Severity
	Message   string
	Metadata  map[string]any
	Timestamp time.Time
}

// Dispatcher fans a Buffer's notifications out to zero or more subscribers,
// as an instance field on the buffer facade rather than any package-level
// registry.
type Dispatcher struct {
	subs []func(Notification)
}

func NewDispatcher() *Dispatcher {
	return &Dispatcher{}
}

// Subscribe registers fn to receive every future Publish call. It is not
// safe to call concurrently with Publish (the buffer facade is single
// threaded per §5).
func (d *Dispatcher) Subscribe(fn func(Notification)) {
	d.subs = append(d.subs, fn)
}

func (d *Dispatcher) Publish(n Notification) {
	if n.Timestamp.IsZero() {
		n.Timestamp = time.Now()
	}
	for _, sub := range d.subs {
		sub(n)
	}
}

// Emit is a convenience wrapper for the common case of building and
// publishing a Notification in one call.
func (d *Dispatcher) Emit(typ Type, sev Severity, message string, metadata map[string]any) {
	d.Publish(Notification{
		Type:     typ,
		Severity: sev,
		Message:  message,
		Metadata: metadata,
	})
}

// LogDebug renders a notification's metadata as YAML for structured debug
// logging, useful when wiring a Dispatcher subscriber straight to slog
// without hand-formatting every metadata map.
func LogDebug(n Notification) {
	meta, err := yaml.Marshal(n.Metadata)
	if err != nil {
		slog.Debug("notify", "type", n.Type, "severity", n.Severity, "message", n.Message)
		return
	}
	slog.Debug("notify", "type", n.Type, "severity", n.Severity, "message", n.Message, "metadata", string(meta))
}
