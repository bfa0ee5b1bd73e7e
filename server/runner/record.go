package runner

import "github.com/nomis52/golaunch/config"

// Kind identifies the type of a log record.
type Kind string

const (
	KindStart     Kind = "start"
	KindSection   Kind = "section"
	KindInfo      Kind = "info"
	KindCommand   Kind = "command"
	KindOutput    Kind = "output"
	KindSuccess   Kind = "success"
	KindWarning   Kind = "warning"
	KindError     Kind = "error"
	KindPod       Kind = "pod"
	KindPods      Kind = "pods"
	KindService   Kind = "service"
	KindComplete  Kind = "complete"
	KindStreamEnd Kind = "stream_end"
)

// Record is one entry in an operation's log. Its position in the log is its
// sequence number.
type Record struct {
	Type    Kind   `json:"type"`
	Message string `json:"message,omitempty"`

	// Service records.
	Name        string `json:"name,omitempty"`
	URL         string `json:"url,omitempty"`
	Description string `json:"description,omitempty"`

	// Status is set on stream_end records.
	Status string `json:"status,omitempty"`
	// Success is set on the complete record of an uninstall.
	Success *bool `json:"success,omitempty"`
}

// NewRecord returns a record of the given kind.
func NewRecord(kind Kind, message string) Record {
	return Record{Type: kind, Message: message}
}

// ServiceRecord announces a reachable service.
func ServiceRecord(svc config.Service) Record {
	name := svc.Name
	if name == "" {
		name = "Service"
	}
	url := svc.URL
	if url == "" {
		url = "#"
	}
	return Record{
		Type:        KindService,
		Name:        name,
		URL:         url,
		Description: svc.Description,
	}
}

// CompleteRecord ends a deployment stream.
func CompleteRecord() Record {
	return Record{Type: KindComplete}
}

// UninstallCompleteRecord ends an uninstall stream.
func UninstallCompleteRecord(success bool) Record {
	return Record{Type: KindComplete, Success: &success}
}

// StreamEndRecord ends a follower stream with the final state.
func StreamEndRecord(state RunState) Record {
	return Record{Type: KindStreamEnd, Status: state.String()}
}

// Emitter delivers records to one observer. Implementations frame records
// for their transport.
type Emitter interface {
	Emit(Record) error
	// Heartbeat keeps an idle connection open. It carries no record.
	Heartbeat() error
}
