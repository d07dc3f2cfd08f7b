package events

// Severity tags a service status message.
type Severity string

const (
	SeverityInfo    Severity = "info"
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

// ServiceStatus reports a named service's lifecycle state. It is the
// only asynchronous error channel in the system; failures surface here
// with error severity rather than through return values.
type ServiceStatus struct {
	ServiceName string   `json:"service_name"`
	Status      string   `json:"status"`
	Message     string   `json:"message,omitempty"`
	Severity    Severity `json:"severity,omitempty"`
}

func (ServiceStatus) Topic() Topic { return TopicServiceStatus }

func (e ServiceStatus) Payload() Payload {
	payload := Payload{"service_name": e.ServiceName, "status": e.Status}
	if e.Message != "" {
		payload["message"] = e.Message
	}
	if e.Severity != "" {
		payload["severity"] = string(e.Severity)
	}
	return payload
}

// ParseServiceStatus decodes a service.status_update payload.
func ParseServiceStatus(payload Payload) (ServiceStatus, error) {
	return ServiceStatus{
		ServiceName: payload.stringField("service_name"),
		Status:      payload.stringField("status"),
		Message:     payload.stringField("message"),
		Severity:    Severity(payload.stringField("severity")),
	}, nil
}
