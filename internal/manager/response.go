package manager

import (
	"encoding/json"
	"fmt"
	"log/slog"
)

// Message statuses
const (
	StatusInfo  = "INFO"
	StatusWarn  = "WARN"
	StatusError = "ERROR"
)

// Response collects the user facing outcome of one manager operation
type Response struct {
	Messages []ResponseMessage `json:"messages"`
	Data     interface{}       `json:"data,omitempty"`
}

type ResponseMessage struct {
	Message string `json:"message"`
	Status  string `json:"status"`
}

func (r *Response) AddMessage(message string, status string) {
	r.Messages = append(r.Messages, ResponseMessage{
		Message: message,
		Status:  status,
	})
}

func (r *Response) Infof(format string, args ...any) {
	r.AddMessage(fmt.Sprintf(format, args...), StatusInfo)
}

func (r *Response) Warnf(format string, args ...any) {
	r.AddMessage(fmt.Sprintf(format, args...), StatusWarn)
}

func (r *Response) Errorf(format string, args ...any) {
	r.AddMessage(fmt.Sprintf(format, args...), StatusError)
}

func (r *Response) AddData(data interface{}) {
	r.Data = data
}

// Failed reports whether any message is a warning or an error
func (r *Response) Failed() bool {
	for _, m := range r.Messages {
		if m.Status == StatusWarn || m.Status == StatusError {
			return true
		}
	}
	return false
}

func (r *Response) ToJSON() string {
	bytes, err := json.Marshal(r)
	if err != nil {
		panic(err)
	}
	return string(bytes)
}

// LogMessages writes every message to logger at its status level
func (r *Response) LogMessages(logger *slog.Logger) {
	if logger == nil {
		logger = slog.Default()
	}
	for _, message := range r.Messages {
		switch message.Status {
		case StatusInfo:
			logger.Info(message.Message)
		case StatusWarn:
			logger.Warn(message.Message)
		case StatusError:
			logger.Error(message.Message)
		default:
			logger.Info(message.Message)
		}
	}
}
