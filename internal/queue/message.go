package queue

import "encoding/json"

// Message is one analysis.requested job handed to the worker process.
type Message struct {
	RequestID  string `json:"requestId"`
	CaseID     string `json:"caseId"`
	Phase      string `json:"phase"`
	EnqueuedAt string `json:"enqueuedAt"`
}

// EncodeMessage returns the JSON representation of a message.
func EncodeMessage(msg Message) ([]byte, error) {
	return json.Marshal(msg)
}

// DecodeMessage parses a JSON payload into a Message.
func DecodeMessage(payload []byte) (Message, error) {
	var msg Message
	if err := json.Unmarshal(payload, &msg); err != nil {
		return Message{}, err
	}
	return msg, nil
}
