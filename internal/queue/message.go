package queue

import (
	"encoding/json"
	"errors"
	"strings"
	"time"
)

// CurrentVersion is the message schema version written by this build.
const CurrentVersion = 1

// ErrMissingDocumentID is returned when a decoded message names no document.
var ErrMissingDocumentID = errors.New("message missing documentId")

// Message asks a worker to process one document.
type Message struct {
	DocumentID string `json:"documentId"`
	RequestID  string `json:"requestId"`
	EnqueuedAt string `json:"enqueuedAt"`
	Version    int    `json:"version"`
}

// NewMessage stamps a message for documentID at now.
func NewMessage(documentID, requestID string, now time.Time) Message {
	return Message{
		DocumentID: documentID,
		RequestID:  requestID,
		EnqueuedAt: now.UTC().Format(time.RFC3339),
		Version:    CurrentVersion,
	}
}

// EncodeMessage returns the JSON representation of a message.
func EncodeMessage(msg Message) ([]byte, error) {
	return json.Marshal(msg)
}

// DecodeMessage parses a JSON payload into a Message and checks the document id.
func DecodeMessage(payload []byte) (Message, error) {
	var msg Message
	if err := json.Unmarshal(payload, &msg); err != nil {
		return Message{}, err
	}
	msg.DocumentID = strings.TrimSpace(msg.DocumentID)
	if msg.DocumentID == "" {
		return Message{}, ErrMissingDocumentID
	}
	return msg, nil
}
