// Package webhook parses payment provider notifications and verifies their
// signatures. It performs no I/O.
package webhook

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
)

const TopicPayment = "payment"

var ErrMalformed = errors.New("malformed notification")

// Request is the raw inbound delivery as the HTTP layer received it.
type Request struct {
	Header http.Header
	Query  url.Values
	Body   []byte
}

type Notification struct {
	Topic  string
	DataID string
}

func (n *Notification) IsPayment() bool {
	return n.Topic == TopicPayment
}

type notificationBody struct {
	Type   string `json:"type"`
	Topic  string `json:"topic"`
	Action string `json:"action"`
	Data   struct {
		ID json.RawMessage `json:"id"`
	} `json:"data"`
}

// Parse extracts the topic and data id. Query parameters win over the body,
// matching how the provider builds the signature manifest.
func Parse(req Request) (*Notification, error) {
	n := &Notification{
		Topic:  firstNonEmpty(req.Query.Get("type"), req.Query.Get("topic")),
		DataID: firstNonEmpty(req.Query.Get("data.id"), req.Query.Get("id")),
	}

	if n.DataID == "" || n.Topic == "" {
		body := bytes.TrimSpace(req.Body)
		if len(body) > 0 {
			var payload notificationBody
			if err := json.Unmarshal(body, &payload); err != nil {
				return nil, fmt.Errorf("%w: decode body: %v", ErrMalformed, err)
			}
			if n.Topic == "" {
				n.Topic = firstNonEmpty(payload.Type, payload.Topic, topicFromAction(payload.Action))
			}
			if n.DataID == "" {
				n.DataID = rawID(payload.Data.ID)
			}
		}
	}

	if !n.IsPayment() {
		return n, nil
	}
	if n.DataID == "" {
		return nil, fmt.Errorf("%w: missing data.id", ErrMalformed)
	}
	if !validID(n.DataID) {
		return nil, fmt.Errorf("%w: data.id %q", ErrMalformed, n.DataID)
	}
	return n, nil
}

// rawID accepts both "123" and 123.
func rawID(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var num json.Number
	if err := json.Unmarshal(raw, &num); err == nil {
		return num.String()
	}
	return ""
}

// "payment.updated" -> "payment"
func topicFromAction(action string) string {
	topic, _, _ := strings.Cut(action, ".")
	return topic
}

func validID(id string) bool {
	if len(id) > 64 {
		return false
	}
	for _, r := range id {
		switch {
		case r >= '0' && r <= '9', r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r == '-', r == '_':
		default:
			return false
		}
	}
	return true
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
