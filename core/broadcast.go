package core

import "net/mail"

type (
	// BroadcastMessage is a plain announcement delivered to org members
	// through whatever channel the configured sender implements.
	BroadcastMessage struct {
		To      []mail.Address
		Subject string
		Body    string
	}

	// BroadcastService is any service that can deliver broadcast messages.
	BroadcastService interface {
		// SendMessages sends messages concurrently.
		SendMessages(messages ...*BroadcastMessage)
	}
)

func (m *BroadcastMessage) HasRecipients() bool {
	return len(m.To) > 0
}

func (m *BroadcastMessage) HasContent() bool {
	return m.Subject != "" || m.Body != ""
}
