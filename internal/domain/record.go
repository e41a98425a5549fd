package domain

import "time"

// TypeInteraction is the record type discriminator carried by every
// exported record.
const TypeInteraction = "interaction"

// DateLayout is the calendar-date format used for output file names and
// the persisted watermark.
const DateLayout = "2006-01-02"

// Interaction is one exported chat interaction record, an immutable
// snapshot of what the document store returned for a day's window.
type Interaction struct {
	ID                string
	ConversationID    string
	CreatedAt         time.Time
	Sender            string
	SenderDisplayName string
	Tokens            *int
	PrincipalName     string
	Deleted           *bool
	Status            string
	Type              string
}
