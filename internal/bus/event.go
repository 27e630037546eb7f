package bus

import "time"

// Event is a change notification published after the read model mutated.
type Event struct {
	Kind      string
	Timestamp time.Time
	Payload   any
}

// Change kinds published by the messenger store.
const (
	ConversationUpdated = "store.conversation.updated"
	RosterUpdated       = "store.roster.updated"
	SelectionChanged    = "store.selection.changed"
	SearchUpdated       = "store.search.updated"
	UploadProgress      = "store.upload.progress"
	ConnectionChanged   = "store.connection.changed"
	MessageSendFailed   = "store.message.send_failed"
)

// ConversationChange identifies the conversation an event refers to.
type ConversationChange struct {
	ConversationID int64
}

// UploadChange reports the progress of one upload.
type UploadChange struct {
	TempID  int64
	Percent int
}

// SendFailure reports a message the server did not accept.
type SendFailure struct {
	ConversationID int64
	Token          string
	Err            string
}
