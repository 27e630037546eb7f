package sync

import "github.com/matheus3301/chatsync/internal/model"

// Outcome says how a server message was merged into a conversation.
type Outcome int

const (
	// Appended means the message was new to the conversation.
	Appended Outcome = iota
	// Replaced means it confirmed a temporary message, swapped in place.
	Replaced
	// Updated means an entry with the same server id was overwritten.
	Updated
)

// Reconcile merges a server-confirmed message into conv. A temporary
// message carrying the same correlation token is replaced at its position;
// otherwise an entry with the same id is overwritten; otherwise msg is
// appended. The list never ends up holding two entries for one id.
func Reconcile(conv *model.Conversation, msg *model.Message) Outcome {
	msg.IsSendingMessage = false
	msg.IsFileUploading = false
	msg.SendFailed = false
	if conv.ReplaceByToken(msg.Token, msg) {
		return Replaced
	}
	if _, i := conv.Find(msg.ID); i >= 0 {
		conv.Messages[i] = msg
		return Updated
	}
	conv.Append(msg)
	return Appended
}
