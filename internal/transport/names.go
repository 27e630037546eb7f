package transport

// Request methods understood by the server.
const (
	MethodGetMessengerInfo        = "getMessengerInfo"
	MethodGetConversation         = "getConversation"
	MethodGetConversationSettings = "getConversationSettings"
	MethodGetGroupSettings        = "getGroupSettings"
	MethodUpdateNotifications     = "updateNotificationSettings"
	MethodSendMessage             = "sendMessage"
	MethodEditMessage             = "editMessage"
	MethodDeleteMessages          = "deleteMessages"
	MethodForwardMessages         = "forwardMessages"
	MethodMarkMessagesRead        = "markMessagesRead"
	MethodUpdateTypingStatus      = "updateTypingStatus"
	MethodSearchContacts          = "searchContacts"
	MethodCreateGroup             = "createGroup"
	MethodInviteToGroup           = "inviteToGroup"
	MethodAddGroupMember          = "addGroupMember"
	MethodRemoveGroupMember       = "removeGroupMember"
	MethodDeleteGroup             = "deleteGroup"
)

// Inbound push names.
const (
	EventMessageNew       = "message.new"
	EventMessageConfirmed = "message.confirmed"
	EventMessageEdited    = "message.edited"
	EventMessageDeleted   = "message.deleted"
	EventMessageRead      = "message.read"
	EventTyping           = "status.typing"
	EventPresence         = "status.presence"
	EventGroupMembers     = "group.members"
)

// Events lists every push the dispatcher binds.
var Events = []string{
	EventMessageNew,
	EventMessageConfirmed,
	EventMessageEdited,
	EventMessageDeleted,
	EventMessageRead,
	EventTyping,
	EventPresence,
	EventGroupMembers,
}
