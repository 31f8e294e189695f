package fsm

const (
	StateIdle = "idle"

	StateAwaitingName        = "awaiting_name"
	StateAwaitingCity        = "awaiting_city"
	StateAwaitingPhoneChoice = "awaiting_phone_choice"
	StateAwaitingPhone       = "awaiting_phone"

	StateAwaitingTitle       = "awaiting_title"
	StateAwaitingDescription = "awaiting_description"
	StateAwaitingPrice       = "awaiting_price"
)

const (
	EventStart       = "start"
	EventAnswer      = "answer"
	EventManualPhone = "manual_phone"
	EventCommit      = "commit"
	EventCancel      = "cancel"
)

const (
	FieldName        = "name"
	FieldCity        = "city"
	FieldPhone       = "phone"
	FieldTitle       = "title"
	FieldDescription = "description"
	FieldPrice       = "price"
)

// MenuTag names the keyboard to show under a reply. Rendering is up to the transport.
type MenuTag string

const (
	MenuMain        MenuTag = "main"
	MenuPhoneChoice MenuTag = "phone_choice"
	MenuCancel      MenuTag = "cancel"
	MenuNone        MenuTag = "none"
)

func menuTag(s string) MenuTag {
	switch MenuTag(s) {
	case MenuMain, MenuPhoneChoice, MenuCancel:
		return MenuTag(s)
	default:
		return MenuNone
	}
}
