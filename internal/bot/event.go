package bot

import "strings"

// Kind is the meaning of an inbound message independent of the step it
// arrives in.
type Kind int

const (
	KindUnknown Kind = iota
	KindTrigger
	KindBookNow
	KindDetails
	KindCategory
	KindQuantity
	KindSeat
	KindSeatsDone
	KindSeatsClear
	KindConfirmPayment
	KindCancel
	KindCancelFull
	KindCancelPartial
	KindCancelSeat
	KindCancelClear
	KindConfirmCancel
)

// Kinds lists every kind.
var Kinds = []Kind{
	KindUnknown, KindTrigger, KindBookNow, KindDetails, KindCategory, KindQuantity, KindSeat,
	KindSeatsDone, KindSeatsClear, KindConfirmPayment, KindCancel, KindCancelFull, KindCancelPartial,
	KindCancelSeat, KindCancelClear, KindConfirmCancel,
}

var kindNames = map[Kind]string{
	KindUnknown:        "unknown",
	KindTrigger:        "trigger",
	KindBookNow:        "book_now",
	KindDetails:        "details",
	KindCategory:       "category",
	KindQuantity:       "quantity",
	KindSeat:           "seat",
	KindSeatsDone:      "seats_done",
	KindSeatsClear:     "seats_clear",
	KindConfirmPayment: "confirm_payment",
	KindCancel:         "cancel",
	KindCancelFull:     "cancel_full",
	KindCancelPartial:  "cancel_partial",
	KindCancelSeat:     "cancel_seat",
	KindCancelClear:    "cancel_clear",
	KindConfirmCancel:  "confirm_cancel",
}

func (k Kind) String() string {
	if n, ok := kindNames[k]; ok {
		return n
	}
	return "unknown"
}

// Reply ids carried by the interactive messages the bot sends.  Customers
// may also type them.
const (
	idBookNow        = "BOOK_NOW"
	idCancel         = "CANCEL"
	idSeatsDone      = "SEATS_DONE"
	idSeatsClear     = "SEATS_CLEAR"
	idConfirmPayment = "CONFIRM_PAYMENT"
	idCancelFull     = "CANCEL_FULL"
	idCancelPartial  = "CANCEL_PARTIAL"
	idCancelClear    = "CANCEL_CLEAR_TICKS"
	idConfirmCancel  = "CONFIRM_CANCEL"

	prefixTrigger    = "SHOW_"
	prefixRestart    = "RESTART_"
	prefixCategory   = "CAT_"
	prefixQuantity   = "QTY_"
	prefixSeat       = "SEAT_"
	prefixCancelSeat = "CXSEAT_"
)

// restartID is the reply id of a button that restarts the flow for a show,
// whatever its keyword looks like.
func restartID(keyword string) string { return prefixRestart + keyword }

// Event is one inbound message.  Arg carries the variable part of a reply
// id (category id, quantity, seat code or the full show keyword); Text is
// the raw typed text.
type Event struct {
	ID     string
	Sender string
	Kind   Kind
	Arg    string
	Text   string
}

// ParseEvent classifies an inbound message.  An interactive reply id takes
// precedence over free text.  Typed text that matches no reply id is
// treated as a details submission, which only the details step accepts.
func ParseEvent(id, sender, text, replyID string) Event {
	ev := Event{ID: id, Sender: sender, Text: text}
	payload := strings.TrimSpace(replyID)
	typed := payload == ""
	if typed {
		payload = strings.TrimSpace(text)
	}
	upper := strings.ToUpper(payload)

	switch {
	case strings.HasPrefix(upper, prefixTrigger) && !strings.Contains(upper, "\n"):
		ev.Kind, ev.Arg = KindTrigger, upper
	case strings.HasPrefix(upper, prefixRestart) && len(upper) > len(prefixRestart) && !strings.Contains(upper, "\n"):
		ev.Kind, ev.Arg = KindTrigger, strings.TrimPrefix(upper, prefixRestart)
	case upper == idBookNow:
		ev.Kind = KindBookNow
	case upper == idCancel:
		ev.Kind = KindCancel
	case upper == idSeatsDone:
		ev.Kind = KindSeatsDone
	case upper == idSeatsClear:
		ev.Kind = KindSeatsClear
	case upper == idConfirmPayment:
		ev.Kind = KindConfirmPayment
	case upper == idCancelFull:
		ev.Kind = KindCancelFull
	case upper == idCancelPartial:
		ev.Kind = KindCancelPartial
	case upper == idCancelClear:
		ev.Kind = KindCancelClear
	case upper == idConfirmCancel:
		ev.Kind = KindConfirmCancel
	case strings.HasPrefix(upper, prefixCategory):
		ev.Kind, ev.Arg = KindCategory, strings.TrimPrefix(upper, prefixCategory)
	case strings.HasPrefix(upper, prefixQuantity):
		ev.Kind, ev.Arg = KindQuantity, strings.TrimPrefix(upper, prefixQuantity)
	case strings.HasPrefix(upper, prefixSeat):
		ev.Kind, ev.Arg = KindSeat, strings.TrimPrefix(upper, prefixSeat)
	case strings.HasPrefix(upper, prefixCancelSeat):
		ev.Kind, ev.Arg = KindCancelSeat, strings.TrimPrefix(upper, prefixCancelSeat)
	case typed && payload != "":
		ev.Kind = KindDetails
	default:
		ev.Kind = KindUnknown
	}
	return ev
}
