package referral

import "github.com/bedlink/bedlink/internal/platform/apperr"

type Status string

const (
	// StatusNone is the state before a referral exists; only create leaves it.
	StatusNone      Status = ""
	StatusPending   Status = "pending"
	StatusAccepted  Status = "accepted"
	StatusRejected  Status = "rejected"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
)

// Statuses lists every persisted status.
var Statuses = []Status{StatusPending, StatusAccepted, StatusRejected, StatusCompleted, StatusCancelled}

func (s Status) Valid() bool {
	for _, st := range Statuses {
		if s == st {
			return true
		}
	}
	return false
}

// Terminal reports whether no action leaves s.
func (s Status) Terminal() bool {
	return len(transitions[s]) == 0
}

type Action string

const (
	ActionCreate   Action = "create"
	ActionAccept   Action = "accept"
	ActionReject   Action = "reject"
	ActionComplete Action = "complete"
	ActionCancel   Action = "cancel"
)

var Actions = []Action{ActionCreate, ActionAccept, ActionReject, ActionComplete, ActionCancel}

// Party is the side of a referral allowed to perform an action.
type Party string

const (
	PartySender   Party = "sender"
	PartyReceiver Party = "receiver"
)

type Transition struct {
	Next  Status
	Party Party
}

// transitions is the complete referral state machine. Any (status, action)
// pair missing from it is illegal.
var transitions = map[Status]map[Action]Transition{
	StatusNone: {
		ActionCreate: {Next: StatusPending, Party: PartySender},
	},
	StatusPending: {
		ActionAccept: {Next: StatusAccepted, Party: PartyReceiver},
		ActionReject: {Next: StatusRejected, Party: PartyReceiver},
		ActionCancel: {Next: StatusCancelled, Party: PartySender},
	},
	StatusAccepted: {
		ActionComplete: {Next: StatusCompleted, Party: PartyReceiver},
		ActionCancel:   {Next: StatusCancelled, Party: PartySender},
	},
	StatusRejected: {
		ActionCancel: {Next: StatusCancelled, Party: PartySender},
	},
	StatusCompleted: {},
	StatusCancelled: {},
}

// PartyFor returns who may perform action, whatever the current status.
func PartyFor(action Action) (Party, bool) {
	for _, byAction := range transitions {
		if t, ok := byAction[action]; ok {
			return t.Party, true
		}
	}
	return "", false
}

// Next looks up the transition for action from status.
func Next(from Status, action Action) (Transition, error) {
	t, ok := transitions[from][action]
	if !ok {
		return Transition{}, apperr.InvalidTransition(string(action), string(from))
	}
	return t, nil
}
