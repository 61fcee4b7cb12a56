package documents

// Transition names a legal state change. Every status write in the repositories
// corresponds to exactly one of these.
type Transition string

const (
	TransitionClaim     Transition = "claim"     // pending → processing
	TransitionRetry     Transition = "retry"     // error → processing
	TransitionReprocess Transition = "reprocess" // done → processing
	TransitionComplete  Transition = "complete"  // processing → done
	TransitionFail      Transition = "fail"      // processing → error
	TransitionRecover   Transition = "recover"   // processing → pending
	TransitionRearm     Transition = "rearm"     // done|error → pending
)

type edge struct {
	from Status
	to   Status
}

var transitions = map[edge]Transition{
	{StatusPending, StatusProcessing}: TransitionClaim,
	{StatusError, StatusProcessing}:   TransitionRetry,
	{StatusDone, StatusProcessing}:    TransitionReprocess,
	{StatusProcessing, StatusDone}:    TransitionComplete,
	{StatusProcessing, StatusError}:   TransitionFail,
	{StatusProcessing, StatusPending}: TransitionRecover,
	{StatusDone, StatusPending}:       TransitionRearm,
	{StatusError, StatusPending}:      TransitionRearm,
}

// CanTransition reports whether from → to is a legal edge.
func CanTransition(from, to Status) bool {
	_, ok := transitions[edge{from, to}]
	return ok
}

// TransitionFor returns the named transition for from → to.
func TransitionFor(from, to Status) (Transition, bool) {
	t, ok := transitions[edge{from, to}]
	return t, ok
}

// claimableFrom lists the statuses a claim may start from.
func claimableFrom(allowDone bool) []Status {
	if allowDone {
		return []Status{StatusPending, StatusError, StatusDone}
	}
	return []Status{StatusPending, StatusError}
}

func transitionLabel(from, to Status) string {
	return string(from) + "->" + string(to)
}
