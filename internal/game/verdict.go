package game

type VerdictKind int

const (
	VerdictAccept VerdictKind = iota
	VerdictRetry
	VerdictDisconnect
)

// Verdict is the three-way outcome of a guard: accept the event, refuse it
// and let the sender retry, or disconnect the sender for a protocol
// violation. The dispatcher applies the recovery uniformly.
type Verdict struct {
	Kind   VerdictKind
	Reason string
}

func Accept() Verdict { return Verdict{Kind: VerdictAccept} }

func Retry(reason string) Verdict { return Verdict{Kind: VerdictRetry, Reason: reason} }

func Disconnect(reason string) Verdict {
	return Verdict{Kind: VerdictDisconnect, Reason: reason}
}
