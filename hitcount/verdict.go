package hitcount

// Reason is the machine-readable outcome of an admission decision.
type Reason string

const (
	ReasonAddressBlocked      Reason = "ADDRESS_BLOCKED"
	ReasonAgentBlocked        Reason = "AGENT_BLOCKED"
	ReasonGroupExcluded       Reason = "GROUP_EXCLUDED"
	ReasonAddressLimitReached Reason = "ADDRESS_LIMIT_REACHED"
	ReasonSessionLimitReached Reason = "SESSION_LIMIT_REACHED"
	ReasonAdmittedByAuth      Reason = "ADMITTED_BY_AUTH"
	ReasonAdmittedBySession   Reason = "ADMITTED_BY_SESSION"
)

var reasonMessages = map[Reason]string{
	ReasonAddressBlocked:      "Not counted: user IP has been blocked",
	ReasonAgentBlocked:        "Not counted: user agent has been blocked",
	ReasonGroupExcluded:       "Not counted: user group has been excluded",
	ReasonAddressLimitReached: "Not counted: hits per IP address limit reached",
	ReasonSessionLimitReached: "Not counted: hits per session limit reached.",
	ReasonAdmittedByAuth:      "Hit counted: user authentication",
	ReasonAdmittedBySession:   "Hit counted: session key",
}

// Message is the fixed human-readable text rendered to API consumers.
func (r Reason) Message() string {
	return reasonMessages[r]
}

// Admitted reports whether the reason belongs to a counted hit.
func (r Reason) Admitted() bool {
	return r == ReasonAdmittedByAuth || r == ReasonAdmittedBySession
}

// Verdict is the result of Engine.Evaluate. HitID is set only for admitted hits.
type Verdict struct {
	Admitted bool   `json:"hit_counted"`
	Message  string `json:"hit_message"`
	Reason   Reason `json:"reason"`
	HitID    uint   `json:"-"`
}

func newVerdict(r Reason) Verdict {
	return Verdict{Admitted: r.Admitted(), Message: r.Message(), Reason: r}
}
