package business

// ValidationResult is the soft-failure outcome of validating an operation.
// Authorization failures set SigFailed instead of aborting, so a
// coordinator can pre-flight a request and distinguish "unauthorized" from
// "malformed" (which is a hard error). ValidAfter/ValidUntil bound the
// window in which a successful validation remains usable; zero ValidUntil
// means unbounded.
type ValidationResult struct {
	SigFailed  bool   `json:"sig_failed"`
	ValidAfter uint64 `json:"valid_after"`
	ValidUntil uint64 `json:"valid_until"`
}

// ValidationFailed is the sentinel returned whenever the operation's
// signature or scope did not authorize the requested action.
var ValidationFailed = ValidationResult{SigFailed: true}

// OK reports whether validation succeeded and is usable at time now.
func (r ValidationResult) OK(now uint64) bool {
	if r.SigFailed || now < r.ValidAfter {
		return false
	}
	return r.ValidUntil == 0 || now < r.ValidUntil
}
