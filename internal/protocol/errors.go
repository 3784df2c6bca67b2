package protocol

const (
	// Oracle boundary.
	ErrMalformedResponse = "E_MALFORMED_RESPONSE"
	ErrOracle            = "E_ORACLE"
	ErrTimeout           = "E_TIMEOUT"

	// Message validation.
	ErrInvalidRecipient   = "E_INVALID_RECIPIENT"
	ErrInvalidMessageType = "E_INVALID_MESSAGE_TYPE"

	// Action validation.
	ErrInvalidTarget = "E_INVALID_TARGET"
	ErrNoPermission  = "E_NO_PERMISSION"

	// Arbitration.
	ErrUnknownAgent = "E_UNKNOWN_AGENT"

	// A provider panicked; only that agent's contribution is dropped.
	ErrInternal = "E_INTERNAL"
)

var knownCodes = map[string]struct{}{
	ErrMalformedResponse:  {},
	ErrOracle:             {},
	ErrTimeout:            {},
	ErrInvalidRecipient:   {},
	ErrInvalidMessageType: {},
	ErrInvalidTarget:      {},
	ErrNoPermission:       {},
	ErrUnknownAgent:       {},
	ErrInternal:           {},
}

func IsKnownCode(code string) bool {
	_, ok := knownCodes[code]
	return ok
}

// IsFatalCode reports whether a fault with this code aborts the round.
func IsFatalCode(code string) bool {
	switch code {
	case ErrUnknownAgent:
		return true
	}
	return false
}
