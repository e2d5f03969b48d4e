package protocol

const (
	// Protocol/transport validation.
	ErrProtoBadRequest = "E_PROTO_BAD_REQUEST"
	ErrProtoVersion    = "E_PROTO_VERSION"

	// Session routing/state.
	ErrSessionEnded   = "E_SESSION_ENDED"
	ErrSessionFailed  = "E_SESSION_FAILED"
	ErrSessionNoState = "E_SESSION_NO_STATE"

	// Command layer.
	ErrBadRequest = "E_BAD_REQUEST"
	ErrQueueFull  = "E_QUEUE_FULL"
	ErrInternal   = "E_INTERNAL"
)

var knownCodes = map[string]struct{}{
	ErrProtoBadRequest: {},
	ErrProtoVersion:    {},
	ErrSessionEnded:    {},
	ErrSessionFailed:   {},
	ErrSessionNoState:  {},
	ErrBadRequest:      {},
	ErrQueueFull:       {},
	ErrInternal:        {},
}

func IsKnownCode(code string) bool {
	if code == "" {
		return true
	}
	_, ok := knownCodes[code]
	return ok
}
