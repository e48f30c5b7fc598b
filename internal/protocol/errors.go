package protocol

const (
	// Protocol/transport validation.
	ErrProtoBadRequest = "E_PROTO_BAD_REQUEST"

	// Request layer.
	ErrBadRequest    = "E_BAD_REQUEST"
	ErrUnknownAction = "E_UNKNOWN_ACTION"
	ErrBusy          = "E_BUSY"
	ErrUnknownPoint  = "E_UNKNOWN_POINT"
	ErrUnknownValue  = "E_UNKNOWN_VALUE"
	ErrSaveFailed    = "E_SAVE_FAILED"
	ErrInternal      = "E_INTERNAL"
)

var knownCodes = map[string]struct{}{
	ErrProtoBadRequest: {},
	ErrBadRequest:      {},
	ErrUnknownAction:   {},
	ErrBusy:            {},
	ErrUnknownPoint:    {},
	ErrUnknownValue:    {},
	ErrSaveFailed:      {},
	ErrInternal:        {},
}

func IsKnownCode(code string) bool {
	if code == "" {
		return true
	}
	_, ok := knownCodes[code]
	return ok
}
