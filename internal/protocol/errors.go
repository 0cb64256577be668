package protocol

// Close codes (RFC 6455 section 7.4.1).
const (
	CloseNormal          = 1000
	CloseGoingAway       = 1001
	CloseProtocolError   = 1002
	CloseUnsupported     = 1003
	CloseNoStatus        = 1005
	CloseAbnormal        = 1006
	CloseInvalidPayload  = 1007
	ClosePolicyViolation = 1008
	CloseTooBig          = 1009
	CloseInternal        = 1011
)

var closeReasons = map[int]string{
	CloseNormal:          "normal",
	CloseGoingAway:       "going away",
	CloseProtocolError:   "protocol error",
	CloseUnsupported:     "unsupported data",
	CloseNoStatus:        "no status",
	CloseAbnormal:        "abnormal closure",
	CloseInvalidPayload:  "invalid payload",
	ClosePolicyViolation: "policy violation",
	CloseTooBig:          "message too big",
	CloseInternal:        "internal error",
}

// IsCleanClose reports whether a close code means an orderly shutdown.
func IsCleanClose(code int) bool {
	return code == CloseNormal
}

func CloseReason(code int) string {
	if r, ok := closeReasons[code]; ok {
		return r
	}
	if code >= 4000 && code <= 4999 {
		return "application"
	}
	return "unknown"
}
