package mqtt

import "fmt"

// ReturnCode is the CONNACK return code of the most recent connect attempt.
// It explains why a broker rejected a CONNECT.
type ReturnCode int

// CONNACK return codes (MQTT 3.1.1).
const (
	ReturnAccepted            ReturnCode = 0
	ReturnUnacceptableProto   ReturnCode = 1
	ReturnIdentifierRejected  ReturnCode = 2
	ReturnServerUnavailable   ReturnCode = 3
	ReturnBadUsernamePassword ReturnCode = 4
	ReturnNotAuthorized       ReturnCode = 5
)

// String returns a diagnostic label including the numeric code.
func (rc ReturnCode) String() string {
	switch rc {
	case ReturnAccepted:
		return "Connection Accepted (0)"
	case ReturnUnacceptableProto:
		return "Unacceptable Protocol (1)"
	case ReturnIdentifierRejected:
		return "ID Rejected (2)"
	case ReturnServerUnavailable:
		return "Server Unavailable (3)"
	case ReturnBadUsernamePassword:
		return "Bad Username / Password (4)"
	case ReturnNotAuthorized:
		return "Not Authorized (5)"
	default:
		return fmt.Sprintf("Unknown Return Code (%d)", int(rc))
	}
}

// ErrorCode classifies lower-level client failures. Zero is success and
// every failure is negative.
type ErrorCode int

// Client error codes.
const (
	ErrorSuccess                 ErrorCode = 0
	ErrorBufferTooShort          ErrorCode = -1
	ErrorVarnumOverflow          ErrorCode = -2
	ErrorNetworkFailedConnect    ErrorCode = -3
	ErrorNetworkTimeout          ErrorCode = -4
	ErrorNetworkFailedRead       ErrorCode = -5
	ErrorNetworkFailedWrite      ErrorCode = -6
	ErrorRemainingLengthOverflow ErrorCode = -7
	ErrorRemainingLengthMismatch ErrorCode = -8
	ErrorMissingOrWrongPacket    ErrorCode = -9
	ErrorConnectionDenied        ErrorCode = -10
	ErrorFailedSubscription      ErrorCode = -11
	ErrorSubackArrayOverflow     ErrorCode = -12
	ErrorPongTimeout             ErrorCode = -13
)

var errorCodeNames = map[ErrorCode]string{
	ErrorSuccess:                 "SUCCESS",
	ErrorBufferTooShort:          "BUFFER_TOO_SHORT",
	ErrorVarnumOverflow:          "VARNUM_OVERFLOW",
	ErrorNetworkFailedConnect:    "NETWORK_FAILED_CONNECT",
	ErrorNetworkTimeout:          "NETWORK_TIMEOUT",
	ErrorNetworkFailedRead:       "NETWORK_FAILED_READ",
	ErrorNetworkFailedWrite:      "NETWORK_FAILED_WRITE",
	ErrorRemainingLengthOverflow: "REMAINING_LENGTH_OVERFLOW",
	ErrorRemainingLengthMismatch: "REMAINING_LENGTH_MISMATCH",
	ErrorMissingOrWrongPacket:    "MISSING_OR_WRONG_PACKET",
	ErrorConnectionDenied:        "CONNECTION_DENIED",
	ErrorFailedSubscription:      "FAILED_SUBSCRIPTION",
	ErrorSubackArrayOverflow:     "SUBACK_ARRAY_OVERFLOW",
	ErrorPongTimeout:             "PONG_TIMEOUT",
}

// String returns a diagnostic label including the numeric code.
func (ec ErrorCode) String() string {
	if name, ok := errorCodeNames[ec]; ok {
		return fmt.Sprintf("%s (%d)", name, int(ec))
	}
	return fmt.Sprintf("Unknown Error Code (%d)", int(ec))
}
