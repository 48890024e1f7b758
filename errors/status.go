package errors

import "strconv"

// Status is the signed integer every host call returns.
type Status int32

const (
	StatusOK Status = 0

	// Bridge-level contract violations.
	StatusInvalidRuntime      Status = 5001
	StatusInvalidClientRef    Status = 5002
	StatusInvalidServerRef    Status = 5003
	StatusInvalidType         Status = 5004
	StatusNullPointer         Status = 5005
	StatusInvalidArgument     Status = 5006
	StatusInvalidServerConfig Status = 5007
	StatusInvalidReference    Status = 5008

	// Operation failures.
	StatusFailed               Status = -1
	StatusStringConversion     Status = -2
	StatusConnectFailed        Status = -3
	StatusTypeMismatch         Status = -4
	StatusNoValue              Status = -5
	StatusNoResult             Status = -6
	StatusReadFailed           Status = -7
	StatusBrowseFailed         Status = -8
	StatusWriteFailed          Status = -9
	StatusSubscribeFailed      Status = -10
	StatusSubscriptionNotFound Status = -11
	StatusDisconnectTimeout    Status = -12
	StatusStartFailed          Status = -13
	StatusBufferFailed         Status = -14
)

var statusNames = map[Status]string{
	StatusOK:                   "OK",
	StatusInvalidRuntime:       "InvalidRuntime",
	StatusInvalidClientRef:     "InvalidClientRef",
	StatusInvalidServerRef:     "InvalidServerRef",
	StatusInvalidType:          "InvalidType",
	StatusNullPointer:          "NullPointer",
	StatusInvalidArgument:      "InvalidArgument",
	StatusInvalidServerConfig:  "InvalidServerConfig",
	StatusInvalidReference:     "InvalidReference",
	StatusFailed:               "Failed",
	StatusStringConversion:     "StringConversion",
	StatusConnectFailed:        "ConnectFailed",
	StatusTypeMismatch:         "TypeMismatch",
	StatusNoValue:              "NoValue",
	StatusNoResult:             "NoResult",
	StatusReadFailed:           "ReadFailed",
	StatusBrowseFailed:         "BrowseFailed",
	StatusWriteFailed:          "WriteFailed",
	StatusSubscribeFailed:      "SubscribeFailed",
	StatusSubscriptionNotFound: "SubscriptionNotFound",
	StatusDisconnectTimeout:    "DisconnectTimeout",
	StatusStartFailed:          "StartFailed",
	StatusBufferFailed:         "BufferFailed",
}

func (s Status) String() string {
	if name, ok := statusNames[s]; ok {
		return name
	}
	return "Status(" + strconv.Itoa(int(s)) + ")"
}

// OK reports whether s denotes success.
func (s Status) OK() bool { return s == StatusOK }

// BridgeLevel reports whether s is in the reserved positive range.
func (s Status) BridgeLevel() bool { return s >= 5000 && s < 6000 }
