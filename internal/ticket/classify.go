package ticket

import (
	"errors"

	"github.com/sodargreen/dm-ticket/internal/dmapi"
)

// ErrorKind is the control-flow classification of a gateway failure.
type ErrorKind int

const (
	// KindOther covers unrecognised failures; retried within the burst budget.
	KindOther ErrorKind = iota
	// KindSystemBusy means the session is rate-limited or invalidated;
	// fatal to the run without re-authentication.
	KindSystemBusy
	// KindProductExpired means the resolved item/sku is stale; recoverable
	// by polling returned inventory.
	KindProductExpired
)

func (k ErrorKind) String() string {
	switch k {
	case KindSystemBusy:
		return "system_busy"
	case KindProductExpired:
		return "product_expired"
	default:
		return "other"
	}
}

// kindByCode is the closed mapping from mtop ret codes to kinds. Codes not
// listed here classify as Other; the table never guesses.
var kindByCode = map[string]ErrorKind{
	"FAIL_SYS_TRAFFIC_LIMIT":   KindSystemBusy,
	"FAIL_SYS_SESSION_EXPIRED": KindSystemBusy,
	"B-00203-200-034":          KindProductExpired,
}

// Classify maps a gateway failure to the kind driving retry decisions.
// Transport errors and unknown ret codes are Other.
func Classify(err error) ErrorKind {
	var apiErr *dmapi.APIError
	if errors.As(err, &apiErr) {
		if kind, ok := kindByCode[apiErr.Code()]; ok {
			return kind
		}
	}
	return KindOther
}
