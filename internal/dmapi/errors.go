package dmapi

import (
	"fmt"
	"strings"
)

// APIError is a failure reported inside an mtop response envelope, as
// opposed to a transport failure. It keeps the raw ret payload so callers
// can classify it.
type APIError struct {
	API string
	Ret []string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("mtop %s: %s", e.API, strings.Join(e.Ret, "; "))
}

// Code extracts the machine segment of the first ret entry, the part
// before the first "::" (e.g. "FAIL_SYS_SESSION_EXPIRED").
func (e *APIError) Code() string {
	if len(e.Ret) == 0 {
		return ""
	}
	code, _, _ := strings.Cut(e.Ret[0], "::")
	return code
}

func newAPIError(res *Res) *APIError {
	return &APIError{API: res.API, Ret: res.Ret}
}
