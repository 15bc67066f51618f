package cops

import "errors"

// BadRequest is returned for an inbound request that is not a well-formed
// COPS call. Reason is safe to show to the client.
type BadRequest struct {
	Reason string
}

func (e *BadRequest) Error() string {
	return "bad request: " + e.Reason
}

func badRequest(reason string) error {
	return &BadRequest{Reason: reason}
}

// IsBadRequest reports whether err is or wraps a *BadRequest.
func IsBadRequest(err error) bool {
	var br *BadRequest
	return errors.As(err, &br)
}
