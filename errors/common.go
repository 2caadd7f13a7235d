package errors

import "fmt"

func InvalidBodyErr(err error) error {
	return E(Invalid, "invalid request body", err)
}

func EmptyParamErr(field string) error {
	ve := ValidationErrs()
	ve.Add(field, "cannot be empty")
	return E(Invalid, "validation failed", ve.Err())
}

// InvalidErr returns a validation error with a caller-facing message.
func InvalidErr(format string, args ...any) error {
	return E(Invalid, fmt.Sprintf(format, args...), nil)
}

func NotFoundErr(what, id string) error {
	return E(NotFound, fmt.Sprintf("%s not found. id=%s", what, id), nil)
}

// UnsupportedActionErr formats the state tuple that rejected an action. Callers match on
// this message, keep it stable.
func UnsupportedActionErr(action, status, kind, protocol string, fundsReceived bool) error {
	msg := fmt.Sprintf("Action[%s] is not supported. Status[%s], kind[%s], protocol[%s], funds received[%t]",
		action, status, kind, protocol, fundsReceived)
	return E(Unsupported, msg, nil)
}

func InternalErr(msg string, err error) error {
	return E(Internal, msg, err)
}

// ConflictErr returns an error for a concurrent modification of the same record.
func ConflictErr(collection, id string) error {
	return E(Conflict, fmt.Sprintf("concurrent update of %s, id %s", collection, id), nil)
}
