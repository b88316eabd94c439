package validators

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	pkgerrors "github.com/angelmondragon/escrowpay-backend/pkg/errors"
)

// maxBodyBytes bounds every JSON request body. Money requests are small; a
// larger body is either a mistake or abuse.
const maxBodyBytes = 64 << 10

// DecodeJSONBody decodes a required JSON body into dest and runs the struct
// validation tags. Unknown fields are rejected.
func DecodeJSONBody(r *http.Request, dest any) error {
	return decode(r, dest, false)
}

// DecodeOptionalJSONBody is DecodeJSONBody for endpoints whose body may be omitted.
func DecodeOptionalJSONBody(r *http.Request, dest any) error {
	return decode(r, dest, true)
}

func decode(r *http.Request, dest any, allowEmpty bool) error {
	if r.Body == nil {
		r.Body = http.NoBody
	}
	defer func() {
		_, _ = io.Copy(io.Discard, r.Body)
	}()

	limited := &io.LimitedReader{R: r.Body, N: maxBodyBytes + 1}
	decoder := json.NewDecoder(limited)
	decoder.DisallowUnknownFields()
	err := decoder.Decode(dest)
	switch {
	case limited.N <= 0:
		return pkgerrors.New(pkgerrors.CodeValidation, "request body too large").
			WithDetails(map[string]any{"max_bytes": maxBodyBytes})
	case errors.Is(err, io.EOF) && allowEmpty:
	case errors.Is(err, io.EOF):
		return pkgerrors.New(pkgerrors.CodeValidation, "request body required")
	case err != nil:
		return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid request body").
			WithDetails(map[string]any{"error": err.Error()})
	}
	if err := validate.Struct(dest); err != nil {
		return formatValidationErrors(err)
	}
	return nil
}
