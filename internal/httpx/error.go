package httpx

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
)

func SafeErrMsg(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

const maxBody = 1 << 20

var ErrBadBody = errors.New("invalid request body")

// DecodeJSON reads at most 1 MiB of JSON into v and rejects unknown fields.
// An empty body leaves v untouched.
func DecodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return fmt.Errorf("%w: %v", ErrBadBody, err)
	}
	return nil
}
