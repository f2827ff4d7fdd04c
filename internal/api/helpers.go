package api

import (
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/goccy/go-json"
	"github.com/labstack/echo/v5"

	"github.com/samcharles93/llamachat/internal/bench"
)

const maxRequestBody = 1 << 20

func writeBadRequest(c *echo.Context, msg string) error {
	return writeError(c, http.StatusBadRequest, "invalid_request_error", msg)
}

func writeError(c *echo.Context, status int, errType, msg string) error {
	return c.JSON(status, ErrorResponse{Error: ResponseError{
		Message: msg,
		Type:    errType,
	}})
}

func writeOpError(c *echo.Context, err error) error {
	status, errType := classify(err)
	return writeError(c, status, errType, err.Error())
}

// decodeJSON reads a JSON request body. An empty body decodes to the zero
// value so that every field can be optional.
func decodeJSON[T any](r io.Reader) (T, error) {
	var out T
	dec := json.NewDecoder(io.LimitReader(r, maxRequestBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&out); err != nil {
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		return out, newInvalidRequest(fmt.Sprintf("invalid JSON body: %v", err))
	}
	return out, nil
}

// resolveParams fills unset fields from defaults and rejects non-positive
// values.
func resolveParams(req BenchmarkRequest, defaults bench.Params) (bench.Params, error) {
	p := defaults
	for _, f := range []struct {
		name string
		src  *int
		dst  *int
	}{
		{"pp", req.PP, &p.PP},
		{"tg", req.TG, &p.TG},
		{"pl", req.PL, &p.PL},
		{"nr", req.NR, &p.NR},
	} {
		if f.src != nil {
			*f.dst = *f.src
		}
		if *f.dst <= 0 {
			return p, newInvalidRequest(fmt.Sprintf("%s must be positive, got %d", f.name, *f.dst))
		}
	}
	return p, nil
}
