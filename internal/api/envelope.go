package api

import (
	"strconv"

	"github.com/danielgtaylor/huma/v2"

	"github.com/waypointapp/waypoint-server/internal/http/response"
)

// EnvelopeVersion is the envelope format version sent as "v".
const EnvelopeVersion = response.Version

// EnvelopeTransformer wraps every huma response body in the shared
// {v, success, data | error} envelope.
func EnvelopeTransformer(_ huma.Context, status string, v any) (any, error) {
	switch body := v.(type) {
	case response.Envelope:
		return body, nil
	case *APIError:
		return response.Fail(body.Code, body.Message, body.Details), nil
	case huma.StatusError:
		return response.Fail(response.CodeFor(body.GetStatus()), body.Error(), nil), nil
	case error:
		code, _ := strconv.Atoi(status)
		return response.Fail(response.CodeFor(code), body.Error(), nil), nil
	default:
		return response.Ok(v), nil
	}
}
