package server

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"trendfinder/internal/contract"
	"trendfinder/internal/engine"
)

// gatewayEvent is the invocation shape delivered by the hosting gateway.
// Newer gateways carry a raw query string; older ones deliver parameters
// pre-split. A non-nil RawQueryString identifies the newer shape even
// when the string is empty.
type gatewayEvent struct {
	Path                  string            `json:"path"`
	RawQueryString        *string           `json:"rawQueryString"`
	QueryStringParameters map[string]string `json:"queryStringParameters"`
	Headers               map[string]string `json:"headers"`
	RequestContext        struct {
		RequestID string `json:"requestId"`
	} `json:"requestContext"`
}

// gatewayResponse is the structured response the invocation wrapper
// expects: status and headers out-of-band, body as a JSON string.
type gatewayResponse struct {
	StatusCode int               `json:"statusCode"`
	Headers    map[string]string `json:"headers"`
	Body       string            `json:"body"`
}

// handleInvoke runs one gateway invocation event through the pipeline.
// The POST itself answers 200 whenever an event could be decoded; the
// API status travels inside the gateway response.
func (s *server) handleInvoke(w http.ResponseWriter, r *http.Request) {
	var ev gatewayEvent
	if err := json.NewDecoder(r.Body).Decode(&ev); err != nil {
		http.Error(w, "invalid invocation event", http.StatusBadRequest)
		return
	}

	var params map[string]string
	var rawQuery string
	if ev.RawQueryString != nil {
		rawQuery = *ev.RawQueryString
		params = contract.FromRawQuery(rawQuery)
	} else {
		params = contract.FromMap(ev.QueryStringParameters)
	}

	headers := lowerKeys(ev.Headers)
	corrID := headers["x-correlation-id"]
	if corrID == "" {
		corrID = ev.RequestContext.RequestID
	}
	if corrID == "" {
		corrID = uuid.NewString()
	}
	debugKey := headers["x-debug-key"]
	if debugKey == "" {
		debugKey = params["x-debug-key"]
	}

	res := s.engine.Handle(r.Context(), engine.Request{
		Params:        params,
		RawQuery:      rawQuery,
		Path:          ev.Path,
		CorrelationID: corrID,
		DebugKey:      debugKey,
	})

	body, err := json.Marshal(res.Body)
	if err != nil {
		res.Status = http.StatusInternalServerError
		body, _ = json.Marshal(engine.ErrorBody{
			Error:         "internal_error",
			Message:       "An unexpected error occurred",
			CorrelationID: res.CorrelationID,
		})
	}

	out := gatewayResponse{
		StatusCode: res.Status,
		Headers:    map[string]string{"Content-Type": "application/json"},
		Body:       string(body),
	}
	if s.cors {
		out.Headers["Access-Control-Allow-Origin"] = "*"
		out.Headers["Access-Control-Allow-Methods"] = "GET,OPTIONS"
		out.Headers["Access-Control-Allow-Headers"] = "Content-Type,Authorization,X-Debug-Key,X-Correlation-Id"
	}
	if res.CorrelationID != "" {
		out.Headers["X-Correlation-Id"] = res.CorrelationID
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(out)
}

func lowerKeys(m map[string]string) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[strings.ToLower(k)] = v
	}
	return out
}
