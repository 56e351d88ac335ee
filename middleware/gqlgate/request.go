package gqlgate

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
)

// graphqlRequest é o contrato de transporte aceito pelo gate: POST com corpo
// JSON ou GET com a query na querystring, como os servidores GraphQL servem.
type graphqlRequest struct {
	Query         string         `json:"query"`
	OperationName string         `json:"operationName"`
	Variables     map[string]any `json:"variables"`
}

var errEmptyQuery = errors.New("request has no query")

// parseRequest extrai a query e devolve o corpo lido, para que o caller possa
// restaurá-lo antes de repassar a request ao upstream.
func parseRequest(r *http.Request) (graphqlRequest, []byte, error) {
	switch r.Method {
	case http.MethodGet:
		req := graphqlRequest{
			Query:         r.URL.Query().Get("query"),
			OperationName: r.URL.Query().Get("operationName"),
		}
		if raw := r.URL.Query().Get("variables"); raw != "" {
			if err := json.Unmarshal([]byte(raw), &req.Variables); err != nil {
				return graphqlRequest{}, nil, err
			}
		}
		if strings.TrimSpace(req.Query) == "" {
			return graphqlRequest{}, nil, errEmptyQuery
		}
		return req, nil, nil

	default:
		body, err := io.ReadAll(r.Body)
		if err != nil {
			return graphqlRequest{}, nil, err
		}
		_ = r.Body.Close()

		var req graphqlRequest
		if err := json.Unmarshal(body, &req); err != nil {
			return graphqlRequest{}, body, err
		}
		if strings.TrimSpace(req.Query) == "" {
			return graphqlRequest{}, body, errEmptyQuery
		}
		return req, body, nil
	}
}

// restoreBody devolve o corpo consumido para a request seguir ao upstream.
func restoreBody(r *http.Request, body []byte) {
	if body == nil {
		return
	}
	r.Body = io.NopCloser(bytes.NewReader(body))
	r.ContentLength = int64(len(body))
}
