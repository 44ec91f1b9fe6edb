package driver

import (
	"context"
	_ "embed"
	"fmt"
	"net/http"

	"github.com/getkin/kin-openapi/openapi3"
	nethttpmiddleware "github.com/oapi-codegen/nethttp-middleware"
	"github.com/rs/zerolog"

	"github.com/alorle/iptv-hub/logging"
)

//go:embed openapi.yaml
var openAPIDocument []byte

// LoadOpenAPI parses and validates the embedded API description.
func LoadOpenAPI() (*openapi3.T, error) {
	doc, err := openapi3.NewLoader().LoadFromData(openAPIDocument)
	if err != nil {
		return nil, fmt.Errorf("load openapi document: %w", err)
	}
	if err := doc.Validate(context.Background()); err != nil {
		return nil, fmt.Errorf("invalid openapi document: %w", err)
	}
	// requests are matched by path only, whatever host serves them
	doc.Servers = nil
	return doc, nil
}

// requestValidator rejects API requests that do not match the document.
func requestValidator(doc *openapi3.T, logger zerolog.Logger) func(http.Handler) http.Handler {
	return nethttpmiddleware.OapiRequestValidatorWithOptions(doc, &nethttpmiddleware.Options{
		SilenceServersWarning: true,
		ErrorHandler: func(w http.ResponseWriter, message string, statusCode int) {
			logging.WriteJSONError(w, logger, message, statusCode)
		},
	})
}

// openAPIHandler serves the API description as JSON.
func openAPIHandler(doc *openapi3.T, logger zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		logging.WriteJSON(w, logger, http.StatusOK, doc)
	}
}
