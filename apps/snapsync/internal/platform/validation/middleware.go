// Package validation checks API requests against the embedded OpenAPI
// document before they reach a handler.
package validation

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/getkin/kin-openapi/openapi3filter"
	"github.com/getkin/kin-openapi/routers"
	"github.com/getkin/kin-openapi/routers/gorillamux"
	"github.com/gin-gonic/gin"
)

// Problem is the 400 body written for a request the document rejects.
type Problem struct {
	Error string `json:"error"`
	// In is "path", "query", "header" or "body".
	In     string `json:"in,omitempty"`
	Field  string `json:"field,omitempty"`
	Reason string `json:"reason,omitempty"`
}

// New returns a middleware validating requests against doc. Requests for
// paths the document does not describe are passed on untouched so gin can
// answer them (404, health probes and so on).
func New(doc []byte) (gin.HandlerFunc, error) {
	loader := openapi3.NewLoader()
	api, err := loader.LoadFromData(doc)
	if err != nil {
		return nil, fmt.Errorf("load openapi document: %w", err)
	}
	if err := api.Validate(loader.Context); err != nil {
		return nil, fmt.Errorf("invalid openapi document: %w", err)
	}

	// Route on path alone so the same document serves any host.
	api.Servers = nil
	router, err := gorillamux.NewRouter(api)
	if err != nil {
		return nil, fmt.Errorf("build openapi router: %w", err)
	}

	opts := &openapi3filter.Options{AuthenticationFunc: openapi3filter.NoopAuthenticationFunc}

	return func(c *gin.Context) {
		route, params, err := router.FindRoute(c.Request)
		if err != nil {
			if errors.Is(err, routers.ErrMethodNotAllowed) {
				c.AbortWithStatusJSON(http.StatusMethodNotAllowed, Problem{Error: "method not allowed"})
				return
			}
			c.Next()
			return
		}

		err = openapi3filter.ValidateRequest(c.Request.Context(), &openapi3filter.RequestValidationInput{
			Request:    c.Request,
			PathParams: params,
			Route:      route,
			Options:    opts,
		})
		if err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, problemFor(err))
			return
		}
		c.Next()
	}, nil
}

func problemFor(err error) Problem {
	p := Problem{Error: "invalid request", Reason: err.Error()}

	var reqErr *openapi3filter.RequestError
	if !errors.As(err, &reqErr) {
		return p
	}
	switch {
	case reqErr.Parameter != nil:
		p.In = reqErr.Parameter.In
		p.Field = reqErr.Parameter.Name
	case reqErr.RequestBody != nil:
		p.In = "body"
	}
	if reqErr.Reason != "" {
		p.Reason = reqErr.Reason
	}
	var schemaErr *openapi3.SchemaError
	if errors.As(reqErr.Err, &schemaErr) {
		if p.Field == "" {
			p.Field = strings.Join(schemaErr.JSONPointer(), ".")
		}
		p.Reason = schemaErr.Reason
	}
	return p
}
