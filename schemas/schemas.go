// Package schemas embeds the HTTP API contract.
package schemas

import _ "embed"

// OpenAPISpec is the OpenAPI 3 document served by `snapsync serve`.
//
//go:embed openapi.yaml
var OpenAPISpec []byte
