package api

import _ "embed"

// OpenAPI is the HTTP contract served under /api.
//
//go:embed openapi.yaml
var OpenAPI []byte
