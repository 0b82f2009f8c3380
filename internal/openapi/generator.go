// Package openapi builds the OpenAPI 3.1 document describing the toolnest
// HTTP API.
package openapi

import "github.com/getkin/kin-openapi/openapi3"

// Options controls the generated document.
type Options struct {
	BaseURL      string
	Version      string
	APIKeyHeader string
}

const (
	tagAuth  = "auth"
	tagKeys  = "api-keys"
	tagTools = "ai-tools"
	tagOps   = "operations"
)

var errorDescriptions = map[string]string{
	"400": "Bad request",
	"401": "Unauthorized",
	"403": "Forbidden",
	"404": "Not found",
	"409": "Conflict",
	"413": "Payload too large",
	"415": "Unsupported media type",
	"429": "Too many requests",
	"500": "Internal server error",
	"502": "Upstream provider error",
	"503": "Storage unavailable, retry later",
	"504": "Upstream provider timed out",
}

// Generate returns the OpenAPI document for every route the server mounts.
func Generate(opts Options) *openapi3.T {
	if opts.Version == "" {
		opts.Version = "dev"
	}
	if opts.APIKeyHeader == "" {
		opts.APIKeyHeader = "X-API-Key"
	}

	doc := &openapi3.T{
		OpenAPI: "3.1.0",
		Info: &openapi3.Info{
			Title:       "toolnest API",
			Description: "Authenticated, rate-limited gateway to hosted text and image models.",
			Version:     opts.Version,
		},
	}
	if opts.BaseURL != "" {
		doc.Servers = openapi3.Servers{{URL: opts.BaseURL}}
	}

	components := openapi3.NewComponents()
	components.Schemas = componentSchemas()
	components.SecuritySchemes = openapi3.SecuritySchemes{
		"apiKey": &openapi3.SecuritySchemeRef{
			Value: &openapi3.SecurityScheme{
				Type: "apiKey",
				In:   "header",
				Name: opts.APIKeyHeader,
			},
		},
		"bearerAuth": &openapi3.SecuritySchemeRef{
			Value: &openapi3.SecurityScheme{
				Type:         "http",
				Scheme:       "bearer",
				BearerFormat: "JWT",
			},
		},
	}
	doc.Components = &components

	// Operations without their own Security inherit key-or-bearer.
	doc.Security = openapi3.SecurityRequirements{
		{"apiKey": {}},
		{"bearerAuth": {}},
	}

	doc.Paths = openapi3.NewPaths()
	addOperationPaths(doc)
	addAuthPaths(doc)
	addKeyPaths(doc)
	addToolPaths(doc)

	return doc
}

func public() *openapi3.SecurityRequirements {
	return &openapi3.SecurityRequirements{}
}

func bearerOnly() *openapi3.SecurityRequirements {
	return &openapi3.SecurityRequirements{{"bearerAuth": {}}}
}

func addOperationPaths(doc *openapi3.T) {
	status := objectSchema(nil, openapi3.Schemas{"status": stringSchema("")})

	healthz := &openapi3.Operation{
		Tags:        []string{tagOps},
		Summary:     "Liveness probe",
		OperationID: "healthz",
		Security:    public(),
		Responses:   newResponses("200", "Process is alive", status),
	}
	readyz := &openapi3.Operation{
		Tags:        []string{tagOps},
		Summary:     "Readiness probe; pings the store",
		OperationID: "readyz",
		Security:    public(),
		Responses:   newResponses("200", "Store reachable", status, "503"),
	}
	doc.Paths.Set("/healthz", &openapi3.PathItem{Get: healthz})
	doc.Paths.Set("/readyz", &openapi3.PathItem{Get: readyz})
}

func addAuthPaths(doc *openapi3.T) {
	register := &openapi3.Operation{
		Tags:        []string{tagAuth},
		Summary:     "Create a user account",
		OperationID: "register",
		Security:    public(),
		RequestBody: jsonBody("Account details", ref("RegisterRequest")),
		Responses:   newResponses("201", "User created", ref("User"), "400", "429"),
	}

	loginContent := openapi3.NewContentWithJSONSchemaRef(ref("LoginRequest"))
	loginContent[formContentType] = openapi3.NewMediaType().WithSchemaRef(ref("LoginRequest"))
	login := &openapi3.Operation{
		Tags:        []string{tagAuth},
		Summary:     "Exchange username and password for a bearer token",
		OperationID: "login",
		Security:    public(),
		RequestBody: &openapi3.RequestBodyRef{Value: &openapi3.RequestBody{
			Required: true,
			Content:  loginContent,
		}},
		Responses: newResponses("200", "Token issued", ref("TokenResponse"), "400", "401", "403", "429"),
	}

	me := &openapi3.Operation{
		Tags:        []string{tagAuth},
		Summary:     "Current user",
		OperationID: "me",
		Security:    bearerOnly(),
		Responses:   newResponses("200", "The authenticated user", ref("User"), "401", "403"),
	}

	doc.Paths.Set("/api/v1/auth/register", &openapi3.PathItem{Post: register})
	doc.Paths.Set("/api/v1/auth/login", &openapi3.PathItem{Post: login})
	doc.Paths.Set("/api/v1/auth/me", &openapi3.PathItem{Get: me})
}

func addKeyPaths(doc *openapi3.T) {
	keyID := &openapi3.ParameterRef{Value: openapi3.NewPathParameter("keyID").
		WithSchema(openapi3.NewInt64Schema()).
		WithDescription("API key id")}
	includeRevoked := &openapi3.ParameterRef{Value: openapi3.NewQueryParameter("include_revoked").
		WithSchema(openapi3.NewBoolSchema()).
		WithDescription("Also list revoked keys")}

	create := &openapi3.Operation{
		Tags:        []string{tagKeys},
		Summary:     "Create an API key; the secret is returned only in this response",
		OperationID: "createAPIKey",
		Security:    bearerOnly(),
		RequestBody: jsonBody("Key name", ref("CreateAPIKeyRequest")),
		Responses:   newResponses("201", "Key created", ref("CreatedAPIKey"), "400", "401", "403", "429"),
	}
	list := &openapi3.Operation{
		Tags:        []string{tagKeys},
		Summary:     "List the caller's API keys",
		OperationID: "listAPIKeys",
		Security:    bearerOnly(),
		Parameters:  openapi3.Parameters{includeRevoked},
		Responses:   newResponses("200", "Keys without secrets", ref("APIKeyList"), "401", "403", "429"),
	}
	revoke := &openapi3.Operation{
		Tags:        []string{tagKeys},
		Summary:     "Revoke an API key permanently",
		OperationID: "revokeAPIKey",
		Security:    bearerOnly(),
		Parameters:  openapi3.Parameters{keyID},
		Responses:   newResponses("200", "Revoked key", ref("APIKey"), "401", "403", "404", "409", "429"),
	}
	usage := &openapi3.Operation{
		Tags:        []string{tagKeys},
		Summary:     "Usage statistics for an API key",
		OperationID: "apiKeyUsage",
		Security:    bearerOnly(),
		Parameters:  openapi3.Parameters{keyID},
		Responses:   newResponses("200", "Aggregated usage", ref("UsageStats"), "401", "403", "404", "429"),
	}

	doc.Paths.Set("/api/v1/api-keys", &openapi3.PathItem{Get: list, Post: create})
	doc.Paths.Set("/api/v1/api-keys/{keyID}", &openapi3.PathItem{Delete: revoke})
	doc.Paths.Set("/api/v1/api-keys/{keyID}/usage", &openapi3.PathItem{Get: usage})
}

func addToolPaths(doc *openapi3.T) {
	upstream := []string{"400", "401", "403", "429", "502", "504"}

	summarize := &openapi3.Operation{
		Tags:        []string{tagTools},
		Summary:     "Summarize text",
		OperationID: "summarize",
		RequestBody: jsonBody("Text and summary options", ref("SummarizeRequest")),
		Responses:   newResponses("200", "Summary", ref("SummarizeResponse"), upstream...),
	}
	paraphrase := &openapi3.Operation{
		Tags:        []string{tagTools},
		Summary:     "Paraphrase text",
		OperationID: "paraphrase",
		RequestBody: jsonBody("Text and rewrite options", ref("ParaphraseRequest")),
		Responses:   newResponses("200", "Paraphrased text", ref("ParaphraseResponse"), upstream...),
	}

	imageContent := openapi3.NewContentWithJSONSchemaRef(ref("ImageURLRequest"))
	imageContent["multipart/form-data"] = openapi3.NewMediaType().WithSchemaRef(ref("ImageUpload"))
	image := &openapi3.Operation{
		Tags:        []string{tagTools},
		Summary:     "Describe an image or extract its text",
		OperationID: "imageToText",
		RequestBody: &openapi3.RequestBodyRef{Value: &openapi3.RequestBody{
			Description: "An image URL as JSON, or an uploaded file",
			Required:    true,
			Content:     imageContent,
		}},
		Responses: newResponses("200", "Analysis", ref("ImageResponse"), append(upstream, "413", "415")...),
	}

	doc.Paths.Set("/api/v1/ai-tools/summarize", &openapi3.PathItem{Post: summarize})
	doc.Paths.Set("/api/v1/ai-tools/paraphrase", &openapi3.PathItem{Post: paraphrase})
	doc.Paths.Set("/api/v1/ai-tools/image-to-text", &openapi3.PathItem{Post: image})
}

const formContentType = "application/x-www-form-urlencoded"

func jsonBody(description string, schema *openapi3.SchemaRef) *openapi3.RequestBodyRef {
	return &openapi3.RequestBodyRef{Value: &openapi3.RequestBody{
		Description: description,
		Required:    true,
		Content:     openapi3.NewContentWithJSONSchemaRef(schema),
	}}
}

// newResponses sets the success response plus the listed error statuses.
// Every operation may also answer 500.
func newResponses(statusCode, description string, schema *openapi3.SchemaRef, errorCodes ...string) *openapi3.Responses {
	responses := openapi3.NewResponses()

	successDesc := description
	responses.Set(statusCode, &openapi3.ResponseRef{
		Value: &openapi3.Response{
			Description: &successDesc,
			Content:     openapi3.NewContentWithJSONSchemaRef(schema),
		},
	})

	errorRef := ref("ErrorResponse")
	for _, code := range append(errorCodes, "500") {
		desc := errorDescriptions[code]
		responses.Set(code, &openapi3.ResponseRef{
			Value: &openapi3.Response{
				Description: &desc,
				Content:     openapi3.NewContentWithJSONSchemaRef(errorRef),
			},
		})
	}

	return responses
}
