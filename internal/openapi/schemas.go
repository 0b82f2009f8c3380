package openapi

import "github.com/getkin/kin-openapi/openapi3"

func stringSchema(description string) *openapi3.SchemaRef {
	return &openapi3.SchemaRef{Value: &openapi3.Schema{Type: &openapi3.Types{"string"}, Description: description}}
}

func formatSchema(typ, format, description string) *openapi3.SchemaRef {
	return &openapi3.SchemaRef{Value: &openapi3.Schema{Type: &openapi3.Types{typ}, Format: format, Description: description}}
}

func enumSchema(def string, values ...string) *openapi3.SchemaRef {
	enum := make([]interface{}, len(values))
	for i, v := range values {
		enum[i] = v
	}
	return &openapi3.SchemaRef{Value: &openapi3.Schema{Type: &openapi3.Types{"string"}, Enum: enum, Default: def}}
}

func boolSchema(description string) *openapi3.SchemaRef {
	return &openapi3.SchemaRef{Value: &openapi3.Schema{Type: &openapi3.Types{"boolean"}, Description: description}}
}

func arraySchema(items *openapi3.SchemaRef) *openapi3.SchemaRef {
	return &openapi3.SchemaRef{Value: &openapi3.Schema{Type: &openapi3.Types{"array"}, Items: items}}
}

func objectSchema(required []string, props openapi3.Schemas) *openapi3.SchemaRef {
	return &openapi3.SchemaRef{Value: &openapi3.Schema{Type: &openapi3.Types{"object"}, Required: required, Properties: props}}
}

func ref(name string) *openapi3.SchemaRef {
	return openapi3.NewSchemaRef("#/components/schemas/"+name, nil)
}

func minLength(s *openapi3.SchemaRef, n uint64) *openapi3.SchemaRef {
	s.Value.MinLength = n
	return s
}

func maxLength(s *openapi3.SchemaRef, n uint64) *openapi3.SchemaRef {
	s.Value.MaxLength = &n
	return s
}

// componentSchemas returns the request and response bodies of the API.
func componentSchemas() openapi3.Schemas {
	timestamp := func(d string) *openapi3.SchemaRef { return formatSchema("string", "date-time", d) }
	id := func(d string) *openapi3.SchemaRef { return formatSchema("integer", "int64", d) }

	maxLen := formatSchema("integer", "int32", "Maximum summary length (paragraph mode)")
	min, max := 20.0, 1000.0
	maxLen.Value.Min, maxLen.Value.Max = &min, &max

	return openapi3.Schemas{
		"ErrorResponse": objectSchema([]string{"error"}, openapi3.Schemas{
			"error": objectSchema(nil, openapi3.Schemas{
				"code":    formatSchema("integer", "int32", ""),
				"message": stringSchema(""),
				"context": &openapi3.SchemaRef{Value: &openapi3.Schema{Type: &openapi3.Types{"object"}}},
			}),
		}),

		"RegisterRequest": objectSchema([]string{"username", "email", "password"}, openapi3.Schemas{
			"username": maxLength(minLength(stringSchema("Unique username"), 3), 50),
			"email":    formatSchema("string", "email", "Unique email address"),
			"password": maxLength(minLength(stringSchema("Password"), 8), 72),
		}),
		"LoginRequest": objectSchema([]string{"username", "password"}, openapi3.Schemas{
			"username": stringSchema("Username or email"),
			"password": stringSchema("Password"),
		}),
		"TokenResponse": objectSchema(nil, openapi3.Schemas{
			"access_token": stringSchema("Signed JWT"),
			"token_type":   stringSchema("Always \"bearer\""),
			"expires_in":   formatSchema("integer", "int32", "Seconds until expiry"),
			"expires_at":   timestamp("Expiry instant"),
		}),
		"User": objectSchema(nil, openapi3.Schemas{
			"id":         id(""),
			"username":   stringSchema(""),
			"email":      stringSchema(""),
			"is_active":  boolSchema(""),
			"created_at": timestamp(""),
		}),

		"CreateAPIKeyRequest": objectSchema([]string{"name"}, openapi3.Schemas{
			"name": maxLength(minLength(stringSchema("Display name"), 1), 100),
		}),
		"APIKey": objectSchema(nil, openapi3.Schemas{
			"id":           id(""),
			"user_id":      id(""),
			"name":         stringSchema(""),
			"key_prefix":   stringSchema("First characters of the key, for identification"),
			"status":       enumSchema("active", "active", "revoked"),
			"created_at":   timestamp(""),
			"last_used_at": timestamp(""),
			"revoked_at":   timestamp(""),
		}),
		"CreatedAPIKey": &openapi3.SchemaRef{Value: &openapi3.Schema{
			AllOf: openapi3.SchemaRefs{
				ref("APIKey"),
				objectSchema([]string{"api_key"}, openapi3.Schemas{
					"api_key": stringSchema("The full key. It is shown only once."),
				}),
			},
		}},
		"APIKeyList": objectSchema(nil, openapi3.Schemas{
			"resource": arraySchema(ref("APIKey")),
			"meta": objectSchema(nil, openapi3.Schemas{
				"count": formatSchema("integer", "int64", ""),
			}),
		}),
		"UsageRecord": objectSchema(nil, openapi3.Schemas{
			"id":          id(""),
			"api_key_id":  id(""),
			"endpoint":    stringSchema(""),
			"method":      stringSchema(""),
			"status_code": formatSchema("integer", "int32", ""),
			"outcome":     enumSchema("", "success", "failure"),
			"latency_ms":  formatSchema("number", "double", ""),
			"ip_address":  stringSchema(""),
			"user_agent":  stringSchema(""),
			"created_at":  timestamp(""),
		}),
		"UsageStats": objectSchema(nil, openapi3.Schemas{
			"api_key_id":          id(""),
			"total_requests":      formatSchema("integer", "int64", ""),
			"successful_requests": formatSchema("integer", "int64", ""),
			"failed_requests":     formatSchema("integer", "int64", ""),
			"average_latency_ms":  formatSchema("number", "double", ""),
			"usage_by_endpoint": &openapi3.SchemaRef{Value: &openapi3.Schema{
				Type:                 &openapi3.Types{"object"},
				AdditionalProperties: openapi3.AdditionalProperties{Schema: formatSchema("integer", "int64", "")},
			}},
			"recent_usage": arraySchema(ref("UsageRecord")),
			"generated_at": timestamp(""),
		}),

		"SummarizeRequest": objectSchema([]string{"text"}, openapi3.Schemas{
			"text":                minLength(stringSchema("The text to summarize"), 100),
			"mode":                enumSchema("paragraph", "paragraph", "bullet_points", "custom"),
			"max_length":          maxLen,
			"custom_instructions": stringSchema("Required for custom mode"),
			"extract_keywords":    boolSchema("Also return 5-7 key terms"),
		}),
		"SummarizeResponse": objectSchema([]string{"summary"}, openapi3.Schemas{
			"summary":  stringSchema(""),
			"keywords": arraySchema(stringSchema("")),
		}),
		"ParaphraseRequest": objectSchema([]string{"text"}, openapi3.Schemas{
			"text":          minLength(stringSchema("The text to paraphrase"), 10),
			"style":         enumSchema("casual", "formal", "casual", "simple"),
			"intensity":     enumSchema("medium", "low", "medium", "high"),
			"length_option": enumSchema("same", "same", "shorter", "longer"),
		}),
		"ParaphraseResponse": objectSchema([]string{"paraphrased_text"}, openapi3.Schemas{
			"paraphrased_text": stringSchema(""),
		}),
		"ImageURLRequest": objectSchema([]string{"image_url"}, openapi3.Schemas{
			"image_url":    formatSchema("string", "uri", "URL of the image to analyze"),
			"mode":         enumSchema("description", "description", "ocr", "detailed"),
			"detail_level": enumSchema("standard", "brief", "standard", "comprehensive"),
		}),
		"ImageUpload": objectSchema([]string{"image_file"}, openapi3.Schemas{
			"image_file":   formatSchema("string", "binary", "JPEG, PNG, GIF or WebP, at most 4 MB"),
			"mode":         enumSchema("description", "description", "ocr", "detailed"),
			"detail_level": enumSchema("standard", "brief", "standard", "comprehensive"),
		}),
		"ImageResponse": objectSchema([]string{"analysis"}, openapi3.Schemas{
			"analysis": stringSchema(""),
			"structured_text": objectSchema(nil, openapi3.Schemas{
				"lines":      arraySchema(stringSchema("")),
				"line_count": formatSchema("integer", "int32", ""),
			}),
		}),
	}
}
