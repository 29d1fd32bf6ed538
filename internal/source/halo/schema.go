package halo

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v6"

	"guide_sync/internal/domain"
)

// ErrInvalidPayload marks a remote body that failed schema validation.
var ErrInvalidPayload = domain.ErrInvalidPayload

const faqListsSchema = `{
	"$schema": "https://json-schema.org/draft/2020-12/schema",
	"type": "array",
	"minItems": 1,
	"items": {
		"type": "object",
		"required": ["id"],
		"properties": {
			"id": {"type": "integer"},
			"name": {"type": ["string", "null"]},
			"group_id": {"type": ["integer", "null"]},
			"group_name": {"type": ["string", "null"]},
			"sequence": {"type": ["integer", "null"]}
		}
	}
}`

const articleListSchema = `{
	"$schema": "https://json-schema.org/draft/2020-12/schema",
	"type": "object",
	"required": ["articles"],
	"properties": {
		"articles": {
			"type": "array",
			"items": {
				"type": "object",
				"required": ["id"],
				"properties": {
					"id": {"type": "integer"},
					"date_edited": {"type": ["string", "null"]}
				}
			}
		}
	}
}`

const articleDetailSchema = `{
	"$schema": "https://json-schema.org/draft/2020-12/schema",
	"type": "object",
	"required": ["name", "inactive"],
	"properties": {
		"id": {"type": "integer"},
		"name": {"type": "string", "minLength": 1},
		"inactive": {"type": "boolean"},
		"description": {"type": ["string", "null"]},
		"description_html": {"type": ["string", "null"]},
		"resolution": {"type": ["string", "null"]},
		"resolution_html": {"type": ["string", "null"]},
		"view_count": {"type": ["integer", "null"]},
		"useful_count": {"type": ["integer", "null"]},
		"notuseful_count": {"type": ["integer", "null"]},
		"next_review_date": {"type": ["string", "null"]},
		"kb_tags": {"type": ["string", "array", "null"]},
		"faqlists": {
			"type": ["array", "null"],
			"items": {
				"type": "object",
				"required": ["id"],
				"properties": {
					"id": {"type": "integer"},
					"name": {"type": ["string", "null"]}
				}
			}
		}
	}
}`

type schemas struct {
	faqLists      *jsonschema.Schema
	articleList   *jsonschema.Schema
	articleDetail *jsonschema.Schema
}

func compileSchemas() (*schemas, error) {
	c := jsonschema.NewCompiler()

	sources := map[string]string{
		"https://guide-sync.local/schemas/faqlists.json":       faqListsSchema,
		"https://guide-sync.local/schemas/article-list.json":   articleListSchema,
		"https://guide-sync.local/schemas/article-detail.json": articleDetailSchema,
	}
	for url, src := range sources {
		doc, err := jsonschema.UnmarshalJSON(strings.NewReader(src))
		if err != nil {
			return nil, fmt.Errorf("parse schema %s: %w", url, err)
		}
		if err := c.AddResource(url, doc); err != nil {
			return nil, fmt.Errorf("add schema %s: %w", url, err)
		}
	}

	var s schemas
	var err error
	if s.faqLists, err = c.Compile("https://guide-sync.local/schemas/faqlists.json"); err != nil {
		return nil, err
	}
	if s.articleList, err = c.Compile("https://guide-sync.local/schemas/article-list.json"); err != nil {
		return nil, err
	}
	if s.articleDetail, err = c.Compile("https://guide-sync.local/schemas/article-detail.json"); err != nil {
		return nil, err
	}
	return &s, nil
}

// validate checks a raw JSON body against schema before it is decoded.
func validate(schema *jsonschema.Schema, body []byte) error {
	if len(bytes.TrimSpace(body)) == 0 {
		return fmt.Errorf("%w: empty body", ErrInvalidPayload)
	}
	inst, err := jsonschema.UnmarshalJSON(bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	if err := schema.Validate(inst); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	return nil
}
