package generation

import (
	_ "embed"
	"fmt"
	"strings"
	"sync"

	"github.com/xeipuuv/gojsonschema"
)

var (
	//go:embed schemas/technical_report.json
	technicalSchema string
	//go:embed schemas/strategic_report.json
	strategicSchema string
)

// SchemaError lists every way a model response deviated from its schema.
type SchemaError struct {
	Kind   string
	Fields []string
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("%s response failed schema validation: %s", e.Kind, strings.Join(e.Fields, "; "))
}

type compiledSchema struct {
	kind   string
	source string

	once   sync.Once
	schema *gojsonschema.Schema
	err    error
}

var (
	technicalReportSchema = &compiledSchema{kind: "technical", source: technicalSchema}
	strategicReportSchema = &compiledSchema{kind: "strategic", source: strategicSchema}
)

func (c *compiledSchema) load() (*gojsonschema.Schema, error) {
	c.once.Do(func() {
		c.schema, c.err = gojsonschema.NewSchema(gojsonschema.NewStringLoader(c.source))
		if c.err != nil {
			c.err = fmt.Errorf("compiling %s schema: %w", c.kind, c.err)
		}
	})
	return c.schema, c.err
}

// Validate checks doc (a JSON document) against the schema.
func (c *compiledSchema) Validate(doc string) error {
	schema, err := c.load()
	if err != nil {
		return err
	}
	result, err := schema.Validate(gojsonschema.NewStringLoader(doc))
	if err != nil {
		return fmt.Errorf("%s response is not valid JSON: %w", c.kind, err)
	}
	if result.Valid() {
		return nil
	}
	se := &SchemaError{Kind: c.kind}
	for _, e := range result.Errors() {
		se.Fields = append(se.Fields, fmt.Sprintf("%s: %s", e.Field(), e.Description()))
	}
	return se
}
