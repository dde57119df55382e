package plan

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"gopkg.in/yaml.v3"

	vigilErrors "github.com/harunnryd/vigil/internal/errors"
	"github.com/harunnryd/vigil/internal/risk"
)

// Generator turns a request into a draft plan. Implementations must only populate
// the model; validation and approval happen elsewhere.
type Generator interface {
	Generate(ctx context.Context, request string) (*ExecutionPlan, error)
}

// Document is the authored form of a plan. JSON documents decode as well, since
// the YAML decoder accepts them.
type Document struct {
	Title       string          `yaml:"title"`
	Description string          `yaml:"description"`
	Request     string          `yaml:"request"`
	Tags        []string        `yaml:"tags"`
	Actions     []PlannedAction `yaml:"actions"`
}

// DocumentGenerator reads the request as a plan document.
type DocumentGenerator struct {
	Threshold risk.Level
}

func (g DocumentGenerator) Generate(ctx context.Context, request string) (*ExecutionPlan, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return Decode(strings.NewReader(request), g.Threshold)
}

// Decode parses a single plan document into a draft plan.
func Decode(r io.Reader, threshold risk.Level) (*ExecutionPlan, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, vigilErrors.InvalidInput("plan document is empty")
	}

	var doc Document
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("decode plan document: %v: %w", err, vigilErrors.ErrInvalidInput)
	}

	for i, a := range doc.Actions {
		if a.Kind == "" {
			return nil, vigilErrors.InvalidInput(fmt.Sprintf("action %d has no kind", i+1))
		}
	}

	p := New(doc.Title, doc.Description, doc.Request, doc.Actions, threshold)
	p.Tags = doc.Tags
	return p, nil
}
