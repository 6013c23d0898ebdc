package catalog

import (
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"html"
	"os"
	"sort"
	"strings"

	"github.com/microcosm-cc/bluemonday"
	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed registry.schema.json
var registrySchema string

// ErrUnknownAssessment indicates the registry holds no definition for the id.
var ErrUnknownAssessment = errors.New("unknown assessment")

// Registry is the read-only set of assessment definitions keyed by assessment id.
type Registry struct {
	definitions map[string]Definition
}

type registryFile struct {
	Assessments map[string]Definition `json:"assessments"`
}

// Load reads and validates a registry file from disk.
func Load(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read registry: %w", err)
	}
	return Parse(data)
}

// Parse validates raw registry JSON against the embedded schema and builds a Registry.
func Parse(data []byte) (*Registry, error) {
	schema, err := jsonschema.CompileString("registry.schema.json", registrySchema)
	if err != nil {
		return nil, fmt.Errorf("compile registry schema: %w", err)
	}

	var document interface{}
	if err := json.Unmarshal(data, &document); err != nil {
		return nil, fmt.Errorf("decode registry: %w", err)
	}
	if err := schema.Validate(document); err != nil {
		return nil, fmt.Errorf("invalid registry: %w", err)
	}

	var file registryFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("decode registry: %w", err)
	}

	definitions := make([]Definition, 0, len(file.Assessments))
	for id, definition := range file.Assessments {
		definition.ID = id
		definitions = append(definitions, definition)
	}

	return NewRegistry(definitions...)
}

// NewRegistry builds a registry from in-memory definitions. Prompts and options are
// stripped of markup since they are rendered verbatim by clients.
func NewRegistry(definitions ...Definition) (*Registry, error) {
	policy := bluemonday.StrictPolicy()
	registry := &Registry{definitions: make(map[string]Definition, len(definitions))}

	for _, definition := range definitions {
		id := strings.TrimSpace(definition.ID)
		if id == "" {
			return nil, errors.New("assessment id is required")
		}
		if _, exists := registry.definitions[id]; exists {
			return nil, fmt.Errorf("duplicate assessment %q", id)
		}

		cleaned := definition.clone()
		cleaned.ID = id
		cleaned.Name = plainText(policy, cleaned.Name)
		for i := range cleaned.Questions {
			cleaned.Questions[i].Prompt = plainText(policy, cleaned.Questions[i].Prompt)
			for j := range cleaned.Questions[i].Options {
				cleaned.Questions[i].Options[j] = plainText(policy, cleaned.Questions[i].Options[j])
			}
		}

		if err := validateDefinition(cleaned); err != nil {
			return nil, fmt.Errorf("assessment %q: %w", id, err)
		}
		registry.definitions[id] = cleaned
	}

	return registry, nil
}

// plainText drops markup but keeps the text readable, so "a < b" survives as-is.
func plainText(policy *bluemonday.Policy, value string) string {
	return strings.TrimSpace(html.UnescapeString(policy.Sanitize(value)))
}

func validateDefinition(definition Definition) error {
	if len(definition.Questions) == 0 {
		return errors.New("at least one question is required")
	}
	if definition.PassingThreshold < 0 || definition.PassingThreshold > len(definition.Questions) {
		return fmt.Errorf("passing threshold %d out of range", definition.PassingThreshold)
	}
	for idx, question := range definition.Questions {
		if question.Prompt == "" {
			return fmt.Errorf("question %d has an empty prompt", idx)
		}
		if len(question.Options) < 2 {
			return fmt.Errorf("question %d needs at least two options", idx)
		}
		if question.CorrectOptionIndex < 0 || question.CorrectOptionIndex >= len(question.Options) {
			return fmt.Errorf("question %d correct option out of range", idx)
		}
	}
	return nil
}

// Get returns a copy of the definition so callers can never mutate the registry.
func (r *Registry) Get(id string) (Definition, error) {
	definition, ok := r.definitions[strings.TrimSpace(id)]
	if !ok {
		return Definition{}, ErrUnknownAssessment
	}
	return definition.clone(), nil
}

// IDs lists the registered assessment ids in lexical order.
func (r *Registry) IDs() []string {
	ids := make([]string, 0, len(r.definitions))
	for id := range r.definitions {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
