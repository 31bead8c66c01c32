// Package template provides the rendering engine for feedback prompts.
package template

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"text/template"

	"github.com/klejdi94/assay/core"
)

// Prompt is a pair of templates rendered into system and user messages.
type Prompt struct {
	System string
	User   string
}

// Data is the map of placeholder names to values available to a prompt.
type Data map[string]interface{}

// Rendered holds the rendered system and user messages.
type Rendered struct {
	System string
	User   string
}

// Engine renders prompts using Go text/template with custom functions.
// Unknown placeholders are render errors, so a broken custom prompt surfaces
// immediately instead of producing "<no value>" feedback.
type Engine struct {
	leftDelim  string
	rightDelim string
	funcMap    template.FuncMap
}

// EngineOption configures the engine.
type EngineOption func(*Engine)

// WithDelims sets custom delimiters (default "{{" and "}}").
func WithDelims(left, right string) EngineOption {
	return func(e *Engine) {
		e.leftDelim = left
		e.rightDelim = right
	}
}

// WithFuncMap adds custom template functions.
func WithFuncMap(fm template.FuncMap) EngineOption {
	return func(e *Engine) {
		for k, v := range fm {
			e.funcMap[k] = v
		}
	}
}

// NewEngine creates a new template engine with default or custom options.
func NewEngine(opts ...EngineOption) *Engine {
	e := &Engine{
		leftDelim:  "{{",
		rightDelim: "}}",
		funcMap:    defaultFuncMap(),
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

func defaultFuncMap() template.FuncMap {
	return template.FuncMap{
		"join":    strings.Join,
		"upper":   strings.ToUpper,
		"lower":   strings.ToLower,
		"trim":    strings.TrimSpace,
		"default": defaultFunc,
	}
}

func defaultFunc(def, val interface{}) interface{} {
	if val == nil || val == "" {
		return def
	}
	return val
}

// Render renders the prompt's system and user templates with data.
func (e *Engine) Render(ctx context.Context, p Prompt, data Data) (*Rendered, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}
	system, err := e.execute(p.System, data)
	if err != nil {
		return nil, fmt.Errorf("%w system: %w", core.ErrRenderFailed, err)
	}
	user, err := e.execute(p.User, data)
	if err != nil {
		return nil, fmt.Errorf("%w user: %w", core.ErrRenderFailed, err)
	}
	return &Rendered{System: system, User: user}, nil
}

// Validate checks that the prompt renders cleanly against data. Used when
// loading custom prompts from configuration.
func (e *Engine) Validate(p Prompt, data Data) error {
	_, err := e.Render(context.Background(), p, data)
	return err
}

// execute parses and executes a single template string with data.
func (e *Engine) execute(tpl string, data Data) (string, error) {
	if tpl == "" {
		return "", nil
	}
	t, err := template.New("").Delims(e.leftDelim, e.rightDelim).Funcs(e.funcMap).Option("missingkey=error").Parse(tpl)
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	if err := t.Execute(&buf, map[string]interface{}(data)); err != nil {
		return "", err
	}
	return buf.String(), nil
}
