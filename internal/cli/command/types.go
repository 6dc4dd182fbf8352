package command

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Kind is how a field value is encoded in the request body.
type Kind int

const (
	KindString Kind = iota
	KindFloat
	KindInt
	KindJSON
)

// Field is one key=value input of a command.
type Field struct {
	// Name is the canonical param name and, unless Key is set, the body key.
	Name    string
	Aliases []string
	Key     string
	Kind    Kind
	// FromFile names a param holding a path to read the value from when the
	// field itself is empty.
	FromFile string
	Required bool
	// InPath fields replace ":Name" in the command path instead of going to the body.
	InPath bool
}

// BodyKey returns the JSON key the field is sent under.
func (f Field) BodyKey() string {
	if f.Key != "" {
		return f.Key
	}
	return f.Name
}

// Command binds "<group> <action>" to one endpoint of the grading API.
type Command struct {
	Group  string
	Action string
	Method string
	Path   string
	Usage  string
	Fields []Field
	// RawBody names a KindJSON field sent verbatim as the whole body.
	RawBody string
}

// Name is the words typed to run the command.
func (c Command) Name() string {
	return c.Group + " " + c.Action
}

// Request is a built HTTP request.
type Request struct {
	Method string
	Path   string
	Body   []byte
}

// Params holds key=value inputs. Keys are case-insensitive.
type Params map[string]string

func (p Params) Get(key string) string {
	return p[strings.ToLower(key)]
}

func (p Params) Set(key, value string) {
	p[strings.ToLower(key)] = value
}

// Canonicalize renames aliases to their field names. An explicit field name wins over an alias.
func (p Params) Canonicalize(fields []Field) {
	for _, field := range fields {
		name := strings.ToLower(field.Name)
		for _, alias := range field.Aliases {
			aliasKey := strings.ToLower(alias)
			value, ok := p[aliasKey]
			if !ok {
				continue
			}
			if _, set := p[name]; !set {
				p[name] = value
			}
			delete(p, aliasKey)
		}
	}
}

// Missing returns the required fields that have neither a value nor a file to read it from.
func Missing(cmd Command, params Params) []Field {
	var missing []Field
	for _, field := range cmd.Fields {
		if !field.Required || strings.TrimSpace(params.Get(field.Name)) != "" {
			continue
		}
		if field.FromFile != "" && params.Get(field.FromFile) != "" {
			continue
		}
		missing = append(missing, field)
	}
	return missing
}

// value resolves a field from params, reading its companion file when needed.
func value(field Field, params Params) (string, error) {
	v := params.Get(field.Name)
	if strings.TrimSpace(v) == "" && field.FromFile != "" {
		if path := params.Get(field.FromFile); path != "" {
			data, err := os.ReadFile(path)
			if err != nil {
				return "", fmt.Errorf("read %s failed: %w", field.FromFile, err)
			}
			v = string(data)
		}
	}
	return v, nil
}

func encode(field Field, raw string) (interface{}, error) {
	trimmed := strings.TrimSpace(raw)
	switch field.Kind {
	case KindFloat:
		f, err := strconv.ParseFloat(trimmed, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid %s: %w", field.Name, err)
		}
		return f, nil
	case KindInt:
		n, err := strconv.ParseInt(trimmed, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid %s: %w", field.Name, err)
		}
		return n, nil
	case KindJSON:
		if !json.Valid([]byte(trimmed)) {
			return nil, fmt.Errorf("invalid %s: not valid json", field.Name)
		}
		return json.RawMessage(trimmed), nil
	default:
		return raw, nil
	}
}
