package command

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strings"
)

const gradingPrefix = "/api/v1/grading"

func submissionFields() []Field {
	return []Field{
		{Name: "code", Aliases: []string{"source", "source_code"}, FromFile: "source_file", Required: true},
		{Name: "language", Aliases: []string{"lang"}},
		{Name: "submissionId", Aliases: []string{"submission_id", "id"}},
		{Name: "taskId", Aliases: []string{"task_id", "task"}},
		{Name: "owner", Aliases: []string{"student"}},
		{Name: "config", Kind: KindJSON, FromFile: "config_file"},
		{Name: "testPackKey", Aliases: []string{"test_pack_key", "pack"}},
		{Name: "policy"},
		{Name: "timeLimitSeconds", Aliases: []string{"time_limit_seconds", "time_limit"}, Kind: KindFloat},
		{Name: "memoryLimitKb", Aliases: []string{"memory_limit_kb", "memory_limit"}, Kind: KindInt},
	}
}

// Registry returns the supported commands keyed by Name.
func Registry() map[string]Command {
	idField := Field{Name: "id", Aliases: []string{"submissionId", "submission_id"}, Required: true, InPath: true}
	commands := []Command{
		{
			Group:  "grading",
			Action: "grade",
			Method: http.MethodPost,
			Path:   gradingPrefix + "/grade",
			Usage:  "grading grade source_file=./main.py language=python config_file=./tests.json [owner=s-1]",
			Fields: submissionFields(),
		},
		{
			Group:  "grading",
			Action: "enqueue",
			Method: http.MethodPost,
			Path:   gradingPrefix + "/jobs",
			Usage:  "grading enqueue source_file=./main.py submissionId=s-1 pack=hw1/pack.json.zst",
			Fields: submissionFields(),
		},
		{
			Group:  "grading",
			Action: "result",
			Method: http.MethodGet,
			Path:   gradingPrefix + "/submissions/:id",
			Usage:  "grading result id=s-1",
			Fields: []Field{idField},
		},
		{
			Group:  "grading",
			Action: "history",
			Method: http.MethodGet,
			Path:   gradingPrefix + "/submissions/:id/history",
			Usage:  "grading history id=s-1",
			Fields: []Field{idField},
		},
		{
			Group:  "grading",
			Action: "pack",
			Method: http.MethodPut,
			Path:   gradingPrefix + "/testpacks/:key",
			Usage:  "grading pack key=hw1/pack.json.zst file=./pack.json",
			Fields: []Field{
				{Name: "key", Required: true, InPath: true},
				{Name: "pack", Aliases: []string{"pack_json"}, Kind: KindJSON, FromFile: "file", Required: true},
			},
			RawBody: "pack",
		},
	}

	result := make(map[string]Command, len(commands))
	for _, cmd := range commands {
		result[cmd.Name()] = cmd
	}
	return result
}

// Names returns the registered command names in order.
func Names(commands map[string]Command) []string {
	names := make([]string, 0, len(commands))
	for name := range commands {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// BuildRequest resolves params against cmd and encodes the HTTP request.
func BuildRequest(cmd Command, params Params) (Request, error) {
	params.Canonicalize(cmd.Fields)
	path := cmd.Path
	payload := map[string]interface{}{}
	var raw json.RawMessage

	for _, field := range cmd.Fields {
		v, err := value(field, params)
		if err != nil {
			return Request{}, err
		}
		if strings.TrimSpace(v) == "" {
			if field.Required {
				return Request{}, fmt.Errorf("%s is required", field.Name)
			}
			continue
		}
		if field.InPath {
			segment := strings.Trim(strings.TrimSpace(v), "/")
			if segment == "" {
				return Request{}, fmt.Errorf("%s is required", field.Name)
			}
			if field.Name == "id" {
				segment = url.PathEscape(segment)
			}
			path = strings.ReplaceAll(path, ":"+field.Name, segment)
			continue
		}
		encoded, err := encode(field, v)
		if err != nil {
			return Request{}, err
		}
		if field.Name == cmd.RawBody {
			raw = encoded.(json.RawMessage)
			continue
		}
		payload[field.BodyKey()] = encoded
	}

	req := Request{Method: cmd.Method, Path: path}
	switch {
	case raw != nil:
		req.Body = raw
	case len(payload) > 0:
		body, err := json.Marshal(payload)
		if err != nil {
			return Request{}, fmt.Errorf("marshal request body failed: %w", err)
		}
		req.Body = body
	}
	return req, nil
}
