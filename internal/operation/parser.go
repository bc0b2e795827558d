package operation

import (
	"encoding/json"
	"regexp"
	"strconv"
	"strings"
)

// The model proposes an action by wrapping it in a delimiter pair:
//
//	<operation type="shell" marker="op-1">echo hi</operation>
//	<operation type="write" marker="op-2" path="main.go">package main</operation>
//	<operation type="read" marker="op-3" from="2" to="9">notes.txt</operation>
//	<operation type="fetch" marker="op-4">https://example.com</operation>
//	<operation type="tool" marker="op-5" server="files" tool="search">{"query":"x"}</operation>
//
// The payload is the literal bytes between the tags. No escape processing is
// applied to it, ever, and it is never inspected for nested markup.

const (
	startTagName = "<operation"
	endTag       = "</operation>"
)

var (
	startTagRe = regexp.MustCompile(`<operation\b[^>]*>`)
	attrRe     = regexp.MustCompile(`([a-zA-Z_][a-zA-Z0-9_]*)\s*=\s*"([^"]*)"`)
)

// Parse extracts at most one Action from the model's full reply text.
// A reply with no operation block is a valid conversational turn and yields
// (nil, nil). Two or more blocks are a protocol violation.
func Parse(reply string) (*Action, error) {
	starts := startTagRe.FindAllStringIndex(reply, -1)
	if len(starts) == 0 {
		return nil, nil
	}
	if len(starts) > 1 {
		return nil, NewError(ErrParse, "found %d operation blocks, expected at most one", len(starts))
	}

	open := starts[0]
	// The payload may legitimately contain anything except the closing tag,
	// so the block ends at the last closing tag in the reply.
	closeIdx := strings.LastIndex(reply, endTag)
	if closeIdx < open[1] {
		return nil, NewError(ErrParse, "operation block is not terminated")
	}

	attrs := map[string]string{}
	for _, m := range attrRe.FindAllStringSubmatch(reply[open[0]:open[1]], -1) {
		attrs[m[1]] = m[2]
	}

	payload := reply[open[1]:closeIdx]

	action := &Action{Marker: attrs["marker"]}

	switch attrs["type"] {
	case "shell":
		action.Kind = KindShell
		action.Command = strings.TrimSpace(payload)
		if action.Command == "" {
			return nil, NewError(ErrParse, "shell operation has an empty command")
		}

	case "read":
		action.Kind = KindRead
		action.Path = strings.TrimSpace(payload)
		if action.Path == "" {
			return nil, NewError(ErrParse, "read operation has an empty path")
		}
		var err error
		if action.FromLine, err = parseLineAttr(attrs, "from"); err != nil {
			return nil, err
		}
		if action.ToLine, err = parseLineAttr(attrs, "to"); err != nil {
			return nil, err
		}

	case "write":
		action.Kind = KindWrite
		path, ok := attrs["path"]
		if !ok || path == "" {
			return nil, NewError(ErrParse, "write operation requires a path attribute")
		}
		action.Path = path
		// Raw file bytes; leading/trailing whitespace belongs to the file.
		action.Content = payload

	case "fetch":
		action.Kind = KindFetch
		action.URL = strings.TrimSpace(payload)
		if action.URL == "" {
			return nil, NewError(ErrParse, "fetch operation has an empty URL")
		}

	case "tool":
		action.Kind = KindToolCall
		action.Server = attrs["server"]
		action.Tool = attrs["tool"]
		if action.Server == "" || action.Tool == "" {
			return nil, NewError(ErrParse, "tool operation requires server and tool attributes")
		}
		args := strings.TrimSpace(payload)
		if args != "" {
			if err := json.Unmarshal([]byte(args), &action.Arguments); err != nil {
				return nil, NewError(ErrParse, "tool arguments are not a JSON object: %v", err)
			}
		}

	case "":
		return nil, NewError(ErrParse, "operation block is missing a type attribute")

	default:
		return nil, NewError(ErrParse, "unknown operation type %q", attrs["type"])
	}

	return action, nil
}

func parseLineAttr(attrs map[string]string, name string) (int, error) {
	raw, ok := attrs[name]
	if !ok || raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		return 0, NewError(ErrParse, "invalid %s attribute %q: expected a 1-based line number", name, raw)
	}
	return n, nil
}
