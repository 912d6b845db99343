package catset

import (
	"errors"
	"fmt"
	"strings"

	"github.com/dougsko/catd/pkg/codec"
	"gopkg.in/yaml.v3"
)

// ErrInvalid is wrapped by every parse and validation failure
var ErrInvalid = errors.New("invalid command set")

// Parse builds a command set from a JSON or YAML document and validates it.
//
// Loading happens in two phases: the document is first decoded into a
// generic yaml.Node tree, then walked into typed values so that every
// error can name the line and the field that caused it.
func Parse(data []byte) (*CommandSet, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if doc.Kind != yaml.DocumentNode || len(doc.Content) == 0 {
		return nil, fmt.Errorf("%w: empty document", ErrInvalid)
	}

	cs, err := buildCommandSet(doc.Content[0])
	if err != nil {
		return nil, err
	}
	if err := cs.Validate(); err != nil {
		return nil, err
	}
	return cs, nil
}

type field struct {
	key  string
	node *yaml.Node
}

func invalidf(n *yaml.Node, format string, args ...interface{}) error {
	return fmt.Errorf("%w: line %d: %s", ErrInvalid, n.Line, fmt.Sprintf(format, args...))
}

func isNull(n *yaml.Node) bool {
	return n.Kind == yaml.ScalarNode && n.Tag == "!!null"
}

// mappingFields returns the key/value pairs of a mapping node with lower-cased keys
func mappingFields(n *yaml.Node, where string) ([]field, error) {
	if n.Kind != yaml.MappingNode {
		return nil, invalidf(n, "%s must be an object", where)
	}
	fields := make([]field, 0, len(n.Content)/2)
	seen := make(map[string]bool)
	for i := 0; i+1 < len(n.Content); i += 2 {
		key := strings.ToLower(n.Content[i].Value)
		if seen[key] {
			return nil, invalidf(n.Content[i], "%s has duplicate key %q", where, key)
		}
		seen[key] = true
		fields = append(fields, field{key: key, node: n.Content[i+1]})
	}
	return fields, nil
}

func scalar(n *yaml.Node, where string, out interface{}) error {
	if n.Kind != yaml.ScalarNode {
		return invalidf(n, "%s must be a scalar", where)
	}
	if err := n.Decode(out); err != nil {
		return invalidf(n, "%s: %v", where, err)
	}
	return nil
}

func buildCommandSet(n *yaml.Node) (*CommandSet, error) {
	fields, err := mappingFields(n, "command set")
	if err != nil {
		return nil, err
	}

	cs := &CommandSet{DefaultBaudRate: 9600}
	for _, f := range fields {
		switch f.key {
		case "id":
			err = scalar(f.node, "id", &cs.ID)
		case "echo":
			err = scalar(f.node, "echo", &cs.Echo)
		case "default_baud_rate":
			err = scalar(f.node, "default_baud_rate", &cs.DefaultBaudRate)
		case "cross_band_split":
			err = scalar(f.node, "cross_band_split", &cs.CrossBandSplit)
		case "bad_reply":
			if isNull(f.node) {
				continue
			}
			var s string
			if err = scalar(f.node, "bad_reply", &s); err == nil {
				if cs.BadReply, err = ParseHex(s); err != nil {
					err = invalidf(f.node, "bad_reply: %v", err)
				}
			}
		default:
			mode, ok := ParseOperatingMode(f.key)
			if !ok {
				return nil, invalidf(f.node, "unknown field %q", f.key)
			}
			if isNull(f.node) {
				continue
			}
			var group CommandGroup
			if group, err = buildGroup(f.node, mode); err == nil {
				cs.SetGroup(mode, group)
			}
		}
		if err != nil {
			return nil, err
		}
	}
	return cs, nil
}

func buildGroup(n *yaml.Node, mode OperatingMode) (CommandGroup, error) {
	fields, err := mappingFields(n, mode.String())
	if err != nil {
		return nil, err
	}

	group := make(CommandGroup, len(fields))
	for _, f := range fields {
		command, ok := ParseCommand(f.key)
		if !ok {
			return nil, invalidf(f.node, "%s: unknown command %q", mode, f.key)
		}
		if isNull(f.node) {
			continue
		}
		info, err := buildCommandInfo(f.node, fmt.Sprintf("%s.%s", mode, command))
		if err != nil {
			return nil, err
		}
		group[command] = info
	}
	return group, nil
}

func buildCommandInfo(n *yaml.Node, where string) (*CommandInfo, error) {
	fields, err := mappingFields(n, where)
	if err != nil {
		return nil, err
	}

	info := &CommandInfo{}
	for _, f := range fields {
		switch f.key {
		case "messages":
			info.Messages, err = buildMessages(f.node, where+".messages")
		case "alt_messages":
			if !isNull(f.node) {
				info.AltMessages, err = buildMessages(f.node, where+".alt_messages")
			}
		case "restriction":
			var s string
			if err = scalar(f.node, where+".restriction", &s); err == nil {
				var ok bool
				if info.Restriction, ok = ParseRestriction(s); !ok {
					err = invalidf(f.node, "%s.restriction: unknown restriction %q", where, s)
				}
			}
		default:
			err = invalidf(f.node, "%s: unknown field %q", where, f.key)
		}
		if err != nil {
			return nil, err
		}
	}
	return info, nil
}

func buildMessages(n *yaml.Node, where string) ([]Message, error) {
	if n.Kind != yaml.SequenceNode {
		return nil, invalidf(n, "%s must be a list", where)
	}
	messages := make([]Message, 0, len(n.Content))
	for i, item := range n.Content {
		m, err := buildMessage(item, fmt.Sprintf("%s[%d]", where, i))
		if err != nil {
			return nil, err
		}
		messages = append(messages, m)
	}
	return messages, nil
}

func buildMessage(n *yaml.Node, where string) (Message, error) {
	var m Message
	fields, err := mappingFields(n, where)
	if err != nil {
		return m, err
	}

	for _, f := range fields {
		switch f.key {
		case "comment":
			err = scalar(f.node, where+".comment", &m.Comment)
		case "command":
			var s string
			if err = scalar(f.node, where+".command", &s); err == nil {
				if m.Command, err = ParseTemplate(s); err != nil {
					err = invalidf(f.node, "%s.command: %v", where, err)
				}
			}
		case "reply":
			if isNull(f.node) {
				continue
			}
			var s string
			if err = scalar(f.node, where+".reply", &s); err == nil {
				var t Template
				if t, err = ParseTemplate(s); err != nil {
					err = invalidf(f.node, "%s.reply: %v", where, err)
				} else {
					m.Reply = &t
				}
			}
		case "command_param":
			if !isNull(f.node) {
				m.CommandParam, err = buildParam(f.node, where+".command_param")
			}
		case "reply_param":
			if !isNull(f.node) {
				m.ReplyParam, err = buildParam(f.node, where+".reply_param")
			}
		case "ignore_error":
			err = scalar(f.node, where+".ignore_error", &m.IgnoreError)
		default:
			err = invalidf(f.node, "%s: unknown field %q", where, f.key)
		}
		if err != nil {
			return m, err
		}
	}
	return m, nil
}

func buildParam(n *yaml.Node, where string) (*ParamSpec, error) {
	fields, err := mappingFields(n, where)
	if err != nil {
		return nil, err
	}

	p := &ParamSpec{}
	hasFormat := false
	for _, f := range fields {
		if isNull(f.node) {
			continue
		}
		switch f.key {
		case "format":
			var s string
			if err = scalar(f.node, where+".format", &s); err == nil {
				if p.Format, err = codec.ParseFormat(s); err != nil {
					err = invalidf(f.node, "%s.format: %v", where, err)
				}
				hasFormat = true
			}
		case "step":
			if err = scalar(f.node, where+".step", &p.Step); err == nil && p.Step <= 0 {
				err = invalidf(f.node, "%s.step must be positive", where)
			}
		case "start":
			var v int
			if err = scalar(f.node, where+".start", &v); err == nil {
				p.Start = &v
			}
		case "length":
			var v int
			if err = scalar(f.node, where+".length", &v); err == nil {
				p.Length = &v
			}
		case "mask":
			var s string
			if err = scalar(f.node, where+".mask", &s); err == nil {
				if p.Mask, err = ParseHex(s); err != nil {
					err = invalidf(f.node, "%s.mask: %v", where, err)
				}
			}
		case "values":
			p.Values, err = buildValues(f.node, where+".values")
		default:
			err = invalidf(f.node, "%s: unknown field %q", where, f.key)
		}
		if err != nil {
			return nil, err
		}
	}
	if !hasFormat {
		return nil, invalidf(n, "%s.format is required", where)
	}
	return p, nil
}

// buildValues keeps document order and the original key case, since names are sent to clients
func buildValues(n *yaml.Node, where string) ([]codec.Value, error) {
	if n.Kind != yaml.MappingNode {
		return nil, invalidf(n, "%s must be an object", where)
	}
	values := make([]codec.Value, 0, len(n.Content)/2)
	for i := 0; i+1 < len(n.Content); i += 2 {
		name := n.Content[i].Value
		var s string
		if err := scalar(n.Content[i+1], where+"."+name, &s); err != nil {
			return nil, err
		}
		b, err := ParseHex(s)
		if err != nil {
			return nil, invalidf(n.Content[i+1], "%s.%s: %v", where, name, err)
		}
		values = append(values, codec.Value{Name: name, Bytes: b})
	}
	return values, nil
}
