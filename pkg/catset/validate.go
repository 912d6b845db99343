package catset

import (
	"fmt"

	"github.com/dougsko/catd/pkg/codec"
)

func invalid(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrInvalid, fmt.Sprintf(format, args...))
}

// Validate checks the structural invariants of a command set
func (cs *CommandSet) Validate() error {
	present := 0
	for _, mode := range OperatingModes {
		if cs.Group(mode) != nil {
			present++
		}
	}
	if present == 0 {
		return invalid("at least one of %v must be defined", operatingModeNames)
	}

	if cs.BadReply != nil && len(cs.BadReply) == 0 {
		return invalid("bad_reply must be null or contain at least one byte")
	}

	for _, mode := range OperatingModes {
		group := cs.Group(mode)
		if group == nil {
			continue
		}
		if len(group) == 0 {
			return invalid("command group %s must contain at least one command", mode)
		}
		for _, command := range Commands {
			if info, ok := group[command]; ok && info != nil {
				if err := validateCommandInfo(fmt.Sprintf("%s.%s", mode, command), info); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

func validateCommandInfo(name string, info *CommandInfo) error {
	if len(info.Messages) == 0 {
		return invalid("%s must contain at least one message in messages", name)
	}
	for i := range info.Messages {
		if err := validateMessage(fmt.Sprintf("%s.messages[%d]", name, i), &info.Messages[i]); err != nil {
			return err
		}
	}

	if info.AltMessages != nil && len(info.AltMessages) == 0 {
		return invalid("%s.alt_messages must be null or contain at least one message", name)
	}
	for i := range info.AltMessages {
		if err := validateMessage(fmt.Sprintf("%s.alt_messages[%d]", name, i), &info.AltMessages[i]); err != nil {
			return err
		}
	}
	return nil
}

func validateMessage(name string, m *Message) error {
	// command
	if m.Command.Len() == 0 {
		return invalid("%s.command cannot be blank", name)
	}
	if err := validateTemplateParam(name, "command", m.Command, m.CommandParam); err != nil {
		return err
	}
	if m.CommandParam != nil {
		if m.CommandParam.Mask != nil {
			return invalid("%s.command_param.mask is not allowed for command parameters", name)
		}
		if err := validateValues(name+".command_param", m.CommandParam, m.Command.PlaceholderCount()); err != nil {
			return err
		}
	}

	// reply
	if m.ReplyParam != nil && m.IgnoreError {
		return invalid("%s.ignore_error is not allowed if reply_param is defined", name)
	}
	if m.Reply == nil {
		if m.ReplyParam != nil {
			return invalid("%s.reply is not present but reply_param is defined", name)
		}
		return nil
	}
	if m.Reply.Len() == 0 {
		return invalid("%s.reply cannot be empty if defined", name)
	}
	if err := validateTemplateParam(name, "reply", *m.Reply, m.ReplyParam); err != nil {
		return err
	}
	if m.ReplyParam != nil {
		_, length := m.ReplyParam.Field(*m.Reply)
		if m.ReplyParam.Mask != nil && len(m.ReplyParam.Mask) != length {
			return invalid("%s.reply_param.mask must match the parameter length %d", name, length)
		}
		if err := validateValues(name+".reply_param", m.ReplyParam, length); err != nil {
			return err
		}
	}
	return nil
}

// validateTemplateParam enforces that a template has placeholders exactly
// when it has a parameter, that they form one run, and that an explicit
// start/length describes that run.
func validateTemplateParam(name, kind string, t Template, p *ParamSpec) error {
	count := t.PlaceholderCount()
	if count == 0 && p != nil {
		return invalid("%s.%s does not contain placeholders but %s_param is defined", name, kind, kind)
	}
	if count > 0 && p == nil {
		return invalid("%s.%s contains placeholders but %s_param is not defined", name, kind, kind)
	}
	if p == nil {
		return nil
	}
	if !t.Contiguous() {
		return invalid("%s.%s must have all placeholders in one block", name, kind)
	}
	start := t.PlaceholderStart()
	if p.Start != nil && *p.Start != start {
		return invalid("%s.%s_param.start %d does not match the placeholder position %d", name, kind, *p.Start, start)
	}
	if p.Length != nil && *p.Length != count {
		return invalid("%s.%s_param.length %d does not match the placeholder count %d", name, kind, *p.Length, count)
	}
	return nil
}

func validateValues(name string, p *ParamSpec, width int) error {
	if p.Format != codec.FormatEnum {
		if p.Values != nil {
			return invalid("%s.values is defined but format is %s", name, p.Format)
		}
		return nil
	}
	if len(p.Values) == 0 {
		return invalid("%s.format is Enum but values are not defined or empty", name)
	}
	for _, v := range p.Values {
		if len(v.Bytes) != width {
			return invalid("%s.values.%s must be %d bytes long, got %d", name, v.Name, width, len(v.Bytes))
		}
	}
	return nil
}
