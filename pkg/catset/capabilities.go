package catset

import (
	"encoding/json"
	"fmt"
	"strings"
)

// AvailableCommands lists the commands of one group by the state in which they may run
type AvailableCommands struct {
	WhenReceiving    []string `json:"when_receiving"`
	WhenTransmitting []string `json:"when_transmitting"`
	WhenSettingUp    []string `json:"when_setting_up"`
}

// Capabilities summarizes what a radio model supports in each operating mode
type Capabilities struct {
	Model          string             `json:"model"`
	CrossBandSplit bool               `json:"cross_band_split"`
	Simplex        *AvailableCommands `json:"simplex"`
	Split          *AvailableCommands `json:"split"`
	Duplex         *AvailableCommands `json:"duplex"`
	Transmitter    *AvailableCommands `json:"transmitter,omitempty"`
	Receiver       *AvailableCommands `json:"receiver,omitempty"`
}

// NewCapabilities derives the capabilities of a command set from its restriction tags
func NewCapabilities(model string, cs *CommandSet) *Capabilities {
	return &Capabilities{
		Model:          model,
		CrossBandSplit: cs.CrossBandSplit,
		Simplex:        availableCommands(cs.Group(Simplex)),
		Split:          availableCommands(cs.Group(Split)),
		Duplex:         availableCommands(cs.Group(Duplex)),
		Transmitter:    availableCommands(cs.Group(Transmitter)),
		Receiver:       availableCommands(cs.Group(Receiver)),
	}
}

func availableCommands(group CommandGroup) *AvailableCommands {
	if group == nil {
		return nil
	}

	ac := &AvailableCommands{
		WhenReceiving:    []string{},
		WhenTransmitting: []string{},
		WhenSettingUp:    []string{},
	}
	for _, command := range Commands {
		info, ok := group[command]
		if !ok || info == nil {
			continue
		}
		name := command.String()
		switch info.Restriction {
		case RestrictionNone:
			ac.WhenReceiving = append(ac.WhenReceiving, name)
			ac.WhenTransmitting = append(ac.WhenTransmitting, name)
			ac.WhenSettingUp = append(ac.WhenSettingUp, name)
		case WhenReceiving:
			ac.WhenReceiving = append(ac.WhenReceiving, name)
			ac.WhenSettingUp = append(ac.WhenSettingUp, name)
		case WhenTransmitting:
			ac.WhenTransmitting = append(ac.WhenTransmitting, name)
		case WhenSettingUp:
			ac.WhenSettingUp = append(ac.WhenSettingUp, name)
		}
	}
	return ac
}

// JSON renders the capabilities on a single line
func (c *Capabilities) JSON() string {
	data, _ := json.Marshal(c)
	return string(data)
}

// Capabilities returns the capabilities of one model
func (c *Catalog) Capabilities(model string) (*Capabilities, error) {
	name, cs, err := c.Lookup(model)
	if err != nil {
		return nil, err
	}
	return NewCapabilities(name, cs), nil
}

// AllCapabilities renders the capabilities of every model as a JSON array, one model per line
func (c *Catalog) AllCapabilities() string {
	var list []string
	for _, name := range c.Names() {
		list = append(list, NewCapabilities(name, c.sets[name]).JSON())
	}
	return fmt.Sprintf("[%s]", strings.Join(list, ",\n"))
}
