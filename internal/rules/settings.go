package rules

import "strings"

type Settings struct {
	Disabled map[string]bool // lower(qualifier) -> disabled
	Extra    []Namespace     // registered in addition to the defaults
}

var rsettings = Settings{
	Disabled: map[string]bool{},
}

func SetSettings(s Settings) {
	// normalise keys
	disabled := make(map[string]bool, len(s.Disabled))
	for k, v := range s.Disabled {
		disabled[strings.ToLower(strings.TrimSpace(k))] = v
	}
	s.Disabled = disabled
	for _, n := range s.Extra {
		Register(n)
	}
	rsettings = s
}
