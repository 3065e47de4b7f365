package appliance

import "strings"

// pinNames is the fixed set of controllable pins on the appliance board,
// matching the board's d0..d8 GPIO labels. The set is part of the wire
// contract and is not configurable.
var pinNames = [...]string{"d0", "d1", "d2", "d3", "d4", "d5", "d6", "d7", "d8"}

// PinCount is the number of controllable pins on the board.
const PinCount = len(pinNames)

// Pins returns the canonical ordered list of pin names.
func Pins() []string {
	out := make([]string, PinCount)
	copy(out, pinNames[:])
	return out
}

// ValidPin reports whether name identifies a board pin.
// Matching is case-insensitive, as the board firmware matches.
func ValidPin(name string) bool {
	lower := strings.ToLower(name)
	for _, p := range pinNames {
		if p == lower {
			return true
		}
	}
	return false
}

// stateTokens are the accepted values for the set-all operation.
// The board treats "on"/"high" as driving a pin high and anything else
// as low, so individual pin states are not validated beyond this list
// where the API requires a known token.
var stateTokens = map[string]struct{}{
	"on":   {},
	"off":  {},
	"high": {},
	"low":  {},
}

// ValidStateToken reports whether s is an accepted state token
// (on, off, high, low), case-insensitively.
func ValidStateToken(s string) bool {
	_, ok := stateTokens[strings.ToLower(s)]
	return ok
}
