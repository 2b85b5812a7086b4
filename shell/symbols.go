package shell

import (
	"fmt"

	"github.com/nasa-jpl/stepperctl/stepper"
)

// Symbol pairs a token an operator types with the driver value it stands for
type Symbol struct {
	Token string
	Value int
}

// SymbolTable is a small ordered, read-only list of symbols.  It is used for
// both validation of an argument and completion of it.
type SymbolTable struct {
	// What names the kind of value, used in error messages
	What    string
	symbols []Symbol
}

// SymbolError is generated when a token is not in a symbol table
type SymbolError struct {
	What  string
	Token string
}

func (e SymbolError) Error() string {
	return fmt.Sprintf("invalid %s %s", e.What, e.Token)
}

// Unwrap makes SymbolError an EINVAL
func (e SymbolError) Unwrap() error {
	return stepper.ErrInvalid
}

var (
	// DirectionSymbols maps direction tokens to stepper.Direction
	DirectionSymbols = SymbolTable{What: "direction", symbols: []Symbol{
		{"positive", int(stepper.Positive)},
		{"negative", int(stepper.Negative)},
	}}

	// MicroStepSymbols maps resolution tokens to stepper.MicroStepResolution,
	// ascending
	MicroStepSymbols = SymbolTable{What: "microstep value", symbols: []Symbol{
		{"1", int(stepper.FullStep)},
		{"2", int(stepper.MicroStep2)},
		{"4", int(stepper.MicroStep4)},
		{"8", int(stepper.MicroStep8)},
		{"16", int(stepper.MicroStep16)},
		{"32", int(stepper.MicroStep32)},
		{"64", int(stepper.MicroStep64)},
		{"128", int(stepper.MicroStep128)},
		{"256", int(stepper.MicroStep256)},
	}}
)

// Lookup returns the value of the first symbol whose token is exactly token
func (t SymbolTable) Lookup(token string) (int, error) {
	for _, s := range t.symbols {
		if s.Token == token {
			return s.Value, nil
		}
	}
	return 0, SymbolError{What: t.What, Token: token}
}

// Enumerate returns the idx-th token, or false past the end
func (t SymbolTable) Enumerate(idx int) (string, bool) {
	if idx < 0 || idx >= len(t.symbols) {
		return "", false
	}
	return t.symbols[idx].Token, true
}

// Len is the number of symbols in the table
func (t SymbolTable) Len() int {
	return len(t.symbols)
}
