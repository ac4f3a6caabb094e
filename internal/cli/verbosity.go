package cli

import "fmt"

// maxLogLevel mirrors the log_level config key's 0..5 range (spec §6):
// -v is repeatable and clamps at the same ceiling rather than growing
// unbounded.
const maxLogLevel = 5

// countFlag implements flag.Value for a flag that may be repeated
// (-v -v -v) to raise a count, clamped at maxLogLevel.
type countFlag int

func (c *countFlag) String() string {
	if c == nil {
		return "0"
	}
	return fmt.Sprintf("%d", *c)
}

func (c *countFlag) Set(string) error {
	if *c < maxLogLevel {
		*c++
	}
	return nil
}

// IsBoolFlag lets "-v" be used without an explicit value, the way
// flag.Bool-backed switches are.
func (c *countFlag) IsBoolFlag() bool { return true }
