package frame

import "fmt"

// TestCommand checks the multiplexer connection by echoing an arbitrary
// byte pattern (GSM 07.10 5.4.6.3.4). It is the only command whose value
// field may take any length, including zero. The frame owns the pattern
// until TakePattern transfers it.
type TestCommand struct {
	cr      CommandResponse
	pattern []byte
}

func NewTestCommand(cr CommandResponse, pattern []byte) *TestCommand {
	return &TestCommand{cr: cr, pattern: pattern}
}

func parseTestCommand(cr CommandResponse, v []byte) (MuxCommand, error) {
	var pattern []byte
	if len(v) > 0 {
		pattern = make([]byte, len(v))
		copy(pattern, v)
	}
	return &TestCommand{cr: cr, pattern: pattern}, nil
}

func (c *TestCommand) Type() CommandType { return TypeTestCommand }

func (c *TestCommand) CommandResponse() CommandResponse { return c.cr }

// Pattern returns the test pattern without transferring ownership.
func (c *TestCommand) Pattern() []byte { return c.pattern }

// TakePattern transfers the pattern to the caller.
func (c *TestCommand) TakePattern() []byte {
	p := c.pattern
	c.pattern = nil
	return p
}

// WrittenSize and Bytes share commandWrittenSize so the length-octet
// count for long patterns can never disagree between them.
func (c *TestCommand) WrittenSize() int { return commandWrittenSize(len(c.pattern)) }

func (c *TestCommand) Bytes() []byte {
	return encodeCommand(TypeTestCommand, c.cr, c.pattern)
}

func (c *TestCommand) String() string {
	return fmt.Sprintf("{Test %s Length:%d}", c.cr, len(c.pattern))
}
