package frame

import "fmt"

// FlowControlOnCommand (FCon) re-enables transmission on every DLC of the
// session when credit-based flow control is not in use (GSM 07.10
// 5.4.6.3.5). It carries no values.
type FlowControlOnCommand struct {
	cr CommandResponse
}

func NewFlowControlOnCommand(cr CommandResponse) *FlowControlOnCommand {
	return &FlowControlOnCommand{cr: cr}
}

func (c *FlowControlOnCommand) Type() CommandType                { return TypeFlowControlOn }
func (c *FlowControlOnCommand) CommandResponse() CommandResponse { return c.cr }
func (c *FlowControlOnCommand) WrittenSize() int                 { return commandWrittenSize(0) }

func (c *FlowControlOnCommand) Bytes() []byte {
	return encodeCommand(TypeFlowControlOn, c.cr, nil)
}

func (c *FlowControlOnCommand) String() string {
	return fmt.Sprintf("{FCon %s}", c.cr)
}

// FlowControlOffCommand (FCoff) halts transmission on every DLC of the
// session when credit-based flow control is not in use (GSM 07.10
// 5.4.6.3.6).
type FlowControlOffCommand struct {
	cr CommandResponse
}

func NewFlowControlOffCommand(cr CommandResponse) *FlowControlOffCommand {
	return &FlowControlOffCommand{cr: cr}
}

func (c *FlowControlOffCommand) Type() CommandType                { return TypeFlowControlOff }
func (c *FlowControlOffCommand) CommandResponse() CommandResponse { return c.cr }
func (c *FlowControlOffCommand) WrittenSize() int                 { return commandWrittenSize(0) }

func (c *FlowControlOffCommand) Bytes() []byte {
	return encodeCommand(TypeFlowControlOff, c.cr, nil)
}

func (c *FlowControlOffCommand) String() string {
	return fmt.Sprintf("{FCoff %s}", c.cr)
}
