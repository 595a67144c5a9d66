package explorer

import (
	"context"
)

// Msg is the result of a Cmd, fed back to Controller.Update.
type Msg any

// Cmd is deferred work: usually one backend request. Cmds never touch
// controller state; they return a Msg that Update applies.
type Cmd func(ctx context.Context) Msg

// Drain runs cmd and every command it leads to, one at a time, feeding
// each message to c.Update. It returns the messages in the order they were
// applied. Used by non-interactive hosts and tests.
func Drain(ctx context.Context, c *Controller, cmd Cmd) []Msg {
	var applied []Msg
	queue := []Cmd{cmd}
	for len(queue) > 0 {
		next := queue[0]
		queue = queue[1:]
		if next == nil {
			continue
		}
		msg := next(ctx)
		applied = append(applied, msg)
		queue = append(queue, c.Update(msg))
	}
	return applied
}
