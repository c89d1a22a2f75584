package orchestrator

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
)

// IsQuit reports whether an operator input ends the session.
func IsQuit(input string) bool {
	switch strings.ToLower(strings.TrimSpace(input)) {
	case "quit", "exit", "q":
		return true
	}
	return false
}

// Serve runs the operator loop: it prompts with the active agent's context
// display, reads one line per turn and writes the final reply. It returns
// when the operator quits, input ends or ctx is done. Turn errors are
// reported and the loop continues.
func (o *Orchestrator) Serve(ctx context.Context, in io.Reader, out io.Writer) error {
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		fmt.Fprintf(out, "%s >>> ", o.Active().ContextDisplay())
		if !scanner.Scan() {
			fmt.Fprintln(out)
			fmt.Fprintln(out, "End of input received. quitting...")
			return scanner.Err()
		}
		input := strings.TrimSpace(scanner.Text())
		if input == "" {
			continue
		}
		if IsQuit(input) {
			return nil
		}

		reply, err := o.RunTurn(ctx, input)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			o.opts.Logger.Error("turn failed", "error", err)
			fmt.Fprintf(out, "An error occurred: %v\nRecovering...\n", err)
			continue
		}
		fmt.Fprintf(out, "%s: %s\n", reply.Agent, reply.Text)
	}
}
