package gitcli

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os/exec"
	"strings"
)

var CommandContext = exec.CommandContext

func (g *Git) call(ctx context.Context, args []string) ([]byte, error) {
	ob := &bytes.Buffer{}
	if err := g.callTo(ctx, ob, args); err != nil {
		return nil, err
	}
	return ob.Bytes(), nil
}

func (g *Git) callTo(ctx context.Context, w io.Writer, args []string) error {
	cmd := CommandContext(ctx, "git", args...)
	cmd.Dir = g.wd

	eb := &bytes.Buffer{}
	cmd.Stderr = eb
	cmd.Stdout = w

	if g.cfg.Debug {
		g.cfg.Errorf("+ git %s", ArgsString(args))
	}
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("exec: git %q failed: %s (%w)", args, strings.TrimSpace(eb.String()), err)
	}
	return nil
}

// ArgsString returns a string suitable for copy/paste into the terminal.
func ArgsString(args []string) string {
	b := &bytes.Buffer{}

	for i, arg := range args {
		if strings.Contains(arg, " ") {
			b.WriteString(`"`)
			b.WriteString(arg)
			b.WriteString(`"`)
		} else {
			b.WriteString(arg)
		}

		if i < len(args)-1 {
			b.WriteString(" ")
		}
	}

	return b.String()
}
