// Package engine adapts an external point-query engine invoked as a
// subprocess, one clip per call.
package engine

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

var (
	DefaultQueryCommand = []string{"panako", "query"}
	DefaultStoreCommand = []string{"panako", "store"}
)

// CommandQuerier runs the engine's command line for each call. It holds no
// mutable state and is safe for concurrent use.
type CommandQuerier struct {
	Command      []string
	StoreCommand []string
	// Timeout applies only when the caller's context has no deadline.
	Timeout time.Duration
}

func NewCommandQuerier(query, store []string) *CommandQuerier {
	q := &CommandQuerier{
		Command:      DefaultQueryCommand,
		StoreCommand: DefaultStoreCommand,
		Timeout:      2 * time.Minute,
	}
	if len(query) > 0 {
		q.Command = query
	}
	if len(store) > 0 {
		q.StoreCommand = store
	}
	return q
}

// ParseCommand splits a command line on whitespace, e.g. "java -jar panako.jar query".
func ParseCommand(line string) []string {
	return strings.Fields(line)
}

// Query runs the query command against one clip and returns its stdout.
func (q *CommandQuerier) Query(ctx context.Context, clip string) (string, error) {
	return q.run(ctx, q.Command, clip)
}

// Store adds a file to the engine's index.
func (q *CommandQuerier) Store(ctx context.Context, path string) (string, error) {
	return q.run(ctx, q.StoreCommand, path)
}

func (q *CommandQuerier) run(ctx context.Context, command []string, arg string) (string, error) {
	if len(command) == 0 {
		return "", errors.New("engine command is empty")
	}

	if _, ok := ctx.Deadline(); !ok && q.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, q.Timeout)
		defer cancel()
	}

	args := append(append([]string{}, command[1:]...), arg)
	cmd := exec.CommandContext(ctx, command[0], args...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	cmd.WaitDelay = 2 * time.Second

	if err := cmd.Run(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", fmt.Errorf("%s %s: %w", command[0], arg, ctxErr)
		}
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			return "", fmt.Errorf("%s failed: %w", command[0], err)
		}
		return "", fmt.Errorf("%s failed: %w: %s", command[0], err, msg)
	}
	return stdout.String(), nil
}
