// Package syncq keeps CLI writes that could not reach the server so they
// can be replayed later with their original idempotency keys.
package syncq

import (
	"encoding/json"
	"os"
	"path/filepath"
)

type Command struct {
	Method         string         `json:"method"`
	Path           string         `json:"path"`
	Body           map[string]any `json:"body,omitempty"`
	IdempotencyKey string         `json:"idempotency_key"`
}

// Dir overrides the queue directory. Empty means ~/.lsim.
var Dir string

func queuePath() (string, error) {
	dir := Dir
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		dir = filepath.Join(home, ".lsim")
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", err
	}
	return filepath.Join(dir, "queue.json"), nil
}

func Load() ([]Command, error) {
	path, err := queuePath()
	if err != nil {
		return nil, err
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return []Command{}, nil
		}
		return nil, err
	}
	if len(raw) == 0 {
		return []Command{}, nil
	}
	var out []Command
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func Save(commands []Command) error {
	path, err := queuePath()
	if err != nil {
		return err
	}
	raw, err := json.MarshalIndent(commands, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, raw, 0o600)
}

// Push appends cmd unless a command with the same key is already queued.
func Push(cmd Command) error {
	commands, err := Load()
	if err != nil {
		return err
	}
	for _, q := range commands {
		if q.IdempotencyKey != "" && q.IdempotencyKey == cmd.IdempotencyKey {
			return nil
		}
	}
	commands = append(commands, cmd)
	return Save(commands)
}

// Replay sends every queued command through send in order and keeps the
// ones that failed. It returns how many went through.
func Replay(send func(Command) error) (int, []error, error) {
	queue, err := Load()
	if err != nil {
		return 0, nil, err
	}
	remaining := make([]Command, 0, len(queue))
	var failures []error
	ok := 0
	for _, q := range queue {
		if err := send(q); err != nil {
			remaining = append(remaining, q)
			failures = append(failures, err)
			continue
		}
		ok++
	}
	return ok, failures, Save(remaining)
}
