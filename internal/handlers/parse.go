package handlers

import (
	"errors"
	"fmt"
	"strings"

	"github.com/OCAP2/extracto/internal/dispatcher"
	"github.com/OCAP2/extracto/internal/util"
)

var (
	ErrEmptyLine  = errors.New("empty line")
	ErrBadCommand = errors.New("bad command")
	ErrArgs       = errors.New("wrong number of arguments")
)

// ParseLine turns one input line into an event. The line is a command
// wrapped in colons followed by its arguments, optionally preceded by
// @signer:
//
//	@burner :TICK: alice
//	:INIT:PLAYER: alice "Alice Smith"
func ParseLine(line string) (dispatcher.Event, error) {
	fields, err := util.SplitFields(strings.TrimSpace(line))
	if err != nil {
		return dispatcher.Event{}, fmt.Errorf("parse line: %w", err)
	}
	if len(fields) == 0 {
		return dispatcher.Event{}, ErrEmptyLine
	}

	var e dispatcher.Event
	if strings.HasPrefix(fields[0], "@") {
		e.Signer = strings.TrimPrefix(fields[0], "@")
		if e.Signer == "" {
			return dispatcher.Event{}, fmt.Errorf("%w: empty signer", ErrBadCommand)
		}
		fields = fields[1:]
		if len(fields) == 0 {
			return dispatcher.Event{}, fmt.Errorf("%w: missing command", ErrBadCommand)
		}
	}

	cmd := strings.ToUpper(fields[0])
	if len(cmd) < 3 || !strings.HasPrefix(cmd, ":") || !strings.HasSuffix(cmd, ":") {
		return dispatcher.Event{}, fmt.Errorf("%w: %q", ErrBadCommand, fields[0])
	}
	e.Command = cmd
	e.Args = fields[1:]
	return e, nil
}
