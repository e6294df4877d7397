package cli

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/pfrederiksen/meteomu/internal/almanac"
	"github.com/pfrederiksen/meteomu/internal/logger"
	"github.com/pfrederiksen/meteomu/internal/storage"
)

// Command names accepted as the first argument
const (
	CommandSunrise   = "sunrisemu"
	CommandMoonrise  = "moonrisemu"
	CommandMoonPhase = "moonphasemu"
)

var requiredCommands = []string{CommandSunrise, CommandMoonrise, CommandMoonPhase}

// Error messages are written verbatim to stderr as the {"error": ...} envelope and
// callers match on the exact wording, so they keep their capitalization.
var (
	ErrNoCommand         = errors.New("No command specified")
	ErrMissingDependency = errors.New("Required components not available. Rebuild with: go build ./cmd/meteomu")
)

// UnknownCommandError is returned for an unrecognized command argument
type UnknownCommandError struct {
	Command string
}

func (e *UnknownCommandError) Error() string {
	return "Unknown command: " + e.Command
}

// Source produces the JSON-serializable result of one command
type Source func(ctx context.Context) (interface{}, error)

// Dispatcher runs one command and writes its result
type Dispatcher struct {
	sources map[string]Source
	out     io.Writer
	archive *storage.Storage
}

// NewDispatcher creates a dispatcher writing results to out
func NewDispatcher(sources map[string]Source, out io.Writer) *Dispatcher {
	return &Dispatcher{
		sources: sources,
		out:     out,
	}
}

// checkDependencies verifies every command has a data source wired
func (d *Dispatcher) checkDependencies() error {
	for _, name := range requiredCommands {
		if d.sources[name] == nil {
			logger.Error("Data source not wired", logger.Fields{"command": name}, nil)
			return ErrMissingDependency
		}
	}
	return nil
}

// Run executes the command named by args[0] and writes its result as JSON
func (d *Dispatcher) Run(ctx context.Context, args []string) error {
	if err := d.checkDependencies(); err != nil {
		return err
	}

	if len(args) == 0 {
		return ErrNoCommand
	}

	name := args[0]
	src, ok := d.sources[name]
	if !ok {
		return &UnknownCommandError{Command: name}
	}

	logger.Debug("Running command", logger.Fields{"command": name})
	logger.IncrCounter("commands." + name)

	result, err := invoke(ctx, src)
	if err != nil {
		return err
	}

	if d.archive != nil {
		if path, err := d.archive.Save(name, result); err != nil {
			logger.Warn("Archiving result failed", logger.Fields{"command": name}, err)
		} else {
			logger.Info("Archived result", logger.Fields{"path": path})
		}
	}

	return almanac.WriteJSON(d.out, result)
}

// invoke calls src, turning a panic into an error
func invoke(ctx context.Context, src Source) (result interface{}, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%v", r)
		}
	}()
	return src(ctx)
}
