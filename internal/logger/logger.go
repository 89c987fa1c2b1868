// Package logger writes to the standard logger and forwards warnings and errors to Rollbar
// when a token is configured.
package logger

import (
	"context"
	"fmt"
	"log"
	"os"
	"strconv"

	"github.com/rollbar/rollbar-go"
)

// Person attaches the acting user to a Rollbar item. Pass it as one of the args.
type Person struct {
	ID    uint64
	Email string
}

type Logger struct {
	std *log.Logger
}

// New configures Rollbar; an empty token keeps Rollbar disabled.
func New(std *log.Logger, rollbarToken, env string) *Logger {
	if std == nil {
		std = log.Default()
	}

	rollbar.SetToken(rollbarToken)
	rollbar.SetEnvironment(env)
	if host, err := os.Hostname(); err == nil {
		rollbar.SetServerHost(host)
	}
	rollbar.SetEnabled(rollbarToken != "")

	return &Logger{std: std}
}

// prepare builds the Rollbar payload. A Person travels with the item in its own
// context so concurrent reports never share the client's global person.
func (l *Logger) prepare(msg string, args []any) []any {
	var personSet bool
	payload := make([]any, 0, len(args)+2)
	payload = append(payload, msg)
	for _, arg := range args {
		if p, ok := arg.(Person); ok {
			if !personSet {
				id := strconv.FormatUint(p.ID, 10)
				payload = append(payload, rollbar.NewPersonContext(context.Background(), &rollbar.Person{
					Id:       id,
					Username: p.Email,
					Email:    p.Email,
				}))
				personSet = true
			}
			continue
		}
		payload = append(payload, arg)
	}
	return payload
}

func (l *Logger) print(level, msg string, args []any) {
	line := fmt.Sprintf("[%s] %s", level, msg)
	for _, arg := range args {
		if _, ok := arg.(Person); ok {
			continue
		}
		line += fmt.Sprintf(" %+v", arg)
	}
	l.std.Println(line)
}

func (l *Logger) Info(msg string, args ...any) {
	l.print("INFO", msg, args)
}

func (l *Logger) Warn(msg string, args ...any) {
	rollbar.Warning(l.prepare(msg, args)...)
	l.print("WARN", msg, args)
}

func (l *Logger) Error(msg string, args ...any) {
	rollbar.Error(l.prepare(msg, args)...)
	l.print("ERROR", msg, args)
}

func (l *Logger) Fatal(msg string, args ...any) {
	rollbar.Critical(l.prepare(msg, args)...)
	l.print("FATAL", msg, args)
	rollbar.Close()
	os.Exit(1)
}

// Close flushes queued Rollbar items.
func (l *Logger) Close() {
	rollbar.Close()
}
