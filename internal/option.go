package internal

import (
	"io"
	"os"
)

// Option is a functional option for configuring the application.
type Option func(*application)

type application struct {
	config *Config

	// logOut receives the JSON log stream. The mcp command points it at
	// stderr because stdout carries the protocol.
	logOut io.Writer
	stdin  io.Reader
	stdout io.Writer
	editor string
}

func newApplication(opts []Option) *application {
	app := &application{
		logOut: os.Stdout,
		stdin:  os.Stdin,
		stdout: os.Stdout,
	}
	for _, opt := range opts {
		opt(app)
	}
	return app
}

// WithConfig sets the application configuration.
func WithConfig(cfg *Config) Option {
	return func(a *application) {
		a.config = cfg
	}
}

// WithLogOutput sets where logs are written.
func WithLogOutput(w io.Writer) Option {
	return func(a *application) {
		a.logOut = w
	}
}

// WithTerminal sets the streams used by interactive commands.
func WithTerminal(in io.Reader, out io.Writer) Option {
	return func(a *application) {
		a.stdin = in
		a.stdout = out
	}
}

// WithEditor sets the command the edit command opens articles in.
func WithEditor(cmd string) Option {
	return func(a *application) {
		a.editor = cmd
	}
}
