package commands

import (
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/akx/talsi"
)

// ErrNoFile is returned when a command needs storage but no database file was
// configured.
var ErrNoFile = errors.New("no database file given; use --file or TALSI_FILE")

// App holds the storage handle shared by commands. The handle is opened on
// first use so commands such as recover can run against files that do not
// open.
type App struct {
	flags *Flags

	mu      sync.Mutex
	log     zerolog.Logger
	storage *talsi.Storage
}

// NewApp creates an App reading its settings from flags.Config.
func NewApp(flags *Flags) *App {
	return &App{flags: flags, log: zerolog.Nop()}
}

// SetLogger sets the logger handed to storage.
func (a *App) SetLogger(l zerolog.Logger) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.log = l
}

// Path returns the configured database path.
func (a *App) Path() (string, error) {
	if a.flags.Config == nil || a.flags.Config.File == "" {
		return "", ErrNoFile
	}
	return a.flags.Config.File, nil
}

// Storage returns the open handle, opening it on the first call.
func (a *App) Storage() (*talsi.Storage, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.storage != nil {
		return a.storage, nil
	}

	path, err := a.Path()
	if err != nil {
		return nil, err
	}

	s, err := talsi.Open(path, a.flags.Config.Options(&a.log))
	if err != nil {
		return nil, fmt.Errorf("open storage: %w", err)
	}
	a.storage = s
	return s, nil
}

// Close closes the handle if one was opened.
func (a *App) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.storage == nil {
		return nil
	}
	err := a.storage.Close()
	a.storage = nil
	return err
}
