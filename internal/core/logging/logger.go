// Package logging holds zerolog helpers shared by the storage layers.
package logging

import (
	"github.com/rs/zerolog"
)

// Component derives a logger tagged with a component name that also reports
// the namespace and operation carried by an event's context.
func Component(base zerolog.Logger, name string) zerolog.Logger {
	return base.With().Str("component", name).Logger().Hook(ContextHook{})
}
