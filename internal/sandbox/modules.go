package sandbox

import (
	"github.com/google/uuid"
)

// registerDefaultModules installs the symbol bundles every executor ships
// with. Snippets opt in with sandbox.Use("<name>") and then refer to the
// bundle as a package, e.g.:
//
//	sandbox.Use("uuid")
//	uuid.NewString()
func registerDefaultModules(e *Executor) {
	e.RegisterModule("uuid", map[string]any{
		"New":       uuid.New,
		"NewString": uuid.NewString,
		"Parse":     uuid.Parse,
		"Validate":  uuid.Validate,
		"Must":      uuid.Must,
		"NewSHA1":   uuid.NewSHA1,
	})
}
