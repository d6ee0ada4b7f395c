package common

import "errors"

// ErrModulePaused is returned by Guard when the named module has been paused
// by the admin.
var ErrModulePaused = errors.New("module paused")

// PauseView reports the pause switches configured on the core.
type PauseView interface {
	IsPaused(module string) bool
}

func Guard(p PauseView, module string) error {
	if p == nil || module == "" {
		return nil
	}
	if p.IsPaused(module) {
		return ErrModulePaused
	}
	return nil
}
