package provider

import (
	"errors"
	"fmt"
	"strings"
)

// ErrUnsupportedLanguage means the requested target language is not in
// the supported set. No provider is contacted in that case.
var ErrUnsupportedLanguage = errors.New("unsupported target language")

// Attempt records one failed provider call.
type Attempt struct {
	Provider string
	Err      error
}

// AllFailedError is returned when every provider in the chain failed.
// Last() exposes the final provider's failure detail, which is what the
// admin notification surfaces.
type AllFailedError struct {
	Attempts []Attempt
}

func (e *AllFailedError) Error() string {
	var b strings.Builder
	b.WriteString("all translation providers failed")
	for _, a := range e.Attempts {
		fmt.Fprintf(&b, "; %s: %v", a.Provider, a.Err)
	}
	return b.String()
}

// Last returns the final attempt's error, or nil if there were none.
func (e *AllFailedError) Last() error {
	if len(e.Attempts) == 0 {
		return nil
	}
	return e.Attempts[len(e.Attempts)-1].Err
}

func (e *AllFailedError) Unwrap() error { return e.Last() }
