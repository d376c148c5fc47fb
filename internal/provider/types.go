// Package provider queries external translation services and implements
// the ordered fallback chain across them.
package provider

import "context"

// Result is a successful translation: the translated text plus the
// source language the provider detected.
type Result struct {
	Text         string
	DetectedLang string
}

// Provider is a single external translation backend.
//
// Translate returns an explicit error on any failure (bad status,
// malformed body, timeout); the chain treats every failure the same way
// and moves on to the next provider.
type Provider interface {
	Name() string
	Translate(ctx context.Context, text, targetLang string) (Result, error)
}
