// Package storage persists the state the bot must not lose on restart:
//   - per-chat settings (target language, rate limit, error channel,
//     trigger emoji, watched channels)
//   - the error log written by the notifier
//
// The in-flight pipeline state (cache, rate windows, dedup, cooldowns)
// is deliberately NOT persisted; it is cheap to rebuild.
package storage
