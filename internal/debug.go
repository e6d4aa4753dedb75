package internal

import "log/slog"

// LevelTrace is a slog level below Debug, used for per-frame wire traces
// that are too noisy for ordinary -v debugging.
const LevelTrace slog.Level = slog.LevelDebug - 2
