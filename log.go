package pintos

import (
	"fmt"
	"log"
	"log/slog"
	"os"
)

// debugLog mirrors the teacher's bare log.Printf diagnostic texture: cheap,
// uncategorized, left in place for the rare "why did this happen" trace.
var debugLog = log.New(os.Stderr, "pintos: ", log.LstdFlags)

// panicLogger is structured (component, reason, ...) because a kernel panic
// is the one place an operator needs machine-parseable context, not a prose
// line; gcsfuse's internal/logger builds its startup/fatal path on log/slog
// the same way.
var panicLogger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))

func panicf(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	panicLogger.Error("kernel panic", "msg", msg)
	panic(msg)
}
