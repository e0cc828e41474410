package utils

import (
	"strings"

	"github.com/rs/zerolog"
)

// LogWriterCtx forwards an external tool's output stream to a logger,
// one trimmed line per write.
type LogWriterCtx struct {
	logger zerolog.Logger
}

func LogWriter(l zerolog.Logger) *LogWriterCtx {
	return &LogWriterCtx{
		logger: l,
	}
}

func (l LogWriterCtx) Write(p []byte) (n int, err error) {
	msg := strings.TrimSpace(string(p))
	if msg != "" {
		l.logger.Debug().Msg(msg)
	}
	return len(p), nil
}
