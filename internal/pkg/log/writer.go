package log

import (
	"bytes"
	"context"
	"strings"
	"sync"
)

// LevelWriter forwards written lines to the logger with a fixed level.
// It is used to stream output of external commands to the log.
type LevelWriter struct {
	ctx    context.Context
	logger Logger
	level  string
	lock   sync.Mutex
	buf    bytes.Buffer
}

func NewLevelWriter(ctx context.Context, logger Logger, level string) *LevelWriter {
	return &LevelWriter{ctx: ctx, logger: logger, level: level}
}

// Write logs each complete line, an incomplete line is kept until Flush or next Write.
func (w *LevelWriter) Write(p []byte) (n int, err error) {
	w.lock.Lock()
	defer w.lock.Unlock()
	w.buf.Write(p)
	for {
		line, err := w.buf.ReadString('\n')
		if err != nil {
			// Put back the incomplete line
			w.buf.Reset()
			w.buf.WriteString(line)
			break
		}
		w.log(line)
	}
	return len(p), nil
}

func (w *LevelWriter) Flush() {
	w.lock.Lock()
	defer w.lock.Unlock()
	if w.buf.Len() > 0 {
		w.log(w.buf.String())
		w.buf.Reset()
	}
}

func (w *LevelWriter) log(line string) {
	line = strings.TrimRight(line, "\r\n")
	if line != "" {
		w.logger.Log(w.ctx, w.level, Sanitize(line))
	}
}

func Sanitize(in string) string {
	out := strings.ReplaceAll(in, "\n", `\n`)
	return strings.ReplaceAll(out, "\r", `\n`)
}
