package log

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap/zapcore"

	"github.com/jleaniz/turbinia/internal/pkg/encoding/json"
)

// DebugLogger keeps all messages in memory, tests read them back as text or compare them as JSON lines.
type DebugLogger interface {
	Logger
	ConnectTo(writer io.Writer)
	Truncate()
	AllMessages() string
	AllMessagesTxt() string
	DebugMessages() string
	InfoMessages() string
	WarnMessages() string
	ErrorMessages() string
	CompareJSONMessages(expected string) error
	AssertJSONMessages(t assert.TestingT, expected string, msgAndArgs ...any) bool
}

type debugLogger struct {
	*zapLogger
	all *syncBuffer
}

type syncBuffer struct {
	lock  sync.Mutex
	buf   bytes.Buffer
	extra []io.Writer
}

// NewDebugLogger returns a logger which collects all messages as JSON lines, it is intended for tests.
func NewDebugLogger() DebugLogger {
	all := &syncBuffer{}
	encoderConfig := zapcore.EncoderConfig{
		TimeKey:        "time",
		LevelKey:       "level",
		MessageKey:     "message",
		NameKey:        "logger",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.LowercaseLevelEncoder,
		EncodeTime:     zapcore.RFC3339NanoTimeEncoder,
		EncodeDuration: zapcore.StringDurationEncoder,
	}
	core := zapcore.NewCore(zapcore.NewJSONEncoder(encoderConfig), zapcore.AddSync(all), DebugLevel)
	return &debugLogger{zapLogger: loggerFromZapCore(core), all: all}
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.lock.Lock()
	defer b.lock.Unlock()
	for _, w := range b.extra {
		_, _ = w.Write(p)
	}
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.lock.Lock()
	defer b.lock.Unlock()
	return b.buf.String()
}

// ConnectTo duplicates all new messages to the writer, for example os.Stdout when debugging a test.
func (l *debugLogger) ConnectTo(writer io.Writer) {
	l.all.lock.Lock()
	defer l.all.lock.Unlock()
	l.all.extra = append(l.all.extra, writer)
}

func (l *debugLogger) Truncate() {
	l.all.lock.Lock()
	defer l.all.lock.Unlock()
	l.all.buf.Reset()
}

func (l *debugLogger) AllMessages() string {
	return l.all.String()
}

func (l *debugLogger) AllMessagesTxt() string {
	return l.messagesTxt(func(zapcore.Level) bool { return true })
}

func (l *debugLogger) DebugMessages() string {
	return l.messagesTxt(func(v zapcore.Level) bool { return v == DebugLevel })
}

func (l *debugLogger) InfoMessages() string {
	return l.messagesTxt(func(v zapcore.Level) bool { return v == InfoLevel })
}

func (l *debugLogger) WarnMessages() string {
	return l.messagesTxt(func(v zapcore.Level) bool { return v == WarnLevel })
}

func (l *debugLogger) ErrorMessages() string {
	return l.messagesTxt(func(v zapcore.Level) bool { return v >= ErrorLevel })
}

func (l *debugLogger) CompareJSONMessages(expected string) error {
	return CompareJSONMessages(expected, l.AllMessages())
}

func (l *debugLogger) AssertJSONMessages(t assert.TestingT, expected string, msgAndArgs ...any) bool {
	return AssertJSONMessages(t, expected, l.AllMessages(), msgAndArgs...)
}

// messagesTxt converts JSON lines to the "LEVEL  message" format.
func (l *debugLogger) messagesTxt(filter func(zapcore.Level) bool) string {
	var out strings.Builder
	scanner := bufio.NewScanner(strings.NewReader(l.AllMessages()))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		var record struct {
			Level   string `json:"level"`
			Message string `json:"message"`
		}
		if err := json.DecodeString(scanner.Text(), &record); err != nil {
			continue
		}
		level, err := zapcore.ParseLevel(record.Level)
		if err != nil || !filter(level) {
			continue
		}
		out.WriteString(fmt.Sprintf("%s  %s\n", level.CapitalString(), record.Message))
	}
	return out.String()
}
