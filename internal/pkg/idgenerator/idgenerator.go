// nolint: gochecknoglobals
package idgenerator

import (
	"strings"

	"github.com/gofrs/uuid/v5"
	gonanoid "github.com/matoous/go-nanoid/v2"
)

const (
	TaskIDLength       = 32
	WorkerIDLength     = 10
	QueueKeySuffixSize = 8
)

// alphabet used in short ID generation.
var alphabet = "0123456789abcdefghijklmnopqrstuvwxyz"

// RequestID returns a random UUID in the hex form without dashes.
func RequestID() string {
	return hexUUID()
}

// EvidenceID returns a random UUID in the hex form without dashes.
func EvidenceID() string {
	return hexUUID()
}

func TaskID() string {
	return gonanoid.MustGenerate(alphabet, TaskIDLength)
}

func WorkerID() string {
	return "worker-" + gonanoid.MustGenerate(alphabet, WorkerIDLength)
}

// QueueKeySuffix makes a queue key unique when two messages are pushed at the same nanosecond.
func QueueKeySuffix() string {
	return gonanoid.MustGenerate(alphabet, QueueKeySuffixSize)
}

func EtcdNamespaceForTest() string {
	return gonanoid.MustGenerate(alphabet, 10)
}

func hexUUID() string {
	return strings.ReplaceAll(uuid.Must(uuid.NewV4()).String(), "-", "")
}
