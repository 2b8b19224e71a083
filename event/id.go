package event

import (
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// NewMessageID returns an id unique for the lifetime of the process: a
// base-36 unix-milli prefix ordered by creation time, plus a random suffix.
func NewMessageID() string {
	prefix := strconv.FormatInt(time.Now().UnixMilli(), 36)
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
	return prefix + suffix
}
