package session

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

const idPrefix = "interview_"

// NewID returns a session id of the form interview_YYYYMMDD_HHMMSS_<8 hex>.
// Ids sort by creation second.
func NewID(now time.Time) string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	return idPrefix + now.UTC().Format("20060102_150405") + "_" + suffix
}
