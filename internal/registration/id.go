package registration

import (
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

const idSuffixLen = 9

// NewUserID builds a time-based id with a random suffix, e.g.
// user_1718000000000_3f9a1c2be. Uniqueness is probabilistic only.
func NewUserID(now time.Time) string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:idSuffixLen]
	return "user_" + strconv.FormatInt(now.UnixMilli(), 10) + "_" + suffix
}
