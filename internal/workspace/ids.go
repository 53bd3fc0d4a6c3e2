package workspace

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ID prefixes.
const (
	prefixActivity   = "activity"
	prefixOperation  = "op"
	prefixSuggestion = "suggestion"
	prefixInsight    = "insight"
)

// IDSource returns a new identifier for the given prefix.
type IDSource func(prefix string) string

// NewIDSource returns an IDSource producing ids shaped like
// "<prefix>_<epoch-ms>_<random-suffix>". Uniqueness rests on the random
// suffix and is not otherwise checked.
func NewIDSource(now func() time.Time) IDSource {
	return func(prefix string) string {
		suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:9]
		return fmt.Sprintf("%s_%d_%s", prefix, now().UnixMilli(), suffix)
	}
}
