package accounting

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// numberNamespace scopes name-based UUIDs used for derived transaction numbers.
var numberNamespace = uuid.MustParse("6f1c8a52-2d3e-4b7a-9c41-0e5d7f3a9b21")

// DerivedNumber returns a deterministic transaction number for prefix and
// parts, so retried events map onto the same idempotency key.
func DerivedNumber(prefix string, parts ...any) string {
	raw := make([]string, 0, len(parts)+1)
	raw = append(raw, prefix)
	for _, p := range parts {
		raw = append(raw, fmt.Sprint(p))
	}
	return prefix + "-" + uuid.NewSHA1(numberNamespace, []byte(strings.Join(raw, ":"))).String()
}
