package payouts

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

const referencePrefix = "PO"

// NewReference returns a payout reference of the form PO-YYYYMMDD-XXXXXXXX.
func NewReference(now time.Time) string {
	suffix := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:8])
	return referencePrefix + "-" + now.UTC().Format("20060102") + "-" + suffix
}
