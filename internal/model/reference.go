package model

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Payment references look like "deposit_555_1700000000". The middle
// token is the owning user id, the only linkage between an async
// gateway confirmation and its session, so user ids must not contain
// underscores.
func NewReference(flow Flow, userID string, now time.Time) string {
	return fmt.Sprintf("%s_%s_%d", flow, userID, now.Unix())
}

var ErrBadReference = fmt.Errorf("malformed payment reference")

// ParseReference extracts the flow and user id from a reference.
func ParseReference(ref string) (Flow, string, error) {
	parts := strings.Split(ref, "_")
	if len(parts) != 3 {
		return "", "", ErrBadReference
	}
	flow := Flow(parts[0])
	if flow != FlowDeposit && flow != FlowPurchase {
		return "", "", ErrBadReference
	}
	if parts[1] == "" {
		return "", "", ErrBadReference
	}
	if _, err := strconv.ParseInt(parts[2], 10, 64); err != nil {
		return "", "", ErrBadReference
	}
	return flow, parts[1], nil
}
