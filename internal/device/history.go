package device

import (
	"cmp"
	"fmt"
	"slices"
)

// HistoryDevice is a remembered network connection target
type HistoryDevice struct {
	IP     string
	Port   int
	TimeMs int64
	Tagged bool
}

// Address is the ip:port form passed to the bridge connect command
func (h HistoryDevice) Address() string {
	return fmt.Sprintf("%s:%d", h.IP, h.Port)
}

// SortHistory orders tagged entries first, then most recent first
func SortHistory(list []HistoryDevice) {
	slices.SortStableFunc(list, func(a, b HistoryDevice) int {
		if a.Tagged != b.Tagged {
			if a.Tagged {
				return -1
			}
			return 1
		}
		return cmp.Compare(b.TimeMs, a.TimeMs)
	})
}
