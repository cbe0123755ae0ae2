package instrument

import (
	"fmt"
	"strings"
	"sync"
	"time"
)

// FileAllocator hands out dataset file labels in the site's naming
// convention, e.g. "S20260824S0013". The running number resets when the
// UTC date rolls over.
type FileAllocator struct {
	prefix string
	now    func() time.Time

	mu   sync.Mutex
	date string
	seq  int
}

// NorthSite reports whether a site id names the northern site. Site ids
// containing "north" are northern; everything else is southern.
func NorthSite(siteID string) bool {
	return strings.Contains(strings.ToLower(siteID), "north")
}

// NewFileAllocator creates an allocator for the given site id. Northern
// sites allocate N-prefixed labels, southern sites S ("gemini-south"
// allocates S..., "gemini-north" allocates N...).
func NewFileAllocator(siteID string) *FileAllocator {
	prefix := "S"
	if NorthSite(siteID) {
		prefix = "N"
	}
	return &FileAllocator{prefix: prefix, now: time.Now}
}

// Next allocates the next dataset label.
func (a *FileAllocator) Next() string {
	a.mu.Lock()
	defer a.mu.Unlock()

	date := a.now().UTC().Format("20060102")
	if date != a.date {
		a.date = date
		a.seq = 0
	}
	a.seq++
	return fmt.Sprintf("%s%s%s%04d", a.prefix, date, a.prefix, a.seq)
}
