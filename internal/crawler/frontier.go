package crawler

// Frontier is the FIFO queue of listing pages awaiting a fetch.
// Duplicates are allowed; the VisitedSet filters them at dequeue time.
type Frontier struct {
	items []string
}

// NewFrontier creates a Frontier holding urls in order.
func NewFrontier(urls ...string) *Frontier {
	f := &Frontier{}
	f.Push(urls...)
	return f
}

// Push appends urls to the tail.
func (f *Frontier) Push(urls ...string) {
	f.items = append(f.items, urls...)
}

// Pop removes and returns the head. ok is false when the Frontier is empty.
func (f *Frontier) Pop() (string, bool) {
	if len(f.items) == 0 {
		return "", false
	}
	u := f.items[0]
	f.items[0] = ""
	f.items = f.items[1:]
	return u, true
}

// Len returns the number of queued URLs.
func (f *Frontier) Len() int {
	return len(f.items)
}

// VisitedSet holds the listing pages already dequeued, in visit order.
// It only grows.
type VisitedSet struct {
	seen  map[string]struct{}
	order []string
}

// NewVisitedSet creates an empty VisitedSet.
func NewVisitedSet() *VisitedSet {
	return &VisitedSet{seen: make(map[string]struct{})}
}

// Add inserts u and reports whether it was new.
func (v *VisitedSet) Add(u string) bool {
	if _, ok := v.seen[u]; ok {
		return false
	}
	v.seen[u] = struct{}{}
	v.order = append(v.order, u)
	return true
}

// Contains reports whether u was visited.
func (v *VisitedSet) Contains(u string) bool {
	_, ok := v.seen[u]
	return ok
}

// Len returns the number of visited URLs.
func (v *VisitedSet) Len() int {
	return len(v.order)
}

// URLs returns the visited URLs in visit order.
func (v *VisitedSet) URLs() []string {
	return append([]string(nil), v.order...)
}
