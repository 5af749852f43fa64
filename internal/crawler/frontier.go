package crawler

// frontierItem is a queued URL and its distance from the seeds.
type frontierItem struct {
	url   string
	depth int
}

// frontier is the FIFO queue of URLs to visit together with the visited
// set. It is owned by a single crawl loop and needs no locking.
type frontier struct {
	items   []frontierItem
	queued  map[string]struct{}
	visited map[string]struct{}
}

func newFrontier() *frontier {
	return &frontier{
		queued:  make(map[string]struct{}),
		visited: make(map[string]struct{}),
	}
}

// push appends url unless it is already waiting in the queue.
func (f *frontier) push(url string, depth int) {
	if _, ok := f.queued[url]; ok {
		return
	}
	f.queued[url] = struct{}{}
	f.items = append(f.items, frontierItem{url: url, depth: depth})
}

func (f *frontier) pop() frontierItem {
	item := f.items[0]
	f.items[0] = frontierItem{}
	f.items = f.items[1:]
	delete(f.queued, item.url)
	return item
}

func (f *frontier) len() int {
	return len(f.items)
}

func (f *frontier) isVisited(url string) bool {
	_, ok := f.visited[url]
	return ok
}

func (f *frontier) markVisited(url string) {
	f.visited[url] = struct{}{}
}
