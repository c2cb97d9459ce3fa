package remote

import "context"

// Pager walks a collection page by page following nextPageUrl.
// It is lazy, finite and not restartable: once it has ended, by a last
// page or by an error, Next never issues another request.
type Pager[T any] struct {
	f     *Fetcher
	next  string
	pages int
	done  bool
}

// NewPager creates a pager whose first request goes to start
func NewPager[T any](f *Fetcher, start string) *Pager[T] {
	return &Pager[T]{f: f, next: start, done: start == ""}
}

// Next fetches the next page. ok is false when the walk has ended.
// A failed page ends the walk; pages already returned stay valid.
func (p *Pager[T]) Next(ctx context.Context) (items []T, ok bool, err error) {
	if p.done {
		return nil, false, nil
	}

	url := p.next
	items, next, err := FetchCollection[T](ctx, p.f, url)
	if err != nil {
		p.done = true
		return nil, false, err
	}

	p.pages++
	p.next = next
	if next == "" {
		p.done = true
	}
	return items, true, nil
}

// URL returns the URL the next call will fetch, empty once the walk has ended
func (p *Pager[T]) URL() string {
	if p.done {
		return ""
	}
	return p.next
}

// Pages returns how many pages were fetched successfully
func (p *Pager[T]) Pages() int { return p.pages }

// Done reports whether the walk has ended
func (p *Pager[T]) Done() bool { return p.done }
