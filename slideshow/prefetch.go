package slideshow

import "errors"

// prefetchResult is what the background probe hands back to the loop.
// Broken paths are reported rather than marked so the catalog is only
// touched from the loop thread.
type prefetchResult struct {
	index  int
	staged *staged
	broken []string
	tried  int
}

// prefetcher runs one forward probe at a time off the loop thread. The
// result lands in a one-slot mailbox that the loop drains in Poll.
type prefetcher struct {
	loader  fileLoader
	mailbox chan prefetchResult

	inFlight bool
	// exhausted is set when a probe found nothing; no new probe starts
	// until the next swap.
	exhausted bool
}

type candidate struct {
	index int
	path  string
}

func (p *prefetcher) start(cands []candidate) {
	p.inFlight = true
	go func() {
		p.mailbox <- p.probe(cands)
	}()
}

func (p *prefetcher) probe(cands []candidate) prefetchResult {
	var res prefetchResult
	for _, c := range cands {
		res.tried++
		s, err := p.loader.load(c.path)
		if err != nil {
			if errors.Is(err, errBroken) {
				res.broken = append(res.broken, c.path)
			}
			continue
		}
		res.index = c.index
		res.staged = s
		return res
	}
	return res
}

// StartPrefetch begins staging the next image. Without async decoding it
// is the same as Advance(Forward).
func (tp *TexturePair) StartPrefetch() error {
	if tp.async == nil {
		return tp.Advance(Forward)
	}
	if tp.prefetched || tp.async.inFlight || tp.async.exhausted {
		return nil
	}

	n := tp.cat.Len()
	cur := tp.cat.Current()
	cands := make([]candidate, 0, n)
	for attempt := 1; attempt <= n; attempt++ {
		path := tp.cat.Path(cur + attempt)
		if tp.cat.IsBroken(path) {
			continue
		}
		cands = append(cands, candidate{index: cur + attempt, path: path})
	}
	tp.async.start(cands)
	return nil
}

// Poll installs a finished background decode, if any. It never blocks.
func (tp *TexturePair) Poll() error {
	if tp.async == nil || !tp.async.inFlight {
		return nil
	}
	select {
	case res := <-tp.async.mailbox:
		return tp.finishPrefetch(res)
	default:
		return nil
	}
}

func (tp *TexturePair) awaitPrefetch() error {
	if tp.async == nil || !tp.async.inFlight {
		return nil
	}
	return tp.finishPrefetch(<-tp.async.mailbox)
}

func (tp *TexturePair) finishPrefetch(res prefetchResult) error {
	tp.async.inFlight = false
	for _, path := range res.broken {
		tp.cat.MarkBroken(path)
		tp.log.Warn("marking file broken", "path", path)
	}
	if res.staged == nil {
		tp.async.exhausted = true
		tp.log.Warn("background prefetch found nothing", "tried", res.tried)
		return nil
	}
	if err := tp.install(1-tp.active, res.staged); err != nil {
		return err
	}
	tp.prefetched = true
	tp.backIndex = res.index
	return nil
}
