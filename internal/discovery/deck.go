// Package discovery drives the swipe deck: a forward-paginated queue of
// candidate profiles with prefetch, an at-most-once swipe dispatch per
// card, a strictly local one-step undo and the match overlay.
package discovery

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/tanderapp/tander/internal/api"
	"github.com/tanderapp/tander/internal/bus"
	"github.com/tanderapp/tander/internal/model"
)

// API is the REST slice the deck uses.
type API interface {
	// Discover fetches one filtered page; the bool reports the last page.
	Discover(ctx context.Context, page, size int, f model.DiscoveryFilter) ([]model.Profile, bool, error)
	// ProfileBatch asks for up to count recycled cards once the paged
	// feed is exhausted.
	ProfileBatch(ctx context.Context, count int) ([]model.Profile, error)
	RecordSwipe(ctx context.Context, targetUserID int64, direction model.SwipeDirection) (model.SwipeResult, error)
}

// Options tunes the deck. Zero values fall back to the defaults.
type Options struct {
	BatchSize         int
	PrefetchThreshold int
	Filter            model.DiscoveryFilter
}

func (o Options) withDefaults() Options {
	if o.BatchSize <= 0 {
		o.BatchSize = 50
	}
	if o.PrefetchThreshold <= 0 {
		o.PrefetchThreshold = 15
	}
	return o
}

// Deps bundles the deck's collaborators.
type Deps struct {
	API API
	Bus *bus.Bus
	Log *zap.Logger
}

// MatchInfo backs the "It's a match!" overlay. ConversationID is zero
// for matches raised from a swipe response; the pushed event carries it.
type MatchInfo struct {
	MatchID        int64
	PeerID         int64
	Name           string
	ConversationID int64
}

// Deck owns the profile queue and cursor for the discover screen.
type Deck struct {
	deps Deps
	opts Options

	mu       sync.Mutex
	profiles []model.Profile
	index    int
	// prevIndex remembers exactly one step back for Undo; -1 means
	// nothing to undo.
	prevIndex int
	page      int
	lastPage  bool
	// recycledDry is set once the refill batch came back empty, so the
	// deck stops asking.
	recycledDry bool
	fetching    bool
	pending     map[int64]bool
	swiped      map[int64]bool
	match       *MatchInfo
	notice      string
	// swipesRemaining is the server-reported daily budget, -1 until the
	// first swipe response carries it.
	swipesRemaining int
	loaded          bool
	initialErr      string

	done      chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once
}

// Snapshot is what the discover view renders.
type Snapshot struct {
	Current   *model.Profile
	Position  int
	Total     int
	Remaining int
	CanUndo   bool
	Fetching  bool
	// Exhausted means the paged feed ended and the refill came back
	// empty: there is genuinely nobody left to show.
	Exhausted       bool
	Match           *MatchInfo
	Notice          string
	SwipesRemaining int
	Loaded          bool
	InitialErr      string
}

// NewDeck creates the controller for the discover screen.
func NewDeck(deps Deps, opts Options) *Deck {
	return &Deck{
		deps:            deps,
		opts:            opts.withDefaults(),
		prevIndex:       -1,
		pending:         make(map[int64]bool),
		swiped:          make(map[int64]bool),
		swipesRemaining: -1,
		done:            make(chan struct{}),
	}
}

// Start loads the first batch and begins listening for pushed matches.
// A failed first load is remembered as InitialErr; Refresh retries it.
func (d *Deck) Start(ctx context.Context) {
	d.load(ctx)
	events, unsub := d.deps.Bus.Subscribe("match.", 16)
	d.wg.Add(1)
	go d.consume(events, unsub)
}

// Close stops the match listener and waits for in-flight work.
func (d *Deck) Close() {
	d.closeOnce.Do(func() { close(d.done) })
	d.wg.Wait()
}

// Refresh rewinds nothing; it just retries the initial load after a
// failure, or tops the queue up when called with a healthy deck.
func (d *Deck) Refresh(ctx context.Context) {
	d.load(ctx)
}

func (d *Deck) load(ctx context.Context) {
	d.mu.Lock()
	if d.fetching {
		d.mu.Unlock()
		return
	}
	d.fetching = true
	page := d.page
	d.mu.Unlock()

	profs, last, err := d.deps.API.Discover(ctx, page, d.opts.BatchSize, d.opts.Filter)

	d.mu.Lock()
	defer d.mu.Unlock()
	d.fetching = false
	if err != nil {
		if !d.loaded {
			d.initialErr = loadNotice(err)
		}
		d.deps.Log.Warn("discovery load failed", zap.Int("page", page), zap.Error(err))
		return
	}
	d.loaded = true
	d.initialErr = ""
	if len(profs) > 0 {
		d.page = page + 1
	}
	if last || len(profs) == 0 {
		d.lastPage = true
	}
	d.appendNewLocked(profs)
}

// Snapshot copies the render state.
func (d *Deck) Snapshot() Snapshot {
	d.mu.Lock()
	defer d.mu.Unlock()
	var current *model.Profile
	if d.index < len(d.profiles) {
		p := d.profiles[d.index]
		current = &p
	}
	remaining := len(d.profiles) - d.index
	if remaining < 0 {
		remaining = 0
	}
	var match *MatchInfo
	if d.match != nil {
		m := *d.match
		match = &m
	}
	return Snapshot{
		Current:         current,
		Position:        d.index,
		Total:           len(d.profiles),
		Remaining:       remaining,
		CanUndo:         d.prevIndex >= 0 && d.prevIndex < d.index,
		Fetching:        d.fetching,
		Exhausted:       d.loaded && d.lastPage && remaining == 0 && d.recycledDry,
		Match:           match,
		Notice:          d.notice,
		SwipesRemaining: d.swipesRemaining,
		Loaded:          d.loaded,
		InitialErr:      d.initialErr,
	}
}

// Like swipes right on the current card.
func (d *Deck) Like(ctx context.Context) {
	d.swipeCurrent(ctx, model.SwipeLike)
}

// Pass swipes left on the current card.
func (d *Deck) Pass(ctx context.Context) {
	d.swipeCurrent(ctx, model.SwipePass)
}

// swipeCurrent advances the cursor immediately and dispatches the swipe
// in the background. A card with a swipe still in flight refuses a
// second dispatch, so a double-tap costs exactly one server call.
func (d *Deck) swipeCurrent(ctx context.Context, dir model.SwipeDirection) {
	d.mu.Lock()
	if d.index >= len(d.profiles) {
		d.mu.Unlock()
		return
	}
	p := d.profiles[d.index]
	if d.pending[p.ID] {
		d.mu.Unlock()
		return
	}
	d.pending[p.ID] = true
	d.notice = ""
	d.prevIndex = d.index
	d.index++
	d.maybeFetchLocked(ctx)
	d.mu.Unlock()

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		d.dispatch(ctx, p, dir)
	}()
}

func (d *Deck) dispatch(ctx context.Context, p model.Profile, dir model.SwipeDirection) {
	res, err := d.deps.API.RecordSwipe(ctx, p.ID, dir)

	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.pending, p.ID)
	if err != nil {
		// The card is already gone from the screen; surface the banner
		// and leave the profile eligible again if the server re-serves it.
		d.notice = swipeNotice(err)
		if api.IsRateLimited(err) {
			d.swipesRemaining = 0
		}
		d.deps.Log.Warn("swipe failed",
			zap.Int64("target", p.ID), zap.String("direction", string(dir)), zap.Error(err))
		return
	}
	d.swiped[p.ID] = true
	if res.SwipesRemaining >= 0 {
		d.swipesRemaining = res.SwipesRemaining
	}
	if res.IsMatch && dir == model.SwipeLike {
		d.match = &MatchInfo{MatchID: res.MatchID, PeerID: p.ID, Name: p.Name}
	}
}

// Undo steps the cursor back to the previous card. Strictly local: the
// dispatched swipe stands on the server either way.
func (d *Deck) Undo() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.prevIndex < 0 || d.prevIndex >= d.index {
		return
	}
	d.index = d.prevIndex
	d.prevIndex = -1
	d.notice = ""
}

// DismissMatch clears the match overlay.
func (d *Deck) DismissMatch() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.match = nil
}

// ClearNotice drops the banner once the view showed it.
func (d *Deck) ClearNotice() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.notice = ""
}

// maybeFetchLocked triggers the background top-up: the next page while
// pages remain, one refill batch after the feed ends. The fetching flag
// keeps it to a single request in flight. Caller holds d.mu.
func (d *Deck) maybeFetchLocked(ctx context.Context) {
	if d.fetching || !d.loaded {
		return
	}
	remaining := len(d.profiles) - d.index
	if !d.lastPage {
		if remaining <= d.opts.PrefetchThreshold {
			d.fetching = true
			d.wg.Add(1)
			go d.fetchPage(ctx, d.page)
		}
		return
	}
	if remaining == 0 && !d.recycledDry {
		d.fetching = true
		d.wg.Add(1)
		go d.refill(ctx)
	}
}

func (d *Deck) fetchPage(ctx context.Context, page int) {
	defer d.wg.Done()
	profs, last, err := d.deps.API.Discover(ctx, page, d.opts.BatchSize, d.opts.Filter)

	d.mu.Lock()
	defer d.mu.Unlock()
	d.fetching = false
	if err != nil {
		// Absorbed: the next swipe past the threshold retries.
		d.deps.Log.Debug("prefetch failed", zap.Int("page", page), zap.Error(err))
		return
	}
	if len(profs) > 0 {
		d.page = page + 1
	}
	if last || len(profs) == 0 {
		d.lastPage = true
	}
	d.appendNewLocked(profs)
}

// refill asks for recycled cards once the paged feed ran dry. An empty
// answer marks the deck exhausted until the next Refresh.
func (d *Deck) refill(ctx context.Context) {
	defer d.wg.Done()
	profs, err := d.deps.API.ProfileBatch(ctx, d.opts.BatchSize)

	d.mu.Lock()
	defer d.mu.Unlock()
	d.fetching = false
	if err != nil {
		d.deps.Log.Debug("refill failed", zap.Error(err))
		return
	}
	added := d.appendNewLocked(profs)
	if added == 0 {
		d.recycledDry = true
	}
}

// appendNewLocked merges a batch into the queue, dropping ids already
// queued and ids swiped this session. Caller holds d.mu.
func (d *Deck) appendNewLocked(profs []model.Profile) int {
	seen := make(map[int64]bool, len(d.profiles))
	for _, p := range d.profiles {
		seen[p.ID] = true
	}
	added := 0
	for _, p := range profs {
		if seen[p.ID] || d.swiped[p.ID] || d.pending[p.ID] {
			continue
		}
		seen[p.ID] = true
		d.profiles = append(d.profiles, p)
		added++
	}
	return added
}

// consume raises the overlay for matches pushed while the deck is open,
// e.g. when someone the user liked earlier likes back.
func (d *Deck) consume(events <-chan bus.Event, unsub func()) {
	defer d.wg.Done()
	defer unsub()
	for {
		select {
		case <-d.done:
			return
		case evt := <-events:
			if evt.Kind != "match.found" {
				continue
			}
			m, ok := evt.Payload.(model.Match)
			if !ok {
				continue
			}
			d.mu.Lock()
			if d.match == nil {
				d.match = &MatchInfo{
					MatchID:        m.MatchID,
					PeerID:         m.Peer.ID,
					Name:           m.Peer.Name,
					ConversationID: m.ConversationID,
				}
			}
			d.mu.Unlock()
		}
	}
}

// swipeNotice maps a swipe failure to the banner the screen shows.
func swipeNotice(err error) string {
	switch api.KindOf(err) {
	case api.KindRateLimited:
		return "Daily like limit reached. Come back tomorrow!"
	case api.KindUnauthorized:
		return "Your session has expired. Please log in again."
	default:
		return "Couldn't record your swipe. Please try again."
	}
}

// loadNotice maps a first-load failure to the retry screen message.
func loadNotice(err error) string {
	switch api.KindOf(err) {
	case api.KindUnauthorized:
		return "Your session has expired. Please log in again."
	case api.KindNetwork:
		return "Can't reach TANDER. Check your connection."
	default:
		return "Something went wrong loading profiles."
	}
}
