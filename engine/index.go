package engine

import (
	"math"
	"sort"
	"time"

	"github.com/google/btree"

	"github.com/cloudx-io/assetauction/core"
)

// endingKey orders open auctions by (endTime, id).
type endingKey struct {
	end time.Time
	id  uint64
}

func endingLess(a, b endingKey) bool {
	if !a.end.Equal(b.end) {
		return a.end.Before(b.end)
	}
	return a.id < b.id
}

// index holds the secondary lookups behind the read queries. It is guarded by
// the engine mutex.
type index struct {
	ending   *btree.BTreeG[endingKey]
	endOf    map[uint64]time.Time
	bySeller map[core.Principal][]uint64
	byBidder map[core.Principal][]uint64
	bidders  map[uint64]map[core.Principal]struct{}
	byFormat map[core.Format][]uint64
}

func newIndex() *index {
	return &index{
		ending:   btree.NewG[endingKey](16, endingLess),
		endOf:    make(map[uint64]time.Time),
		bySeller: make(map[core.Principal][]uint64),
		byBidder: make(map[core.Principal][]uint64),
		bidders:  make(map[uint64]map[core.Principal]struct{}),
		byFormat: make(map[core.Format][]uint64),
	}
}

func (ix *index) addAuction(a *core.Auction) {
	ix.bySeller[a.Seller] = append(ix.bySeller[a.Seller], a.ID)
	ix.byFormat[a.Format] = append(ix.byFormat[a.Format], a.ID)
	ix.ending.ReplaceOrInsert(endingKey{end: a.EndTime, id: a.ID})
	ix.endOf[a.ID] = a.EndTime
}

func (ix *index) setEnd(id uint64, end time.Time) {
	old, ok := ix.endOf[id]
	if !ok {
		return
	}
	ix.ending.Delete(endingKey{end: old, id: id})
	ix.ending.ReplaceOrInsert(endingKey{end: end, id: id})
	ix.endOf[id] = end
}

func (ix *index) close(id uint64) {
	old, ok := ix.endOf[id]
	if !ok {
		return
	}
	ix.ending.Delete(endingKey{end: old, id: id})
	delete(ix.endOf, id)
}

func (ix *index) addBidder(id uint64, p core.Principal) {
	set, ok := ix.bidders[id]
	if !ok {
		set = make(map[core.Principal]struct{})
		ix.bidders[id] = set
	}
	if _, seen := set[p]; seen {
		return
	}
	set[p] = struct{}{}
	ix.byBidder[p] = append(ix.byBidder[p], id)
}

func (ix *index) hasBid(id uint64, p core.Principal) bool {
	_, ok := ix.bidders[id][p]
	return ok
}

// open returns the ids of every open auction in ascending id order.
func (ix *index) open() []uint64 {
	ids := make([]uint64, 0, len(ix.endOf))
	for id := range ix.endOf {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// endingWithin returns open auctions whose end time falls in [now, now+window],
// soonest first.
func (ix *index) endingWithin(now time.Time, window time.Duration) []uint64 {
	var ids []uint64
	lo := endingKey{end: now, id: 0}
	hi := endingKey{end: now.Add(window), id: math.MaxUint64}
	ix.ending.AscendRange(lo, hi, func(k endingKey) bool {
		ids = append(ids, k.id)
		return true
	})
	return ids
}
