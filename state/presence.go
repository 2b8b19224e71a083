// Package state holds the derived client-side state: user presence, typing
// sets and the recent-activity feed. All of it is computed from inbound
// events; consumers only read.
package state

import (
	"sort"
	"time"

	"github.com/sustentus/collab/event"
)

type PresenceRecord struct {
	UserID   string    `json:"userId"`
	Status   string    `json:"status"`
	LastSeen time.Time `json:"lastSeen"`
}

// Presence tracks the online/offline status of every user the client has
// seen. Records are updated in place and never removed, so "last seen"
// survives offline transitions.
type Presence struct {
	records *syncMap[string, PresenceRecord]
}

func NewPresence() *Presence {
	return &Presence{records: newSyncMap[string, PresenceRecord]()}
}

// Apply folds a presence event into the tracker. The first sighting of a
// user creates their record; later events update status and last-seen.
func (p *Presence) Apply(userID, status string) {
	now := time.Now()
	p.records.LoadAndStore(userID, func(rec PresenceRecord, ok bool) PresenceRecord {
		if !ok {
			return PresenceRecord{UserID: userID, Status: status, LastSeen: now}
		}
		rec.Status = status
		rec.LastSeen = now
		return rec
	})
}

func (p *Presence) Get(userID string) (PresenceRecord, bool) {
	return p.records.Load(userID)
}

// Online returns the users currently marked online, ordered by user id.
func (p *Presence) Online() []PresenceRecord {
	return p.collect(func(rec PresenceRecord) bool { return rec.Status == event.StatusOnline })
}

// All returns every known record, including offline users, ordered by user id.
func (p *Presence) All() []PresenceRecord {
	return p.collect(func(PresenceRecord) bool { return true })
}

func (p *Presence) collect(keep func(PresenceRecord) bool) []PresenceRecord {
	var recs []PresenceRecord
	p.records.RRange(func(_ string, rec PresenceRecord) bool {
		if keep(rec) {
			recs = append(recs, rec)
		}
		return true
	})
	sort.Slice(recs, func(i, j int) bool { return recs[i].UserID < recs[j].UserID })
	return recs
}
