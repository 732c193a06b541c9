package orch

import (
	"github.com/dkeye/huddle/internal/app/ledger"
	"github.com/dkeye/huddle/internal/domain"
)

func (o *Orchestrator) Liveness() ledger.Liveness {
	return ledger.Liveness{
		ConnLive: o.Presence.Connected,
		RoomLive: o.Rooms.Exists,
	}
}

// Reclaim runs one ledger maintenance pass now.
func (o *Orchestrator) Reclaim() ledger.ReclaimReport {
	rep := o.Ledger.Reclaim(o.Liveness())
	ledger.Observe(rep)
	return rep
}

// LiveRooms maps every registered room to its member count.
func (o *Orchestrator) LiveRooms() map[domain.RoomID]int {
	rooms := o.Rooms.List()
	out := make(map[domain.RoomID]int, len(rooms))
	for _, r := range rooms {
		out[r.ID] = r.MemberCount
	}
	return out
}

func (o *Orchestrator) RoomStats(id domain.RoomID) (ledger.RoomStats, error) {
	n, ok := o.Rooms.MemberCount(id)
	if !ok {
		n = -1
	}
	return o.Ledger.RoomStats(id, n)
}
