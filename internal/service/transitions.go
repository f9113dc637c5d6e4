package service

import "github.com/iliyamo/concert-ticket-booking/internal/model"

// transitionMap lists, for each target status, the statuses a seat may
// move from.  SOLD has no outgoing edge.
var transitionMap = map[model.SeatStatus][]model.SeatStatus{
	model.SeatInQueue:   {model.SeatAvailable},
	model.SeatReserved:  {model.SeatAvailable, model.SeatInQueue},
	model.SeatSold:      {model.SeatReserved},
	model.SeatAvailable: {model.SeatInQueue, model.SeatReserved},
}

// ValidTransition reports whether a seat may move from one status to
// another.
func ValidTransition(from, to model.SeatStatus) bool {
	for _, s := range transitionMap[to] {
		if s == from {
			return true
		}
	}
	return false
}
