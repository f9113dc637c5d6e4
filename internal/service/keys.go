package service

// Lock store key layout.  Every instance must agree on these.
func lockKey(seatID string) string         { return "lock:seat:" + seatID }
func reservationKey(seatID string) string  { return "reservation:" + seatID }
func queueCounterKey(seatID string) string { return "queue:seat:" + seatID }
func availabilityKey(eventID string) string {
	return "event:ticket_count:" + eventID
}
