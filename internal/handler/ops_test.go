package handler

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/concert-ticket-booking/internal/model"
)

type memSeats struct {
	seats  []model.Seat
	failOn string
}

func (m *memSeats) Create(_ context.Context, s *model.Seat) error {
	if s.SeatNumber == m.failOn {
		return errors.New("Duplicate entry")
	}
	m.seats = append(m.seats, *s)
	return nil
}

type countingSweeper struct{ released int }

func (s *countingSweeper) RunOnce(context.Context) (int, error) { return s.released, nil }

type changedEvents []string

func (c *changedEvents) Changed(_ context.Context, eventID string) { *c = append(*c, eventID) }

func TestCreateSeats(t *testing.T) {
	seats := &memSeats{}
	var changed changedEvents
	h := NewOpsHandler(seats, &countingSweeper{}, &changed)

	body := `{"seats":[{"seat_number":"A-1","price_cents":5000},{"id":"vip-1","seat_number":"V-1","price_cents":12000}]}`
	rec := call(t, h.CreateSeats, http.MethodPost, body, "", "id", "e1")
	require.Equal(t, http.StatusCreated, rec.Code)
	require.Len(t, seats.seats, 2)
	assert.NotEmpty(t, seats.seats[0].ID)
	assert.Equal(t, "vip-1", seats.seats[1].ID)
	for _, s := range seats.seats {
		assert.Equal(t, "e1", s.EventID)
		assert.Equal(t, model.SeatAvailable, s.Status)
	}
	assert.Equal(t, changedEvents{"e1"}, changed)
}

func TestCreateSeatsValidation(t *testing.T) {
	for name, body := range map[string]string{
		"empty":     `{"seats":[]}`,
		"no number": `{"seats":[{"price_cents":100}]}`,
		"duplicate": `{"seats":[{"seat_number":"A-1"},{"seat_number":"A-1"}]}`,
		"malformed": `{"seats":`,
	} {
		t.Run(name, func(t *testing.T) {
			var changed changedEvents
			h := NewOpsHandler(&memSeats{}, &countingSweeper{}, &changed)
			rec := call(t, h.CreateSeats, http.MethodPost, body, "", "id", "e1")
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Empty(t, changed)
		})
	}
}

func TestCreateSeatsPartialFailure(t *testing.T) {
	seats := &memSeats{failOn: "A-2"}
	var changed changedEvents
	h := NewOpsHandler(seats, &countingSweeper{}, &changed)

	body := `{"seats":[{"seat_number":"A-1"},{"seat_number":"A-2"}]}`
	rec := call(t, h.CreateSeats, http.MethodPost, body, "", "id", "e1")
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Len(t, decode(t, rec)["created"], 1)
	assert.Equal(t, changedEvents{"e1"}, changed, "counts refresh for the seats that made it")
}

func TestRunSweep(t *testing.T) {
	var changed changedEvents
	h := NewOpsHandler(&memSeats{}, &countingSweeper{released: 4}, &changed)
	rec := call(t, h.RunSweep, http.MethodPost, "", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(4), decode(t, rec)["released"])
}
