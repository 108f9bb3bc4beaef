package checkout

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"reactor"
)

type fakeInventory struct {
	seatIDs      []string
	reserveErr   error
	releaseCalls int
}

func (f *fakeInventory) ReserveSeats(ctx context.Context, eventID, section string, qty int) ([]string, error) {
	if f.reserveErr != nil {
		return nil, f.reserveErr
	}
	return f.seatIDs, nil
}

func (f *fakeInventory) ReleaseSeats(ctx context.Context, eventID string, seatIDs []string) error {
	f.releaseCalls++
	return nil
}

type fakePayment struct {
	chargeErr error
}

func (f *fakePayment) Charge(ctx context.Context, eventID string, amount int64) error {
	return f.chargeErr
}

func (f *fakePayment) Refund(ctx context.Context, eventID string) error { return nil }

// run drains the effects a single reduce call produces, synchronously,
// feeding follow-up actions back into reduce until the saga settles in
// a terminal (non-transitioning) state. It stands in for the Store
// runtime for the purposes of exercising the saga's state machine.
func run(t *testing.T, env Env, actions ...Action) State {
	t.Helper()
	state := State{}
	pending := actions
	for len(pending) > 0 {
		action := pending[0]
		pending = pending[1:]

		var effects []reactor.Effect[Action]
		state, effects = reduce(state, action, env)
		for _, eff := range effects {
			if eff.Kind == reactor.KindFuture {
				followUp, ok, err := eff.Future(context.Background())
				require.NoError(t, err)
				if ok {
					pending = append(pending, followUp)
				}
			}
		}
	}
	return state
}

func TestCheckoutHappyPath(t *testing.T) {
	inv := &fakeInventory{seatIDs: []string{"S7", "S8"}}
	pay := &fakePayment{}
	env := Env{Inventory: inv, Payment: pay}

	initiate := Action{Kind: KindInitiateReservation, InitiateReservation: &InitiateReservation{
		EventID: "E1", Section: "GA", Quantity: 2, Amount: 5000,
	}}

	final := run(t, env, initiate)

	assert.Equal(t, Completed, final.Status)
	assert.Equal(t, []string{"S7", "S8"}, final.SeatIDs)
	assert.Equal(t, 0, inv.releaseCalls)
}

func TestCheckoutPaymentFailureCompensates(t *testing.T) {
	inv := &fakeInventory{seatIDs: []string{"S7", "S8"}}
	pay := &fakePayment{chargeErr: errors.New("card declined")}
	env := Env{Inventory: inv, Payment: pay}

	initiate := Action{Kind: KindInitiateReservation, InitiateReservation: &InitiateReservation{
		EventID: "E1", Section: "GA", Quantity: 2, Amount: 5000,
	}}

	final := run(t, env, initiate)

	assert.Equal(t, Failed, final.Status)
	assert.Equal(t, 1, inv.releaseCalls)
	assert.Equal(t, []string{"S7", "S8"}, final.SeatIDs)
}

func TestCheckoutSeatsUnavailableFailsWithoutReservation(t *testing.T) {
	inv := &fakeInventory{reserveErr: errors.New("sold out")}
	pay := &fakePayment{}
	env := Env{Inventory: inv, Payment: pay}

	initiate := Action{Kind: KindInitiateReservation, InitiateReservation: &InitiateReservation{
		EventID: "E1", Section: "GA", Quantity: 2, Amount: 5000,
	}}

	final := run(t, env, initiate)

	assert.Equal(t, Failed, final.Status)
	assert.Equal(t, 0, inv.releaseCalls)
}
