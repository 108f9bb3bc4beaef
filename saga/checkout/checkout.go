// Package checkout is a worked saga example: reserving seats in an
// inventory aggregate, then charging payment, with compensation on
// payment failure. It exercises the coordination pattern described for
// sagas generally — send commands to children, react to their outcome
// actions, never poll or await directly.
package checkout

import (
	"context"
	"time"

	"reactor"
	"reactor/saga"
)

// Status is the saga's workflow state machine.
type Status int

const (
	Idle Status = iota
	ReservingSeats
	ProcessingPayment
	Completed
	Compensating
	Failed
)

func (s Status) String() string {
	switch s {
	case Idle:
		return "idle"
	case ReservingSeats:
		return "reserving_seats"
	case ProcessingPayment:
		return "processing_payment"
	case Completed:
		return "completed"
	case Compensating:
		return "compensating"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// State is the saga's aggregate state.
type State struct {
	Status    Status
	EventID   string
	Section   string
	Quantity  int
	SeatIDs   []string
	Amount    int64
	FailureReason string
}

// Action is the saga's closed action set: commands from callers,
// outcome actions from child stores, and the timeout action from a
// Delay effect.
type Action struct {
	Kind Kind

	InitiateReservation *InitiateReservation
	SeatsReserved       *SeatsReserved
	SeatsUnavailable    *SeatsUnavailable
	PaymentSucceeded    *PaymentSucceeded
	PaymentFailed       *PaymentFailed
	ReservationReleased *ReservationReleased
	ReservationTimeout  *ReservationTimeout
}

type Kind int

const (
	KindInitiateReservation Kind = iota
	KindSeatsReserved
	KindSeatsUnavailable
	KindPaymentSucceeded
	KindPaymentFailed
	KindReservationReleased
	KindReservationTimeout
)

type InitiateReservation struct {
	EventID  string
	Section  string
	Quantity int
	Amount   int64
}

type SeatsReserved struct{ SeatIDs []string }
type SeatsUnavailable struct{ Reason string }
type PaymentSucceeded struct{}
type PaymentFailed struct{ Reason string }
type ReservationReleased struct{}
type ReservationTimeout struct{}

// Inventory and Payment are the child dependencies the saga dispatches
// commands to. A production deployment wires these to the real
// inventory/payment stores' Send+Wait; tests can fake them directly.
type Inventory interface {
	ReserveSeats(ctx context.Context, eventID, section string, qty int) ([]string, error)
	ReleaseSeats(ctx context.Context, eventID string, seatIDs []string) error
}

type Payment interface {
	Charge(ctx context.Context, eventID string, amount int64) error
	Refund(ctx context.Context, eventID string) error
}

// Env bundles the saga's child dependencies.
type Env struct {
	Inventory Inventory
	Payment   Payment
}

const reservationTimeout = 30 * time.Second

// Reducer implements the checkout saga's state machine, matching the
// happy-path and payment-failure scenarios: Idle -> ReservingSeats ->
// ProcessingPayment -> Completed, or -> Compensating -> Failed.
var Reducer = reactor.ReducerFunc[State, Action, Env](reduce)

func reduce(state State, action Action, env Env) (State, []reactor.Effect[Action]) {
	switch action.Kind {
	case KindInitiateReservation:
		if state.Status != Idle {
			return state, nil
		}
		cmd := action.InitiateReservation
		state.Status = ReservingSeats
		state.EventID = cmd.EventID
		state.Section = cmd.Section
		state.Quantity = cmd.Quantity
		state.Amount = cmd.Amount
		return state, []reactor.Effect[Action]{
			reserveSeatsEffect(env, cmd.EventID, cmd.Section, cmd.Quantity),
			saga.Timeout(reservationTimeout, Action{Kind: KindReservationTimeout, ReservationTimeout: &ReservationTimeout{}}),
		}

	case KindSeatsReserved:
		if state.Status != ReservingSeats {
			return state, nil
		}
		state.SeatIDs = action.SeatsReserved.SeatIDs
		state.Status = ProcessingPayment
		return state, []reactor.Effect[Action]{
			chargePaymentEffect(env, state.EventID, state.Amount),
		}

	case KindSeatsUnavailable:
		if state.Status != ReservingSeats {
			return state, nil
		}
		state.Status = Failed
		state.FailureReason = action.SeatsUnavailable.Reason
		return state, nil

	case KindPaymentSucceeded:
		if state.Status != ProcessingPayment {
			return state, nil
		}
		state.Status = Completed
		return state, nil

	case KindPaymentFailed:
		if state.Status != ProcessingPayment {
			return state, nil
		}
		state.Status = Compensating
		state.FailureReason = action.PaymentFailed.Reason
		return state, []reactor.Effect[Action]{
			releaseSeatsEffect(env, state.EventID, state.SeatIDs),
		}

	case KindReservationReleased:
		if state.Status != Compensating {
			return state, nil
		}
		state.Status = Failed
		return state, nil

	case KindReservationTimeout:
		if state.Status != ReservingSeats && state.Status != ProcessingPayment {
			return state, nil
		}
		state.Status = Compensating
		state.FailureReason = "reservation timed out"
		return state, []reactor.Effect[Action]{
			releaseSeatsEffect(env, state.EventID, state.SeatIDs),
		}
	}
	return state, nil
}

func reserveSeatsEffect(env Env, eventID, section string, qty int) reactor.Effect[Action] {
	var seatIDs []string
	return saga.Dispatch[Action](
		func(ctx context.Context) error {
			var err error
			seatIDs, err = env.Inventory.ReserveSeats(ctx, eventID, section, qty)
			return err
		},
		func(err error) (Action, bool) {
			if err != nil {
				return Action{Kind: KindSeatsUnavailable, SeatsUnavailable: &SeatsUnavailable{Reason: err.Error()}}, true
			}
			return Action{Kind: KindSeatsReserved, SeatsReserved: &SeatsReserved{SeatIDs: seatIDs}}, true
		},
	)
}

func chargePaymentEffect(env Env, eventID string, amount int64) reactor.Effect[Action] {
	return saga.Dispatch[Action](
		func(ctx context.Context) error {
			return env.Payment.Charge(ctx, eventID, amount)
		},
		func(err error) (Action, bool) {
			if err != nil {
				return Action{Kind: KindPaymentFailed, PaymentFailed: &PaymentFailed{Reason: err.Error()}}, true
			}
			return Action{Kind: KindPaymentSucceeded, PaymentSucceeded: &PaymentSucceeded{}}, true
		},
	)
}

func releaseSeatsEffect(env Env, eventID string, seatIDs []string) reactor.Effect[Action] {
	return saga.Dispatch[Action](
		func(ctx context.Context) error {
			return env.Inventory.ReleaseSeats(ctx, eventID, seatIDs)
		},
		func(error) (Action, bool) {
			return Action{Kind: KindReservationReleased, ReservationReleased: &ReservationReleased{}}, true
		},
	)
}
