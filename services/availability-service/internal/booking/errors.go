package booking

import "errors"

var (
	ErrNotAvailable    = errors.New("online booking is not available")
	ErrBookingDisabled = errors.New("online booking is not enabled")
	ErrUnavailable     = errors.New("availability is temporarily unavailable")
	ErrSlotNotFound    = errors.New("time slot not found")

	ErrInvalidInput      = errors.New("invalid input")
	ErrServiceNotAllowed = errors.New("service type is not available for online booking")
	ErrOutsideWindow     = errors.New("date is outside the booking window")
	ErrSlotTaken         = errors.New("time slot already booked")
	ErrPastCutoff        = errors.New("time slot is too soon to book")
)
