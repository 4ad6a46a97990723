package models

import "errors"

var (
	ErrInvalidInstrument = errors.New("invalid instrument")
	ErrInvalidPrice      = errors.New("invalid price")
	ErrInvalidVolume     = errors.New("invalid volume")
	ErrInvalidTimestamp  = errors.New("invalid timestamp")
	ErrInvalidCandle     = errors.New("invalid candle (high < low)")
	ErrInvalidInterval   = errors.New("invalid interval")

	ErrMalformedMessage    = errors.New("malformed feed message")
	ErrDuplicateTick       = errors.New("duplicate tick")
	ErrLateTick            = errors.New("tick older than committed candle boundary")
	ErrNotConnected        = errors.New("feed is not connected")
	ErrAlreadyConnected    = errors.New("feed is already connected")
	ErrSeedingFailed       = errors.New("indicator state seeding failed")
	ErrCalendarUnavailable = errors.New("session calendar unavailable")
	ErrNotSubscribed       = errors.New("instrument is not subscribed")
	ErrAlreadySubscribed   = errors.New("instrument is already subscribed")
)
