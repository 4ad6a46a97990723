package normalize

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/bawsi99/StockAnalyzer-Pro-sub001/internal/models"
)

// rawTick is the push feed's trade message. The feed uses the long field
// names; the short aliases cover the polled quote endpoint, which encodes
// the same payload compactly.
type rawTick struct {
	InstrumentID string  `json:"instrument_id"`
	Symbol       string  `json:"symbol"`
	Price        float64 `json:"price"`
	P            float64 `json:"p"`
	Volume       int64   `json:"volume"`
	Size         int64   `json:"size"`
	Timestamp    string  `json:"timestamp"`
	T            int64   `json:"t"` // unix nanoseconds
}

// Parse converts a raw feed message into a Tick stamped with receipt.
// Returns ErrMalformedMessage (wrapped) for anything that fails schema or
// bounds validation; malformed messages are dropped, never fatal.
func Parse(raw []byte, receipt time.Time) (*models.Tick, error) {
	if len(raw) == 0 {
		return nil, fmt.Errorf("%w: empty message", models.ErrMalformedMessage)
	}

	var msg rawTick
	if err := json.Unmarshal(raw, &msg); err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrMalformedMessage, err)
	}

	tick := &models.Tick{
		ReceiptTS: receipt,
	}

	switch {
	case msg.InstrumentID != "":
		tick.InstrumentID = strings.ToUpper(msg.InstrumentID)
	case msg.Symbol != "":
		tick.InstrumentID = strings.ToUpper(msg.Symbol)
	default:
		return nil, fmt.Errorf("%w: missing instrument", models.ErrMalformedMessage)
	}

	tick.Price = msg.Price
	if tick.Price == 0 {
		tick.Price = msg.P
	}

	tick.Volume = msg.Volume
	if tick.Volume == 0 {
		tick.Volume = msg.Size
	}

	switch {
	case msg.Timestamp != "":
		ts, err := time.Parse(time.RFC3339Nano, msg.Timestamp)
		if err != nil {
			return nil, fmt.Errorf("%w: invalid timestamp: %v", models.ErrMalformedMessage, err)
		}
		tick.ExchangeTS = ts.UTC()
	case msg.T != 0:
		tick.ExchangeTS = time.Unix(0, msg.T).UTC()
	default:
		return nil, fmt.Errorf("%w: missing timestamp", models.ErrMalformedMessage)
	}

	if err := tick.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrMalformedMessage, err)
	}
	return tick, nil
}
