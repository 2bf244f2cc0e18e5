// Package wire decodes the length-delimited binary ticker format used by the
// MEXC compressed spot-deals stream. The framing is protobuf wire format;
// only the small field subset needed for pricing is mapped, everything else
// is skipped by length.
package wire

import (
	"errors"

	"google.golang.org/protobuf/encoding/protowire"
)

// Wrapper field numbers. Sub-message channels occupy 301..315; only the
// aggregated deals channel (314) is decoded, the rest are skipped by
// length.
const (
	fieldChannel    = 1
	fieldSymbol     = 3
	fieldCreateTime = 5
	fieldSendTime   = 6
	fieldAggreDeals = 314
)

// AggreDeals message fields.
const (
	fieldDeals     = 1
	fieldEventType = 2
)

// Deal item fields.
const (
	fieldDealPrice     = 1
	fieldDealQuantity  = 2
	fieldDealTradeType = 3
	fieldDealTime      = 4
)

// ErrMalformed reports an undecodable buffer.
var ErrMalformed = errors.New("malformed wrapper message")

// Deal is a single aggregated trade. Price and Quantity stay in their wire
// string form; parsing to decimal happens at the venue layer.
type Deal struct {
	Price     string
	Quantity  string
	TradeType int32
	Time      int64
}

// AggreDeals is the channel-314 payload.
type AggreDeals struct {
	Deals     []Deal
	EventType string
}

// Wrapper is the top-level push message.
type Wrapper struct {
	Channel    string
	Symbol     string
	CreateTime int64
	SendTime   int64
	Deals      *AggreDeals
}

// FirstDeal returns the first decoded deal, or nil when the wrapper carried
// none.
func (w *Wrapper) FirstDeal() *Deal {
	if w == nil || w.Deals == nil || len(w.Deals.Deals) == 0 {
		return nil
	}
	return &w.Deals.Deals[0]
}

// DecodeWrapper decodes a wrapper message. Unknown fields, including the
// unmapped 301..315 sub-channels, are skipped by length. Malformed input
// yields ErrMalformed, never a panic.
func DecodeWrapper(b []byte) (*Wrapper, error) {
	w := &Wrapper{}
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return nil, ErrMalformed
		}
		b = b[n:]

		switch {
		case num == fieldChannel && typ == protowire.BytesType:
			v, n := protowire.ConsumeString(b)
			if n < 0 {
				return nil, ErrMalformed
			}
			w.Channel = v
			b = b[n:]
		case num == fieldSymbol && typ == protowire.BytesType:
			v, n := protowire.ConsumeString(b)
			if n < 0 {
				return nil, ErrMalformed
			}
			w.Symbol = v
			b = b[n:]
		case num == fieldCreateTime && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return nil, ErrMalformed
			}
			w.CreateTime = int64(v)
			b = b[n:]
		case num == fieldSendTime && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return nil, ErrMalformed
			}
			w.SendTime = int64(v)
			b = b[n:]
		case num == fieldAggreDeals && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return nil, ErrMalformed
			}
			deals, err := decodeAggreDeals(v)
			if err != nil {
				return nil, err
			}
			w.Deals = deals
			b = b[n:]
		default:
			// Unknown field, wrong wire type, or an unmapped sub-channel.
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return nil, ErrMalformed
			}
			b = b[n:]
		}
	}
	return w, nil
}

func decodeAggreDeals(b []byte) (*AggreDeals, error) {
	out := &AggreDeals{}
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return nil, ErrMalformed
		}
		b = b[n:]

		switch {
		case num == fieldDeals && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return nil, ErrMalformed
			}
			deal, err := decodeDeal(v)
			if err != nil {
				return nil, err
			}
			out.Deals = append(out.Deals, deal)
			b = b[n:]
		case num == fieldEventType && typ == protowire.BytesType:
			v, n := protowire.ConsumeString(b)
			if n < 0 {
				return nil, ErrMalformed
			}
			out.EventType = v
			b = b[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return nil, ErrMalformed
			}
			b = b[n:]
		}
	}
	return out, nil
}

func decodeDeal(b []byte) (Deal, error) {
	var d Deal
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return d, ErrMalformed
		}
		b = b[n:]

		switch {
		case num == fieldDealPrice && typ == protowire.BytesType:
			v, n := protowire.ConsumeString(b)
			if n < 0 {
				return d, ErrMalformed
			}
			d.Price = v
			b = b[n:]
		case num == fieldDealQuantity && typ == protowire.BytesType:
			v, n := protowire.ConsumeString(b)
			if n < 0 {
				return d, ErrMalformed
			}
			d.Quantity = v
			b = b[n:]
		case num == fieldDealTradeType && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return d, ErrMalformed
			}
			d.TradeType = int32(v)
			b = b[n:]
		case num == fieldDealTime && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return d, ErrMalformed
			}
			// Negative values arrive as ten-byte varints; two's complement
			// is preserved by the int64 conversion.
			d.Time = int64(v)
			b = b[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return d, ErrMalformed
			}
			b = b[n:]
		}
	}
	return d, nil
}
