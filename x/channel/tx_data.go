package channel

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/compose-network/batcher/x/blob"
	"github.com/compose-network/batcher/x/derive"
)

// TxData is the payload of one L1 transaction: one or more frames, sent as
// calldata or as one blob per frame.
type TxData struct {
	frames []frameData
	asBlob bool

	// L2 blocks of the channel when the tx data was taken
	l2Start    uint64
	blockCount int
}

// ID routes confirmations back to the channel the frames came from.
func (td *TxData) ID() TxID {
	id := make(TxID, 0, len(td.frames))
	for _, f := range td.frames {
		id = append(id, f.id)
	}
	return id
}

// AsBlob reports whether the frames go into blobs.
func (td *TxData) AsBlob() bool {
	return td.asBlob
}

// L2Range returns the first L2 block number and the block count of the
// channel the frames belong to.
func (td *TxData) L2Range() (uint64, int) {
	return td.l2Start, td.blockCount
}

// Frames returns the encoded frames.
func (td *TxData) Frames() [][]byte {
	out := make([][]byte, 0, len(td.frames))
	for _, f := range td.frames {
		out = append(out, f.data)
	}
	return out
}

// CallData is the derivation version byte followed by the frames.
func (td *TxData) CallData() []byte {
	data := make([]byte, 1, 1+td.Len())
	data[0] = derive.DerivationVersion0
	for _, f := range td.frames {
		data = append(data, f.data...)
	}
	return data
}

// Blobs encodes every frame, prefixed with the derivation version, into its
// own blob.
func (td *TxData) Blobs() ([]*blob.Blob, error) {
	blobs := make([]*blob.Blob, 0, len(td.frames))
	for _, f := range td.frames {
		var b blob.Blob
		data := append([]byte{derive.DerivationVersion0}, f.data...)
		if err := b.FromData(data); err != nil {
			return nil, fmt.Errorf("frame %d: %w", f.id.frameNumber, err)
		}
		blobs = append(blobs, &b)
	}
	return blobs, nil
}

// Len is the total size of the frames.
func (td *TxData) Len() (l int) {
	for _, f := range td.frames {
		l += len(f.data)
	}
	return l
}

// TxID lists the frames of one transaction.
type TxID []frameID

// String renders the id as "<channel>:<frame>+<frame>|<channel>:<frame>",
// consecutive frames of one channel joined by "+".
func (id TxID) String() string {
	return id.string(func(id derive.ChannelID) string { return id.String() })
}

// TerminalString is String with shortened channel ids.
func (id TxID) TerminalString() string {
	return id.string(func(id derive.ChannelID) string { return id.TerminalString() })
}

func (id TxID) string(chIDStringer func(derive.ChannelID) string) string {
	var (
		sb      strings.Builder
		curChID derive.ChannelID
	)
	for i, f := range id {
		if i > 0 && f.chID == curChID {
			sb.WriteString("+")
		} else {
			if i > 0 {
				sb.WriteString("|")
			}
			sb.WriteString(chIDStringer(f.chID))
			sb.WriteString(":")
			curChID = f.chID
		}
		sb.WriteString(strconv.FormatUint(uint64(f.frameNumber), 10))
	}
	return sb.String()
}

// ParseTxID parses the output of TxID.String.
func ParseTxID(s string) (TxID, error) {
	var id TxID
	for _, part := range strings.Split(s, "|") {
		chStr, framesStr, ok := strings.Cut(part, ":")
		if !ok {
			return nil, fmt.Errorf("invalid tx id segment %q", part)
		}
		chID, err := derive.ChannelIDFromString(chStr)
		if err != nil {
			return nil, fmt.Errorf("invalid channel id in %q: %w", part, err)
		}
		for _, fs := range strings.Split(framesStr, "+") {
			fn, err := strconv.ParseUint(fs, 10, 16)
			if err != nil {
				return nil, fmt.Errorf("invalid frame number in %q: %w", part, err)
			}
			id = append(id, frameID{chID: chID, frameNumber: uint16(fn)})
		}
	}
	return id, nil
}

// ChannelIDs returns the distinct channels of the id in order.
func (id TxID) ChannelIDs() []derive.ChannelID {
	var out []derive.ChannelID
	for i, f := range id {
		if i == 0 || f.chID != id[i-1].chID {
			out = append(out, f.chID)
		}
	}
	return out
}
