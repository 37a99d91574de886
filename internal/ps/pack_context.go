package ps

// Bundle is one PS pack's worth of TS messages, handed upstream once the
// next pack_header (or end of stream) closes it out.
type Bundle struct {
	Messages []TSMessage
}

// BundleHandler receives one flushed Bundle at a time, strictly in
// pack-arrival order.
type BundleHandler interface {
	OnPackBundle(b Bundle)
}

// PackContext is C2: it implements ps.Handler, grouping the TS messages C1
// decodes from one PS pack into a single Bundle, carrying forward
// PTS/DTS=0 from the most recent non-zero value seen for the same stream
// within that pack (multi-PES video frames only carry a timestamp on
// their first PES).
type PackContext struct {
	upstream BundleHandler

	current    Bundle
	lastPTS    map[byte]uint64
	lastDTS    map[byte]uint64
	hasPending bool
}

func NewPackContext(upstream BundleHandler) *PackContext {
	return &PackContext{
		upstream: upstream,
		lastPTS:  make(map[byte]uint64),
		lastDTS:  make(map[byte]uint64),
	}
}

func (c *PackContext) OnPackHeader(reservedPrefixLen int) {
	c.flush()
	c.current = Bundle{}
	c.lastPTS = make(map[byte]uint64)
	c.lastDTS = make(map[byte]uint64)
	c.hasPending = true
}

func (c *PackContext) OnMessage(msg TSMessage) error {
	if msg.PTS == 0 {
		msg.PTS = c.lastPTS[msg.StreamID]
	} else {
		c.lastPTS[msg.StreamID] = msg.PTS
	}
	if msg.DTS == 0 {
		msg.DTS = c.lastDTS[msg.StreamID]
	} else {
		c.lastDTS[msg.StreamID] = msg.DTS
	}
	c.current.Messages = append(c.current.Messages, msg)
	return nil
}

func (c *PackContext) OnRecovery() {}

// Flush forces delivery of any pack still being accumulated, used when the
// owning media connection is closing.
func (c *PackContext) Flush() { c.flush() }

func (c *PackContext) flush() {
	if !c.hasPending || len(c.current.Messages) == 0 {
		return
	}
	c.upstream.OnPackBundle(c.current)
}
