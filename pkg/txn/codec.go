package txn

import (
	"encoding/binary"

	"github.com/deepskilling/deepgraph/pkg/graph"
	"github.com/deepskilling/deepgraph/pkg/mvcc"
)

// encodeNode/encodeEdge serialize a record for the WAL payload. The format
// is DeepGraph's own (length-prefixed fields via encoding/binary, matching
// pkg/wal's record framing) rather than the teacher's JSON encoding, since
// the spec mandates a binary WAL.
func encodeNode(n graph.Node) []byte {
	var buf []byte
	buf = appendString(buf, n.ID.String())
	labels := n.Labels.Slice()
	buf = appendUint32(buf, uint32(len(labels)))
	for _, l := range labels {
		buf = appendString(buf, l)
	}
	buf = appendProps(buf, n.Props)
	return buf
}

func encodeEdge(e graph.Edge) []byte {
	var buf []byte
	buf = appendString(buf, e.ID.String())
	buf = appendString(buf, e.Type)
	buf = appendString(buf, e.From.String())
	buf = appendString(buf, e.To.String())
	buf = appendProps(buf, e.Props)
	return buf
}

// encodeTimestamp/decodeTimestamp serialize a mvcc.Timestamp into a
// CommitTxn record's payload, so a CommitTxn(txn_id, commit_ts) WAL record
// carries the commit timestamp. Recover does not read it: it assigns each
// replayed commit a fresh timestamp from its clock.
func encodeTimestamp(ts mvcc.Timestamp) []byte {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], uint64(ts))
	return buf[:]
}

func decodeTimestamp(buf []byte) (mvcc.Timestamp, bool) {
	if len(buf) < 8 {
		return 0, false
	}
	return mvcc.Timestamp(binary.BigEndian.Uint64(buf[:8])), true
}

func appendUint32(buf []byte, v uint32) []byte {
	var tmp [4]byte
	binary.BigEndian.PutUint32(tmp[:], v)
	return append(buf, tmp[:]...)
}

func appendString(buf []byte, s string) []byte {
	buf = appendUint32(buf, uint32(len(s)))
	return append(buf, s...)
}

func appendProps(buf []byte, p graph.PropertyMap) []byte {
	keys := p.SortedKeys()
	buf = appendUint32(buf, uint32(len(keys)))
	for _, k := range keys {
		buf = appendString(buf, k)
		v := p[k]
		buf = append(buf, byte(v.Kind()))
		switch v.Kind() {
		case graph.KindString:
			buf = appendString(buf, v.Text())
		default:
			buf = appendString(buf, v.String())
		}
	}
	return buf
}

// decodeNode/decodeEdge are the WAL-replay counterparts, used by
// pkg/engine's recovery path to rebuild the structural index from a
// replayed log without re-running through the transaction coordinator.
func decodeNode(buf []byte) (graph.Node, error) {
	var n graph.Node
	id, rest, err := readString(buf)
	if err != nil {
		return n, err
	}
	nid, err := graph.ParseNodeID(id)
	if err != nil {
		return n, err
	}
	n.ID = nid

	count, rest, err := readUint32(rest)
	if err != nil {
		return n, err
	}
	n.Labels = make(graph.LabelSet, count)
	for i := uint32(0); i < count; i++ {
		var label string
		label, rest, err = readString(rest)
		if err != nil {
			return n, err
		}
		n.Labels.Add(label)
	}
	props, _, err := readProps(rest)
	if err != nil {
		return n, err
	}
	n.Props = props
	return n, nil
}

func decodeEdge(buf []byte) (graph.Edge, error) {
	var e graph.Edge
	id, rest, err := readString(buf)
	if err != nil {
		return e, err
	}
	eid, err := graph.ParseEdgeID(id)
	if err != nil {
		return e, err
	}
	e.ID = eid

	typ, rest, err := readString(rest)
	if err != nil {
		return e, err
	}
	e.Type = typ

	fromStr, rest, err := readString(rest)
	if err != nil {
		return e, err
	}
	from, err := graph.ParseNodeID(fromStr)
	if err != nil {
		return e, err
	}
	e.From = from

	toStr, rest, err := readString(rest)
	if err != nil {
		return e, err
	}
	to, err := graph.ParseNodeID(toStr)
	if err != nil {
		return e, err
	}
	e.To = to

	props, _, err := readProps(rest)
	if err != nil {
		return e, err
	}
	e.Props = props
	return e, nil
}

func readUint32(buf []byte) (uint32, []byte, error) {
	if len(buf) < 4 {
		return 0, nil, errShortBuffer
	}
	return binary.BigEndian.Uint32(buf[:4]), buf[4:], nil
}

func readString(buf []byte) (string, []byte, error) {
	n, rest, err := readUint32(buf)
	if err != nil {
		return "", nil, err
	}
	if uint32(len(rest)) < n {
		return "", nil, errShortBuffer
	}
	return string(rest[:n]), rest[n:], nil
}

func readProps(buf []byte) (graph.PropertyMap, []byte, error) {
	count, rest, err := readUint32(buf)
	if err != nil {
		return nil, nil, err
	}
	props := make(graph.PropertyMap, count)
	for i := uint32(0); i < count; i++ {
		var key string
		key, rest, err = readString(rest)
		if err != nil {
			return nil, nil, err
		}
		if len(rest) < 1 {
			return nil, nil, errShortBuffer
		}
		kind := graph.Kind(rest[0])
		rest = rest[1:]
		var raw string
		raw, rest, err = readString(rest)
		if err != nil {
			return nil, nil, err
		}
		v, err := valueFromKindAndText(kind, raw)
		if err != nil {
			return nil, nil, err
		}
		props[key] = v
	}
	return props, rest, nil
}
