package txn

import (
	"errors"
	"strconv"

	"github.com/deepskilling/deepgraph/pkg/graph"
)

var errShortBuffer = errors.New("txn: truncated WAL payload")

// valueFromKindAndText reconstructs a graph.Value from its WAL wire
// representation: a Kind tag plus the textual form Value.String() produces
// (graph.Value's internal fields are private, so round-tripping goes
// through its public string form rather than a second struct layout).
func valueFromKindAndText(kind graph.Kind, text string) (graph.Value, error) {
	switch kind {
	case graph.KindNull:
		return graph.Null(), nil
	case graph.KindBool:
		return graph.Bool(text == "true"), nil
	case graph.KindInt:
		i, err := strconv.ParseInt(text, 10, 64)
		if err != nil {
			return graph.Value{}, err
		}
		return graph.Int(i), nil
	case graph.KindFloat:
		f, err := strconv.ParseFloat(text, 64)
		if err != nil {
			return graph.Value{}, err
		}
		return graph.Float(f), nil
	case graph.KindString:
		return graph.String(text), nil
	default:
		return graph.Value{}, errors.New("txn: unknown value kind in WAL payload")
	}
}
