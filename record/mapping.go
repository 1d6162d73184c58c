package record

// Remote is the shape of a record as the server stores it. Implementations must
// round-trip through encoding/json.
type Remote interface {
	RecordID() ID
}

// Mapping converts between the server shape R and the local shape L. X carries the
// local-only fields that have no server counterpart.
//
// For every local value l: FromRemote(ToRemote(l), extra(l)) == l, where extra
// extracts l's local-only fields.
type Mapping[R Remote, L any, X any] interface {
	FromRemote(remote R, local X) L
	ToRemote(local L) R
}

// MappingFuncs adapts a pair of functions to Mapping.
type MappingFuncs[R Remote, L any, X any] struct {
	From func(R, X) L
	To   func(L) R
}

func (m MappingFuncs[R, L, X]) FromRemote(remote R, local X) L {
	return m.From(remote, local)
}

func (m MappingFuncs[R, L, X]) ToRemote(local L) R {
	return m.To(local)
}
