package querystate

import (
	"github.com/goliatone/go-querystate/record"
)

// Item is one projected record: its stable key, its local shape and its reference.
type Item[R record.Remote, L any] struct {
	Key   string
	Value L
	Ref   *SelfRef[R]
}

// Project maps every record of a Ready entry to its local shape, in server order,
// and keeps those accepted by keep (nil keeps all). keep only filters the projection;
// the entry is never changed. A non-Ready entry projects to nil.
func Project[R record.Remote, L any, X any](entry *Entry[R], mapping record.Mapping[R, L, X], local X, keep func(L) bool) []Item[R, L] {
	st := entry.Read()
	if !st.Ready() {
		return nil
	}

	items := make([]Item[R, L], 0, len(st.Records))
	for i, r := range st.Records {
		value := mapping.FromRemote(r, local)
		if keep != nil && !keep(value) {
			continue
		}
		id := r.RecordID()
		items = append(items, Item[R, L]{
			Key:   id.String(),
			Value: value,
			Ref:   NewSelfRef(entry, i, id),
		})
	}
	return items
}
