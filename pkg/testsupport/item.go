package testsupport

import (
	"github.com/goliatone/go-querystate/record"
)

// Item is the remote shape used across package tests.
type Item struct {
	ID    record.ID `json:"id"`
	Title string    `json:"title"`
	Done  bool      `json:"done"`
}

func (i Item) RecordID() record.ID { return i.ID }

// NewItem builds an item in table "item".
func NewItem(key, title string, done bool) Item {
	return Item{ID: record.NewID("item", key), Title: title, Done: done}
}

// ItemView is the local shape: the remote fields plus a local-only flag.
type ItemView struct {
	Item
	Editing bool
}

// ItemMapping converts between Item and ItemView; the local-only part is the Editing flag.
type ItemMapping struct{}

var _ record.Mapping[Item, ItemView, bool] = ItemMapping{}

func (ItemMapping) FromRemote(remote Item, editing bool) ItemView {
	return ItemView{Item: remote, Editing: editing}
}

func (ItemMapping) ToRemote(local ItemView) Item {
	return local.Item
}
