package main

import (
	"github.com/petar/GoLLRB/llrb"

	"github.com/holoverse/holoworld/engine/common"
	"github.com/holoverse/holoworld/engine/hwlog"
	"github.com/holoverse/holoworld/engine/hwutils"
)

// FilterOp is the relational operator of a client filter query
type FilterOp string

const (
	// FilterEQ means equal
	FilterEQ FilterOp = "="
	// FilterNE means not equal
	FilterNE FilterOp = "!="
	// FilterLT means less than
	FilterLT FilterOp = "<"
	// FilterLE means less than or equal
	FilterLE FilterOp = "<="
	// FilterGT means greater than
	FilterGT FilterOp = ">"
	// FilterGE means greater than or equal
	FilterGE FilterOp = ">="
)

type _FilterTree struct {
	btree *llrb.LLRB
}

func newFilterTree() *_FilterTree {
	return &_FilterTree{
		btree: llrb.New(),
	}
}

type filterTreeItem struct {
	clientid common.ClientID
	val      string
}

func (it *filterTreeItem) Less(_other llrb.Item) bool {
	other := _other.(*filterTreeItem)
	return it.val < other.val || (it.val == other.val && it.clientid < other.clientid)
}

func (ft *_FilterTree) Insert(clientid common.ClientID, val string) {
	ft.btree.ReplaceOrInsert(&filterTreeItem{
		clientid: clientid,
		val:      val,
	})
}

func (ft *_FilterTree) Remove(clientid common.ClientID, val string) {
	ft.btree.Delete(&filterTreeItem{
		clientid: clientid,
		val:      val,
	})
}

func (ft *_FilterTree) Visit(op FilterOp, val string, f func(clientid common.ClientID)) {
	if op == FilterEQ {
		// visit key == val
		ft.btree.AscendGreaterOrEqual(&filterTreeItem{"", val}, func(_item llrb.Item) bool {
			item := _item.(*filterTreeItem)
			if item.val > val {
				return false
			}

			f(item.clientid)
			return true
		})
	} else if op == FilterNE {
		// visit key != val
		// visit key < val first
		ft.btree.AscendLessThan(&filterTreeItem{"", val}, func(_item llrb.Item) bool {
			f(_item.(*filterTreeItem).clientid)
			return true
		})
		// then visit key > val
		ft.btree.AscendGreaterOrEqual(&filterTreeItem{"", hwutils.NextLargerKey(val)}, func(_item llrb.Item) bool {
			f(_item.(*filterTreeItem).clientid)
			return true
		})
	} else if op == FilterGT {
		// visit key > val
		ft.btree.AscendGreaterOrEqual(&filterTreeItem{"", hwutils.NextLargerKey(val)}, func(_item llrb.Item) bool {
			f(_item.(*filterTreeItem).clientid)
			return true
		})
	} else if op == FilterGE {
		// visit key >= val
		ft.btree.AscendGreaterOrEqual(&filterTreeItem{"", val}, func(_item llrb.Item) bool {
			f(_item.(*filterTreeItem).clientid)
			return true
		})
	} else if op == FilterLT {
		// visit key < val
		ft.btree.AscendLessThan(&filterTreeItem{"", val}, func(_item llrb.Item) bool {
			f(_item.(*filterTreeItem).clientid)
			return true
		})
	} else if op == FilterLE {
		// visit key <= val
		ft.btree.AscendLessThan(&filterTreeItem{"", hwutils.NextLargerKey(val)}, func(_item llrb.Item) bool {
			f(_item.(*filterTreeItem).clientid)
			return true
		})
	} else {
		hwlog.Panicf("unknown filter clients op: %s", op)
	}
}
