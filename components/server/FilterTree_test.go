package main

import (
	"sort"
	"testing"

	"github.com/bmizerany/assert"

	"github.com/holoverse/holoworld/engine/common"
)

func collectFilterTree(ft *_FilterTree, op FilterOp, val string) []string {
	var ids []string
	ft.Visit(op, val, func(clientid common.ClientID) {
		ids = append(ids, string(clientid))
	})
	sort.Strings(ids)
	return ids
}

func TestFilterTreeVisit(t *testing.T) {
	ft := newFilterTree()
	ft.Insert("c1", "lobby")
	ft.Insert("c2", "lobby")
	ft.Insert("c3", "plaza")
	ft.Insert("c4", "studio")

	assert.Equal(t, []string{"c1", "c2"}, collectFilterTree(ft, FilterEQ, "lobby"))
	assert.Equal(t, []string{"c3", "c4"}, collectFilterTree(ft, FilterNE, "lobby"))
	assert.Equal(t, []string{"c1", "c2"}, collectFilterTree(ft, FilterLT, "plaza"))
	assert.Equal(t, []string{"c1", "c2", "c3"}, collectFilterTree(ft, FilterLE, "plaza"))
	assert.Equal(t, []string{"c4"}, collectFilterTree(ft, FilterGT, "plaza"))
	assert.Equal(t, []string{"c3", "c4"}, collectFilterTree(ft, FilterGE, "plaza"))
}

func TestFilterTreeReplace(t *testing.T) {
	ft := newFilterTree()
	ft.Insert("c1", "lobby")
	ft.Remove("c1", "lobby")
	ft.Insert("c1", "plaza")

	assert.Equal(t, []string(nil), collectFilterTree(ft, FilterEQ, "lobby"))
	assert.Equal(t, []string{"c1"}, collectFilterTree(ft, FilterEQ, "plaza"))
}

func TestFilterTreeRemoveMissing(t *testing.T) {
	ft := newFilterTree()
	ft.Remove("c1", "lobby") // no-op
	assert.Equal(t, []string(nil), collectFilterTree(ft, FilterEQ, "lobby"))
}
