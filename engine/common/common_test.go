package common

import (
	"testing"

	"github.com/bmizerany/assert"
)

func TestEntityID(t *testing.T) {
	eid := GenEntityID()
	assert.Equal(t, ENTITYID_LENGTH, len(eid))
	assert.T(t, !eid.IsNil())
	assert.T(t, EntityID("").IsNil())
}

func TestClientID(t *testing.T) {
	cid := GenClientID()
	assert.Equal(t, CLIENTID_LENGTH, len(cid))
	assert.T(t, !cid.IsNil())
	assert.T(t, ClientID("").IsNil())
}

func TestStringSet(t *testing.T) {
	ss := StringSet{}
	ss.Add("1")
	ss.Add("2")
	assert.T(t, ss.Contains("1"), "should contain")
	assert.T(t, ss.Contains("2"), "should contain")
	ss.Remove("2")
	assert.T(t, !ss.Contains("2"), "should not contain")
	assert.Equal(t, 1, len(ss.ToList()))
}

func TestEntityIDSet(t *testing.T) {
	es := EntityIDSet{}
	e1, e2 := GenEntityID(), GenEntityID()
	es.Add(e1)
	es.Add(e2)
	assert.T(t, es.Contains(e1))
	es.Del(e1)
	assert.T(t, !es.Contains(e1))
	assert.Equal(t, 1, len(es.ToList()))
}

func TestClientIDSet(t *testing.T) {
	cs := ClientIDSet{}
	c := GenClientID()
	cs.Add(c)
	assert.T(t, cs.Contains(c))
	cs.Del(c)
	assert.T(t, !cs.Contains(c))
}
