// Package entitytest provides helpers for testing entity-based logic
// without a live gate: a recording ClientCaller keeps every client-bound
// message for assertions.
package entitytest

import (
	"fmt"

	"github.com/holoverse/holoworld/engine/common"
)

// Call is one recorded client-bound message
type Call struct {
	ClientID common.ClientID
	Kind     string // create, destroy, attrchange, attrdel, call
	TypeName string
	EntityID common.EntityID
	IsPlayer bool
	Key      string
	Val      interface{}
	Method   string
	Args     []interface{}
}

// RecordingCaller records client-bound messages instead of sending them
type RecordingCaller struct {
	Calls []Call
}

// NewRecordingCaller creates an empty RecordingCaller
func NewRecordingCaller() *RecordingCaller {
	return &RecordingCaller{}
}

// SendCreateEntityOnClient records a create-entity message
func (rc *RecordingCaller) SendCreateEntityOnClient(clientid common.ClientID, typeName string, entityid common.EntityID, isPlayer bool, x, y, z, yaw float32, attrs map[string]interface{}) {
	rc.Calls = append(rc.Calls, Call{
		ClientID: clientid,
		Kind:     "create",
		TypeName: typeName,
		EntityID: entityid,
		IsPlayer: isPlayer,
		Val:      attrs,
	})
}

// SendDestroyEntityOnClient records a destroy-entity message
func (rc *RecordingCaller) SendDestroyEntityOnClient(clientid common.ClientID, typeName string, entityid common.EntityID) {
	rc.Calls = append(rc.Calls, Call{
		ClientID: clientid,
		Kind:     "destroy",
		TypeName: typeName,
		EntityID: entityid,
	})
}

// SendNotifyAttrChangeOnClient records an attribute change message
func (rc *RecordingCaller) SendNotifyAttrChangeOnClient(clientid common.ClientID, entityid common.EntityID, key string, val interface{}) {
	rc.Calls = append(rc.Calls, Call{
		ClientID: clientid,
		Kind:     "attrchange",
		EntityID: entityid,
		Key:      key,
		Val:      val,
	})
}

// SendNotifyAttrDelOnClient records an attribute delete message
func (rc *RecordingCaller) SendNotifyAttrDelOnClient(clientid common.ClientID, entityid common.EntityID, key string) {
	rc.Calls = append(rc.Calls, Call{
		ClientID: clientid,
		Kind:     "attrdel",
		EntityID: entityid,
		Key:      key,
	})
}

// SendCallEntityMethodOnClient records a client method call
func (rc *RecordingCaller) SendCallEntityMethodOnClient(clientid common.ClientID, entityid common.EntityID, method string, args []interface{}) {
	rc.Calls = append(rc.Calls, Call{
		ClientID: clientid,
		Kind:     "call",
		EntityID: entityid,
		Method:   method,
		Args:     args,
	})
}

// MethodCalls returns recorded method calls of the method on the client
func (rc *RecordingCaller) MethodCalls(clientid common.ClientID, method string) []Call {
	var calls []Call
	for _, c := range rc.Calls {
		if c.Kind == "call" && c.ClientID == clientid && c.Method == method {
			calls = append(calls, c)
		}
	}
	return calls
}

// CountKind returns the number of recorded messages of the kind on the client
func (rc *RecordingCaller) CountKind(clientid common.ClientID, kind string) int {
	count := 0
	for _, c := range rc.Calls {
		if c.Kind == kind && c.ClientID == clientid {
			count += 1
		}
	}
	return count
}

// Reset drops all recorded messages
func (rc *RecordingCaller) Reset() {
	rc.Calls = nil
}

func (rc *RecordingCaller) String() string {
	return fmt.Sprintf("RecordingCaller<%d calls>", len(rc.Calls))
}
