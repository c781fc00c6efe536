package entity

import (
	"fmt"
	"reflect"
	"time"

	timer "github.com/xiaonanln/goTimer"
	"github.com/xiaonanln/typeconv"
	"golang.org/x/net/context"

	"github.com/holoverse/holoworld/engine/common"
	"github.com/holoverse/holoworld/engine/hwlog"
	"github.com/holoverse/holoworld/engine/netutil"
	"github.com/holoverse/holoworld/engine/post"
	"github.com/holoverse/holoworld/engine/scene"

	"github.com/xiaonanln/go-aoi"
)

// Entity is the base struct of all entity types
type Entity struct {
	ID       common.EntityID
	TypeName string
	I        IEntity
	V        reflect.Value

	Position scene.Vector3
	Yaw      float32

	destroyed bool
	typeDesc  *EntityTypeDesc
	Space     *Space
	Neighbors EntitySet
	aoi       aoi.AOI
	client    *GameClient
	manager   *Manager
	rawTimers map[*timer.Timer]struct{}

	ctx       context.Context
	cancelCtx context.CancelFunc

	// Attrs is the replicated attribute map of the entity
	Attrs *MapAttr
}

// IEntity declares functions that are defined in Entity
//
// Custom entity types override these for their own behavior
type IEntity interface {
	// Entity Lifetime
	OnInit()       // Called when initializing entity struct, override to initialize entity custom fields
	OnAttrsReady() // Called when entity attributes are ready
	OnCreated()    // Called when entity is just created
	OnDestroy()    // Called when entity is destroying (just before destroy)
	// Space Operations
	OnEnterSpace()             // Called when entity enters the space
	OnLeaveSpace(space *Space) // Called when entity leaves the space
	// Client Notifications
	OnClientConnected()    // Called when client is connected to entity (become player)
	OnClientDisconnected() // Called when client disconnected

	DescribeEntityType(desc *EntityTypeDesc) // Define entity attributes in this function
}

func (e *Entity) String() string {
	return fmt.Sprintf("%s<%s>", e.TypeName, e.ID)
}

func (e *Entity) init(manager *Manager, typeName string, entityid common.EntityID, entityInstance reflect.Value) {
	e.ID = entityid
	e.V = entityInstance
	e.I = entityInstance.Interface().(IEntity)
	e.TypeName = typeName
	e.manager = manager

	e.typeDesc = manager.registeredTypes[typeName]

	e.rawTimers = map[*timer.Timer]struct{}{}
	e.ctx, e.cancelCtx = context.WithCancel(context.Background())

	attrs := NewMapAttr()
	attrs.owner = e
	e.Attrs = attrs

	e.Neighbors = EntitySet{}
	if e.typeDesc.useAOI {
		aoi.InitAOI(&e.aoi, aoi.Coord(e.typeDesc.aoiDistance), e, e)
	}

	e.I.OnInit()
}

// Manager returns the entity manager that owns this entity
func (e *Entity) Manager() *Manager {
	return e.manager
}

// Context returns the context bound to the entity lifetime.
// It is cancelled when the entity is destroyed, so goroutines working for
// this entity should select on its Done channel.
func (e *Entity) Context() context.Context {
	return e.ctx
}

// Destroy destroys the entity
func (e *Entity) Destroy() {
	if e.destroyed {
		return
	}
	hwlog.Debugf("%s.Destroy ...", e)
	e.destroyEntity()
}

func (e *Entity) destroyEntity() {
	if e.Space != nil {
		e.Space.leave(e)
	}

	e.I.OnDestroy()

	e.clearRawTimers()
	e.rawTimers = nil // prohibit further use
	e.cancelCtx()

	e.SetClient(nil) // always set client to nil before destroy

	e.destroyed = true
	e.manager.del(e)
}

// IsDestroyed returns if the entity is destroyed
func (e *Entity) IsDestroyed() bool {
	return e.destroyed
}

// Interests and Uninterest among entities

// OnEnterAOI is called when another entity enters the interest range
func (e *Entity) OnEnterAOI(otherAoi *aoi.AOI) {
	e.interest(otherAoi.Data.(*Entity))
}

// OnLeaveAOI is called when another entity leaves the interest range
func (e *Entity) OnLeaveAOI(otherAoi *aoi.AOI) {
	e.uninterest(otherAoi.Data.(*Entity))
}

func (e *Entity) interest(other *Entity) {
	e.Neighbors.Add(other)
	e.client.sendCreateEntity(other, false)
}

func (e *Entity) uninterest(other *Entity) {
	e.Neighbors.Del(other)
	e.client.sendDestroyEntity(other)
}

// IsNeighbor checks if other entity is a neighbor
func (e *Entity) IsNeighbor(other *Entity) bool {
	return e.Neighbors.Contains(other)
}

// DistanceTo calculates the distance between two entities
func (e *Entity) DistanceTo(other *Entity) scene.Coord {
	return e.Position.DistanceTo(other.Position)
}

// Timers

// AddCallback adds a one-shot callback on the main loop, bound to the entity lifetime
func (e *Entity) AddCallback(d time.Duration, cb func()) *timer.Timer {
	var t *timer.Timer
	t = timer.AddCallback(d, func() {
		delete(e.rawTimers, t)
		cb()
	})
	e.rawTimers[t] = struct{}{}
	return t
}

// AddTimer adds a repeating timer on the main loop, bound to the entity lifetime
func (e *Entity) AddTimer(d time.Duration, cb func()) *timer.Timer {
	t := timer.AddTimer(d, cb)
	e.rawTimers[t] = struct{}{}
	return t
}

// CancelTimer cancels a timer added by AddCallback or AddTimer
func (e *Entity) CancelTimer(t *timer.Timer) {
	delete(e.rawTimers, t)
	t.Cancel()
}

func (e *Entity) clearRawTimers() {
	for t := range e.rawTimers {
		t.Cancel()
	}
	e.rawTimers = map[*timer.Timer]struct{}{}
}

// Post a function which will be executed immediately but not in the current stack frames
func (e *Entity) Post(cb func()) {
	post.Post(cb)
}

// Call calls a method of another entity on this server
func (e *Entity) Call(id common.EntityID, method string, args ...interface{}) {
	other := e.manager.GetEntity(id)
	if other == nil {
		hwlog.Errorf("%s.Call: entity %s not found, method=%s", e, id, method)
		return
	}
	other.onCallFromLocal(method, args)
}

func (e *Entity) onCallFromLocal(methodName string, args []interface{}) {
	defer func() {
		err := recover() // recover from any error during RPC call
		if err != nil {
			hwlog.TraceError("%s.%s paniced: %s", e, methodName, err)
		}
	}()

	rpcDesc := e.typeDesc.rpcDescs[methodName]
	if rpcDesc == nil {
		// rpc not found
		hwlog.Panicf("%s.onCallFromLocal: Method %s is not a valid RPC, args=%v", e, methodName, args)
	}

	// rpc call from server
	if rpcDesc.Flags&rfServer == 0 {
		// can not call from server
		hwlog.Panicf("%s.onCallFromLocal: Method %s can not be called from Server: flags=%v", e, methodName, rpcDesc.Flags)
	}

	if rpcDesc.NumArgs < len(args) {
		hwlog.Panicf("%s.onCallFromLocal: Method %s receives %d arguments, but given %d", e, methodName, rpcDesc.NumArgs, len(args))
	}

	methodType := rpcDesc.MethodType
	in := make([]reflect.Value, rpcDesc.NumArgs+1)
	in[0] = e.V // first argument is the bind instance (self)

	for i, arg := range args {
		argType := methodType.In(i + 1)
		in[i+1] = typeconv.Convert(arg, argType)
	}

	for i := len(args); i < rpcDesc.NumArgs; i++ { // use zero value for missing arguments
		argType := methodType.In(i + 1)
		in[i+1] = reflect.Zero(argType)
	}

	rpcDesc.Func.Call(in)
}

func (e *Entity) onCallFromRemote(methodName string, args [][]byte, clientid common.ClientID) {
	defer func() {
		err := recover() // recover from any error during RPC call
		if err != nil {
			hwlog.TraceError("%s.%s paniced: %s", e, methodName, err)
		}
	}()

	rpcDesc := e.typeDesc.rpcDescs[methodName]
	if rpcDesc == nil {
		// rpc not found
		hwlog.Errorf("%s.onCallFromRemote: Method %s is not a valid RPC, args=%v", e, methodName, args)
		return
	}

	methodType := rpcDesc.MethodType
	if clientid == "" {
		// rpc call from server
		if rpcDesc.Flags&rfServer == 0 {
			// can not call from server
			hwlog.Panicf("%s.onCallFromRemote: Method %s can not be called from Server: flags=%v", e, methodName, rpcDesc.Flags)
		}
	} else {
		isFromOwnClient := clientid == e.getClientID()
		if rpcDesc.Flags&rfOwnClient == 0 && isFromOwnClient {
			hwlog.Panicf("%s.onCallFromRemote: Method %s can not be called from OwnClient: flags=%v", e, methodName, rpcDesc.Flags)
		} else if rpcDesc.Flags&rfOtherClient == 0 && !isFromOwnClient {
			hwlog.Panicf("%s.onCallFromRemote: Method %s can not be called from OtherClient: flags=%v, OwnClient=%s, OtherClient=%s", e, methodName, rpcDesc.Flags, e.getClientID(), clientid)
		}
	}

	if rpcDesc.NumArgs < len(args) {
		hwlog.Errorf("%s.onCallFromRemote: Method %s receives %d arguments, but given %d", e, methodName, rpcDesc.NumArgs, len(args))
		return
	}

	in := make([]reflect.Value, rpcDesc.NumArgs+1)
	in[0] = e.V // first argument is the bind instance (self)

	for i, arg := range args {
		argType := methodType.In(i + 1)
		argValPtr := reflect.New(argType)

		err := netutil.MSG_PACKER.UnpackMsg(arg, argValPtr.Interface())
		if err != nil {
			hwlog.Panicf("Convert argument %d failed: type=%s", i+1, argType.Name())
		}

		in[i+1] = reflect.Indirect(argValPtr)
	}

	for i := len(args); i < rpcDesc.NumArgs; i++ { // use zero value for missing arguments
		argType := methodType.In(i + 1)
		in[i+1] = reflect.Zero(argType)
	}

	rpcDesc.Func.Call(in)
}

// Default lifecycle callbacks, override in custom entity types

// OnInit is called when entity is initializing
func (e *Entity) OnInit() {
}

// OnAttrsReady is called when entity attributes are ready
func (e *Entity) OnAttrsReady() {
}

// OnCreated is called when entity is created
func (e *Entity) OnCreated() {
}

// OnEnterSpace is called when entity enters a space
func (e *Entity) OnEnterSpace() {
	hwlog.Debugf("%s.OnEnterSpace >>> %s", e, e.Space)
}

// OnLeaveSpace is called when entity leaves a space
func (e *Entity) OnLeaveSpace(space *Space) {
	hwlog.Debugf("%s.OnLeaveSpace <<< %s", e, space)
}

// OnDestroy is called when entity is destroying
func (e *Entity) OnDestroy() {
}

// OnClientConnected is called when client is connected to entity
func (e *Entity) OnClientConnected() {
}

// OnClientDisconnected is called when client disconnected
func (e *Entity) OnClientDisconnected() {
}

// Client related utilities

func (e *Entity) getClientData() map[string]interface{} {
	return e.Attrs.ToMapWithFilter(e.typeDesc.clientAttrs.Contains)
}

func (e *Entity) getAllClientData() map[string]interface{} {
	return e.Attrs.ToMapWithFilter(e.typeDesc.allClientAttrs.Contains)
}

// GetClient returns the client of entity
func (e *Entity) GetClient() *GameClient {
	return e.client
}

func (e *Entity) getClientID() common.ClientID {
	if e.client != nil {
		return e.client.clientid
	}
	return ""
}

// SetClient sets the client of entity
func (e *Entity) SetClient(client *GameClient) {
	oldClient := e.client
	if oldClient == client {
		return
	}

	e.client = client

	if oldClient != nil {
		// send destroy entity to client
		e.manager.onEntityLoseClient(oldClient.clientid)

		for neighbor := range e.Neighbors {
			oldClient.sendDestroyEntity(neighbor)
		}

		oldClient.sendDestroyEntity(e)
	}

	if client != nil {
		// send create entity to new client
		e.manager.onEntityGetClient(e.ID, client.clientid)

		client.sendCreateEntity(e, true)

		for neighbor := range e.Neighbors {
			client.sendCreateEntity(neighbor, false)
		}
	}

	if oldClient == nil && client != nil {
		// got new client
		e.I.OnClientConnected()
	} else if oldClient != nil && client == nil {
		e.I.OnClientDisconnected()
	}
}

// CallClient calls the client entity of this entity
func (e *Entity) CallClient(method string, args ...interface{}) {
	e.client.call(e.ID, method, args)
}

// CallAllClients calls the entity method on all clients seeing this entity
func (e *Entity) CallAllClients(method string, args ...interface{}) {
	e.client.call(e.ID, method, args)

	for neighbor := range e.Neighbors {
		neighbor.client.call(e.ID, method, args)
	}
}

// GiveClientTo gives client to other entity
func (e *Entity) GiveClientTo(other *Entity) {
	if e.client == nil {
		hwlog.Warnf("%s.GiveClientTo(%s): client is nil", e, other)
		return
	}

	client := e.client
	e.SetClient(nil)

	other.SetClient(client)
}

// ForAllClients visits all clients (own client and clients of neighbors)
func (e *Entity) ForAllClients(f func(client *GameClient)) {
	if e.client != nil {
		f(e.client)
	}

	for neighbor := range e.Neighbors {
		if neighbor.client != nil {
			f(neighbor.client)
		}
	}
}

func (e *Entity) notifyClientDisconnected() {
	// called when client disconnected
	if e.client == nil {
		return
	}
	e.manager.onEntityLoseClient(e.client.clientid)
	e.client = nil
	e.I.OnClientDisconnected()
}

func (e *Entity) sendAttrChangeToClients(key string, val interface{}) {
	if e.typeDesc.allClientAttrs.Contains(key) {
		e.ForAllClients(func(client *GameClient) {
			client.sendNotifyAttrChange(e.ID, key, val)
		})
	} else if e.typeDesc.clientAttrs.Contains(key) {
		if e.client != nil {
			e.client.sendNotifyAttrChange(e.ID, key, val)
		}
	}
}

func (e *Entity) sendAttrDelToClients(key string) {
	if e.typeDesc.allClientAttrs.Contains(key) {
		e.ForAllClients(func(client *GameClient) {
			client.sendNotifyAttrDel(e.ID, key)
		})
	} else if e.typeDesc.clientAttrs.Contains(key) {
		if e.client != nil {
			e.client.sendNotifyAttrDel(e.ID, key)
		}
	}
}

// WatchStrAttr watches a string attribute: if the attribute already has a
// non-empty value the callback fires immediately with it, otherwise the
// callback fires on the next change to a non-empty value. Returns a cancel
// function.
func (e *Entity) WatchStrAttr(key string, cb func(val string)) (cancel func()) {
	if cur := e.Attrs.GetStr(key); cur != "" {
		cb(cur)
		return func() {}
	}

	var cancelWatch func()
	cancelWatch = e.Attrs.OnChange(key, func(val interface{}) {
		s, ok := val.(string)
		if !ok || s == "" {
			return
		}
		cancelWatch()
		cb(s)
	})
	return cancelWatch
}
