package entity

import (
	"reflect"
	"strings"

	"github.com/holoverse/holoworld/engine/common"
	"github.com/holoverse/holoworld/engine/hwlog"
	"github.com/holoverse/holoworld/engine/hwutils"
	"github.com/holoverse/holoworld/engine/scene"
)

// EntityTypeDesc is the entity type description for registering entity types
type EntityTypeDesc struct {
	useAOI         bool
	aoiDistance    scene.Coord
	entityType     reflect.Type
	rpcDescs       rpcDescMap
	allClientAttrs common.StringSet
	clientAttrs    common.StringSet
}

var _VALID_ATTR_DEFS = common.StringSet{} // all valid attribute defs

func init() {
	_VALID_ATTR_DEFS.Add(strings.ToLower("Client"))
	_VALID_ATTR_DEFS.Add(strings.ToLower("AllClients"))
}

// SetUseAOI enables interest management for entities of this type
func (desc *EntityTypeDesc) SetUseAOI(useAOI bool, aoiDistance scene.Coord) *EntityTypeDesc {
	if aoiDistance < 0 {
		hwlog.Panicf("aoi distance < 0")
	}

	desc.useAOI = useAOI
	desc.aoiDistance = aoiDistance
	return desc
}

// DefineAttr defines an attribute of the entity type with properties
func (desc *EntityTypeDesc) DefineAttr(attr string, defs ...string) *EntityTypeDesc {
	hwlog.Infof("        Attr %s = %v", attr, defs)
	isAllClient, isClient := false, false

	for _, def := range defs {
		def := strings.ToLower(def)

		if !_VALID_ATTR_DEFS.Contains(def) {
			// not a valid def
			hwlog.Panicf("attribute %s: invalid property: %s; all valid properties: %v", attr, def, _VALID_ATTR_DEFS.ToList())
		}

		if def == "allclients" {
			isAllClient = true
			isClient = true
		} else if def == "client" {
			isClient = true
		}
	}

	if isAllClient {
		desc.allClientAttrs.Add(attr)
	}
	if isClient {
		desc.clientAttrs.Add(attr)
	}
	return desc
}

// Manager owns every entity on this server and dispatches client calls to
// them. It replaces nothing at package level: every collaborator receives the
// manager it should use.
type Manager struct {
	registeredTypes map[string]*EntityTypeDesc
	entities        EntityMap
	entitiesByType  map[string]EntityMap
	clientsToOwners map[common.ClientID]common.EntityID
	caller          ClientCaller
}

// NewManager creates an entity manager delivering client traffic through caller
func NewManager(caller ClientCaller) *Manager {
	return &Manager{
		registeredTypes: map[string]*EntityTypeDesc{},
		entities:        EntityMap{},
		entitiesByType:  map[string]EntityMap{},
		clientsToOwners: map[common.ClientID]common.EntityID{},
		caller:          caller,
	}
}

// RegisterEntity registers custom entity type and define entity behaviors
func (em *Manager) RegisterEntity(typeName string, entity IEntity) *EntityTypeDesc {
	if _, ok := em.registeredTypes[typeName]; ok {
		hwlog.Fatalf("RegisterEntity: Entity type %s already registered", typeName)
	}

	entityVal := reflect.ValueOf(entity)
	entityType := entityVal.Type()

	if entityType.Kind() == reflect.Ptr {
		entityType = entityType.Elem()
	}

	rpcDescs := rpcDescMap{}
	entityTypeDesc := &EntityTypeDesc{
		entityType:     entityType,
		rpcDescs:       rpcDescs,
		clientAttrs:    common.StringSet{},
		allClientAttrs: common.StringSet{},
	}
	em.registeredTypes[typeName] = entityTypeDesc

	entityPtrType := reflect.PtrTo(entityType)
	numMethods := entityPtrType.NumMethod()
	for i := 0; i < numMethods; i++ {
		method := entityPtrType.Method(i)
		rpcDescs.visit(method)
	}

	hwlog.Infof(">>> RegisterEntity %s => %s <<<", typeName, entityType.Name())
	// define entity attrs
	entity.DescribeEntityType(entityTypeDesc)
	return entityTypeDesc
}

// GetEntityTypeDesc returns the registered entity type description
func (em *Manager) GetEntityTypeDesc(typeName string) *EntityTypeDesc {
	return em.registeredTypes[typeName]
}

// CreateEntity creates a new entity of the type and puts it in the space
func (em *Manager) CreateEntity(typeName string, space *Space, pos scene.Vector3) *Entity {
	return em.createEntity(typeName, space, pos, "", nil)
}

// CreateEntityWithData creates a new entity and assigns the attribute data
func (em *Manager) CreateEntityWithData(typeName string, space *Space, pos scene.Vector3, data map[string]interface{}) *Entity {
	return em.createEntity(typeName, space, pos, "", data)
}

func (em *Manager) createEntity(typeName string, space *Space, pos scene.Vector3, entityID common.EntityID, data map[string]interface{}) *Entity {
	entityTypeDesc, ok := em.registeredTypes[typeName]
	if !ok {
		hwlog.Panicf("unknown entity type: %s", typeName)
	}

	if entityID == "" {
		entityID = common.GenEntityID()
	}

	entityInstance := reflect.New(entityTypeDesc.entityType)
	entity := reflect.Indirect(entityInstance).FieldByName("Entity").Addr().Interface().(*Entity)
	entity.init(em, typeName, entityID, entityInstance)

	em.put(entity)
	if data != nil {
		entity.Attrs.AssignMap(data)
	}

	hwlog.Debugf("Entity %s created.", entity)
	hwutils.RunPanicless(func() {
		entity.I.OnAttrsReady()
		entity.I.OnCreated()
	})

	if space != nil {
		space.enter(entity, pos)
	}

	return entity
}

// GetEntity returns the entity of the ID, or nil
func (em *Manager) GetEntity(id common.EntityID) *Entity {
	return em.entities.Get(id)
}

// TraverseByType visits all entities of the type
func (em *Manager) TraverseByType(etype string, cb func(e *Entity)) {
	entities := em.entitiesByType[etype]
	for _, e := range entities {
		cb(e)
	}
}

func (em *Manager) put(entity *Entity) {
	em.entities.Add(entity)
	etype := entity.TypeName
	eid := entity.ID
	if entities, ok := em.entitiesByType[etype]; ok {
		entities.Add(entity)
	} else {
		em.entitiesByType[etype] = EntityMap{eid: entity}
	}
}

func (em *Manager) del(e *Entity) {
	eid := e.ID
	em.entities.Del(eid)
	if entities, ok := em.entitiesByType[e.TypeName]; ok {
		entities.Del(eid)
	}
}

func (em *Manager) onEntityGetClient(entityID common.EntityID, clientid common.ClientID) {
	em.clientsToOwners[clientid] = entityID
}

func (em *Manager) onEntityLoseClient(clientid common.ClientID) {
	delete(em.clientsToOwners, clientid)
}

// GetEntityByClient returns the entity owning the client connection
func (em *Manager) GetEntityByClient(clientid common.ClientID) *Entity {
	eid, ok := em.clientsToOwners[clientid]
	if !ok {
		return nil
	}
	return em.entities.Get(eid)
}

// OnClientDisconnected handles the disconnect of a client connection
func (em *Manager) OnClientDisconnected(clientid common.ClientID) {
	entity := em.GetEntityByClient(clientid)
	if entity == nil {
		return
	}
	entity.notifyClientDisconnected()
}

// OnCallEntityMethodFromClient dispatches a client-initiated entity call
func (em *Manager) OnCallEntityMethodFromClient(entityID common.EntityID, method string, args [][]byte, clientid common.ClientID) {
	entity := em.GetEntity(entityID)
	if entity == nil {
		hwlog.Warnf("OnCallEntityMethodFromClient: entity %s not found, method=%s", entityID, method)
		return
	}

	entity.onCallFromRemote(method, args, clientid)
}
