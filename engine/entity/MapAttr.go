package entity

import (
	"fmt"

	"github.com/holoverse/holoworld/engine/hwlog"
	"github.com/holoverse/holoworld/engine/hwutils"
)

// MapAttr is the replicated attribute map of an entity. Changes to replicated
// keys are fanned out to interested clients and to registered watchers.
type MapAttr struct {
	attrs    map[string]interface{}
	owner    *Entity
	watchers map[string][]*attrWatcher
}

type attrWatcher struct {
	cb        func(val interface{})
	cancelled bool
}

// NewMapAttr creates a new MapAttr
func NewMapAttr() *MapAttr {
	return &MapAttr{
		attrs:    make(map[string]interface{}),
		watchers: map[string][]*attrWatcher{},
	}
}

// Size returns the size of MapAttr
func (a *MapAttr) Size() int {
	return len(a.attrs)
}

func (a *MapAttr) String() string {
	return fmt.Sprintf("MapAttr%v", a.attrs)
}

// HasKey returns if the key exists in MapAttr
func (a *MapAttr) HasKey(key string) bool {
	_, ok := a.attrs[key]
	return ok
}

// Keys returns all keys of MapAttr as slice
func (a *MapAttr) Keys() []string {
	size := len(a.attrs)
	keys := make([]string, 0, size)
	for k := range a.attrs {
		keys = append(keys, k)
	}
	return keys
}

// ForEach calls the function for all items in MapAttr
func (a *MapAttr) ForEach(f func(key string, val interface{})) {
	for k, v := range a.attrs {
		f(k, v)
	}
}

func (a *MapAttr) set(key string, val interface{}) {
	a.attrs[key] = val
	if a.owner != nil {
		a.owner.sendAttrChangeToClients(key, val)
	}
	a.fireWatchers(key, val)
}

func (a *MapAttr) fireWatchers(key string, val interface{}) {
	watchers := a.watchers[key]
	for _, w := range watchers {
		if w.cancelled {
			continue
		}
		w := w
		hwutils.RunPanicless(func() {
			w.cb(val)
		})
	}
}

// OnChange subscribes to changes of the key, returning a cancel function.
// The callback does not fire for the current value; callers should check it
// before subscribing.
func (a *MapAttr) OnChange(key string, cb func(val interface{})) (cancel func()) {
	w := &attrWatcher{cb: cb}
	a.watchers[key] = append(a.watchers[key], w)
	return func() {
		w.cancelled = true
	}
}

// SetInt sets an int value of the key
func (a *MapAttr) SetInt(key string, v int64) {
	a.set(key, v)
}

// SetFloat sets a float value of the key
func (a *MapAttr) SetFloat(key string, v float64) {
	a.set(key, v)
}

// SetBool sets a bool value of the key
func (a *MapAttr) SetBool(key string, v bool) {
	a.set(key, v)
}

// SetStr sets a string value of the key
func (a *MapAttr) SetStr(key string, v string) {
	a.set(key, v)
}

// SetDefaultInt sets a default int value of the key
func (a *MapAttr) SetDefaultInt(key string, v int64) {
	if _, ok := a.attrs[key]; !ok {
		a.set(key, v)
	}
}

// SetDefaultFloat sets a default float value of the key
func (a *MapAttr) SetDefaultFloat(key string, v float64) {
	if _, ok := a.attrs[key]; !ok {
		a.set(key, v)
	}
}

// SetDefaultBool sets a default bool value of the key
func (a *MapAttr) SetDefaultBool(key string, v bool) {
	if _, ok := a.attrs[key]; !ok {
		a.set(key, v)
	}
}

// SetDefaultStr sets a default string value of the key
func (a *MapAttr) SetDefaultStr(key string, v string) {
	if _, ok := a.attrs[key]; !ok {
		a.set(key, v)
	}
}

func (a *MapAttr) get(key string) interface{} {
	return a.attrs[key]
}

// GetInt returns the int value of the key, or 0 if key is missing
func (a *MapAttr) GetInt(key string) int64 {
	val := a.get(key)
	if val == nil {
		return 0
	}
	v, ok := val.(int64)
	if !ok {
		hwlog.Panicf("MapAttr: attribute %s is not an int: %v", key, val)
	}
	return v
}

// GetFloat returns the float value of the key, or 0 if key is missing
func (a *MapAttr) GetFloat(key string) float64 {
	val := a.get(key)
	if val == nil {
		return 0
	}
	v, ok := val.(float64)
	if !ok {
		hwlog.Panicf("MapAttr: attribute %s is not a float: %v", key, val)
	}
	return v
}

// GetBool returns the bool value of the key, or false if key is missing
func (a *MapAttr) GetBool(key string) bool {
	val := a.get(key)
	if val == nil {
		return false
	}
	v, ok := val.(bool)
	if !ok {
		hwlog.Panicf("MapAttr: attribute %s is not a bool: %v", key, val)
	}
	return v
}

// GetStr returns the string value of the key, or "" if key is missing
func (a *MapAttr) GetStr(key string) string {
	val := a.get(key)
	if val == nil {
		return ""
	}
	v, ok := val.(string)
	if !ok {
		hwlog.Panicf("MapAttr: attribute %s is not a string: %v", key, val)
	}
	return v
}

// Del deletes the key from MapAttr
func (a *MapAttr) Del(key string) {
	if _, ok := a.attrs[key]; !ok {
		return
	}
	delete(a.attrs, key)
	if a.owner != nil {
		a.owner.sendAttrDelToClients(key)
	}
	a.fireWatchers(key, nil)
}

// ToMap converts MapAttr to native map
func (a *MapAttr) ToMap() map[string]interface{} {
	doc := map[string]interface{}{}
	for k, v := range a.attrs {
		doc[k] = v
	}
	return doc
}

// ToMapWithFilter converts filtered keys of MapAttr to native map
func (a *MapAttr) ToMapWithFilter(filter func(string) bool) map[string]interface{} {
	doc := map[string]interface{}{}
	for k, v := range a.attrs {
		if filter(k) {
			doc[k] = v
		}
	}
	return doc
}

// AssignMap assigns native map to MapAttr
func (a *MapAttr) AssignMap(doc map[string]interface{}) {
	for k, v := range doc {
		a.set(k, v)
	}
}
