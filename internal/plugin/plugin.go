// Package plugin defines the hook bundle contract a Database dispatches
// at well-known points in a Collection's lifecycle (spec.md 6.2).
package plugin

import "github.com/knirvcorp/embeddb/internal/value"

// Plugin declares a subset of lifecycle hooks. Every method is optional;
// implementations embed Base to get no-op defaults for the rest.
type Plugin interface {
	Name() string

	OnInit(db any) error
	OnCollectionCreate(collectionName string) error
	OnDestroy() error

	OnBeforeInsert(collection string, doc value.Value) (value.Value, error)
	OnAfterInsert(collection string, doc value.Value) error

	OnBeforeQuery(collection string, query value.Value) (value.Value, error)
	OnAfterQuery(collection string, query value.Value, results []value.Value) error

	OnBeforeUpdate(collection string, query, update value.Value) (value.Value, value.Value, error)
	OnAfterUpdate(collection string, query, update value.Value, affected int) error

	OnBeforeDelete(collection string, query value.Value) (value.Value, error)
	OnAfterDelete(collection string, query value.Value, affected int) error
}

// Base implements Plugin with no-op defaults. Embed it and override only
// the hooks a concrete plugin cares about.
type Base struct {
	PluginName string
}

func (b Base) Name() string { return b.PluginName }

func (Base) OnInit(db any) error                        { return nil }
func (Base) OnCollectionCreate(collectionName string) error { return nil }
func (Base) OnDestroy() error                            { return nil }

func (Base) OnBeforeInsert(collection string, doc value.Value) (value.Value, error) {
	return doc, nil
}
func (Base) OnAfterInsert(collection string, doc value.Value) error { return nil }

func (Base) OnBeforeQuery(collection string, query value.Value) (value.Value, error) {
	return query, nil
}
func (Base) OnAfterQuery(collection string, query value.Value, results []value.Value) error {
	return nil
}

func (Base) OnBeforeUpdate(collection string, query, update value.Value) (value.Value, value.Value, error) {
	return query, update, nil
}
func (Base) OnAfterUpdate(collection string, query, update value.Value, affected int) error {
	return nil
}

func (Base) OnBeforeDelete(collection string, query value.Value) (value.Value, error) {
	return query, nil
}
func (Base) OnAfterDelete(collection string, query value.Value, affected int) error { return nil }

// Registry holds plugins in registration order and dispatches hooks to
// each in turn, synchronously, per spec.md 6.2. A plugin error aborts
// the remaining dispatch and propagates to the caller of the outer
// operation.
type Registry struct {
	plugins []Plugin
}

func NewRegistry() *Registry {
	return &Registry{}
}

func (r *Registry) Register(p Plugin) {
	r.plugins = append(r.plugins, p)
}

func (r *Registry) All() []Plugin {
	return r.plugins
}

func (r *Registry) DispatchInit(db any) error {
	for _, p := range r.plugins {
		if err := p.OnInit(db); err != nil {
			return err
		}
	}
	return nil
}

func (r *Registry) DispatchCollectionCreate(name string) error {
	for _, p := range r.plugins {
		if err := p.OnCollectionCreate(name); err != nil {
			return err
		}
	}
	return nil
}

func (r *Registry) DispatchDestroy() error {
	for _, p := range r.plugins {
		if err := p.OnDestroy(); err != nil {
			return err
		}
	}
	return nil
}

func (r *Registry) DispatchBeforeInsert(collection string, doc value.Value) (value.Value, error) {
	var err error
	for _, p := range r.plugins {
		doc, err = p.OnBeforeInsert(collection, doc)
		if err != nil {
			return doc, err
		}
	}
	return doc, nil
}

func (r *Registry) DispatchAfterInsert(collection string, doc value.Value) error {
	for _, p := range r.plugins {
		if err := p.OnAfterInsert(collection, doc); err != nil {
			return err
		}
	}
	return nil
}

func (r *Registry) DispatchBeforeQuery(collection string, query value.Value) (value.Value, error) {
	var err error
	for _, p := range r.plugins {
		query, err = p.OnBeforeQuery(collection, query)
		if err != nil {
			return query, err
		}
	}
	return query, nil
}

func (r *Registry) DispatchAfterQuery(collection string, query value.Value, results []value.Value) error {
	for _, p := range r.plugins {
		if err := p.OnAfterQuery(collection, query, results); err != nil {
			return err
		}
	}
	return nil
}

func (r *Registry) DispatchBeforeUpdate(collection string, query, update value.Value) (value.Value, value.Value, error) {
	var err error
	for _, p := range r.plugins {
		query, update, err = p.OnBeforeUpdate(collection, query, update)
		if err != nil {
			return query, update, err
		}
	}
	return query, update, nil
}

func (r *Registry) DispatchAfterUpdate(collection string, query, update value.Value, affected int) error {
	for _, p := range r.plugins {
		if err := p.OnAfterUpdate(collection, query, update, affected); err != nil {
			return err
		}
	}
	return nil
}

func (r *Registry) DispatchBeforeDelete(collection string, query value.Value) (value.Value, error) {
	var err error
	for _, p := range r.plugins {
		query, err = p.OnBeforeDelete(collection, query)
		if err != nil {
			return query, err
		}
	}
	return query, nil
}

func (r *Registry) DispatchAfterDelete(collection string, query value.Value, affected int) error {
	for _, p := range r.plugins {
		if err := p.OnAfterDelete(collection, query, affected); err != nil {
			return err
		}
	}
	return nil
}
