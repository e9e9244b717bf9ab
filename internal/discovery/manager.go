package discovery

import (
	"fmt"
	"sort"
	"sync"

	"github.com/gopcua/opcua/ua"

	"github.com/conduit-lang/uadiscover/internal/factory"
)

// Manager owns the data type factories of one client session: a standard
// factory with the built-in types and one factory per custom namespace that
// falls back to it. It is safe for concurrent use.
type Manager struct {
	standard *factory.DataTypeFactory

	mu         sync.RWMutex
	namespaces []string
	factories  map[uint16]*factory.DataTypeFactory
}

// NewManager creates a manager whose namespace 0 factory is a fresh
// standard factory
func NewManager() *Manager {
	std := factory.NewStandard()
	return &Manager{
		standard:  std,
		factories: map[uint16]*factory.DataTypeFactory{0: std},
	}
}

// Standard returns the factory holding the built-in types
func (m *Manager) Standard() *factory.DataTypeFactory {
	return m.standard
}

// SetNamespaceArray records the server namespace table
func (m *Manager) SetNamespaceArray(uris []string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.namespaces = append([]string(nil), uris...)
}

// NamespaceArray returns the server namespace table
func (m *Manager) NamespaceArray() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]string(nil), m.namespaces...)
}

// NamespaceURI returns the URI of namespace ns, or "" when unknown
func (m *Manager) NamespaceURI(ns uint16) string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if int(ns) < len(m.namespaces) {
		return m.namespaces[ns]
	}
	return ""
}

// HasFactory reports whether namespace ns has a factory
func (m *Manager) HasFactory(ns uint16) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.factories[ns]
	return ok
}

// RegisterFactory installs f as the factory of namespace ns
func (m *Manager) RegisterFactory(ns uint16, f *factory.DataTypeFactory) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.factories[ns] = f
}

// EnsureFactory returns the factory of namespace ns, creating one backed by
// the standard factory when the namespace has none
func (m *Manager) EnsureFactory(ns uint16) *factory.DataTypeFactory {
	m.mu.Lock()
	defer m.mu.Unlock()
	if f, ok := m.factories[ns]; ok {
		return f
	}
	f := factory.New(m.standard)
	m.factories[ns] = f
	return f
}

// Factory returns the factory of namespace ns
func (m *Manager) Factory(ns uint16) (*factory.DataTypeFactory, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	f, ok := m.factories[ns]
	if !ok {
		return nil, fmt.Errorf("namespace %d: %w", ns, ErrNoFactory)
	}
	return f, nil
}

// Namespaces returns the indexes that have a factory, ascending
func (m *Manager) Namespaces() []uint16 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]uint16, 0, len(m.factories))
	for ns := range m.factories {
		out = append(out, ns)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// FindByDataTypeID looks a data type node up in the factory of its namespace
func (m *Manager) FindByDataTypeID(nid *ua.NodeID) (factory.TypeDefinition, bool) {
	if nid == nil {
		return nil, false
	}
	f, err := m.Factory(nid.Namespace())
	if err != nil {
		return nil, false
	}
	return f.FindByDataTypeID(nid)
}

// FindByEncodingID returns the structure owning an encoding node
func (m *Manager) FindByEncodingID(nid *ua.NodeID) (*factory.StructuredTypeSchema, bool) {
	if nid == nil {
		return nil, false
	}
	f, err := m.Factory(nid.Namespace())
	if err != nil {
		return nil, false
	}
	return f.FindByEncodingID(nid)
}
