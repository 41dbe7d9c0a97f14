package csp

import (
	"net/url"
	"sync"

	cachekey "github.com/always-cache/fetchpipe/pkg/cache-key"
)

// Manager holds one policy per document URL. Reads run concurrently,
// writes are serialized.
type Manager struct {
	mu       sync.RWMutex
	policies map[string]*Policy
}

func NewManager() *Manager {
	return &Manager{policies: make(map[string]*Policy)}
}

func (m *Manager) SetPolicy(documentURL string, policy *Policy) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.policies[cachekey.GetKey(documentURL)] = policy
}

func (m *Manager) GetPolicy(documentURL string) (*Policy, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	policy, ok := m.policies[cachekey.GetKey(documentURL)]
	return policy, ok
}

func (m *Manager) RemovePolicy(documentURL string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.policies, cachekey.GetKey(documentURL))
}

func (m *Manager) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.policies = make(map[string]*Policy)
}

func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.policies)
}

// Documents returns the document keys that have a policy.
func (m *Manager) Documents() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	documents := make([]string, 0, len(m.policies))
	for document := range m.policies {
		documents = append(documents, document)
	}
	return documents
}

// IsAllowed reports whether the document may load the resource. Documents
// without a policy may load anything.
func (m *Manager) IsAllowed(documentURL, resourceURL string, t ResourceType) bool {
	return m.Check(documentURL, resourceURL, t) == nil
}

// Check returns the violation of the document's policy caused by loading
// the resource, or nil. Report-only violations are returned too, callers
// decide whether to enforce them.
func (m *Manager) Check(documentURL, resourceURL string, t ResourceType) *Violation {
	policy, ok := m.GetPolicy(documentURL)
	if !ok {
		return nil
	}
	origin, err := url.Parse(documentURL)
	if err != nil {
		origin = nil
	}
	target, err := url.Parse(resourceURL)
	if err != nil {
		target = nil
	}
	v := policy.Evaluate(target, t, origin)
	if v != nil {
		v.DocumentURI = documentURL
	}
	return v
}
