// Package source defines source identities and the error taxonomy shared by
// connectors, the sync scheduler and the action dispatcher.
package source

import "fmt"

// Kind discriminates the two backends.
type Kind string

const (
	KindKubernetes Kind = "kubernetes"
	KindDocker     Kind = "docker"
)

// Valid reports whether k is one of the two known kinds.
func (k Kind) Valid() bool {
	return k == KindKubernetes || k == KindDocker
}

// Ref identifies one registered source: a cluster or a Docker host.
type Ref struct {
	Kind Kind   `json:"kind"`
	ID   string `json:"id"`
}

// Key returns the map key form, e.g. "kubernetes/6f1c...".
func (r Ref) Key() string {
	return string(r.Kind) + "/" + r.ID
}

func (r Ref) String() string {
	return fmt.Sprintf("%s/%s", r.Kind, r.ID)
}
