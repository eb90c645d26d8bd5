package part

import "errors"

// ErrArtifactSealed is returned for any mutation of a sealed artifact.
// Retries that outlive a sealed artifact must open a new one instead.
var ErrArtifactSealed = errors.New("artifact is sealed")

// Artifact is an ordered bundle of parts. It grows by appending while a task
// streams and is sealed at task completion; a sealed artifact never changes.
type Artifact struct {
	ID     string `json:"artifact_id"`
	Name   string `json:"name,omitempty"`
	Parts  []Part `json:"parts"`
	sealed bool
}

// NewArtifact creates an open artifact.
func NewArtifact(id, name string) *Artifact {
	return &Artifact{ID: id, Name: name}
}

// Append adds parts in order. Fails once the artifact is sealed.
func (a *Artifact) Append(parts ...Part) error {
	if a.sealed {
		return ErrArtifactSealed
	}
	a.Parts = append(a.Parts, parts...)
	return nil
}

// Seal closes the artifact. Sealing twice is a no-op.
func (a *Artifact) Seal() {
	a.sealed = true
}

// Sealed reports whether the artifact is closed to further parts.
func (a *Artifact) Sealed() bool {
	return a.sealed
}

// Snapshot returns a copy safe to hand to other goroutines; the parts slice
// is copied so later appends cannot alias it.
func (a *Artifact) Snapshot() Artifact {
	return Artifact{
		ID:     a.ID,
		Name:   a.Name,
		Parts:  append([]Part(nil), a.Parts...),
		sealed: a.sealed,
	}
}
