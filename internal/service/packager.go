package service

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/harmonium-ai/harmonium/internal/domain/part"
	"github.com/harmonium-ai/harmonium/internal/fault"
)

// Packager assembles heterogeneous result content into sealed artifacts and
// negotiates content types between producer and consumer.
type Packager struct{}

// NewPackager creates the content packager.
func NewPackager() *Packager {
	return &Packager{}
}

// Negotiate walks the consumer's accepted types in preference order and
// returns the first one the producer can supply. No overlap fails with
// CONTENT_NEGOTIATION_FAILED; callers degrade to text instead of dropping
// content.
func (p *Packager) Negotiate(available, accepted []string) (string, error) {
	supply := make(map[string]bool, len(available))
	for _, t := range available {
		supply[t] = true
	}
	for _, want := range accepted {
		if supply[want] {
			return want, nil
		}
	}
	return "", fault.New(fault.KindNegotiationFailed,
		fmt.Sprintf("producer offers %v, consumer accepts %v", available, accepted))
}

// Pack bundles parts into a sealed artifact shaped for a consumer accepting
// the given types. Parts the negotiated type cannot carry are replaced by a
// text description, never silently dropped. An empty accepted list means the
// consumer takes everything.
func (p *Packager) Pack(id, name string, parts []part.Part, accepted []string) part.Artifact {
	if id == "" {
		id = uuid.NewString()
	}
	artifact := part.NewArtifact(id, name)

	if len(accepted) == 0 {
		_ = artifact.Append(parts...)
		artifact.Seal()
		return artifact.Snapshot()
	}

	chosen, err := p.Negotiate(availableTypes(parts), accepted)
	for _, pt := range parts {
		// Text always passes: it is the universal fallback type.
		deliverable := err == nil && pt.MIMEType() == chosen
		if deliverable || pt.Kind == part.KindText {
			_ = artifact.Append(pt)
			continue
		}
		_ = artifact.Append(part.NewText(pt.Describe()))
	}
	artifact.Seal()
	return artifact.Snapshot()
}

// Repack reshapes an existing artifact for a consumer's accepted types.
func (p *Packager) Repack(a part.Artifact, accepted []string) part.Artifact {
	return p.Pack(a.ID, a.Name, a.Parts, accepted)
}

func availableTypes(parts []part.Part) []string {
	seen := make(map[string]bool)
	var types []string
	for _, pt := range parts {
		t := pt.MIMEType()
		if !seen[t] {
			seen[t] = true
			types = append(types, t)
		}
	}
	return types
}
