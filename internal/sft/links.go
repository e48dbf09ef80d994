package sft

import (
	"fmt"
	"strings"
)

// resolvePair resolves both ends of a link request.
func (s *SFTService) resolvePair(source, target string) (*Revision, *Revision, error) {
	src, err := s.ResolveUnique(source)
	if err != nil {
		return nil, nil, fmt.Errorf("resolving source: %w", err)
	}
	dst, err := s.ResolveUnique(target)
	if err != nil {
		return nil, nil, fmt.Errorf("resolving target: %w", err)
	}
	return src, dst, nil
}

// CreateEdge links source to target. Both identifiers must resolve to a
// single identity, and they must differ.
func (s *SFTService) CreateEdge(source, target, notes string) (*Edge, error) {
	src, dst, err := s.resolvePair(source, target)
	if err != nil {
		return nil, err
	}
	if src.ID == dst.ID {
		return nil, fmt.Errorf("linking %s: %w", src.ID, ErrSelfLink)
	}

	edge := &Edge{
		SourceID:  src.ID,
		TargetID:  dst.ID,
		Notes:     notes,
		Tags:      []string{},
		CreatedAt: s.clock.Now().UTC(),
	}
	if err := s.database.InsertEdge(edge); err != nil {
		return nil, fmt.Errorf("linking %s -> %s: %w", src.OriginalFilename, dst.OriginalFilename, err)
	}

	s.logger.Info("link created", "source", src.ID, "target", dst.ID)
	return edge, nil
}

// RemoveEdge deletes the link from source to target. It reports false, with
// no error, when there was no such link.
func (s *SFTService) RemoveEdge(source, target string) (bool, error) {
	src, dst, err := s.resolvePair(source, target)
	if err != nil {
		return false, err
	}
	removed, err := s.database.DeleteEdge(src.ID, dst.ID)
	if err != nil {
		return false, fmt.Errorf("unlinking %s -> %s: %w", src.ID, dst.ID, err)
	}
	if removed {
		s.logger.Info("link removed", "source", src.ID, "target", dst.ID)
	}
	return removed, nil
}

// MutateEdgeTags adds or removes tags on an existing link.
func (s *SFTService) MutateEdgeTags(source, target string, op TagOp, tags []string) (*Edge, error) {
	src, dst, err := s.resolvePair(source, target)
	if err != nil {
		return nil, err
	}
	if src.ID == dst.ID {
		return nil, fmt.Errorf("tagging link %s: %w", src.ID, ErrSelfLink)
	}
	edge, err := s.database.MutateEdgeTags(src.ID, dst.ID, op, tags)
	if err != nil {
		return nil, fmt.Errorf("tagging link %s -> %s: %w", src.ID, dst.ID, err)
	}
	s.logger.Info("link tags updated", "source", src.ID, "target", dst.ID, "op", op.String(), "tags", strings.Join(tags, ","))
	return edge, nil
}

// Outgoing lists links leaving the identity source resolves to.
func (s *SFTService) Outgoing(source string) ([]*LinkedRevision, error) {
	src, err := s.ResolveUnique(source)
	if err != nil {
		return nil, err
	}
	links, err := s.database.OutgoingEdges(src.ID)
	if err != nil {
		return nil, fmt.Errorf("listing links from %s: %w", src.ID, err)
	}
	return links, nil
}

// Incoming lists links arriving at the identity target resolves to.
func (s *SFTService) Incoming(target string) ([]*LinkedRevision, error) {
	dst, err := s.ResolveUnique(target)
	if err != nil {
		return nil, err
	}
	links, err := s.database.IncomingEdges(dst.ID)
	if err != nil {
		return nil, fmt.Errorf("listing links to %s: %w", dst.ID, err)
	}
	return links, nil
}

// AllLinks lists every link in the graph.
func (s *SFTService) AllLinks() ([]*LinkPair, error) {
	pairs, err := s.database.AllEdges()
	if err != nil {
		return nil, fmt.Errorf("listing links: %w", err)
	}
	return pairs, nil
}
