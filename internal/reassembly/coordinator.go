package reassembly

import (
	"errors"
	"sort"

	"firestige.xyz/segrecv/internal/packet"
)

// DefaultExpectedFiles is the number of files the protocol sends per job.
const DefaultExpectedFiles = 3

// Coordinator owns every Group of a job and routes packets to them.
//
// It is not safe for concurrent use. A single receive loop applies packets in
// arrival order; callers that fan out decoding must funnel mutations back
// through one goroutine.
type Coordinator struct {
	expectedFiles int
	groups        map[uint8]*Group
}

// NewCoordinator creates a Coordinator that considers the job done once
// expectedFiles distinct file ids are complete. Values below 1 fall back to
// DefaultExpectedFiles.
func NewCoordinator(expectedFiles int) *Coordinator {
	if expectedFiles <= 0 {
		expectedFiles = DefaultExpectedFiles
	}
	return &Coordinator{
		expectedFiles: expectedFiles,
		groups:        make(map[uint8]*Group),
	}
}

// Route applies p to the group for its file id, creating the group on first
// sight.
func (c *Coordinator) Route(p packet.Packet) {
	g, exists := c.groups[p.ID()]
	if !exists {
		g = NewGroup(p.ID())
		c.groups[p.ID()] = g
	}
	g.Apply(p)
}

// RouteBytes decodes b and routes the result. Decode errors leave the
// Coordinator untouched.
func (c *Coordinator) RouteBytes(b []byte) (packet.Packet, error) {
	p, err := packet.Decode(b)
	if err != nil {
		return nil, err
	}
	c.Route(p)
	return p, nil
}

// IsJobComplete reports whether exactly the expected number of file ids has
// been seen and each of their groups is complete.
func (c *Coordinator) IsJobComplete() bool {
	if len(c.groups) != c.expectedFiles {
		return false
	}
	for _, g := range c.groups {
		if !g.IsComplete() {
			return false
		}
	}
	return true
}

// ForEachCompleteGroup calls fn for every complete group in ascending file id
// order. A failing callback does not stop the iteration; all errors are
// returned joined.
func (c *Coordinator) ForEachCompleteGroup(fn func(*Group) error) error {
	var errs []error
	for _, g := range c.Groups() {
		if !g.IsComplete() {
			continue
		}
		if err := fn(g); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Complete returns the number of complete groups.
func (c *Coordinator) Complete() int {
	n := 0
	for _, g := range c.groups {
		if g.IsComplete() {
			n++
		}
	}
	return n
}

// Groups returns every group in ascending file id order.
func (c *Coordinator) Groups() []*Group {
	groups := make([]*Group, 0, len(c.groups))
	for _, g := range c.groups {
		groups = append(groups, g)
	}
	sort.Slice(groups, func(i, j int) bool {
		return groups[i].fileID < groups[j].fileID
	})
	return groups
}

// Group returns the group for fileID.
func (c *Coordinator) Group(fileID uint8) (*Group, bool) {
	g, ok := c.groups[fileID]
	return g, ok
}

// Len returns the number of distinct file ids seen.
func (c *Coordinator) Len() int {
	return len(c.groups)
}

// ExpectedFiles returns the configured job size.
func (c *Coordinator) ExpectedFiles() int {
	return c.expectedFiles
}
