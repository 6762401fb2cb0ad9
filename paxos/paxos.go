package paxos

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"council/consensus"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var ErrDisagreement = errors.New("members learned different values")

var _ consensus.ConsensusProvider = (*Council)(nil)

// Council runs one Member per directory entry over a shared transport.
type Council struct {
	directory *consensus.Directory
	members   map[int]*Member
	logger    *zap.Logger

	randLock sync.Mutex
	rand     *rand.Rand

	// Each member decides at most once, so the buffer never fills.
	decisionsLock sync.Mutex
	decisions     chan consensus.Decision
	closed        bool
}

func NewCouncil(directory *consensus.Directory, cfg Config) (*Council, error) {
	cfg = cfg.withDefaults()
	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	c := &Council{
		directory: directory,
		members:   make(map[int]*Member, directory.Size()),
		logger:    cfg.Logger.Named("council"),
		rand:      rand.New(rand.NewSource(seed)),
		decisions: make(chan consensus.Decision, directory.Size()),
	}
	for _, id := range directory.IDs() {
		member, err := NewMember(id, directory, cfg)
		if err != nil {
			return nil, err
		}
		member.onDecision = c.decide
		c.members[id] = member
	}
	return c, nil
}

func (c *Council) decide(d consensus.Decision) {
	c.decisionsLock.Lock()
	defer c.decisionsLock.Unlock()
	if !c.closed {
		c.decisions <- d
	}
}

// Start starts every member. If any member fails to start, all are stopped.
func (c *Council) Start() error {
	var g errgroup.Group
	for _, member := range c.members {
		g.Go(member.Start)
	}
	if err := g.Wait(); err != nil {
		c.Stop()
		return err
	}
	c.logger.Info("council started", zap.Int("members", len(c.members)), zap.Int("majority", c.directory.Majority()))
	return nil
}

// Stop stops every member and closes the Commit channel.
func (c *Council) Stop() {
	for _, member := range c.members {
		member.Stop()
	}
	c.decisionsLock.Lock()
	defer c.decisionsLock.Unlock()
	if !c.closed {
		c.closed = true
		close(c.decisions)
	}
}

func (c *Council) Directory() *consensus.Directory {
	return c.directory
}

func (c *Council) Member(id int) (*Member, error) {
	member, ok := c.members[id]
	if !ok {
		return nil, fmt.Errorf("member %d: %w", id, consensus.ErrUnknownMember)
	}
	return member, nil
}

func (c *Council) Members() []*Member {
	members := make([]*Member, 0, len(c.members))
	for _, id := range c.directory.IDs() {
		members = append(members, c.members[id])
	}
	return members
}

func (c *Council) ProposeFrom(id int, value string) error {
	member, err := c.Member(id)
	if err != nil {
		return err
	}
	return member.Propose(value)
}

// Propose starts a round for value on a randomly chosen active member.
func (c *Council) Propose(value string) error {
	var candidates []int
	for _, id := range c.directory.IDs() {
		if c.members[id].IsActive() {
			candidates = append(candidates, id)
		}
	}
	if len(candidates) == 0 {
		return ErrInactive
	}
	c.randLock.Lock()
	id := candidates[c.rand.Intn(len(candidates))]
	c.randLock.Unlock()
	return c.ProposeFrom(id, value)
}

// Commit streams one Decision per member that learns a value.
// It is closed by Stop.
func (c *Council) Commit() <-chan consensus.Decision {
	return c.decisions
}

// Await waits until every listed member (all members if none are listed)
// has learned a value, and returns what each learned.
func (c *Council) Await(ctx context.Context, ids ...int) (map[int]string, error) {
	if len(ids) == 0 {
		ids = c.directory.IDs()
	}
	members := make([]*Member, 0, len(ids))
	for _, id := range ids {
		member, err := c.Member(id)
		if err != nil {
			return nil, err
		}
		members = append(members, member)
	}

	var mu sync.Mutex
	learned := make(map[int]string, len(ids))
	g, ctx := errgroup.WithContext(ctx)
	for _, member := range members {
		member := member
		g.Go(func() error {
			value, err := member.Wait(ctx)
			if err != nil {
				return fmt.Errorf("member %d: %w", member.ID(), err)
			}
			mu.Lock()
			learned[member.ID()] = value
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return learned, err
	}
	return learned, nil
}

// Learned returns the value of every member that has learned one.
func (c *Council) Learned() map[int]string {
	learned := make(map[int]string)
	for id, member := range c.members {
		if value, ok := member.LearnedValue(); ok {
			learned[id] = value
		}
	}
	return learned
}

// Agreement returns the value shared by all members that have learned,
// or ErrDisagreement. ok is false when no member has learned yet.
func (c *Council) Agreement() (value string, ok bool, err error) {
	for _, id := range c.directory.IDs() {
		learned, has := c.members[id].LearnedValue()
		if !has {
			continue
		}
		if ok && learned != value {
			return "", false, fmt.Errorf("%w: %q and %q", ErrDisagreement, value, learned)
		}
		value, ok = learned, true
	}
	return value, ok, nil
}
