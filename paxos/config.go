package paxos

import (
	"time"

	"council/consensus"

	"go.uber.org/zap"
)

type Config struct {
	Logger    *zap.Logger
	Transport consensus.Transport

	// Profile every member starts with. The zero value is IMMEDIATE.
	DefaultProfile ResponseProfile
	Timing         Timing

	// Bounds a single outbound connection, dial through write.
	SendTimeout time.Duration
	// Bounds reading one inbound message.
	ReadTimeout time.Duration

	// Seeds the per-member random sources when Rand is nil. Zero means time-based.
	Seed int64
	// Rand, if set, returns the random source for a member.
	Rand func(memberID int) Random
}

func (c Config) withDefaults() Config {
	if c.Logger == nil {
		c.Logger = zap.NewNop()
	}
	if c.Timing == (Timing{}) {
		c.Timing = DefaultTiming()
	}
	if c.SendTimeout <= 0 {
		c.SendTimeout = time.Second
	}
	if c.ReadTimeout <= 0 {
		c.ReadTimeout = 5 * time.Second
	}
	if c.Transport == nil {
		c.Transport = consensus.TCPTransport{DialTimeout: c.SendTimeout}
	}
	return c
}
