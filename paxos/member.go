package paxos

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"council/consensus"

	"go.uber.org/zap"
)

var (
	ErrEmptyValue = errors.New("empty proposal value")
	ErrNotStarted = errors.New("member not started")
	ErrInactive   = errors.New("member inactive")
)

// envelope is an outbound message produced while handling an inbound one.
// It is sent after the member's lock is released.
type envelope struct {
	to        int
	broadcast bool
	msg       Message
}

func unicast(to int, msg Message) envelope { return envelope{to: to, msg: msg} }
func broadcast(msg Message) envelope       { return envelope{broadcast: true, msg: msg} }

// Member is one council member: proposer, acceptor and learner at once.
// All protocol state is owned by the member and guarded by mu.
type Member struct {
	id          int
	majority    int
	directory   *consensus.Directory
	transport   consensus.Transport
	router      *Router
	numbers     consensus.NumberGenerator
	timing      Timing
	random      Random
	readTimeout time.Duration
	logger      *zap.Logger

	profile atomic.Uint32

	mu       sync.Mutex
	acceptor acceptorState
	proposer proposerState
	learned  bool
	// Never changes once learned is set.
	learnedValue string
	active       bool
	started      bool
	listener     net.Listener
	done         chan struct{}

	// Cancelled by Stop; aborts pending simulated delays and sends.
	ctx      context.Context
	cancel   context.CancelFunc
	stopOnce sync.Once
	loop     sync.WaitGroup
	handlers sync.WaitGroup

	onDecision func(consensus.Decision)
}

func NewMember(id int, directory *consensus.Directory, cfg Config) (*Member, error) {
	if !directory.Contains(id) {
		return nil, fmt.Errorf("member %d: %w", id, consensus.ErrUnknownMember)
	}
	cfg = cfg.withDefaults()
	logger := cfg.Logger.Named("member").With(zap.Int("id", id))

	var random Random
	switch {
	case cfg.Rand != nil:
		random = cfg.Rand(id)
	case cfg.Seed != 0:
		random = rand.New(rand.NewSource(cfg.Seed + int64(id)))
	}

	ctx, cancel := context.WithCancel(context.Background())
	m := &Member{
		id:          id,
		majority:    directory.Majority(),
		directory:   directory,
		transport:   cfg.Transport,
		router:      NewRouter(id, directory, cfg.Transport, cfg.SendTimeout, logger),
		numbers:     consensus.NewProposalNumbers(id, directory.MaxID()),
		timing:      cfg.Timing,
		random:      newLockedRandom(random),
		readTimeout: cfg.ReadTimeout,
		logger:      logger,
		acceptor:    newAcceptorState(),
		proposer:    newProposerState(),
		done:        make(chan struct{}),
		ctx:         ctx,
		cancel:      cancel,
	}
	m.SetResponseProfile(cfg.DefaultProfile)
	return m, nil
}

func (m *Member) ID() int {
	return m.id
}

func (m *Member) Addr() string {
	addr, _ := m.directory.Address(m.id)
	return addr
}

// Start listens on the member's directory address and serves inbound messages.
func (m *Member) Start() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ctx.Err() != nil {
		return ErrInactive
	}
	if m.started {
		return nil
	}
	listener, err := m.transport.Listen(m.Addr())
	if err != nil {
		return fmt.Errorf("member %d: %w", m.id, err)
	}
	m.listener = listener
	m.started = true
	m.active = true

	m.loop.Add(1)
	go m.acceptLoop(listener)
	m.logger.Debug("started", zap.String("addr", listener.Addr().String()))
	return nil
}

// Stop deactivates the member and releases its listener. Pending simulated
// delays and sends are abandoned, then in-flight handlers are awaited.
func (m *Member) Stop() {
	m.stopOnce.Do(func() {
		m.mu.Lock()
		m.active = false
		listener := m.listener
		m.mu.Unlock()

		m.cancel()
		if listener != nil {
			listener.Close()
		}
		m.loop.Wait()
		m.handlers.Wait()
		m.logger.Debug("stopped")
	})
}

// Propose starts a new round for value, replacing any round in progress.
func (m *Member) Propose(value string) error {
	if value == "" {
		return ErrEmptyValue
	}
	m.mu.Lock()
	if !m.started {
		m.mu.Unlock()
		return ErrNotStarted
	}
	if !m.active {
		m.mu.Unlock()
		return ErrInactive
	}
	n := m.startRound(value)
	m.mu.Unlock()

	m.logger.Info("proposing", zap.Int64("n", n), zap.String("value", value))
	m.router.Broadcast(m.ctx, NewPrepare(m.id, n))
	return nil
}

func (m *Member) SetResponseProfile(p ResponseProfile) {
	m.profile.Store(uint32(p))
}

func (m *Member) ResponseProfile() ResponseProfile {
	return ResponseProfile(m.profile.Load())
}

// LearnedValue returns the chosen value once this member has learned it.
func (m *Member) LearnedValue() (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.learnedValue, m.learned
}

func (m *Member) IsActive() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.active
}

func (m *Member) PromisedProposalNumber() int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.acceptor.promisedProposalNumber
}

// AcceptedProposal returns the highest accepted proposal, or NoProposal.
func (m *Member) AcceptedProposal() (int64, string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.acceptor.acceptedProposalNumber, m.acceptor.acceptedValue
}

// Done is closed when the member learns a value.
func (m *Member) Done() <-chan struct{} {
	return m.done
}

// Wait blocks until the member learns a value, is stopped, or ctx ends.
func (m *Member) Wait(ctx context.Context) (string, error) {
	select {
	case <-m.done:
	case <-m.ctx.Done():
	case <-ctx.Done():
		return "", ctx.Err()
	}
	if value, ok := m.LearnedValue(); ok {
		return value, nil
	}
	return "", ErrInactive
}

func (m *Member) acceptLoop(listener net.Listener) {
	defer m.loop.Done()
	for {
		conn, err := listener.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) || !m.IsActive() {
				return
			}
			m.logger.Warn("accept failed", zap.Error(err))
			continue
		}
		m.handlers.Add(1)
		go func() {
			defer m.handlers.Done()
			m.serve(conn)
		}()
	}
}

// serve reads one message from conn, closes it and hands the message on.
func (m *Member) serve(conn net.Conn) {
	conn.SetReadDeadline(time.Now().Add(m.readTimeout))
	msg, err := ReadMessage(conn)
	conn.Close()
	if err != nil {
		m.logger.Warn("dropped undecodable message", zap.Error(err))
		return
	}
	m.deliver(msg)
}

// deliver applies the response profile, outside the member lock, then
// processes the message.
func (m *Member) deliver(msg Message) {
	profile := m.ResponseProfile()
	drop, wait := profile.decide(m.random, m.timing)
	if drop {
		m.logger.Debug("profile dropped message", zap.Stringer("profile", profile), zap.Stringer("message", msg))
		return
	}
	if wait > 0 {
		timer := time.NewTimer(wait)
		select {
		case <-timer.C:
		case <-m.ctx.Done():
			timer.Stop()
			return
		}
	}
	m.process(msg)
}

func (m *Member) process(msg Message) {
	m.mu.Lock()
	if !m.active {
		m.mu.Unlock()
		return
	}
	m.logger.Debug("received message", zap.Stringer("message", msg))
	wasLearned := m.learned
	out, err := m.handle(msg)
	decided := !wasLearned && m.learned
	value := m.learnedValue
	m.mu.Unlock()

	if err != nil {
		m.logger.Error("rejected message", zap.Stringer("message", msg), zap.Error(err))
	}
	m.dispatch(out)
	if decided {
		m.deactivate()
		if m.onDecision != nil {
			m.onDecision(consensus.Decision{MemberID: m.id, Value: value})
		}
	}
}

// handle runs the protocol step for msg. Must be called with m.mu held.
func (m *Member) handle(msg Message) ([]envelope, error) {
	switch msg.Type {
	case Prepare:
		return m.onPrepare(msg), nil
	case Promise:
		return m.onPromise(msg), nil
	case AcceptRequest:
		return m.onAcceptRequest(msg), nil
	case Accepted:
		return m.onAccepted(msg), nil
	case Learn:
		return nil, m.onLearn(msg)
	default:
		return nil, fmt.Errorf("%w: %v", ErrMalformedMessage, msg.Type)
	}
}

func (m *Member) dispatch(out []envelope) {
	for _, e := range out {
		if e.broadcast {
			m.router.Broadcast(m.ctx, e.msg)
		} else {
			m.router.Unicast(m.ctx, e.to, e.msg)
		}
	}
}

// deactivate stops accepting new connections after the member has learned.
func (m *Member) deactivate() {
	m.mu.Lock()
	listener := m.listener
	m.mu.Unlock()
	if listener != nil {
		listener.Close()
	}
}
