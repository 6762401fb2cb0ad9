package main

import (
	"context"
	"council/consensus"
	"council/paxos"
	"council/statemachine"
	"flag"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
)

func main() {
	members := flag.Int("members", 9, "number of council members (ids 1..n)")
	basePort := flag.Int("base-port", 5000, "member i listens on localhost:base-port+i")
	directoryPath := flag.String("directory", "", "YAML membership file; overrides -members and -base-port")
	profiles := flag.String("profiles", "1=IMMEDIATE,2=SLOW,3=OFFLINE", "per-member response profiles, id=PROFILE,...")
	defaultProfile := flag.String("default-profile", "DELAY_SMALL", "response profile of members not listed in -profiles")
	proposals := flag.String("propose", "8=Candidate_A,9=Candidate_B", "proposals, id=value,...")
	timeout := flag.Duration("timeout", 15*time.Second, "how long to wait for consensus")
	seed := flag.Int64("seed", 0, "random seed for response profiles (0 = time based)")
	memory := flag.Bool("memory", false, "use an in-process network instead of TCP")
	verbose := flag.Bool("v", false, "debug logging")
	flag.Parse()

	logger, err := newLogger(*verbose)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer logger.Sync()

	if err := run(logger, options{
		members:        *members,
		basePort:       *basePort,
		directoryPath:  *directoryPath,
		profiles:       *profiles,
		defaultProfile: *defaultProfile,
		proposals:      *proposals,
		timeout:        *timeout,
		seed:           *seed,
		memory:         *memory,
	}); err != nil {
		logger.Error("council failed", zap.Error(err))
		os.Exit(1)
	}
}

type options struct {
	members        int
	basePort       int
	directoryPath  string
	profiles       string
	defaultProfile string
	proposals      string
	timeout        time.Duration
	seed           int64
	memory         bool
}

func newLogger(verbose bool) (*zap.Logger, error) {
	cfg := zap.NewDevelopmentConfig()
	if !verbose {
		cfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	}
	return cfg.Build()
}

func run(logger *zap.Logger, opts options) error {
	var directory *consensus.Directory
	var err error
	if opts.directoryPath != "" {
		directory, err = consensus.LoadDirectory(opts.directoryPath)
	} else {
		directory, err = consensus.LocalDirectory(opts.members, opts.basePort)
	}
	if err != nil {
		return err
	}

	fallback, err := paxos.ParseResponseProfile(opts.defaultProfile)
	if err != nil {
		return err
	}
	profileByID, err := parseAssignments(opts.profiles)
	if err != nil {
		return fmt.Errorf("-profiles: %w", err)
	}
	proposalByID, err := parseAssignments(opts.proposals)
	if err != nil {
		return fmt.Errorf("-propose: %w", err)
	}

	cfg := paxos.Config{
		Logger:         logger,
		DefaultProfile: fallback,
		Seed:           opts.seed,
	}
	if opts.memory {
		cfg.Transport = consensus.NewMemoryNetwork()
	}
	council, err := paxos.NewCouncil(directory, cfg)
	if err != nil {
		return err
	}
	for id, name := range profileByID {
		profile, err := paxos.ParseResponseProfile(name)
		if err != nil {
			return err
		}
		member, err := council.Member(id)
		if err != nil {
			return err
		}
		member.SetResponseProfile(profile)
	}

	if err := council.Start(); err != nil {
		return err
	}
	defer council.Stop()

	sm := statemachine.SingleStateMachine{Consensus: council, Logger: logger}
	go sm.Run()

	for _, id := range sortedIDs(proposalByID) {
		id, value := id, proposalByID[id]
		member, err := council.Member(id)
		if err != nil {
			return err
		}
		go func() {
			if err := member.Propose(value); err != nil {
				logger.Warn("propose failed", zap.Int("member", id), zap.Error(err))
			}
		}()
	}

	ctx, cancel := context.WithTimeout(context.Background(), opts.timeout)
	defer cancel()
	reachable := make([]int, 0, directory.Size())
	for _, id := range directory.IDs() {
		member, _ := council.Member(id)
		if member.ResponseProfile() != paxos.Offline {
			reachable = append(reachable, id)
		}
	}
	if _, err := council.Await(ctx, reachable...); err != nil {
		logger.Warn("not every reachable member learned a value", zap.Error(err))
	}

	learned := council.Learned()
	for _, id := range directory.IDs() {
		if value, ok := learned[id]; ok {
			fmt.Printf("Member %d learned value: %s\n", id, value)
		} else {
			fmt.Printf("Member %d learned nothing\n", id)
		}
	}
	value, ok, err := council.Agreement()
	if err != nil {
		return err
	}
	if ok {
		fmt.Printf("Council agreed on %s\n", value)
	}
	return nil
}

// parseAssignments parses "1=a,2=b" into a map keyed by member id.
func parseAssignments(s string) (map[int]string, error) {
	assignments := make(map[int]string)
	for _, field := range strings.Split(s, ",") {
		field = strings.TrimSpace(field)
		if field == "" {
			continue
		}
		key, value, found := strings.Cut(field, "=")
		if !found || value == "" {
			return nil, fmt.Errorf("expected id=value, got %q", field)
		}
		id, err := strconv.Atoi(strings.TrimSpace(key))
		if err != nil {
			return nil, fmt.Errorf("bad member id %q: %w", key, err)
		}
		assignments[id] = strings.TrimSpace(value)
	}
	return assignments, nil
}

func sortedIDs(m map[int]string) []int {
	ids := make([]int, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}
