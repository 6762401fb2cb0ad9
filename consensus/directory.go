package consensus

import (
	"errors"
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"
)

var ErrUnknownMember = errors.New("unknown member")

// Directory maps member ids to network addresses.
// It is immutable after construction, so members share it without locking.
type Directory struct {
	addresses map[int]string
	ids       []int
}

func NewDirectory(addresses map[int]string) (*Directory, error) {
	if len(addresses) == 0 {
		return nil, errors.New("directory: no members")
	}
	d := &Directory{
		addresses: make(map[int]string, len(addresses)),
		ids:       make([]int, 0, len(addresses)),
	}
	for id, addr := range addresses {
		if id < 0 {
			return nil, fmt.Errorf("directory: negative member id %d", id)
		}
		if addr == "" {
			return nil, fmt.Errorf("directory: member %d has no address", id)
		}
		d.addresses[id] = addr
		d.ids = append(d.ids, id)
	}
	sort.Ints(d.ids)
	return d, nil
}

// LocalDirectory builds members 1..n listening on localhost:basePort+id.
func LocalDirectory(n int, basePort int) (*Directory, error) {
	addresses := make(map[int]string, n)
	for id := 1; id <= n; id++ {
		addresses[id] = fmt.Sprintf("localhost:%d", basePort+id)
	}
	return NewDirectory(addresses)
}

type directoryFile struct {
	Members map[int]string `yaml:"members"`
}

// LoadDirectory reads a YAML membership file of the form
//
//	members:
//	  1: localhost:5001
//	  2: localhost:5002
func LoadDirectory(path string) (*Directory, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read directory: %w", err)
	}
	var file directoryFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("parse directory %s: %w", path, err)
	}
	return NewDirectory(file.Members)
}

func (d *Directory) Size() int {
	return len(d.ids)
}

// IDs returns all member ids in ascending order.
func (d *Directory) IDs() []int {
	ids := make([]int, len(d.ids))
	copy(ids, d.ids)
	return ids
}

func (d *Directory) Address(id int) (string, bool) {
	addr, ok := d.addresses[id]
	return addr, ok
}

// Peers returns every member id except self.
func (d *Directory) Peers(self int) []int {
	peers := make([]int, 0, len(d.ids))
	for _, id := range d.ids {
		if id != self {
			peers = append(peers, id)
		}
	}
	return peers
}

func (d *Directory) Contains(id int) bool {
	_, ok := d.addresses[id]
	return ok
}

// Majority is floor(N/2) + 1.
func (d *Directory) Majority() int {
	return len(d.ids)/2 + 1
}

// MaxID is the largest member id, which sizes the id band of proposal numbers.
func (d *Directory) MaxID() int {
	return d.ids[len(d.ids)-1]
}
