package filter

import (
	"errors"
	"fmt"
	"sync"

	"github.com/go-playground/validator/v10"

	"listing_harvester/identity"
	"listing_harvester/models"
)

var (
	ErrNoLocation = errors.New("no address or city/state")
	ErrNoAddress  = errors.New("no street address")
	ErrWeak       = errors.New("neither price nor link")
	ErrInactive   = errors.New("not active")
	ErrThreshold  = errors.New("below search thresholds")
	ErrDuplicate  = errors.New("duplicate listing")
)

// Gate enforces the candidate floor and validates finished listings.
type Gate struct {
	validate *validator.Validate
}

func NewGate() *Gate {
	return &Gate{validate: validator.New(validator.WithRequiredStructEnabled())}
}

// Floor is the minimum for a candidate to be worth keeping at all.
func (g *Gate) Floor(c *models.RawCandidate) error {
	if !c.HasLocation() {
		return ErrNoLocation
	}
	return nil
}

// Admit is the emission rule: a street address and a price or link.
func (g *Gate) Admit(c *models.RawCandidate) error {
	if err := g.Floor(c); err != nil {
		return err
	}
	if c.Address == "" {
		return ErrNoAddress
	}
	if c.Price == nil && c.Href == "" {
		return ErrWeak
	}
	return nil
}

// Check validates a built listing's field constraints.
func (g *Gate) Check(l *models.Listing) error {
	if err := g.validate.Struct(l); err != nil {
		return fmt.Errorf("invalid listing %q: %w", l.Address, err)
	}
	return nil
}

// Deduper remembers identity keys for one target; the first record for a
// key wins.
type Deduper struct {
	mu   sync.Mutex
	seen map[identity.Key]struct{}
}

func NewDeduper() *Deduper {
	return &Deduper{seen: make(map[identity.Key]struct{})}
}

// First records l's key and reports whether it was new.
func (d *Deduper) First(l *models.Listing) bool {
	key := identity.NewKey(l.Address, l.Price)
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.seen[key]; ok {
		return false
	}
	d.seen[key] = struct{}{}
	return true
}

func (d *Deduper) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.seen)
}
