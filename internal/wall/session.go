package wall

import (
	"errors"
	"fmt"
	"math/rand/v2"

	"github.com/sakif/photo-wall/internal/model"
)

// State is where a Session is in its lifecycle.
type State int

const (
	Connecting State = iota
	Seeding
	Live
	Closed
)

func (s State) String() string {
	switch s {
	case Connecting:
		return "connecting"
	case Seeding:
		return "seeding"
	case Live:
		return "live"
	case Closed:
		return "closed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// ErrNotLive is returned by Offer on a session that has not finished seeding
// or has been closed.
var ErrNotLive = errors.New("wall: session is not live")

// Config sizes a session's grid.
type Config struct {
	CellWidth        int
	CellHeight       int
	CapacityFraction float64
}

// Viewport is a display's size in pixels.
type Viewport struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Instruction types sent to a display.
const (
	InstructionPlaced  = "photo.placed"
	InstructionEvicted = "photo.evicted"
)

// Instruction tells a display to show or remove one photo.
type Instruction struct {
	Type       string `json:"type"`
	ContentRef string `json:"contentRef"`
	Caption    string `json:"caption,omitempty"`
	Row        int    `json:"row"`
	Col        int    `json:"col"`
}

// Session is one connected display.
//
// Connecting -> Seeding -> Live -> Closed. Seed moves it through Seeding to
// Live; Close ends it from any state. A Session is owned by the goroutine
// serving its connection and is not safe for concurrent use.
type Session struct {
	ID string

	cfg   Config
	state State
	grid  *Grid
	intn  func(int) int
}

// NewSession creates a session in the Connecting state. A nil rng uses the
// process-wide math/rand/v2 source.
func NewSession(id string, cfg Config, rng *rand.Rand) *Session {
	intn := rand.IntN
	if rng != nil {
		intn = rng.IntN
	}
	return &Session{ID: id, cfg: cfg, state: Connecting, intn: intn}
}

// State returns the current lifecycle state.
func (s *Session) State() State { return s.state }

// Grid exposes the session's grid for inspection.
func (s *Session) Grid() *Grid { return s.grid }

func (s *Session) dimensions(v Viewport) Dimensions {
	return DimensionsFor(v.Width, v.Height, s.cfg.CellWidth, s.cfg.CellHeight)
}

// Seed sizes the grid from v and lays out the historical photos.
//
// photos is the full list, most recent first. The newest photos that fit
// under the capacity bound are placed, oldest of them first, each on a
// random free cell. Seeding stops early if the grid runs out of free cells.
func (s *Session) Seed(v Viewport, photos []model.Photo) ([]Instruction, error) {
	if s.state != Connecting {
		return nil, fmt.Errorf("wall: cannot seed a %s session", s.state)
	}
	s.state = Seeding
	s.grid = NewGrid(s.dimensions(v), s.cfg.CapacityFraction, s.intn)

	n := min(len(photos), s.grid.Capacity())
	var out []Instruction
	for i := n - 1; i >= 0; i-- {
		if s.grid.Free() == 0 {
			break
		}
		out = append(out, s.place(photos[i].ContentRef, photos[i].Caption)...)
	}

	s.state = Live
	return out, nil
}

// Offer places an incoming photo unless it is already on the grid.
func (s *Session) Offer(ref, caption string) ([]Instruction, error) {
	if s.state != Live {
		return nil, ErrNotLive
	}
	return s.place(ref, caption), nil
}

func (s *Session) place(ref, caption string) []Instruction {
	placed, evicted := s.grid.Place(ref, caption)
	if placed == nil {
		return nil
	}

	out := make([]Instruction, 0, 1+len(evicted))
	out = append(out, Instruction{
		Type:       InstructionPlaced,
		ContentRef: placed.ContentRef,
		Caption:    placed.Caption,
		Row:        placed.Cell.Row,
		Col:        placed.Cell.Col,
	})
	for _, e := range evicted {
		out = append(out, Instruction{
			Type:       InstructionEvicted,
			ContentRef: e.ContentRef,
			Row:        e.Cell.Row,
			Col:        e.Cell.Col,
		})
	}
	return out
}

// Resize recomputes the grid size for future placements. Photos already on
// the wall are not moved.
func (s *Session) Resize(v Viewport) {
	if s.grid == nil || s.state == Closed {
		return
	}
	s.grid.Resize(s.dimensions(v))
}

// Close discards the grid. Idempotent.
func (s *Session) Close() {
	s.state = Closed
	s.grid = nil
}
