// Package testutil provides deterministic board fixtures and assertions for
// tests across boardstate.
package testutil

import (
	"fmt"
	"math/rand"
	"time"

	"github.com/vanderheijden86/boardstate/pkg/command"
	"github.com/vanderheijden86/boardstate/pkg/model"
)

// GeneratorConfig controls fixture generation.
type GeneratorConfig struct {
	Seed             int64     // Random seed for determinism (0 = use current time)
	BaseTime         time.Time // Base time for timestamps (default: fixed time)
	Boards           int
	ColumnsPerBoard  int
	CardsPerColumn   int
	SprintsPerBoard  int
	ArchivedPerBoard int
}

// DefaultConfig returns a config suitable for most tests.
func DefaultConfig() GeneratorConfig {
	return GeneratorConfig{
		Seed:             42,
		BaseTime:         time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC),
		Boards:           1,
		ColumnsPerBoard:  3,
		CardsPerColumn:   4,
		SprintsPerBoard:  1,
		ArchivedPerBoard: 1,
	}
}

// Generator creates board fixtures.
type Generator struct {
	cfg GeneratorConfig
	rng *rand.Rand
}

// New creates a Generator with the given config.
func New(cfg GeneratorConfig) *Generator {
	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	if cfg.BaseTime.IsZero() {
		cfg.BaseTime = time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	}
	return &Generator{cfg: cfg, rng: rand.New(rand.NewSource(seed))}
}

// NewDefault creates a Generator with DefaultConfig.
func NewDefault() *Generator {
	return New(DefaultConfig())
}

var (
	priorities = []model.CardPriority{model.PriorityLow, model.PriorityMedium, model.PriorityHigh, model.PriorityCritical}
	statuses   = []model.CardStatus{model.StatusTodo, model.StatusInProgress, model.StatusDone}
)

// Snapshot builds a consistent snapshot with ids like "b0", "b0-c1",
// "b0-c1-k2" and "b0-s0".
func (g *Generator) Snapshot() model.Snapshot {
	s := model.Empty()
	t := g.cfg.BaseTime
	for b := 0; b < g.cfg.Boards; b++ {
		bid := fmt.Sprintf("b%d", b)
		board := model.Board{
			ID:             bid,
			Name:           fmt.Sprintf("Board %d", b),
			CardPrefix:     fmt.Sprintf("B%d", b),
			NextCardNumber: 1,
			CreatedAt:      t,
			UpdatedAt:      t,
		}
		for sp := 0; sp < g.cfg.SprintsPerBoard; sp++ {
			start := t.Add(time.Duration(sp) * 14 * 24 * time.Hour)
			end := start.Add(14 * 24 * time.Hour)
			s.Sprints = append(s.Sprints, model.Sprint{
				ID:        fmt.Sprintf("%s-s%d", bid, sp),
				BoardID:   bid,
				Name:      fmt.Sprintf("Sprint %d", sp+1),
				Status:    model.SprintPlanning,
				StartDate: &start,
				EndDate:   &end,
				CreatedAt: t,
				UpdatedAt: t,
			})
		}
		for c := 0; c < g.cfg.ColumnsPerBoard; c++ {
			cid := fmt.Sprintf("%s-c%d", bid, c)
			s.Columns = append(s.Columns, model.Column{ID: cid, BoardID: bid, Name: fmt.Sprintf("Column %d", c), Position: c})
			for k := 0; k < g.cfg.CardsPerColumn; k++ {
				card := g.card(fmt.Sprintf("%s-k%d", cid, k), cid, k, board.NextCardNumber, t)
				if g.cfg.SprintsPerBoard > 0 && g.rng.Intn(2) == 0 {
					card.SprintID = fmt.Sprintf("%s-s%d", bid, g.rng.Intn(g.cfg.SprintsPerBoard))
				}
				board.NextCardNumber++
				s.Cards = append(s.Cards, card)
			}
		}
		if g.cfg.ColumnsPerBoard > 0 {
			for a := 0; a < g.cfg.ArchivedPerBoard; a++ {
				cid := fmt.Sprintf("%s-c0", bid)
				card := g.card(fmt.Sprintf("%s-a%d", bid, a), cid, a, board.NextCardNumber, t)
				board.NextCardNumber++
				s.ArchivedCards = append(s.ArchivedCards, model.ArchivedCard{
					Card:             card,
					ArchivedAt:       t.Add(time.Hour),
					OriginalColumnID: cid,
					OriginalPosition: g.cfg.CardsPerColumn + a,
				})
			}
		}
		s.Boards = append(s.Boards, board)
	}
	return s
}

func (g *Generator) card(id, columnID string, pos, number int, t time.Time) model.Card {
	card := model.Card{
		ID:         id,
		ColumnID:   columnID,
		Title:      fmt.Sprintf("Card %d", number),
		Priority:   priorities[g.rng.Intn(len(priorities))],
		Status:     statuses[g.rng.Intn(len(statuses))],
		Position:   pos,
		CardNumber: number,
		CreatedAt:  t,
		UpdatedAt:  t,
	}
	if g.rng.Intn(3) == 0 {
		p := 1 + g.rng.Intn(8)
		card.Points = &p
	}
	if card.Status == model.StatusDone {
		done := t.Add(time.Duration(g.rng.Intn(72)) * time.Hour)
		card.CompletedAt = &done
	}
	return card
}

// Commands returns n commands that apply cleanly, in order, to s. s is not
// modified.
func (g *Generator) Commands(s model.Snapshot, n int) []command.Command {
	work := s.Clone()
	ex := command.NewExecutor(nil)
	var out []command.Command
	for attempts := 0; len(out) < n && attempts < n*20; attempts++ {
		cmd := g.nextCommand(&work, len(out))
		if cmd == nil {
			break
		}
		if _, err := ex.Execute(&work, cmd); err != nil {
			continue
		}
		out = append(out, cmd)
	}
	return out
}

func (g *Generator) nextCommand(s *model.Snapshot, i int) command.Command {
	if len(s.Boards) == 0 {
		return command.CreateBoard{ID: fmt.Sprintf("gen-b%d", i), Name: "Generated"}
	}
	board := s.Boards[g.rng.Intn(len(s.Boards))]
	var cols []string
	for _, c := range s.Columns {
		if c.BoardID == board.ID {
			cols = append(cols, c.ID)
		}
	}
	if len(cols) == 0 {
		return command.CreateColumn{ID: fmt.Sprintf("gen-c%d", i), BoardID: board.ID, Name: "Generated", Position: -1}
	}
	col := cols[g.rng.Intn(len(cols))]
	var cards []string
	for _, k := range s.Cards {
		for _, c := range cols {
			if k.ColumnID == c {
				cards = append(cards, k.ID)
			}
		}
	}
	if len(cards) == 0 || g.rng.Intn(3) == 0 {
		return command.CreateCard{
			ID:       fmt.Sprintf("gen-k%d", i),
			ColumnID: col,
			Title:    fmt.Sprintf("Generated %d", i),
			Priority: priorities[g.rng.Intn(len(priorities))],
			Position: g.rng.Intn(4) - 1,
		}
	}
	card := cards[g.rng.Intn(len(cards))]
	switch g.rng.Intn(4) {
	case 0:
		return command.MoveCard{CardID: card, ColumnID: col, Position: g.rng.Intn(3)}
	case 1:
		title := fmt.Sprintf("Renamed %d", i)
		return command.UpdateCard{CardID: card, Title: &title}
	case 2:
		return command.ArchiveCard{CardID: card}
	default:
		st := statuses[g.rng.Intn(len(statuses))]
		return command.UpdateCard{CardID: card, Status: &st}
	}
}
