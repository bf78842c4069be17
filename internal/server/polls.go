package server

import (
	"time"

	"github.com/google/uuid"

	"github.com/voxera/roomserver/internal/types"
)

// Poll is a live, in-memory poll scoped to a room. Polls are not
// persisted; they live and die with the room and are mutated only under
// the room's lock.
type Poll struct {
	Id        string    `json:"id"`
	Question  string    `json:"question"`
	Options   []string  `json:"options"`
	Counts    []int     `json:"counts"`
	CreatedBy int       `json:"created_by"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`

	votes map[int]int
}

type roomPolls struct {
	polls map[string]*Poll
}

func newRoomPolls() *roomPolls {
	return &roomPolls{polls: make(map[string]*Poll)}
}

func (rp *roomPolls) create(question string, options []string, createdBy int) *Poll {
	p := &Poll{
		Id:        uuid.NewString(),
		Question:  question,
		Options:   options,
		Counts:    make([]int, len(options)),
		CreatedBy: createdBy,
		Active:    true,
		CreatedAt: Now(),
		votes:     make(map[int]int),
	}
	rp.polls[p.Id] = p

	return p
}

func (rp *roomPolls) vote(pollId string, userId, option int) (*Poll, error) {
	p, ok := rp.polls[pollId]
	if !ok || !p.Active {
		return nil, types.ErrPollNotFound
	}

	if option < 0 || option >= len(p.Options) {
		return nil, types.ErrInvalidInput
	}

	if _, voted := p.votes[userId]; voted {
		return nil, types.ErrAlreadyVoted
	}

	p.votes[userId] = option
	p.Counts[option]++

	return p, nil
}

func (rp *roomPolls) end(pollId string) (*Poll, error) {
	p, ok := rp.polls[pollId]
	if !ok || !p.Active {
		return nil, types.ErrPollNotFound
	}

	p.Active = false

	return p, nil
}

func (rp *roomPolls) get(pollId string) (*Poll, bool) {
	p, ok := rp.polls[pollId]
	return p, ok
}

// snapshot returns copies of the still-active polls for a join snapshot.
func (rp *roomPolls) snapshot() []Poll {
	out := make([]Poll, 0, len(rp.polls))
	for _, p := range rp.polls {
		if !p.Active {
			continue
		}

		cp := *p
		cp.Counts = append([]int(nil), p.Counts...)
		cp.votes = nil
		out = append(out, cp)
	}

	return out
}
