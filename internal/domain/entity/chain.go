package entity

import (
	"strings"

	"github.com/google/uuid"

	"github.com/ignatzorin/barter-backend/internal/domain/valueobject"
)

// ChainParticipant - узел цепочки: отдаёт свой товар предыдущему, получает товар следующего.
type ChainParticipant struct {
	UserID              uuid.UUID
	GivesProductID      uuid.UUID
	WantsProductID      uuid.UUID
	WantsProductOwnerID uuid.UUID
	Value               valueobject.Valor
	Location            *valueobject.Location
}

// Chain - найденная возможность многостороннего обмена. Не сохраняется, пересчитывается на запрос.
type Chain struct {
	Participants      []ChainParticipant
	ChainLength       int
	ValueBalanceScore float64
	LocationScore     float64
	TotalScore        float64
	IsValueBalanced   bool
}

// Key - каноничный идентификатор цикла, не зависящий от точки входа.
func (c *Chain) Key() string {
	if len(c.Participants) == 0 {
		return ""
	}
	start := 0
	for i, p := range c.Participants {
		if p.UserID.String() < c.Participants[start].UserID.String() {
			start = i
		}
	}
	parts := make([]string, 0, len(c.Participants))
	for i := range c.Participants {
		p := c.Participants[(start+i)%len(c.Participants)]
		parts = append(parts, p.UserID.String()+":"+p.GivesProductID.String())
	}
	return strings.Join(parts, ">")
}

func (c *Chain) HasUser(userID uuid.UUID) bool {
	for _, p := range c.Participants {
		if p.UserID == userID {
			return true
		}
	}
	return false
}
