package chain

import (
	"math"

	"github.com/ignatzorin/barter-backend/internal/domain/entity"
)

const (
	maxScore = 100.0
	// unknownLocationScore - оценка пары, если у одного из товаров нет координат.
	unknownLocationScore = 25.0
	// balancedDeviation - предельное относительное отклонение стоимости от средней.
	balancedDeviation = 0.2
	scoreEpsilon      = 1e-9
)

func (e *Engine) score(participants []entity.ChainParticipant) entity.Chain {
	value, balanced := valueBalance(participants)
	location := locationScore(participants, e.cfg.MaxDistanceKm)

	wv, wl := e.cfg.ValueWeight, e.cfg.LocationWeight
	total := (wv*value + wl*location) / (wv + wl)

	return entity.Chain{
		Participants:      participants,
		ChainLength:       len(participants),
		ValueBalanceScore: round2(value),
		LocationScore:     round2(location),
		TotalScore:        round2(total),
		IsValueBalanced:   balanced,
	}
}

// valueBalance: 100 при равных стоимостях, линейно падает с максимальным
// относительным отклонением от средней.
func valueBalance(participants []entity.ChainParticipant) (float64, bool) {
	if len(participants) == 0 {
		return 0, false
	}
	var sum float64
	for _, p := range participants {
		sum += float64(p.Value.Int64())
	}
	mean := sum / float64(len(participants))
	if mean == 0 {
		return maxScore, true
	}

	var maxDev float64
	for _, p := range participants {
		dev := math.Abs(float64(p.Value.Int64())-mean) / mean
		if dev > maxDev {
			maxDev = dev
		}
	}
	return math.Max(0, 1-maxDev) * maxScore, maxDev <= balancedDeviation+scoreEpsilon
}

// locationScore - среднее по соседним парам, включая пару последний-первый.
func locationScore(participants []entity.ChainParticipant, maxDistanceKm float64) float64 {
	n := len(participants)
	if n < 2 {
		return 0
	}
	var sum float64
	for i := 0; i < n; i++ {
		a, b := participants[i].Location, participants[(i+1)%n].Location
		if a == nil || b == nil {
			sum += unknownLocationScore
			continue
		}
		d := a.DistanceKm(*b)
		sum += math.Max(0, 1-d/maxDistanceKm) * maxScore
	}
	return sum / float64(n)
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
