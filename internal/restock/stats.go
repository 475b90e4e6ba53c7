package restock

import "github.com/rs/zerolog"

// RunStats aggregates the counters of a single run. Each run owns its own
// instance; it is not shared between runs.
type RunStats struct {
	Success   int `json:"success"`
	Fail      int `json:"fail"`
	Packages  int `json:"packages"`
	Skipped   int `json:"skipped"`
	Excluded  int `json:"excluded"`
	Zombies   int `json:"zombies"`
	New       int `json:"new"`
	LowSale   int `json:"low_sale"`
	Anomalous int `json:"anomalous"`
	Errors    int `json:"errors"`
	DataGaps  int `json:"data_gaps"`
}

// SuccessRate is the share of decided products that got an order
func (s *RunStats) SuccessRate() float64 {
	total := s.Success + s.Fail
	if total == 0 {
		return 0
	}
	return float64(s.Success) / float64(total)
}

func (s *RunStats) recordGate(g Gate) {
	switch g.Kind {
	case GateExclude:
		s.Excluded++
	case GateSkip:
		s.Skipped++
	case GateZombie:
		s.Zombies++
	case GateNew:
		s.New++
	}
	if g.Anomalous {
		s.Anomalous++
	}
}

// Log writes the run statistics as a single line
func (s *RunStats) Log(logger zerolog.Logger) {
	logger.Info().
		Int("success", s.Success).
		Int("fail", s.Fail).
		Int("packages", s.Packages).
		Float64("success_rate", s.SuccessRate()).
		Int("skipped", s.Skipped).
		Int("excluded", s.Excluded).
		Int("zombies", s.Zombies).
		Int("new", s.New).
		Int("low_sale", s.LowSale).
		Int("anomalous", s.Anomalous).
		Int("errors", s.Errors).
		Int("data_gaps", s.DataGaps).
		Msg("restock run statistics")
}
