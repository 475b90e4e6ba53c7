package forecast

import "github.com/andresuchdata/autorestock/internal/domain"

// FindTrend returns the accumulated net stock movement (bought - sold) of the
// latest run of months moving in the same direction, or 0 when there is no
// trend. Zero months are skipped. A single month against the direction is
// absorbed when the month after it moves back in the direction by a larger
// amount. On the first day of the month the current month is ignored.
func FindTrend(sold, bought domain.MonthlyHistory, cal Calendar) int {
	start := 0
	if cal.Day() == 1 {
		start = 1
	}

	n := sold.Len()
	if bought.Len() < n {
		n = bought.Len()
	}
	if n <= start {
		return 0
	}

	diffs := make([]int, 0, n-start)
	for i := start; i < n; i++ {
		diffs = append(diffs, bought.At(i)-sold.At(i))
	}

	if diffs[0] == 0 {
		return 0
	}

	total := diffs[0]
	positive := diffs[0] > 0
	combo := 0

	for i := 1; i < len(diffs); {
		d := diffs[i]
		if d == 0 {
			i++
			continue
		}

		if (d > 0) == positive {
			total += d
			combo++
			i++
			continue
		}

		if i+1 < len(diffs) && abs(diffs[i+1]) > abs(d) && (diffs[i+1] > 0) == positive {
			total += d + diffs[i+1]
			combo++
			i += 2
			continue
		}
		break
	}

	if combo == 0 {
		return 0
	}
	return total
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
