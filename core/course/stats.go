package course

import "math"

// Percent returns part/total as a percentage rounded to 2 decimals, 0 when total is 0.
func Percent(part, total int) float64 {
	if total <= 0 {
		return 0
	}
	return RoundPercent(float64(part) / float64(total) * 100)
}

// GroupsFilledPercent averages how full each group is, given the capacity of a group.
func GroupsFilledPercent(groups []Group, capacity int) float64 {
	if len(groups) == 0 || capacity <= 0 {
		return 0
	}
	var sum float64
	for _, g := range groups {
		sum += float64(g.StudentsCount) / float64(capacity) * 100
	}
	return RoundPercent(sum / float64(len(groups)))
}

func RoundPercent(f float64) float64 {
	return math.Round(f*100) / 100
}
