package schedule

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// singleOrderCoverageDays is the coverage used when the store orders once a
// week
const singleOrderCoverageDays = 9

// OrderDay is one enabled order day and the days until its delivery
type OrderDay struct {
	Weekday        time.Weekday
	DeliveryOffset int
}

// Schedule is the weekly order calendar of a storage together with the
// traffic weight of each weekday (1.0 is a normal day).
type Schedule struct {
	orders  map[time.Weekday]int
	weights [7]float64
}

// New creates a schedule. Every weekday weighs 1.0 until set otherwise.
func New(days ...OrderDay) *Schedule {
	s := &Schedule{orders: make(map[time.Weekday]int, len(days))}
	for i := range s.weights {
		s.weights[i] = 1
	}
	for _, d := range days {
		s.orders[d.Weekday] = d.DeliveryOffset
	}
	return s
}

// SetWeight sets the traffic weight of a weekday
func (s *Schedule) SetWeight(day time.Weekday, weight float64) {
	s.weights[day] = weight
}

// OrderDays returns the enabled order days, Monday first
func (s *Schedule) OrderDays() []time.Weekday {
	var out []time.Weekday
	for i := 1; i <= 7; i++ {
		d := time.Weekday(i % 7)
		if _, ok := s.orders[d]; ok {
			out = append(out, d)
		}
	}
	return out
}

// DeliveryDay returns the weekday on which an order placed on day arrives
func (s *Schedule) DeliveryDay(day time.Weekday) time.Weekday {
	return time.Weekday((int(day) + s.orders[day]) % 7)
}

// Coverage returns the weighted number of days an order placed on today must
// cover: from today up to the delivery of the next order, both included.
func (s *Schedule) Coverage(today time.Weekday) float64 {
	switch len(s.orders) {
	case 0:
		return 0
	case 1:
		return s.weightedDays(today, singleOrderCoverageDays)
	}

	ahead := 7
	for d := 1; d <= 7; d++ {
		if _, ok := s.orders[time.Weekday((int(today)+d)%7)]; ok {
			ahead = d
			break
		}
	}
	next := time.Weekday((int(today) + ahead) % 7)
	days := ahead + s.orders[next] + 1

	return s.weightedDays(today, days)
}

func (s *Schedule) weightedDays(start time.Weekday, days int) float64 {
	var sum float64
	for i := 0; i < days; i++ {
		sum += s.weights[(int(start)+i)%7]
	}
	return math.RoundToEven(sum*100) / 100
}

var weekdays = map[string]time.Weekday{
	"sun": time.Sunday,
	"mon": time.Monday,
	"tue": time.Tuesday,
	"wed": time.Wednesday,
	"thu": time.Thursday,
	"fri": time.Friday,
	"sat": time.Saturday,
}

// ParseWeekday accepts a three letter or full English weekday name
func ParseWeekday(s string) (time.Weekday, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if len(s) >= 3 {
		if d, ok := weekdays[s[:3]]; ok {
			return d, nil
		}
	}
	return time.Sunday, fmt.Errorf("unknown weekday %q", s)
}

// Parse builds a schedule from its config form. orders lists order days with
// an optional delivery offset ("mon:1,thu:2", offset defaults to 1); weights
// lists traffic weights ("sat:1.2,sun:0.8").
func Parse(orders, weights string) (*Schedule, error) {
	var days []OrderDay
	for _, item := range splitList(orders) {
		name, value, hasValue := strings.Cut(item, ":")
		day, err := ParseWeekday(name)
		if err != nil {
			return nil, err
		}
		offset := 1
		if hasValue {
			if offset, err = strconv.Atoi(strings.TrimSpace(value)); err != nil || offset < 0 {
				return nil, fmt.Errorf("invalid delivery offset %q for %s", value, name)
			}
		}
		days = append(days, OrderDay{Weekday: day, DeliveryOffset: offset})
	}

	s := New(days...)
	for _, item := range splitList(weights) {
		name, value, ok := strings.Cut(item, ":")
		if !ok {
			return nil, fmt.Errorf("invalid weight %q, expected day:weight", item)
		}
		day, err := ParseWeekday(name)
		if err != nil {
			return nil, err
		}
		w, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
		if err != nil || w < 0 {
			return nil, fmt.Errorf("invalid weight %q for %s", value, name)
		}
		s.SetWeight(day, w)
	}
	return s, nil
}

func splitList(s string) []string {
	var out []string
	for _, item := range strings.Split(s, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
