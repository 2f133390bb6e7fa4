// Package route orders a team member's daily stops with a nearest-neighbour
// heuristic and computes travel metrics. The result is deterministic and
// reproducible for identical input ordering but is not guaranteed to be the
// minimal tour.
package route

import (
	"math"
	"time"

	"github.com/example/cleaning-dispatch/internal/persistence"
)

const earthRadiusKm = 6371

// Stop is one job visit on a route.
type Stop struct {
	JobID           string
	Coordinate      persistence.Coordinate
	ServiceDuration time.Duration
}

// Params configures the optimizer. Zero values fall back to the defaults of
// the Danish operation the engine was built for.
type Params struct {
	// AverageSpeedKmh converts inter-stop distance into travel time.
	AverageSpeedKmh float64
	// FuelCostPerKm prices the total distance, in DKK.
	FuelCostPerKm float64
	// Depot, when set, seeds the route with the stop closest to it;
	// otherwise the first input stop is fixed as the route start.
	Depot *persistence.Coordinate
	// TwoOpt enables a deterministic 2-opt improvement pass after the
	// nearest-neighbour construction.
	TwoOpt bool
}

// DefaultParams mirrors the operational defaults: 30 km/h urban average and
// 2.50 DKK per km.
func DefaultParams() Params {
	return Params{AverageSpeedKmh: 30, FuelCostPerKm: 2.5}
}

// Route is the ordered visit plan for one member on one date, with derived
// metrics. It is always recomputed from scratch; any change to the job set
// invalidates the whole route.
type Route struct {
	MemberID string
	Date     time.Time
	Stops    []Stop
	// TotalDistanceKm sums the great-circle legs between consecutive stops.
	TotalDistanceKm float64
	// TravelDuration is the drive time implied by the average speed.
	TravelDuration time.Duration
	// TotalDuration is service time plus travel time.
	TotalDuration time.Duration
	// FuelCost estimates fuel spend for the distance.
	FuelCost float64
	// Efficiency is the average minutes spent per job, travel included.
	Efficiency float64
}

// Optimize orders the stops and computes metrics. Zero or one stop yields
// zero distance and zero travel time; stops sharing identical coordinates
// keep their input order.
func Optimize(memberID string, date time.Time, stops []Stop, params Params) Route {
	if params.AverageSpeedKmh <= 0 {
		params.AverageSpeedKmh = 30
	}
	if params.FuelCostPerKm < 0 {
		params.FuelCostPerKm = 0
	}

	ordered := nearestNeighbour(stops, params.Depot)
	if params.TwoOpt && len(ordered) > 3 {
		ordered = twoOpt(ordered)
	}

	route := Route{MemberID: memberID, Date: date, Stops: ordered}
	for i, stop := range ordered {
		route.TotalDuration += stop.ServiceDuration
		if i > 0 {
			route.TotalDistanceKm += Haversine(ordered[i-1].Coordinate, stop.Coordinate)
		}
	}
	route.TravelDuration = time.Duration(route.TotalDistanceKm / params.AverageSpeedKmh * float64(time.Hour))
	route.TotalDuration += route.TravelDuration
	route.FuelCost = route.TotalDistanceKm * params.FuelCostPerKm
	if len(ordered) > 0 {
		route.Efficiency = route.TotalDuration.Minutes() / float64(len(ordered))
	}
	return route
}

// Haversine returns the great-circle distance between two coordinates in km.
func Haversine(a, b persistence.Coordinate) float64 {
	dLat := (b.Lat - a.Lat) * math.Pi / 180
	dLng := (b.Lng - a.Lng) * math.Pi / 180
	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(a.Lat*math.Pi/180)*math.Cos(b.Lat*math.Pi/180)*
			math.Sin(dLng/2)*math.Sin(dLng/2)
	return earthRadiusKm * 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
}

// nearestNeighbour builds the tour greedily. The seed is the stop closest to
// the depot when one is configured, else the first input stop. Distance ties
// resolve to the earlier input position, which keeps co-located stops in
// input order.
func nearestNeighbour(stops []Stop, depot *persistence.Coordinate) []Stop {
	if len(stops) <= 1 {
		out := make([]Stop, len(stops))
		copy(out, stops)
		return out
	}

	remaining := make([]Stop, len(stops))
	copy(remaining, stops)

	seed := 0
	if depot != nil {
		best := math.Inf(1)
		for i, stop := range remaining {
			if d := Haversine(*depot, stop.Coordinate); d < best {
				best = d
				seed = i
			}
		}
	}

	ordered := make([]Stop, 0, len(remaining))
	current := remaining[seed]
	ordered = append(ordered, current)
	remaining = append(remaining[:seed], remaining[seed+1:]...)

	for len(remaining) > 0 {
		next := 0
		best := math.Inf(1)
		for i, stop := range remaining {
			if d := Haversine(current.Coordinate, stop.Coordinate); d < best {
				best = d
				next = i
			}
		}
		current = remaining[next]
		ordered = append(ordered, current)
		remaining = append(remaining[:next], remaining[next+1:]...)
	}
	return ordered
}

// twoOpt uncrosses the tour by reversing segments while any reversal
// shortens it. First-improvement scanning keeps the pass deterministic.
func twoOpt(stops []Stop) []Stop {
	tour := make([]Stop, len(stops))
	copy(tour, stops)

	improved := true
	for improved {
		improved = false
		for i := 0; i < len(tour)-2; i++ {
			for j := i + 2; j < len(tour)-1; j++ {
				current := Haversine(tour[i].Coordinate, tour[i+1].Coordinate) +
					Haversine(tour[j].Coordinate, tour[j+1].Coordinate)
				swapped := Haversine(tour[i].Coordinate, tour[j].Coordinate) +
					Haversine(tour[i+1].Coordinate, tour[j+1].Coordinate)
				if swapped < current-1e-9 {
					reverse(tour[i+1 : j+1])
					improved = true
				}
			}
		}
	}
	return tour
}

func reverse(s []Stop) {
	for i, j := 0, len(s)-1; i < j; i, j = i+1, j-1 {
		s[i], s[j] = s[j], s[i]
	}
}

// Summary aggregates metrics across the routes of one dispatch date.
type Summary struct {
	TotalJobs         int
	TotalDistanceKm   float64
	TotalFuelCost     float64
	AverageEfficiency float64
	ActiveTeams       int
}

// Summarize folds per-member routes into fleet-level figures.
func Summarize(routes []Route) Summary {
	var summary Summary
	var efficiencySum float64
	for _, r := range routes {
		summary.TotalJobs += len(r.Stops)
		summary.TotalDistanceKm += r.TotalDistanceKm
		summary.TotalFuelCost += r.FuelCost
		efficiencySum += r.Efficiency
		if len(r.Stops) > 0 {
			summary.ActiveTeams++
		}
	}
	if len(routes) > 0 {
		summary.AverageEfficiency = efficiencySum / float64(len(routes))
	}
	return summary
}
