// Package tracking implements the background location reporter: it samples
// device position at a fixed cadence and submits each sample to the backend
// tagged with whatever task is currently active. Its lifecycle is
// independent of any foreground command: it stops on logout or process
// death only, and is restarted after a short delay if it fails.
package tracking

import (
	"bufio"
	"context"
	"errors"
	"math"
	"os"
	"strconv"
	"strings"
	"time"
)

// ErrPermissionDenied is returned by a Source when the platform refuses
// location access. The reporter treats it as "updates cease", never a crash.
var ErrPermissionDenied = errors.New("location permission denied")

// Position is one location sample.
type Position struct {
	Latitude  float64
	Longitude float64
	Time      time.Time
}

// Options controls sampling cadence and the stationary filter.
type Options struct {
	// Interval between samples. High-accuracy receivers are polled at this
	// rate; 10-30 seconds is the intended range.
	Interval time.Duration

	// MinDisplacementMeters suppresses submissions that moved less than
	// this since the last successful one, to avoid redundant updates while
	// parked.
	MinDisplacementMeters float64
}

// Source produces position samples. Real receiver integration implements
// this; the shipped implementations cover depot terminals and replay files.
type Source interface {
	// Updates starts sampling and returns the sample channel. The channel
	// is closed when ctx is cancelled or the source is exhausted.
	Updates(ctx context.Context, opts Options) (<-chan Position, error)
}

// FixedSource emits a constant coordinate every interval. Used for depot
// terminals that have no receiver but still need to appear on the map.
type FixedSource struct {
	Latitude  float64
	Longitude float64
}

// Updates implements Source.
func (f FixedSource) Updates(ctx context.Context, opts Options) (<-chan Position, error) {
	ch := make(chan Position)
	go func() {
		defer close(ch)
		ticker := time.NewTicker(opts.Interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case now := <-ticker.C:
				select {
				case ch <- Position{Latitude: f.Latitude, Longitude: f.Longitude, Time: now}:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return ch, nil
}

// ReplaySource reads "lat,lon" lines from a file and emits one per
// interval, closing the channel at EOF. Blank lines and lines starting
// with '#' are skipped.
type ReplaySource struct {
	Path string
}

// Updates implements Source.
func (r ReplaySource) Updates(ctx context.Context, opts Options) (<-chan Position, error) {
	f, err := os.Open(r.Path)
	if err != nil {
		return nil, err
	}

	ch := make(chan Position)
	go func() {
		defer close(ch)
		defer f.Close()

		ticker := time.NewTicker(opts.Interval)
		defer ticker.Stop()

		scanner := bufio.NewScanner(f)
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if line == "" || strings.HasPrefix(line, "#") {
				continue
			}
			parts := strings.SplitN(line, ",", 2)
			if len(parts) != 2 {
				continue
			}
			lat, err1 := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
			lon, err2 := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
			if err1 != nil || err2 != nil {
				continue
			}

			select {
			case <-ctx.Done():
				return
			case now := <-ticker.C:
				select {
				case ch <- Position{Latitude: lat, Longitude: lon, Time: now}:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return ch, nil
}

// earthRadiusMeters is the mean Earth radius used by the haversine formula.
const earthRadiusMeters = 6371000.0

// distanceMeters returns the great-circle distance between two coordinates.
func distanceMeters(lat1, lon1, lat2, lon2 float64) float64 {
	toRad := func(deg float64) float64 { return deg * math.Pi / 180 }
	dLat := toRad(lat2 - lat1)
	dLon := toRad(lon2 - lon1)
	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(toRad(lat1))*math.Cos(toRad(lat2))*math.Sin(dLon/2)*math.Sin(dLon/2)
	return 2 * earthRadiusMeters * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
}
