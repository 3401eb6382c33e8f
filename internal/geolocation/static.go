package geolocation

import (
	"context"
	"time"
)

// Static reports a fixed position, re-emitted on the watch every Interval
type Static struct {
	Latitude  float64
	Longitude float64
	Accuracy  *float64
	Interval  time.Duration
	now       func() time.Time
}

// NewStatic creates a fixed position source
func NewStatic(lat, lng float64, accuracy *float64, interval time.Duration) *Static {
	return &Static{
		Latitude:  lat,
		Longitude: lng,
		Accuracy:  accuracy,
		Interval:  interval,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

func (s *Static) reading() Reading {
	return Reading{Latitude: s.Latitude, Longitude: s.Longitude, Accuracy: s.Accuracy, CapturedAt: s.now()}
}

// CurrentPosition returns the fixed position
func (s *Static) CurrentPosition(ctx context.Context) (Reading, error) {
	if err := ctx.Err(); err != nil {
		return Reading{}, err
	}
	return s.reading(), nil
}

// Watch re-emits the position every Interval; a zero Interval never emits
func (s *Static) Watch(ctx context.Context) (<-chan Reading, error) {
	ch := make(chan Reading, 1)
	go func() {
		defer close(ch)
		if s.Interval <= 0 {
			<-ctx.Done()
			return
		}
		ticker := time.NewTicker(s.Interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				select {
				case ch <- s.reading():
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return ch, nil
}
