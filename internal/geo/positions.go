package geo

import (
	"context"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/cisse-224/clappybackend/internal/models"
)

// PositionIndex keeps the latest known driver positions in Redis: a GEO set
// for radius queries plus a per-driver metadata hash.
type PositionIndex struct {
	client *redis.Client
	key    string
}

func NewPositionIndex(addr, password, key string) *PositionIndex {
	c := redis.NewClient(&redis.Options{Addr: addr, Password: password})
	return &PositionIndex{client: c, key: key}
}

func (p *PositionIndex) Record(ctx context.Context, pos models.Position) error {
	if _, err := p.client.GeoAdd(ctx, p.key, &redis.GeoLocation{
		Longitude: pos.Lon,
		Latitude:  pos.Lat,
		Name:      pos.DriverID,
	}).Result(); err != nil {
		return err
	}
	at := pos.At
	if at.IsZero() {
		at = time.Now()
	}
	return p.client.HSet(ctx, metaKey(pos.DriverID), map[string]interface{}{
		"lat":     strconv.FormatFloat(pos.Lat, 'f', 6, 64),
		"lon":     strconv.FormatFloat(pos.Lon, 'f', 6, 64),
		"updated": at.Format(time.RFC3339),
	}).Err()
}

// Nearby returns the drivers last seen within radiusM meters of a point,
// closest first.
func (p *PositionIndex) Nearby(ctx context.Context, lat, lon, radiusM float64, limit int) ([]models.Position, error) {
	res, err := p.client.GeoRadius(ctx, p.key, lon, lat, &redis.GeoRadiusQuery{
		Radius: radiusM, Unit: "m", WithCoord: true, WithDist: true, Count: limit, Sort: "ASC",
	}).Result()
	if err != nil {
		return nil, err
	}
	out := make([]models.Position, 0, len(res))
	for _, g := range res {
		pos := models.Position{DriverID: g.Name, Lat: g.Latitude, Lon: g.Longitude}
		if m, err := p.client.HGetAll(ctx, metaKey(g.Name)).Result(); err == nil {
			if v, ok := m["updated"]; ok {
				if t, err := time.Parse(time.RFC3339, v); err == nil {
					pos.At = t
				}
			}
		}
		out = append(out, pos)
	}
	return out, nil
}

func (p *PositionIndex) Ping(ctx context.Context) error {
	return p.client.Ping(ctx).Err()
}

func (p *PositionIndex) Close() error { return p.client.Close() }

func metaKey(id string) string { return "chauffeur:meta:" + id }
