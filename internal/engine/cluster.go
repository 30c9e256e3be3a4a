package engine

import (
	"math"
	"sort"

	"github.com/matmarket/procure-service/internal/catalog"
)

// Clusterer groups shop markers into map clusters by snapping coordinates
// onto a zoom-dependent grid. Cell size halves with every zoom level past
// the reference zoom and doubles below it.
type Clusterer struct {
	config *Config
}

func NewClusterer(config *Config) *Clusterer {
	return &Clusterer{config: config}
}

type gridCell struct {
	row, col int
}

// Cluster buckets every geocoded shop of the snapshot into grid cells for
// the given zoom level. Shops without coordinates are skipped. At or above
// the marker zoom threshold every shop becomes its own single-element
// cluster. Output is ordered by cell, shop ids within a cluster sorted.
func (c *Clusterer) Cluster(snap *catalog.Snapshot, zoom int) []Cluster {
	if zoom < 0 {
		zoom = 0
	}

	if zoom >= c.config.MarkerZoomThreshold {
		return c.markers(snap)
	}

	cellDegrees := c.config.ClusterBaseDegrees * math.Pow(2, float64(c.config.ClusterReferenceZoom-zoom))

	cells := make(map[gridCell][]*catalog.Shop)
	for _, shop := range snap.Shops() {
		if shop.Location == nil {
			continue
		}
		key := gridCell{
			row: int(math.Floor(shop.Location.Latitude / cellDegrees)),
			col: int(math.Floor(shop.Location.Longitude / cellDegrees)),
		}
		cells[key] = append(cells[key], shop)
	}

	keys := make([]gridCell, 0, len(cells))
	for key := range cells {
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].row != keys[j].row {
			return keys[i].row < keys[j].row
		}
		return keys[i].col < keys[j].col
	})

	clusters := make([]Cluster, 0, len(keys))
	for _, key := range keys {
		shops := cells[key]
		cluster := Cluster{Count: len(shops)}
		for _, shop := range shops {
			cluster.Latitude += shop.Location.Latitude
			cluster.Longitude += shop.Location.Longitude
			cluster.ShopIDs = append(cluster.ShopIDs, shop.ID)
		}
		cluster.Latitude /= float64(len(shops))
		cluster.Longitude /= float64(len(shops))
		sort.Strings(cluster.ShopIDs)
		clusters = append(clusters, cluster)
	}
	return clusters
}

// markers emits one cluster per geocoded shop, in snapshot (shop id) order.
func (c *Clusterer) markers(snap *catalog.Snapshot) []Cluster {
	shops := snap.Shops()
	clusters := make([]Cluster, 0, len(shops))
	for _, shop := range shops {
		if shop.Location == nil {
			continue
		}
		clusters = append(clusters, Cluster{
			Latitude:  shop.Location.Latitude,
			Longitude: shop.Location.Longitude,
			Count:     1,
			ShopIDs:   []string{shop.ID},
		})
	}
	return clusters
}
