package assessment

import "encoding/json"

// geoJSONFeature and geoJSONCollection model just enough of the
// GeoJSON spec for point features with a score property -- the shape
// spec.md §4.H's suitability handler needs to write.
type geoJSONFeature struct {
	Type       string                 `json:"type"`
	Geometry   geoJSONPoint           `json:"geometry"`
	Properties map[string]interface{} `json:"properties"`
}

type geoJSONPoint struct {
	Type        string    `json:"type"`
	Coordinates []float64 `json:"coordinates"`
}

type geoJSONCollection struct {
	Type     string           `json:"type"`
	Features []geoJSONFeature `json:"features"`
}

// FeatureWriter serializes a site list into the worker's on-disk
// suitable.geojson format: spec.md §4.H requires a bare JSON `null`
// when there are no sites, and a FeatureCollection otherwise.
type FeatureWriter struct{}

// Marshal renders sites as GeoJSON bytes, per spec.md §4.H.3's
// empty-vs-non-empty rule.
func (FeatureWriter) Marshal(sites []Site) ([]byte, error) {
	if len(sites) == 0 {
		return []byte("null"), nil
	}
	collection := geoJSONCollection{Type: "FeatureCollection"}
	for _, s := range sites {
		collection.Features = append(collection.Features, geoJSONFeature{
			Type:     "Feature",
			Geometry: geoJSONPoint{Type: "Point", Coordinates: []float64{s.Lon, s.Lat}},
			Properties: map[string]interface{}{
				"id":    s.ID,
				"score": s.Score,
			},
		})
	}
	return json.MarshalIndent(collection, "", "  ")
}
