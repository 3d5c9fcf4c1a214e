package lighting

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"go.uber.org/zap"
)

// Load reads lit street segments from a GeoJSON FeatureCollection.
// LineString and MultiLineString features become segments, everything else
// is ignored. A missing file yields no segments and no error.
func Load(path string, logger *zap.Logger) ([]orb.LineString, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		logger.Warn("Lighting data not found, heuristic will ignore lighting", zap.String("path", path))
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read lighting data: %w", err)
	}

	segments, err := Parse(data)
	if err != nil {
		return nil, err
	}
	logger.Info("Lighting data loaded", zap.String("path", path), zap.Int("segments", len(segments)))
	return segments, nil
}

func Parse(data []byte) ([]orb.LineString, error) {
	fc, err := geojson.UnmarshalFeatureCollection(data)
	if err != nil {
		return nil, fmt.Errorf("decode lighting geojson: %w", err)
	}

	var segments []orb.LineString
	for _, f := range fc.Features {
		switch g := f.Geometry.(type) {
		case orb.LineString:
			if len(g) > 0 {
				segments = append(segments, g)
			}
		case orb.MultiLineString:
			for _, ls := range g {
				if len(ls) > 0 {
					segments = append(segments, ls)
				}
			}
		}
	}
	return segments, nil
}
