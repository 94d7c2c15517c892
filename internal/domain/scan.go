package domain

// Scan holds one file's worth of subset data: Points ground locations with
// Levels vertical samples each. Per-point slices have length Points; grids
// are Points x Levels with level 0 nearest the surface.
type Scan struct {
	Points int
	Levels int

	Timestamps []float64 // yyyydddhhmm
	Longitudes []float64
	Latitudes  []float64

	Elevation Grid // meters above mean sea level
	Value     Grid
	Thickness Grid // layered products only

	HasThickness bool
}

// Reset shapes the scan for a new file. Buffers are reused when their
// capacity suffices, so files with uniform geometry allocate once.
func (s *Scan) Reset(points, levels int, withThickness bool) {
	s.Points, s.Levels = points, levels
	s.Timestamps = resize(s.Timestamps, points)
	s.Longitudes = resize(s.Longitudes, points)
	s.Latitudes = resize(s.Latitudes, points)
	s.Elevation.Resize(points, levels)
	s.Value.Resize(points, levels)
	s.HasThickness = withThickness
	if withThickness {
		s.Thickness.Resize(points, levels)
	} else {
		s.Thickness.Resize(0, 0)
	}
}

// Shape sets the logical point and level counts after an in-place reduction,
// trimming every array to match.
func (s *Scan) Shape(points, levels int) {
	s.Points, s.Levels = points, levels
	s.Timestamps = s.Timestamps[:points]
	s.Longitudes = s.Longitudes[:points]
	s.Latitudes = s.Latitudes[:points]
	s.Elevation.Points, s.Elevation.Levels = points, levels
	s.Elevation.Data = s.Elevation.Data[:points*levels]
	s.Value.Points, s.Value.Levels = points, levels
	s.Value.Data = s.Value.Data[:points*levels]
	if s.HasThickness {
		s.Thickness.Points, s.Thickness.Levels = points, levels
		s.Thickness.Data = s.Thickness.Data[:points*levels]
	}
}

// Cells is Points * Levels.
func (s *Scan) Cells() int { return s.Points * s.Levels }

// Info summarizes the scan for the output header.
func (s *Scan) Info(file string, timestamp int64) (ScanInfo, error) {
	b, err := ComputeBounds(s.Longitudes[:s.Points], s.Latitudes[:s.Points])
	if err != nil {
		return ScanInfo{}, err
	}
	return ScanInfo{
		File:      file,
		Timestamp: timestamp,
		Bounds:    b,
		Points:    s.Points,
		Levels:    s.Levels,
	}, nil
}

// ScanInfo is the per-scan metadata kept after the scan's arrays are spooled.
type ScanInfo struct {
	File      string `json:"file"`
	Timestamp int64  `json:"timestamp"` // yyyydddhhmm
	Bounds    Bounds `json:"bounds"`
	Points    int    `json:"points"`
	Levels    int    `json:"levels"`
}

func resize(s []float64, n int) []float64 {
	if cap(s) >= n {
		return s[:n]
	}
	return make([]float64, n)
}
