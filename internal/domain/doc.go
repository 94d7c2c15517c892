// Package domain models CALIPSO lidar swath data as it flows through the
// subset pipeline.
//
// # Data Source
//
// CALIPSO Level 1 and Level 2 products are distributed by NASA LaRC as one
// file per half orbit ("granule"). The file name carries the product type
// and the granule start time:
//
//	CAL_LID_L2_05kmAPro-Standard-V4-20.2006-07-03T00-22-49ZN.hdf
//	        ^^^^^^^^^^^                 ^^^^^^^^^^^^^^^^^^^
//	        product                     start time (UTC), N/D = night/day
//
// See [ProductFromFileName] and [ParseFileTime].
//
// # Conventions
//
// Layout:
//
//	Every multi-level array is point-major: cell (point, level) is stored at
//	point*levels + level. [Grid] carries the row length so callers never
//	compute offsets by hand.
//
// Vertical order:
//
//	Files store levels sky to surface. Everything in this package and
//	downstream is surface to sky (level 0 lowest) after reconstruction.
//
// Time:
//
//	Profile_UTC_Time is yymmdd.ffffffff where the fraction is the elapsed
//	part of the UTC day. Output timestamps are yyyydddhhmm integers, e.g.
//	2006-07-03 00:22 UTC is 20061840022. Both encodings sort chronologically.
//
// Geolocation:
//
//	Coarse products store three values per footprint (first, middle, last).
//	The middle one locates the footprint; see [GeolocationComponent].
//
// Missing values:
//
//	Cells rejected by QC, outside the elevation range, or absent from the
//	source are set to [Missing] (-9999).
//
// Bounds:
//
//	[Bounds] is a plain longitude/latitude box. Tracks crossing the
//	antimeridian widen to the full longitude range; there is no wraparound
//	interval type.
package domain
