package common

// Stats reports engine-wide counters, surfaced by the façade's Stats(). No
// wire protocol response carries them.
type Stats struct {
	NumKeys     int64
	NumPages    int
	TotalDiskSize int64

	WriteCount int64
	ReadCount  int64

	PageReads  int64
	PageWrites int64
	CacheHits  int64
}
