package cache

// Stats holds cache counters since startup.
type Stats struct {
	Hits      int64   `json:"hits"`
	Misses    int64   `json:"misses"`
	Evictions int64   `json:"evictions"`
	Expired   int64   `json:"expired"`
	Entries   int     `json:"entries"`
	HitRate   float64 `json:"hit_rate"`
}
