package sanitize

// Bucket functions convert continuous non-negative values into coarse labels
// so raw measurements never leave the device. Callers bucket before placing
// a value in event props; the sanitizer only filters keys, it never
// re-derives buckets from raw numbers.
//
// Boundaries are upper-bound inclusive except where a label states a lower
// bound (e.g. 30 seconds falls in "30-120s").

// TextLengthBucket buckets a character count.
func TextLengthBucket(n int) string {
	switch {
	case n <= 20:
		return "0-20"
	case n <= 80:
		return "21-80"
	case n <= 200:
		return "81-200"
	case n <= 500:
		return "201-500"
	default:
		return "501+"
	}
}

// DurationBucket buckets a duration in seconds. Lower bounds are inclusive.
func DurationBucket(seconds int) string {
	switch {
	case seconds < 5:
		return "<5s"
	case seconds < 30:
		return "5-30s"
	case seconds < 120:
		return "30-120s"
	case seconds < 600:
		return "2-10m"
	default:
		return "10m+"
	}
}

// LatencyBucket buckets a latency in milliseconds. Lower bounds are inclusive.
func LatencyBucket(ms int) string {
	switch {
	case ms < 100:
		return "<100ms"
	case ms < 300:
		return "100-300ms"
	case ms < 1000:
		return "300ms-1s"
	case ms < 3000:
		return "1-3s"
	default:
		return "3s+"
	}
}

// AmountBucket buckets counts such as edit distances or item amounts.
func AmountBucket(n int) string {
	switch {
	case n <= 20:
		return "0-20"
	case n <= 100:
		return "21-100"
	case n <= 500:
		return "101-500"
	case n <= 2000:
		return "501-2000"
	default:
		return "2000+"
	}
}

// CountBucket buckets small cardinalities such as query lengths and result
// counts, with zero kept distinct.
func CountBucket(n int) string {
	switch {
	case n == 0:
		return "0"
	case n <= 3:
		return "1-3"
	case n <= 10:
		return "4-10"
	case n <= 25:
		return "11-25"
	default:
		return "26+"
	}
}

// InstallAgeBucket buckets an install age in days.
func InstallAgeBucket(days int) string {
	switch {
	case days == 0:
		return "0d"
	case days <= 7:
		return "1-7d"
	case days <= 30:
		return "8-30d"
	case days <= 90:
		return "31-90d"
	default:
		return "90d+"
	}
}
