package sanitize

import "testing"

func TestTextLengthBucket(t *testing.T) {
	tests := []struct {
		n    int
		want string
	}{
		{0, "0-20"},
		{20, "0-20"},
		{21, "21-80"},
		{80, "21-80"},
		{81, "81-200"},
		{200, "81-200"},
		{201, "201-500"},
		{500, "201-500"},
		{501, "501+"},
		{100000, "501+"},
	}
	for _, tt := range tests {
		if got := TextLengthBucket(tt.n); got != tt.want {
			t.Errorf("TextLengthBucket(%d) = %q, want %q", tt.n, got, tt.want)
		}
	}
}

func TestDurationBucket(t *testing.T) {
	tests := []struct {
		seconds int
		want    string
	}{
		{0, "<5s"},
		{4, "<5s"},
		{5, "5-30s"},
		{29, "5-30s"},
		{30, "30-120s"},
		{119, "30-120s"},
		{120, "2-10m"},
		{599, "2-10m"},
		{600, "10m+"},
	}
	for _, tt := range tests {
		if got := DurationBucket(tt.seconds); got != tt.want {
			t.Errorf("DurationBucket(%d) = %q, want %q", tt.seconds, got, tt.want)
		}
	}
}

func TestLatencyBucket(t *testing.T) {
	tests := []struct {
		ms   int
		want string
	}{
		{0, "<100ms"},
		{99, "<100ms"},
		{100, "100-300ms"},
		{299, "100-300ms"},
		{300, "300ms-1s"},
		{999, "300ms-1s"},
		{1000, "1-3s"},
		{2999, "1-3s"},
		{3000, "3s+"},
	}
	for _, tt := range tests {
		if got := LatencyBucket(tt.ms); got != tt.want {
			t.Errorf("LatencyBucket(%d) = %q, want %q", tt.ms, got, tt.want)
		}
	}
}

func TestAmountBucket(t *testing.T) {
	tests := []struct {
		n    int
		want string
	}{
		{0, "0-20"},
		{20, "0-20"},
		{21, "21-100"},
		{100, "21-100"},
		{101, "101-500"},
		{500, "101-500"},
		{501, "501-2000"},
		{2000, "501-2000"},
		{2001, "2000+"},
	}
	for _, tt := range tests {
		if got := AmountBucket(tt.n); got != tt.want {
			t.Errorf("AmountBucket(%d) = %q, want %q", tt.n, got, tt.want)
		}
	}
}

func TestCountBucket(t *testing.T) {
	tests := []struct {
		n    int
		want string
	}{
		{0, "0"},
		{1, "1-3"},
		{3, "1-3"},
		{4, "4-10"},
		{10, "4-10"},
		{11, "11-25"},
		{25, "11-25"},
		{26, "26+"},
	}
	for _, tt := range tests {
		if got := CountBucket(tt.n); got != tt.want {
			t.Errorf("CountBucket(%d) = %q, want %q", tt.n, got, tt.want)
		}
	}
}

func TestInstallAgeBucket(t *testing.T) {
	tests := []struct {
		days int
		want string
	}{
		{0, "0d"},
		{1, "1-7d"},
		{7, "1-7d"},
		{8, "8-30d"},
		{30, "8-30d"},
		{31, "31-90d"},
		{90, "31-90d"},
		{91, "90d+"},
	}
	for _, tt := range tests {
		if got := InstallAgeBucket(tt.days); got != tt.want {
			t.Errorf("InstallAgeBucket(%d) = %q, want %q", tt.days, got, tt.want)
		}
	}
}
