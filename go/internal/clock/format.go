package clock

import "fmt"

const (
	positiveShowTenthsCutoff Millis = 10000
	negativeShowTenthsCutoff Millis = -1000
)

// ShowTenths reports whether ms falls in the band where sub-second precision is displayed.
func ShowTenths(ms Millis) bool {
	return ms < positiveShowTenthsCutoff && ms > negativeShowTenthsCutoff
}

// FormatMillis renders ms as "mm:ss", or "mm:ss.t" inside the tenths band when
// showTenths is set. Non-negative values round up and negative values round
// toward more negative, so a running clock never shows "00:00" while time is
// left and never shows "00:00" once overtime has started.
func FormatMillis(ms Millis, showTenths bool) string {
	sign := ""
	abs := ms
	if ms < 0 {
		sign = "-"
		abs = -ms
	}

	if !showTenths || !ShowTenths(ms) {
		totalSecs := ceilDiv(abs, 1000)
		return fmt.Sprintf("%s%02d:%02d", sign, totalSecs/60, totalSecs%60)
	}

	tenths := ceilDiv(abs, 100)
	secs := tenths / 10
	return fmt.Sprintf("%s%02d:%02d.%d", sign, secs/60, secs%60, tenths%10)
}

func ceilDiv(n, d Millis) Millis {
	return (n + d - 1) / d
}
