package node

import "time"

// wallClockNow is a package-level seam so tests can substitute a fixed
// clock, following the teacher's nowUnix var pattern in cmd/*/main.go.
var wallClockNow = time.Now
