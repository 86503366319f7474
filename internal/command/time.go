package command

import "time"

// nowFunc is a seam for tests that need to control expiry/ordering; it is
// never reassigned outside _test.go files.
var nowFunc = time.Now
